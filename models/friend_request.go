package models

// RequestStatus is the display state of an inbound friend request
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestExpired   RequestStatus = "expired"
	RequestAdded     RequestStatus = "added"
	RequestRequested RequestStatus = "requested"
	RequestRejected  RequestStatus = "rejected"
)

// FriendRequest represents an inbound companion request
type FriendRequest struct {
	ID          string        `json:"id"`
	Avatar      string        `json:"avatar,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description"` // "<id type>: <masked number>"
	Status      RequestStatus `json:"status"`
	Timestamp   string        `json:"timestamp"` // derived from CreatedAt
	CreatedAt   int64         `json:"createdAt"` // epoch milliseconds
	Leaving     bool          `json:"leaving,omitempty"`
}

// SearchResult is a user found by the companion search
type SearchResult struct {
	Name     string `json:"name"`
	IDType   string `json:"idType"`
	IDNumber string `json:"idNumber"`
	Phone    string `json:"phone,omitempty"`
}
