package models

import "time"

// APIResponse represents a standard API response
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Notice  string `json:"notice,omitempty"` // localized, user-facing
}

// CreateWizardRequest represents a wizard session creation request
type CreateWizardRequest struct {
	FromSearch      bool   `json:"from_search"`
	CaptureMode     string `json:"capture_mode,omitempty"` // "file_input" or "live_camera"
	RequireLiveness *bool  `json:"require_liveness,omitempty"`
	Locale          string `json:"locale,omitempty"`
}

// CreateWizardResponse is returned after a wizard session has been opened
type CreateWizardResponse struct {
	Status    string    `json:"status"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadRequest carries a file-input capture as a data URI or base64 payload
type UploadRequest struct {
	Image string `json:"image"`
}

// CaptureRequest triggers a live camera capture; the selection is only used
// when the document passes through the crop step
type CaptureRequest struct {
	Selection       *SelectionRequest `json:"selection,omitempty"`
	DisplayedWidth  int               `json:"displayed_width,omitempty"`
	DisplayedHeight int               `json:"displayed_height,omitempty"`
}

// SelectionRequest is a crop rectangle in percent of displayed bounds
type SelectionRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SelectTypeRequest selects a document type by catalog id
type SelectTypeRequest struct {
	TypeID string `json:"type_id"`
}

// SubmitRequest selects one of the two terminal review actions
type SubmitRequest struct {
	Action string `json:"action"` // "submit" or "manual_review"
}

// SearchRequest represents a companion search request
type SearchRequest struct {
	Term string `json:"term"`
}

// CompanionsResponse lists the registered companions
type CompanionsResponse struct {
	Status     string      `json:"status"`
	Companions []Companion `json:"companions"`
	Count      int         `json:"count"`
}

// FriendRequestsResponse lists the inbox
type FriendRequestsResponse struct {
	Status       string          `json:"status"`
	Requests     []FriendRequest `json:"requests"`
	PendingCount int             `json:"pending_count"`
}

// AcceptResponse is returned after a friend request became a companion
type AcceptResponse struct {
	Status    string    `json:"status"`
	Companion Companion `json:"companion"`
}

// DocumentType is a catalog entry rendered for one language
type DocumentType struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// DocumentTypesResponse lists the supported document types
type DocumentTypesResponse struct {
	Status string         `json:"status"`
	Types  []DocumentType `json:"types"`
}

// SearchResponse carries a search hit
type SearchResponse struct {
	Status string       `json:"status"`
	Result SearchResult `json:"result"`
}

// SendRequestResponse carries the friend request that was sent
type SendRequestResponse struct {
	Status  string        `json:"status"`
	Request FriendRequest `json:"request"`
}
