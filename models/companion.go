package models

import "time"

// CompanionStatus is the review state of a registered companion
type CompanionStatus string

const (
	CompanionPending  CompanionStatus = "pending"
	CompanionApproved CompanionStatus = "approved"
	CompanionRejected CompanionStatus = "rejected"
)

// Companion represents a registered dependent or contact
type Companion struct {
	Seq               uint            `gorm:"primaryKey;autoIncrement" json:"-"` // insertion order, newest is highest
	ID                string          `gorm:"size:100;uniqueIndex;not null" json:"id"`
	Name              string          `gorm:"size:200;not null" json:"name"`
	DocumentTypeLabel string          `gorm:"size:50;not null" json:"id_type"`
	IDNumber          string          `gorm:"size:50" json:"id_number"`
	Status            CompanionStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TableName specifies the table name for the Companion model
func (Companion) TableName() string {
	return "companions"
}

// RegistrationResult is the payload a finished wizard session hands to its caller
type RegistrationResult struct {
	Name              string `json:"name"`
	DocumentType      string `json:"documentType"`
	IDNumber          string `json:"idNumber"`
	ExpiryDate        string `json:"expiryDate"`
	BirthDate         string `json:"birthDate"`
	NeedManualReview  bool   `json:"needManualReview"`
	FromSearch        bool   `json:"fromSearch"`
	VerificationImage string `json:"verificationImage,omitempty"`
}
