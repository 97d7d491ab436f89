package models

import (
	"time"

	"github.com/google/uuid"
)

// DropStatus represents the lifecycle state of a drop
type DropStatus string

const (
	DropStatusPending   DropStatus = "pending"
	DropStatusMatched   DropStatus = "matched"
	DropStatusCompleted DropStatus = "completed"
	DropStatusCancelled DropStatus = "cancelled"
	DropStatusFailed    DropStatus = "failed"
)

// Terminal reports whether the status permits no further transitions
func (s DropStatus) Terminal() bool {
	return s == DropStatusCompleted || s == DropStatusCancelled || s == DropStatusFailed
}

// Drop represents a single donation intent. A drop is created pending,
// paired with another pending drop of the same amount by the matching
// service, and completed or failed when the payment provider reports
// settlement. MatchedDropID is set at most once and never changes.
type Drop struct {
	Base
	SenderID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"sender_id"`
	Sender        User       `gorm:"foreignKey:SenderID" json:"-"`
	ReceiverID    *uuid.UUID `gorm:"type:uuid;index" json:"receiver_id,omitempty"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Message       string     `gorm:"type:text" json:"message,omitempty"`
	Status        DropStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	MatchedDropID *uuid.UUID `gorm:"type:uuid" json:"matched_drop_id,omitempty"`
	MatchedAt     *time.Time `json:"matched_at,omitempty"`
	Reference     string     `gorm:"type:varchar(100);uniqueIndex" json:"reference"`
	Metadata      JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
}
