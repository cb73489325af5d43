package models

import (
	"time"

	"github.com/google/uuid"
)

// TypingFact records the last keystroke tick for one side of a session.
// Rows are upserted on conflict and never deleted; staleness is a read-time
// filter against the liveness window.
type TypingFact struct {
	SessionID    uuid.UUID `json:"session_id" gorm:"type:uuid;primaryKey"`
	Role         string    `json:"role" gorm:"size:8;primaryKey"` // user | admin
	LastTypingAt time.Time `json:"last_typing_at" gorm:"not null"`
}

func (TypingFact) TableName() string {
	return "typing_facts"
}

// SupportSettings is the single global settings row. AIAutoResponseEnabled
// is the default a session inherits when its own override is null.
type SupportSettings struct {
	ID                    uint      `json:"id" gorm:"primaryKey"`
	AIAutoResponseEnabled bool      `json:"ai_auto_response_enabled" gorm:"not null;default:true"`
	SupportEmail          string    `json:"support_email" gorm:"size:255"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (SupportSettings) TableName() string {
	return "support_settings"
}
