package models

import (
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════
// MESSAGE MODELS
// ═══════════════════════════════════════════════════════════

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
	SenderAI    Sender = "ai"
)

// Message is immutable after creation except for ViewedAt and the
// per-message reminder claim.
type Message struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index"`
	Sender    Sender    `json:"sender" gorm:"size:8;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	ImageURL  string    `json:"image_url,omitempty" gorm:"type:text"`

	// ViewedAt stays null until the recipient opens the conversation.
	ViewedAt *time.Time `json:"viewed_at"`

	// One-shot claim for the per-message "unread reply" reminder.
	EmailNotificationSent bool `json:"email_notification_sent" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`

	Session *SupportSession `json:"-" gorm:"foreignKey:SessionID"`
}

func (Message) TableName() string {
	return "messages"
}
