package models

import (
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════
// SUPPORT SESSION MODELS
// ═══════════════════════════════════════════════════════════

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionResolved   SessionStatus = "resolved"
	SessionUnresolved SessionStatus = "unresolved"
)

// SupportSession is one continuous conversation between a merchant and the
// support system. A merchant keeps reusing their session while it is active;
// a new one is only created after the previous one was resolved.
type SupportSession struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	MerchantEmail string        `json:"merchant_email" gorm:"size:255;not null;index"`
	Status        SessionStatus `json:"status" gorm:"size:16;not null;default:'active';index"`

	// AIAutoResponse overrides the global toggle when non-nil.
	AIAutoResponse *bool `json:"ai_auto_response" gorm:"column:ai_auto_response"`

	// Widget presence. WidgetOpen tracks the expanded/minimized UI state,
	// WidgetLastSeenAt is the page-presence heartbeat. They answer different
	// questions and are deliberately kept apart.
	WidgetOpen       bool       `json:"widget_open" gorm:"not null;default:false"`
	WidgetLastSeenAt *time.Time `json:"widget_last_seen_at"`

	LastUserMessageAt *time.Time `json:"last_user_message_at"`

	// One-shot claim for the session-level "no human reply" alert.
	EmailNotificationSent bool `json:"email_notification_sent" gorm:"not null;default:false"`

	Rating       *int   `json:"rating,omitempty"`
	FeedbackText string `json:"feedback_text,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:SessionID"`
}

func (SupportSession) TableName() string {
	return "support_sessions"
}
