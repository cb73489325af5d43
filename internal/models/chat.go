package models

import "time"

// ═══════════════════════════════════════════════════════════
// CHAT REQUEST/RESPONSE MODELS
// ═══════════════════════════════════════════════════════════

type StartSessionRequest struct {
	MerchantEmail string `json:"merchant_email"`
}

type StartSessionResponse struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Resumed   bool          `json:"resumed"`
}

type ChatTurnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	ImageURL  string `json:"image_url,omitempty"` // data URL with inline-encoded bytes
}

type ResolveSessionRequest struct {
	Status       SessionStatus `json:"status"` // resolved | unresolved
	Rating       *int          `json:"rating,omitempty"`
	FeedbackText string        `json:"feedback_text,omitempty"`
}

type AdminMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type SuggestReplyRequest struct {
	SessionID string `json:"session_id"`
}

type SuggestReplyResponse struct {
	Suggestion string `json:"suggestion"`
}

type TypingRequest struct {
	Role string `json:"role"` // user | admin
}

type MarkViewedResponse struct {
	Marked int64 `json:"marked"`
}

type TypersResponse struct {
	SessionID string   `json:"session_id"`
	Typing    []string `json:"typing"` // roles with a fresh typing fact
}

// ═══════════════════════════════════════════════════════════
// AVAILABILITY MODELS
// ═══════════════════════════════════════════════════════════

// NextSlot describes the soonest upcoming window when no slot matches now.
type NextSlot struct {
	Day       int    `json:"day"`
	StartTime string `json:"start_time"`
	Timezone  string `json:"timezone"`
}

type Availability struct {
	Available bool      `json:"available"`
	NextSlot  *NextSlot `json:"next_slot"`
}

// ═══════════════════════════════════════════════════════════
// NOTIFICATION MODELS
// ═══════════════════════════════════════════════════════════

type SweepResult struct {
	Sent            int `json:"sent"`
	ConsideredChats int `json:"considered_chats"`
}

// ═══════════════════════════════════════════════════════════
// ERROR MODELS
// ═══════════════════════════════════════════════════════════

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type OnlineResponse struct {
	SessionID  string     `json:"session_id"`
	Online     bool       `json:"online"`
	WidgetOpen bool       `json:"widget_open"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}
