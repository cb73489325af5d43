package models

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilitySlot is a recurring weekly window, in a fixed IANA timezone,
// during which a human agent is considered reachable. Overlapping enabled
// slots are legal; both simply match.
type AvailabilitySlot struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	DayOfWeek int       `json:"day_of_week" gorm:"not null"` // 0 = Sunday … 6 = Saturday

	// Minute-precision times of day, "HH:MM". EndTime must be after
	// StartTime within the slot's own timezone.
	StartTime string `json:"start_time" gorm:"size:5;not null"`
	EndTime   string `json:"end_time" gorm:"size:5;not null"`

	Timezone string `json:"timezone" gorm:"size:64;not null"`
	Enabled  bool   `json:"enabled" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AvailabilitySlot) TableName() string {
	return "availability_slots"
}

// KnowledgeEntry is an admin-curated Q/A pair ranked against incoming
// questions to ground the AI prompt. Identity is immutable, content is not.
type KnowledgeEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Question  string    `json:"question" gorm:"type:text;not null"`
	Answer    string    `json:"answer" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}
