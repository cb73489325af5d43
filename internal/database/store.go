package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"supportdesk/internal/models"
)

// Store is the gorm-backed implementation of the narrow repository
// interfaces the services consume.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ─── Sessions ───────────────────────────────────────────────

func (s *Store) SessionByID(ctx context.Context, id uuid.UUID) (*models.SupportSession, error) {
	var session models.SupportSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ActiveSessionByEmail returns the merchant's live session, if any. Sessions
// are reused while active rather than duplicated.
func (s *Store) ActiveSessionByEmail(ctx context.Context, email string) (*models.SupportSession, error) {
	var session models.SupportSession
	err := s.db.WithContext(ctx).
		Where("merchant_email = ? AND status = ?", email, models.SessionActive).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) CreateSession(ctx context.Context, session *models.SupportSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *Store) ResolveSession(ctx context.Context, id uuid.UUID, status models.SessionStatus, rating *int, feedback string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if rating != nil {
		updates["rating"] = *rating
	}
	if feedback != "" {
		updates["feedback_text"] = feedback
	}
	return s.db.WithContext(ctx).
		Model(&models.SupportSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ─── Messages ───────────────────────────────────────────────

// AppendMessage stores a message and touches the owning session in one
// transaction. A user message also advances last_user_message_at.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": msg.CreatedAt}
		if msg.Sender == models.SenderUser {
			updates["last_user_message_at"] = msg.CreatedAt
		}
		res := tx.Model(&models.SupportSession{}).
			Where("id = ?", msg.SessionID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %s not found", msg.SessionID)
		}
		return nil
	})
}

func (s *Store) MessagesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// MarkMessagesViewed sets viewed_at on every unread, non-admin-sent message
// of the session in one bulk update. Idempotent: a second call affects zero
// rows.
func (s *Store) MarkMessagesViewed(ctx context.Context, sessionID uuid.UUID, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("session_id = ? AND viewed_at IS NULL AND sender <> ?", sessionID, models.SenderAdmin).
		Update("viewed_at", at)
	return res.RowsAffected, res.Error
}

func (s *Store) HasAdminReply(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("session_id = ? AND sender = ?", sessionID, models.SenderAdmin).
		Count(&count).Error
	return count > 0, err
}

// ─── Typing & presence ──────────────────────────────────────

// UpsertTyping is a single insert-or-update on the (session, role) key, so
// concurrent user/admin ticks on the same session cannot lose each other.
func (s *Store) UpsertTyping(ctx context.Context, sessionID uuid.UUID, role string, at time.Time) error {
	fact := models.TypingFact{SessionID: sessionID, Role: role, LastTypingAt: at}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "role"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_typing_at": at}),
		}).
		Create(&fact).Error
}

func (s *Store) ActiveTypers(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]models.TypingFact, error) {
	var facts []models.TypingFact
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND last_typing_at > ?", sessionID, since).
		Find(&facts).Error
	return facts, err
}

func (s *Store) TouchPresence(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.SupportSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"widget_last_seen_at": at,
			"widget_open":         true,
		}).Error
}

func (s *Store) SetWidgetOpen(ctx context.Context, sessionID uuid.UUID, open bool) error {
	return s.db.WithContext(ctx).
		Model(&models.SupportSession{}).
		Where("id = ?", sessionID).
		Update("widget_open", open).Error
}

// ─── Availability & knowledge ───────────────────────────────

func (s *Store) EnabledSlots(ctx context.Context) ([]models.AvailabilitySlot, error) {
	var slots []models.AvailabilitySlot
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&slots).Error
	return slots, err
}

func (s *Store) KnowledgeEntries(ctx context.Context) ([]models.KnowledgeEntry, error) {
	var entries []models.KnowledgeEntry
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// ─── Settings ───────────────────────────────────────────────

func (s *Store) Settings(ctx context.Context) (*models.SupportSettings, error) {
	var settings models.SupportSettings
	err := s.db.WithContext(ctx).First(&settings).Error
	if err == gorm.ErrRecordNotFound {
		return &models.SupportSettings{AIAutoResponseEnabled: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// ─── Notification claims ────────────────────────────────────
//
// A claim is a conditional flag flip: the update only matches while the flag
// is still false, so concurrent sweeps cannot both win. The email is sent
// only after a successful claim; a failed send releases the claim so the
// next sweep retries.

func (s *Store) ClaimSessionAlert(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.SupportSession{}).
		Where("id = ? AND email_notification_sent = ?", sessionID, false).
		Update("email_notification_sent", true)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ReleaseSessionAlert(ctx context.Context, sessionID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.SupportSession{}).
		Where("id = ?", sessionID).
		Update("email_notification_sent", false).Error
}

func (s *Store) ClaimMessageReminder(ctx context.Context, messageID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND email_notification_sent = ?", messageID, false).
		Update("email_notification_sent", true)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) ReleaseMessageReminder(ctx context.Context, messageID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("email_notification_sent", false).Error
}

// UnansweredSessions lists active sessions where the merchant has written,
// no admin has ever replied, and the one-shot alert is still unclaimed.
func (s *Store) UnansweredSessions(ctx context.Context) ([]models.SupportSession, error) {
	var sessions []models.SupportSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND last_user_message_at IS NOT NULL AND email_notification_sent = ?",
			models.SessionActive, false).
		Where("NOT EXISTS (SELECT 1 FROM messages m WHERE m.session_id = support_sessions.id AND m.sender = ?)",
			models.SenderAdmin).
		Find(&sessions).Error
	return sessions, err
}

// ReminderCandidates lists unviewed admin/ai messages old enough to remind
// about, with their sessions preloaded. Final eligibility (session active,
// widget offline) is decided by the notifier.
func (s *Store) ReminderCandidates(ctx context.Context, olderThan time.Time) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Preload("Session").
		Where("sender IN ? AND viewed_at IS NULL AND email_notification_sent = ? AND created_at <= ?",
			[]models.Sender{models.SenderAdmin, models.SenderAI}, false, olderThan).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
