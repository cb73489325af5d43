package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"supportdesk/internal/config"
	"supportdesk/internal/models"
	"supportdesk/internal/utils"
)

// LivenessStore is the storage slice behind typing and presence facts.
type LivenessStore interface {
	UpsertTyping(ctx context.Context, sessionID uuid.UUID, role string, at time.Time) error
	ActiveTypers(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]models.TypingFact, error)
	TouchPresence(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	SetWidgetOpen(ctx context.Context, sessionID uuid.UUID, open bool) error
	MarkMessagesViewed(ctx context.Context, sessionID uuid.UUID, at time.Time) (int64, error)
	SessionByID(ctx context.Context, id uuid.UUID) (*models.SupportSession, error)
}

// EventPublisher fans liveness events out to admin consoles on every server.
// Delivery is best-effort; the TTL windows self-heal missed events.
type EventPublisher interface {
	Publish(ctx context.Context, event *LivenessEvent) error
}

// LivenessService owns the short-lived, TTL-governed real-time state:
// typing indicators, the presence heartbeat and unread accounting. There is
// no cleanup job anywhere — staleness is always a read-time filter.
type LivenessService struct {
	store  LivenessStore
	pubsub EventPublisher
	cfg    *config.Config
	now    func() time.Time
}

func NewLivenessService(store LivenessStore, pubsub EventPublisher, cfg *config.Config) *LivenessService {
	return &LivenessService{
		store:  store,
		pubsub: pubsub,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetTyping upserts the (session, role) typing fact. Producers throttle on
// their side; the server takes every tick as-is.
func (l *LivenessService) SetTyping(ctx context.Context, sessionID uuid.UUID, role string) error {
	if role != string(models.SenderUser) && role != string(models.SenderAdmin) {
		return fmt.Errorf("invalid typing role %q", role)
	}

	if err := l.store.UpsertTyping(ctx, sessionID, role, l.now()); err != nil {
		return fmt.Errorf("typing upsert: %w", err)
	}

	l.publish(ctx, &LivenessEvent{
		Type:      EventTyping,
		SessionID: sessionID,
		Role:      role,
	})
	return nil
}

// ActiveTypers returns the roles with a typing fact fresher than the window.
func (l *LivenessService) ActiveTypers(ctx context.Context, sessionID uuid.UUID) ([]string, error) {
	since := l.now().Add(-l.cfg.TypingWindow)
	facts, err := l.store.ActiveTypers(ctx, sessionID, since)
	if err != nil {
		return nil, fmt.Errorf("typing lookup: %w", err)
	}

	roles := make([]string, 0, len(facts))
	for _, fact := range facts {
		roles = append(roles, fact.Role)
	}
	return roles, nil
}

// Heartbeat refreshes page presence. Called on session creation, every 60s
// from the loaded tab, and once more from the unload beacon.
func (l *LivenessService) Heartbeat(ctx context.Context, sessionID uuid.UUID) error {
	if err := l.store.TouchPresence(ctx, sessionID, l.now()); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	l.publish(ctx, &LivenessEvent{Type: EventPresence, SessionID: sessionID})
	return nil
}

// CloseWidget records the minimized/closed UI state. Presence is untouched:
// the page may well still be loaded.
func (l *LivenessService) CloseWidget(ctx context.Context, sessionID uuid.UUID) error {
	if err := l.store.SetWidgetOpen(ctx, sessionID, false); err != nil {
		return fmt.Errorf("widget close: %w", err)
	}
	l.publish(ctx, &LivenessEvent{Type: EventWidgetClosed, SessionID: sessionID})
	return nil
}

// MarkViewed stamps every unread non-admin message in one bulk update and
// reports how many were mutated. Calling it again is a no-op returning 0.
func (l *LivenessService) MarkViewed(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	count, err := l.store.MarkMessagesViewed(ctx, sessionID, l.now())
	if err != nil {
		return 0, fmt.Errorf("mark viewed: %w", err)
	}
	return count, nil
}

// IsOnline reports page presence: a heartbeat within the presence window.
// Widget open/closed is deliberately not part of this answer.
func (l *LivenessService) IsOnline(session *models.SupportSession) bool {
	if session.WidgetLastSeenAt == nil {
		return false
	}
	return l.now().Sub(*session.WidgetLastSeenAt) < l.cfg.PresenceWindow
}

func (l *LivenessService) publish(ctx context.Context, event *LivenessEvent) {
	if l.pubsub == nil {
		return
	}
	if err := l.pubsub.Publish(ctx, event); err != nil {
		utils.LogWarn(ctx, "liveness event publish failed",
			slog.String("type", string(event.Type)),
			slog.String("session_id", event.SessionID.String()),
			slog.String("error", err.Error()),
		)
	}
}
