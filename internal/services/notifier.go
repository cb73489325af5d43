package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"supportdesk/internal/config"
	"supportdesk/internal/metrics"
	"supportdesk/internal/models"
	"supportdesk/internal/utils"
)

// NotifierStore is the storage slice behind the eligibility gate. Claims are
// conditional writes, so concurrent sweeps race safely: only one wins the
// flag flip, and only the winner sends.
type NotifierStore interface {
	SessionByID(ctx context.Context, id uuid.UUID) (*models.SupportSession, error)
	HasAdminReply(ctx context.Context, sessionID uuid.UUID) (bool, error)
	UnansweredSessions(ctx context.Context) ([]models.SupportSession, error)
	ClaimSessionAlert(ctx context.Context, sessionID uuid.UUID) (bool, error)
	ReleaseSessionAlert(ctx context.Context, sessionID uuid.UUID) error
	ReminderCandidates(ctx context.Context, olderThan time.Time) ([]models.Message, error)
	ClaimMessageReminder(ctx context.Context, messageID uuid.UUID) (bool, error)
	ReleaseMessageReminder(ctx context.Context, messageID uuid.UUID) error
	Settings(ctx context.Context) (*models.SupportSettings, error)
}

// Notifier runs the two one-shot reminder mechanisms: the session-level
// "nobody answered" alert to the support team, and the per-message "you
// have an unread reply" reminder to the merchant.
type Notifier struct {
	store  NotifierStore
	mailer Mailer
	cfg    *config.Config
	now    func() time.Time
}

func NewNotifier(store NotifierStore, mailer Mailer, cfg *config.Config) *Notifier {
	return &Notifier{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
	}
}

// NotifyUnanswered fires the session-level alert if the session is eligible:
// the merchant has written, no admin ever replied, and the one-shot flag is
// still unclaimed. Triggered when the widget session ends and by the sweep.
func (n *Notifier) NotifyUnanswered(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	session, err := n.store.SessionByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("session lookup: %w", err)
	}
	if session.LastUserMessageAt == nil || session.EmailNotificationSent {
		return false, nil
	}

	answered, err := n.store.HasAdminReply(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("admin reply lookup: %w", err)
	}
	if answered {
		return false, nil
	}

	return n.sendSessionAlert(ctx, session)
}

// sendSessionAlert claims first, sends second. A lost claim means another
// sweep got here first. A failed send releases the claim so a later check
// retries.
func (n *Notifier) sendSessionAlert(ctx context.Context, session *models.SupportSession) (bool, error) {
	claimed, err := n.store.ClaimSessionAlert(ctx, session.ID)
	if err != nil {
		return false, fmt.Errorf("session alert claim: %w", err)
	}
	if !claimed {
		return false, nil
	}

	to := n.supportAddress(ctx)
	if to == "" {
		_ = n.store.ReleaseSessionAlert(ctx, session.ID)
		return false, fmt.Errorf("no support email configured")
	}

	subject := fmt.Sprintf("Unanswered support chat from %s", session.MerchantEmail)
	body := fmt.Sprintf(
		"<p>The chat started by <b>%s</b> has no reply from your team yet.</p><p>Last merchant message: %s</p>",
		session.MerchantEmail, session.LastUserMessageAt.Format(time.RFC1123))

	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		metrics.ReminderFailures.WithLabelValues("session").Inc()
		if relErr := n.store.ReleaseSessionAlert(ctx, session.ID); relErr != nil {
			utils.LogError(ctx, "failed to release session alert claim", relErr,
				slog.String("session_id", session.ID.String()))
		}
		return false, fmt.Errorf("session alert send: %w", err)
	}

	metrics.RemindersSent.WithLabelValues("session").Inc()
	utils.LogInfo(ctx, "unanswered session alert sent",
		slog.String("session_id", session.ID.String()),
		slog.String("merchant", session.MerchantEmail),
	)
	return true, nil
}

// SweepReminders runs both mechanisms over the whole store. Messages are
// processed independently: one failed send never blocks the rest, and only
// successful sends keep their claim.
func (n *Notifier) SweepReminders(ctx context.Context) (models.SweepResult, error) {
	result := models.SweepResult{}
	considered := make(map[uuid.UUID]struct{})

	sessions, err := n.store.UnansweredSessions(ctx)
	if err != nil {
		return result, fmt.Errorf("unanswered session scan: %w", err)
	}
	for i := range sessions {
		considered[sessions[i].ID] = struct{}{}
		sent, err := n.sendSessionAlert(ctx, &sessions[i])
		if err != nil {
			utils.LogWarn(ctx, "session alert skipped",
				slog.String("session_id", sessions[i].ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if sent {
			result.Sent++
		}
	}

	cutoff := n.now().Add(-n.cfg.ReminderMinAge)
	candidates, err := n.store.ReminderCandidates(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("reminder candidate scan: %w", err)
	}

	for i := range candidates {
		msg := &candidates[i]
		considered[msg.SessionID] = struct{}{}

		if !n.messageEligible(msg) {
			continue
		}

		sent, err := n.sendMessageReminder(ctx, msg)
		if err != nil {
			utils.LogWarn(ctx, "message reminder skipped",
				slog.String("message_id", msg.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if sent {
			result.Sent++
		}
	}

	result.ConsideredChats = len(considered)
	return result, nil
}

// messageEligible applies the gates the candidate query cannot: the owning
// session must still be active and the widget must be properly gone —
// closed, never seen, or heartbeat-stale past the reminder threshold.
func (n *Notifier) messageEligible(msg *models.Message) bool {
	session := msg.Session
	if session == nil || session.Status != models.SessionActive {
		return false
	}
	if session.WidgetLastSeenAt == nil {
		return true
	}
	if !session.WidgetOpen {
		return true
	}
	return n.now().Sub(*session.WidgetLastSeenAt) >= n.cfg.ReminderPresenceStale
}

func (n *Notifier) sendMessageReminder(ctx context.Context, msg *models.Message) (bool, error) {
	claimed, err := n.store.ClaimMessageReminder(ctx, msg.ID)
	if err != nil {
		return false, fmt.Errorf("message reminder claim: %w", err)
	}
	if !claimed {
		return false, nil
	}

	subject := "You have an unread reply from support"
	body := fmt.Sprintf("<p>Support replied to your conversation:</p><blockquote>%s</blockquote><p>Open the chat to read and respond.</p>",
		msg.Content)

	if err := n.mailer.Send(ctx, msg.Session.MerchantEmail, subject, body); err != nil {
		metrics.ReminderFailures.WithLabelValues("message").Inc()
		if relErr := n.store.ReleaseMessageReminder(ctx, msg.ID); relErr != nil {
			utils.LogError(ctx, "failed to release message reminder claim", relErr,
				slog.String("message_id", msg.ID.String()))
		}
		return false, fmt.Errorf("message reminder send: %w", err)
	}

	metrics.RemindersSent.WithLabelValues("message").Inc()
	return true, nil
}

func (n *Notifier) supportAddress(ctx context.Context) string {
	if settings, err := n.store.Settings(ctx); err == nil && settings.SupportEmail != "" {
		return settings.SupportEmail
	}
	return n.cfg.SupportEmail
}
