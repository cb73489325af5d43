package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/config"
	"supportdesk/internal/models"
)

// fakeNotifierStore models the claim flags the way the real store does:
// a claim only succeeds while the flag is still down.
type fakeNotifierStore struct {
	sessions   map[uuid.UUID]*models.SupportSession
	adminReply map[uuid.UUID]bool
	candidates []models.Message
}

func newFakeNotifierStore() *fakeNotifierStore {
	return &fakeNotifierStore{
		sessions:   make(map[uuid.UUID]*models.SupportSession),
		adminReply: make(map[uuid.UUID]bool),
	}
}

func (s *fakeNotifierStore) SessionByID(_ context.Context, id uuid.UUID) (*models.SupportSession, error) {
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return nil, errors.New("not found")
}

func (s *fakeNotifierStore) HasAdminReply(_ context.Context, sessionID uuid.UUID) (bool, error) {
	return s.adminReply[sessionID], nil
}

func (s *fakeNotifierStore) UnansweredSessions(_ context.Context) ([]models.SupportSession, error) {
	var out []models.SupportSession
	for _, session := range s.sessions {
		if session.Status == models.SessionActive &&
			session.LastUserMessageAt != nil &&
			!session.EmailNotificationSent &&
			!s.adminReply[session.ID] {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *fakeNotifierStore) ClaimSessionAlert(_ context.Context, sessionID uuid.UUID) (bool, error) {
	session, ok := s.sessions[sessionID]
	if !ok || session.EmailNotificationSent {
		return false, nil
	}
	session.EmailNotificationSent = true
	return true, nil
}

func (s *fakeNotifierStore) ReleaseSessionAlert(_ context.Context, sessionID uuid.UUID) error {
	if session, ok := s.sessions[sessionID]; ok {
		session.EmailNotificationSent = false
	}
	return nil
}

func (s *fakeNotifierStore) ReminderCandidates(_ context.Context, olderThan time.Time) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range s.candidates {
		if !msg.EmailNotificationSent && msg.ViewedAt == nil && !msg.CreatedAt.After(olderThan) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeNotifierStore) ClaimMessageReminder(_ context.Context, messageID uuid.UUID) (bool, error) {
	for i := range s.candidates {
		if s.candidates[i].ID == messageID {
			if s.candidates[i].EmailNotificationSent {
				return false, nil
			}
			s.candidates[i].EmailNotificationSent = true
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeNotifierStore) ReleaseMessageReminder(_ context.Context, messageID uuid.UUID) error {
	for i := range s.candidates {
		if s.candidates[i].ID == messageID {
			s.candidates[i].EmailNotificationSent = false
		}
	}
	return nil
}

func (s *fakeNotifierStore) Settings(_ context.Context) (*models.SupportSettings, error) {
	return &models.SupportSettings{SupportEmail: "team@supportdesk.test"}, nil
}

type recordingMailer struct {
	sent []string // recipients in send order
	fail bool
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, to)
	return nil
}

var notifierNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func notifierFixture() (*Notifier, *fakeNotifierStore, *recordingMailer) {
	store := newFakeNotifierStore()
	mailer := &recordingMailer{}
	cfg := &config.Config{
		SupportEmail:          "fallback@supportdesk.test",
		ReminderMinAge:        5 * time.Minute,
		ReminderPresenceStale: 5 * time.Minute,
	}
	n := NewNotifier(store, mailer, cfg)
	n.now = func() time.Time { return notifierNow }
	return n, store, mailer
}

func unansweredSession(store *fakeNotifierStore) *models.SupportSession {
	at := notifierNow.Add(-10 * time.Minute)
	session := &models.SupportSession{
		ID:                uuid.New(),
		MerchantEmail:     "merchant@shop.test",
		Status:            models.SessionActive,
		LastUserMessageAt: &at,
	}
	store.sessions[session.ID] = session
	return session
}

func TestNotifyUnanswered_SendsOnce(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := unansweredSession(store)
	ctx := context.Background()

	sent, err := n.NotifyUnanswered(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"team@supportdesk.test"}, mailer.sent)

	// The flag holds: a second trigger sends nothing.
	sent, err = n.NotifyUnanswered(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, mailer.sent, 1)
}

func TestNotifyUnanswered_SkipsAnsweredAndSilentSessions(t *testing.T) {
	n, store, mailer := notifierFixture()
	ctx := context.Background()

	answered := unansweredSession(store)
	store.adminReply[answered.ID] = true
	sent, err := n.NotifyUnanswered(ctx, answered.ID)
	require.NoError(t, err)
	assert.False(t, sent)

	silent := &models.SupportSession{ID: uuid.New(), Status: models.SessionActive}
	store.sessions[silent.ID] = silent
	sent, err = n.NotifyUnanswered(ctx, silent.ID)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Empty(t, mailer.sent)
}

func TestNotifyUnanswered_FailedSendReleasesClaim(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := unansweredSession(store)
	ctx := context.Background()

	mailer.fail = true
	_, err := n.NotifyUnanswered(ctx, session.ID)
	assert.Error(t, err)
	assert.False(t, session.EmailNotificationSent)

	// The next attempt can claim again and succeed.
	mailer.fail = false
	sent, err := n.NotifyUnanswered(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, sent)
}

func reminderCandidate(store *fakeNotifierStore, session *models.SupportSession, age time.Duration) models.Message {
	msg := models.Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		Sender:    models.SenderAdmin,
		Content:   "we fixed it",
		CreatedAt: notifierNow.Add(-age),
		Session:   session,
	}
	store.candidates = append(store.candidates, msg)
	return msg
}

func activeSession(store *fakeNotifierStore, open bool, seenAgo time.Duration) *models.SupportSession {
	session := &models.SupportSession{
		ID:            uuid.New(),
		MerchantEmail: "merchant@shop.test",
		Status:        models.SessionActive,
		WidgetOpen:    open,
	}
	if seenAgo >= 0 {
		at := notifierNow.Add(-seenAgo)
		session.WidgetLastSeenAt = &at
	}
	store.sessions[session.ID] = session
	return session
}

func TestSweepReminders_WidgetRecentlySeenSkipped(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, true, 30*time.Second)
	reminderCandidate(store, session, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.ConsideredChats)
	assert.Empty(t, mailer.sent)
}

func TestSweepReminders_ClosedWidgetGetsReminder(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, false, 30*time.Second)
	reminderCandidate(store, session, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, []string{"merchant@shop.test"}, mailer.sent)
}

func TestSweepReminders_StalePresenceGetsReminder(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, true, 10*time.Minute)
	reminderCandidate(store, session, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, mailer.sent, 1)
}

func TestSweepReminders_NeverSeenGetsReminder(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, false, -1)
	reminderCandidate(store, session, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, mailer.sent, 1)
}

func TestSweepReminders_YoungMessagesWait(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, false, -1)
	reminderCandidate(store, session, time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Empty(t, mailer.sent)
}

func TestSweepReminders_ResolvedSessionSkipped(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, false, -1)
	session.Status = models.SessionResolved
	reminderCandidate(store, session, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Empty(t, mailer.sent)
}

func TestSweepReminders_RepeatSweepSendsNothingNew(t *testing.T) {
	n, store, mailer := notifierFixture()
	session := activeSession(store, false, -1)
	reminderCandidate(store, session, 10*time.Minute)

	_, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Len(t, mailer.sent, 1)
}

func TestSweepReminders_CountsBothMechanisms(t *testing.T) {
	n, store, mailer := notifierFixture()

	unanswered := unansweredSession(store)
	reminded := activeSession(store, false, -1)
	reminderCandidate(store, reminded, 10*time.Minute)

	result, err := n.SweepReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 2, result.ConsideredChats)
	assert.Contains(t, mailer.sent, "team@supportdesk.test")
	assert.Contains(t, mailer.sent, "merchant@shop.test")
	assert.True(t, store.sessions[unanswered.ID].EmailNotificationSent)
}
