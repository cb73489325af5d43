package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"supportdesk/internal/models"
)

// fakeReplyStore keeps messages in a slice and can be told to fail the
// append that persists the AI reply.
type fakeReplyStore struct {
	session       *models.SupportSession
	messages      []models.Message
	slots         []models.AvailabilitySlot
	entries       []models.KnowledgeEntry
	settings      models.SupportSettings
	failAppendAI  bool
	appendedKinds []models.Sender
}

func (s *fakeReplyStore) SessionByID(_ context.Context, id uuid.UUID) (*models.SupportSession, error) {
	if s.session == nil || s.session.ID != id {
		return nil, errors.New("not found")
	}
	return s.session, nil
}

func (s *fakeReplyStore) MessagesBySession(_ context.Context, _ uuid.UUID) ([]models.Message, error) {
	return s.messages, nil
}

func (s *fakeReplyStore) EnabledSlots(_ context.Context) ([]models.AvailabilitySlot, error) {
	return s.slots, nil
}

func (s *fakeReplyStore) KnowledgeEntries(_ context.Context) ([]models.KnowledgeEntry, error) {
	return s.entries, nil
}

func (s *fakeReplyStore) AppendMessage(_ context.Context, msg *models.Message) error {
	if msg.Sender == models.SenderAI && s.failAppendAI {
		return errors.New("db down")
	}
	s.messages = append(s.messages, *msg)
	s.appendedKinds = append(s.appendedKinds, msg.Sender)
	return nil
}

func (s *fakeReplyStore) Settings(_ context.Context) (*models.SupportSettings, error) {
	return &s.settings, nil
}

func (s *fakeReplyStore) countSender(sender models.Sender) int {
	n := 0
	for _, m := range s.messages {
		if m.Sender == sender {
			n++
		}
	}
	return n
}

// fakeGenerator replays canned chunks through the sink, or fails partway.
type fakeGenerator struct {
	chunks     []string
	failAfter  int // -1 means never fail
	calls      int
	lastSystem string
}

func (g *fakeGenerator) Stream(_ context.Context, system string, _ []*genai.Content, sink func(string) error) (string, error) {
	g.calls++
	g.lastSystem = system

	var full strings.Builder
	for i, chunk := range g.chunks {
		if g.failAfter >= 0 && i == g.failAfter {
			return "", errors.New("upstream reset")
		}
		if err := sink(chunk); err != nil {
			return "", errors.New("stream sink closed")
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

func (g *fakeGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return strings.Join(g.chunks, ""), nil
}

func replyFixture(aiEnabled bool) (*ReplyPipeline, *fakeReplyStore, *fakeGenerator) {
	store := &fakeReplyStore{
		session: &models.SupportSession{
			ID:     uuid.New(),
			Status: models.SessionActive,
		},
		settings: models.SupportSettings{AIAutoResponseEnabled: aiEnabled},
	}
	gen := &fakeGenerator{chunks: []string{"Hello", ", ", "merchant!"}, failAfter: -1}
	pipeline := NewReplyPipeline(gen, store)
	pipeline.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return pipeline, store, gen
}

func TestStreamReply_NaturalCompletionPersistsOnce(t *testing.T) {
	pipeline, store, _ := replyFixture(true)

	var streamed strings.Builder
	msg, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, merchant!", streamed.String())
	assert.Equal(t, "Hello, merchant!", msg.Content)
	assert.Equal(t, models.SenderAI, msg.Sender)
	assert.Equal(t, 1, store.countSender(models.SenderUser))
	assert.Equal(t, 1, store.countSender(models.SenderAI))
}

func TestStreamReply_AbortPersistsNothingFromReply(t *testing.T) {
	pipeline, store, gen := replyFixture(true)
	gen.failAfter = 2

	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(string) error {
		return nil
	})
	assert.Error(t, err)

	// The merchant's turn survives; the partial reply does not.
	assert.Equal(t, 1, store.countSender(models.SenderUser))
	assert.Equal(t, 0, store.countSender(models.SenderAI))
}

func TestStreamReply_SinkFailureAbortsStream(t *testing.T) {
	pipeline, store, _ := replyFixture(true)

	calls := 0
	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(string) error {
		calls++
		if calls == 2 {
			return errors.New("client went away")
		}
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 0, store.countSender(models.SenderAI))
}

func TestStreamReply_DisabledStoresTurnOnly(t *testing.T) {
	pipeline, store, gen := replyFixture(false)

	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(string) error {
		t.Fatal("no chunks expected")
		return nil
	})
	assert.ErrorIs(t, err, ErrAIDisabled)
	assert.Equal(t, 1, store.countSender(models.SenderUser))
	assert.Equal(t, 0, gen.calls)
}

func TestStreamReply_SessionOverrideBeatsGlobal(t *testing.T) {
	pipeline, store, gen := replyFixture(false)
	enabled := true
	store.session.AIAutoResponse = &enabled

	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(string) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)

	// And the inverse: per-session off wins over global on.
	pipeline2, store2, gen2 := replyFixture(true)
	disabled := false
	store2.session.AIAutoResponse = &disabled

	_, err = pipeline2.StreamReply(context.Background(), store2.session.ID, "hi there", "", nil)
	assert.ErrorIs(t, err, ErrAIDisabled)
	assert.Equal(t, 0, gen2.calls)
}

func TestStreamReply_PersistFailureIsSignalled(t *testing.T) {
	pipeline, store, _ := replyFixture(true)
	store.failAppendAI = true

	var streamed strings.Builder
	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "hi there", "", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	assert.ErrorIs(t, err, ErrPersistFailed)

	// The full reply reached the client before the failure surfaced.
	assert.Equal(t, "Hello, merchant!", streamed.String())
	assert.Equal(t, 0, store.countSender(models.SenderAI))
}

func TestStreamReply_PromotedAnswerReachesPrompt(t *testing.T) {
	pipeline, store, gen := replyFixture(true)
	store.entries = []models.KnowledgeEntry{
		{ID: uuid.New(), Question: "how do i reset my password", Answer: "Use the forgot-password link."},
	}

	_, err := pipeline.StreamReply(context.Background(), store.session.ID, "how do i reset my password", "", func(string) error {
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, gen.lastSystem, "Use the forgot-password link.")
}

func TestSuggestReply_NoHistory(t *testing.T) {
	pipeline, store, _ := replyFixture(true)

	_, err := pipeline.SuggestReply(context.Background(), store.session.ID)
	assert.Error(t, err)
}

func TestSuggestReply_DraftsWithoutPersisting(t *testing.T) {
	pipeline, store, _ := replyFixture(true)
	store.messages = []models.Message{
		{ID: uuid.New(), SessionID: store.session.ID, Sender: models.SenderUser, Content: "where is my refund"},
	}

	draft, err := pipeline.SuggestReply(context.Background(), store.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello, merchant!", draft)
	assert.Empty(t, store.appendedKinds)
}
