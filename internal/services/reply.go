package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"supportdesk/internal/metrics"
	"supportdesk/internal/models"
	"supportdesk/internal/utils"
)

var (
	// ErrAIDisabled means auto-response is off for this session (or
	// globally, with no session override).
	ErrAIDisabled = errors.New("ai auto-response disabled")

	// ErrPersistFailed marks the unrecoverable case: the reply was already
	// flushed to the client but could not be stored. The client has no
	// signal; this is a server-side data-loss event.
	ErrPersistFailed = errors.New("reply persistence failed after stream completion")
)

// Generator is the generative backend contract the pipeline runs against.
type Generator interface {
	Stream(ctx context.Context, systemInstruction string, history []*genai.Content, sink func(chunk string) error) (string, error)
	Complete(ctx context.Context, systemInstruction, prompt string) (string, error)
}

// ReplyStore is the slice of storage the pipeline needs.
type ReplyStore interface {
	SessionByID(ctx context.Context, id uuid.UUID) (*models.SupportSession, error)
	MessagesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	EnabledSlots(ctx context.Context) ([]models.AvailabilitySlot, error)
	KnowledgeEntries(ctx context.Context) ([]models.KnowledgeEntry, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	Settings(ctx context.Context) (*models.SupportSettings, error)
}

// ReplyPipeline drives one reply request through
// Building → Streaming → Persisting → Done|Failed.
type ReplyPipeline struct {
	gen          Generator
	store        ReplyStore
	availability *AvailabilityService
	ranker       *KnowledgeRanker
	prompts      *PromptManager
	now          func() time.Time
}

func NewReplyPipeline(gen Generator, store ReplyStore) *ReplyPipeline {
	return &ReplyPipeline{
		gen:          gen,
		store:        store,
		availability: NewAvailabilityService(),
		ranker:       NewKnowledgeRanker(),
		prompts:      NewPromptManager(),
		now:          time.Now,
	}
}

// StreamReply stores the merchant's turn, streams the model's reply to the
// sink chunk by chunk, and persists the accumulated text as one ai message
// plus a session touch in a single transactional unit — but only after the
// upstream stream completes naturally. A cancelled or errored stream
// persists nothing, and the caller sees a truncated body with no retry.
func (p *ReplyPipeline) StreamReply(
	ctx context.Context,
	sessionID uuid.UUID,
	turn string,
	imageURL string,
	sink func(chunk string) error,
) (*models.Message, error) {
	session, err := p.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	enabled, err := p.aiEnabled(ctx, session)
	if err != nil {
		return nil, err
	}

	// History is read before the new turn is stored so the prompt builder
	// can append the turn itself without duplicating it.
	history, err := p.store.MessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}

	userMsg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    models.SenderUser,
		Content:   turn,
		ImageURL:  imageURL,
		CreatedAt: p.now(),
	}
	if err := p.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("storing user turn: %w", err)
	}

	if !enabled {
		return nil, ErrAIDisabled
	}

	// Building.
	slots, err := p.store.EnabledSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("slot lookup: %w", err)
	}
	entries, err := p.store.KnowledgeEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge lookup: %w", err)
	}

	avail := p.availability.CheckAvailability(p.now(), slots)
	ranked := p.ranker.Rank(turn, entries)
	systemInstruction := p.prompts.BuildSystemInstruction(session, avail, ranked, turn)
	contents := p.prompts.BuildHistory(history, turn, imageURL)

	// Streaming. Forwarding is at-least-once; the client treats the stream
	// as append-only text.
	full, err := p.gen.Stream(ctx, systemInstruction, contents, func(chunk string) error {
		metrics.TokensStreamed.Inc()
		return sink(chunk)
	})
	if err != nil {
		metrics.ReplyStreamFailures.WithLabelValues("stream").Inc()
		utils.LogWarn(ctx, "reply stream aborted, nothing persisted",
			slog.String("session_id", sessionID.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// Persisting: one atomic unit, triggered only by natural completion.
	aiMsg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    models.SenderAI,
		Content:   full,
		CreatedAt: p.now(),
	}
	if err := p.store.AppendMessage(ctx, aiMsg); err != nil {
		metrics.ReplyStreamFailures.WithLabelValues("persist").Inc()
		utils.LogError(ctx, "data loss: streamed reply could not be persisted", err,
			slog.String("session_id", sessionID.String()),
			slog.Int("reply_bytes", len(full)),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	metrics.RepliesPersisted.Inc()
	return aiMsg, nil
}

// SuggestReply drafts a reply for the admin console without streaming or
// persisting anything. This path gets the retry budget.
func (p *ReplyPipeline) SuggestReply(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := p.store.SessionByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("session lookup: %w", err)
	}
	history, err := p.store.MessagesBySession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("history lookup: %w", err)
	}
	if len(history) == 0 {
		return "", errors.New("no conversation to draft a reply for")
	}

	lastTurn := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == models.SenderUser {
			lastTurn = history[i].Content
			break
		}
	}

	entries, err := p.store.KnowledgeEntries(ctx)
	if err != nil {
		return "", fmt.Errorf("knowledge lookup: %w", err)
	}
	ranked := p.ranker.Rank(lastTurn, entries)
	systemInstruction := p.prompts.BuildSystemInstruction(session, models.Availability{}, ranked, lastTurn)

	var prompt string
	for _, msg := range history {
		prompt += fmt.Sprintf("%s: %s\n", msg.Sender, msg.Content)
	}
	prompt += "\nDraft the next support reply to the merchant."

	return p.gen.Complete(ctx, systemInstruction, prompt)
}

func (p *ReplyPipeline) aiEnabled(ctx context.Context, session *models.SupportSession) (bool, error) {
	if session.AIAutoResponse != nil {
		return *session.AIAutoResponse, nil
	}
	settings, err := p.store.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("settings lookup: %w", err)
	}
	return settings.AIAutoResponseEnabled, nil
}
