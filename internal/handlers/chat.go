package handlers

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"supportdesk/internal/container"
	"supportdesk/internal/models"
	"supportdesk/internal/services"
	"supportdesk/internal/utils"
)

// ChatHandler owns the HTTP streaming chat path. The widget also speaks
// websocket; this endpoint backs clients without one.
type ChatHandler struct {
	container *container.Container
}

func NewChatHandler(c *container.Container) *ChatHandler {
	return &ChatHandler{container: c}
}

// StreamChat stores the merchant's turn and streams the AI reply back as
// chunked plain text. A broken client connection aborts generation and
// nothing from the partial reply is stored. When auto-response is off the
// turn is still stored and the response body stays empty.
func (h *ChatHandler) StreamChat(c *fiber.Ctx) error {
	var req models.ChatTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	turn := strings.TrimSpace(req.Message)
	if turn == "" && req.ImageURL == "" {
		return badRequest(c, "message is required")
	}

	session, err := h.container.Store.SessionByID(c.Context(), sessionID)
	if err != nil {
		return notFound(c, "session not found")
	}
	if session.Status != models.SessionActive {
		return badRequest(c, "session is not active")
	}

	pipeline := h.container.Pipeline
	pubsub := h.container.PubSub

	c.Set("Content-Type", "text/plain; charset=utf-8")
	c.Set("Cache-Control", "no-cache")
	c.Set("X-Accel-Buffering", "no")

	// Detach from the request context: fasthttp recycles it once the
	// handler returns, and the stream writer runs after that.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		aiMsg, err := pipeline.StreamReply(ctx, sessionID, turn, req.ImageURL, func(chunk string) error {
			if _, werr := w.WriteString(chunk); werr != nil {
				return werr
			}
			return w.Flush()
		})
		switch {
		case err == nil:
			if perr := pubsub.Publish(ctx, &services.LivenessEvent{
				Type:      services.EventMessage,
				SessionID: sessionID,
				Role:      string(models.SenderAI),
				Payload:   aiMsg.Content,
			}); perr != nil {
				utils.LogWarn(ctx, "failed to publish reply event",
					slog.String("session_id", sessionID.String()))
			}
		case errors.Is(err, services.ErrAIDisabled):
			// Turn stored, no reply owed.
		case errors.Is(err, services.ErrPersistFailed):
			// Already flushed to the client; logged inside the pipeline.
		default:
			utils.LogWarn(ctx, "chat stream ended with error",
				slog.String("session_id", sessionID.String()),
				slog.String("error", err.Error()),
			)
		}
	}))

	return nil
}
