package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"supportdesk/internal/container"
	"supportdesk/internal/models"
	"supportdesk/internal/utils"
)

// SessionHandler covers the session lifecycle: start-or-resume, heartbeat,
// widget close, unread accounting and resolution.
type SessionHandler struct {
	container *container.Container
}

func NewSessionHandler(c *container.Container) *SessionHandler {
	return &SessionHandler{container: c}
}

// StartSession returns the merchant's active session, creating one only
// when none is live. One end-user identity owns at most one active session.
func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	var req models.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.MerchantEmail))
	if email == "" || !strings.Contains(email, "@") {
		return badRequest(c, "merchant_email is required")
	}

	ctx := c.Context()

	existing, err := h.container.Store.ActiveSessionByEmail(ctx, email)
	if err == nil {
		if hbErr := h.container.Liveness.Heartbeat(ctx, existing.ID); hbErr != nil {
			utils.LogWarn(ctx, "heartbeat on resume failed",
				slog.String("session_id", existing.ID.String()))
		}
		return c.JSON(models.StartSessionResponse{
			SessionID: existing.ID.String(),
			Status:    existing.Status,
			Resumed:   true,
		})
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "failed to look up session", err)
	}

	now := time.Now()
	session := &models.SupportSession{
		ID:               uuid.New(),
		MerchantEmail:    email,
		Status:           models.SessionActive,
		WidgetOpen:       true,
		WidgetLastSeenAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.container.Store.CreateSession(ctx, session); err != nil {
		return internalError(c, "failed to create session", err)
	}

	utils.LogInfo(ctx, "support session started",
		slog.String("session_id", session.ID.String()),
		slog.String("merchant", email),
	)

	return c.Status(fiber.StatusCreated).JSON(models.StartSessionResponse{
		SessionID: session.ID.String(),
		Status:    session.Status,
	})
}

func (h *SessionHandler) GetMessages(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	messages, err := h.container.Store.MessagesBySession(c.Context(), sessionID)
	if err != nil {
		return internalError(c, "failed to load messages", err)
	}
	return c.JSON(messages)
}

// Heartbeat refreshes page presence. The unload beacon hits this endpoint
// with an empty body; it always answers 204 immediately so navigation is
// never blocked, and a missed delivery just ages out of the window.
func (h *SessionHandler) Heartbeat(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	if err := h.container.Liveness.Heartbeat(c.Context(), sessionID); err != nil {
		utils.LogWarn(c.Context(), "heartbeat failed",
			slog.String("session_id", sessionID.String()),
			slog.String("error", err.Error()),
		)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloseWidget records the minimize/close and triggers the session-level
// unanswered check off the request path.
func (h *SessionHandler) CloseWidget(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	ctx := c.Context()
	if err := h.container.Liveness.CloseWidget(ctx, sessionID); err != nil {
		return internalError(c, "failed to close widget", err)
	}

	notifier := h.container.Notifier
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := notifier.NotifyUnanswered(bgCtx, sessionID); err != nil {
			utils.LogWarn(bgCtx, "unanswered check failed",
				slog.String("session_id", sessionID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()

	return c.SendStatus(fiber.StatusNoContent)
}

// MarkViewed bulk-stamps unread messages and reports the count mutated.
func (h *SessionHandler) MarkViewed(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	count, err := h.container.Liveness.MarkViewed(c.Context(), sessionID)
	if err != nil {
		return internalError(c, "failed to mark viewed", err)
	}
	return c.JSON(models.MarkViewedResponse{Marked: count})
}

// SetTyping records a widget typing tick. Role defaults to user.
func (h *SessionHandler) SetTyping(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	var req models.TypingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	role := req.Role
	if role == "" {
		role = string(models.SenderUser)
	}

	if err := h.container.Liveness.SetTyping(c.Context(), sessionID, role); err != nil {
		return badRequest(c, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) GetTypers(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	roles, err := h.container.Liveness.ActiveTypers(c.Context(), sessionID)
	if err != nil {
		return internalError(c, "failed to load typers", err)
	}
	return c.JSON(models.TypersResponse{SessionID: sessionID.String(), Typing: roles})
}

func (h *SessionHandler) GetOnline(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	session, err := h.container.Store.SessionByID(c.Context(), sessionID)
	if err != nil {
		return notFound(c, "session not found")
	}

	return c.JSON(models.OnlineResponse{
		SessionID:  session.ID.String(),
		Online:     h.container.Liveness.IsOnline(session),
		WidgetOpen: session.WidgetOpen,
		LastSeenAt: session.WidgetLastSeenAt,
	})
}

// Resolve moves an active session to resolved/unresolved and records the
// post-resolution rating and feedback.
func (h *SessionHandler) Resolve(c *fiber.Ctx) error {
	sessionID, err := sessionIDParam(c)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	var req models.ResolveSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Status != models.SessionResolved && req.Status != models.SessionUnresolved {
		return badRequest(c, "status must be resolved or unresolved")
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return badRequest(c, "rating must be between 1 and 5")
	}

	if err := h.container.Store.ResolveSession(c.Context(), sessionID, req.Status, req.Rating, req.FeedbackText); err != nil {
		return internalError(c, "failed to resolve session", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ─── shared helpers ─────────────────────────────────────────

func sessionIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func parseSessionID(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error:   "validation_error",
		Message: msg,
	})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error:   "not_found",
		Message: msg,
	})
}

func internalError(c *fiber.Ctx, msg string, err error) error {
	utils.LogError(c.Context(), msg, err)
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   "internal_error",
		Message: msg,
	})
}
