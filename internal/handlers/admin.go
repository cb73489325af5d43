package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"supportdesk/internal/container"
	"supportdesk/internal/models"
	"supportdesk/internal/services"
	"supportdesk/internal/utils"
)

// AdminHandler backs the support console: posting replies, drafting
// suggestions and kicking the reminder sweep by hand.
type AdminHandler struct {
	container *container.Container
}

func NewAdminHandler(c *container.Container) *AdminHandler {
	return &AdminHandler{container: c}
}

// PostMessage appends a human admin reply. An admin reply permanently
// settles the session-level alert eligibility for this session.
func (h *AdminHandler) PostMessage(c *fiber.Ctx) error {
	var req models.AdminMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session id")
	}
	content := strings.TrimSpace(req.Message)
	if content == "" {
		return badRequest(c, "message is required")
	}

	ctx := c.Context()
	msg := &models.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    models.SenderAdmin,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := h.container.Store.AppendMessage(ctx, msg); err != nil {
		return internalError(c, "failed to store admin message", err)
	}

	if perr := h.container.PubSub.Publish(ctx, &services.LivenessEvent{
		Type:      services.EventMessage,
		SessionID: sessionID,
		Role:      string(models.SenderAdmin),
		Payload:   content,
	}); perr != nil {
		utils.LogWarn(ctx, "failed to publish admin message event",
			slog.String("session_id", sessionID.String()))
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// SuggestReply drafts a reply for the console without persisting anything.
func (h *AdminHandler) SuggestReply(c *fiber.Ctx) error {
	var req models.SuggestReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	suggestion, err := h.container.Pipeline.SuggestReply(c.Context(), sessionID)
	if err != nil {
		return internalError(c, "failed to draft suggestion", err)
	}
	return c.JSON(models.SuggestReplyResponse{Suggestion: suggestion})
}

// SetTyping records an admin typing tick for the widget's indicator.
func (h *AdminHandler) SetTyping(c *fiber.Ctx) error {
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
		role = string(models.SenderAdmin)
	}

	if err := h.container.Liveness.SetTyping(c.Context(), sessionID, role); err != nil {
		return badRequest(c, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunSweep triggers the reminder sweep on demand. The ticker calls the
// same path; this endpoint exists for operators.
func (h *AdminHandler) RunSweep(c *fiber.Ctx) error {
	result, err := h.container.Notifier.SweepReminders(c.Context())
	if err != nil {
		return internalError(c, "reminder sweep failed", err)
	}
	return c.JSON(result)
}
