package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"supportdesk/internal/container"
)

// AvailabilityHandler answers "is a human on shift right now" for the
// widget banner.
type AvailabilityHandler struct {
	container *container.Container
}

func NewAvailabilityHandler(c *container.Container) *AvailabilityHandler {
	return &AvailabilityHandler{container: c}
}

func (h *AvailabilityHandler) GetAvailability(c *fiber.Ctx) error {
	slots, err := h.container.Store.EnabledSlots(c.Context())
	if err != nil {
		return internalError(c, "failed to load schedule", err)
	}
	return c.JSON(h.container.Availability.CheckAvailability(time.Now(), slots))
}
