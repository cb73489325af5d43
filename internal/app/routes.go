package app

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"supportdesk/internal/container"
	"supportdesk/internal/handlers"
	"supportdesk/internal/middleware"
	"supportdesk/internal/models"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, c *container.Container) {
	// Prometheus metrics endpoint (no auth required for scraping)
	metricsHandler := handlers.NewMetricsHandler()
	app.Get("/metrics", metricsHandler.GetMetrics)

	// Health check
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now(),
			"services":  c.HealthCheck(),
		})
	})

	// Apply Prometheus middleware to all /api routes
	api := app.Group("/api", middleware.PrometheusMiddleware())

	setupWebSocketRoutes(app, c)
	setupSessionRoutes(api, c)
	setupChatRoutes(api, c)
	setupAvailabilityRoutes(api, c)
	setupAdminRoutes(api, c)
}

func setupWebSocketRoutes(app *fiber.App, c *container.Container) {
	wsHandler := handlers.NewWSHandler(c)

	app.Use("/ws/:id", func(ctx *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(ctx) {
			return fiber.ErrUpgradeRequired
		}

		sessionID, err := uuid.Parse(ctx.Params("id"))
		if err != nil {
			return fiber.ErrBadRequest
		}

		role := ctx.Query("role")
		if role != string(models.SenderAdmin) {
			role = string(models.SenderUser)
		}

		ctx.Locals("session_id", sessionID)
		ctx.Locals("role", role)
		ctx.Locals("allowed", true)
		return ctx.Next()
	})

	app.Get("/ws/:id", websocket.New(func(conn *websocket.Conn) {
		wsHandler.HandleWebSocket(conn)
	}, websocket.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}))
}

func setupSessionRoutes(api fiber.Router, c *container.Container) {
	sessionHandler := handlers.NewSessionHandler(c)
	startRateLimiter := middleware.RateLimiter(middleware.RateLimiterConfig{
		Redis:      c.Redis,
		Max:        10,
		Window:     time.Minute,
		KeyPrefix:  "session_start_limit:",
		Message:    "Too many session requests, please try again later",
		StatusCode: fiber.StatusTooManyRequests,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return ctx.IP()
		},
	})

	sessions := api.Group("/sessions")
	sessions.Post("/", startRateLimiter, sessionHandler.StartSession)
	sessions.Get("/:id/messages", sessionHandler.GetMessages)
	sessions.Post("/:id/viewed", sessionHandler.MarkViewed)
	sessions.Post("/:id/heartbeat", sessionHandler.Heartbeat)
	sessions.Post("/:id/close", sessionHandler.CloseWidget)
	sessions.Post("/:id/resolve", sessionHandler.Resolve)
	sessions.Post("/:id/typing", sessionHandler.SetTyping)
	sessions.Get("/:id/typing", sessionHandler.GetTypers)
	sessions.Get("/:id/online", sessionHandler.GetOnline)
}

func setupChatRoutes(api fiber.Router, c *container.Container) {
	chatHandler := handlers.NewChatHandler(c)
	chatRateLimiter := middleware.RateLimiter(middleware.RateLimiterConfig{
		Redis:      c.Redis,
		Max:        20,
		Window:     time.Minute,
		KeyPrefix:  "chat_limit:",
		Message:    "Too many messages, please slow down",
		StatusCode: fiber.StatusTooManyRequests,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return ctx.IP()
		},
	})

	api.Post("/chat", chatRateLimiter, chatHandler.StreamChat)
}

func setupAvailabilityRoutes(api fiber.Router, c *container.Container) {
	availabilityHandler := handlers.NewAvailabilityHandler(c)
	api.Get("/availability", availabilityHandler.GetAvailability)
}

func setupAdminRoutes(api fiber.Router, c *container.Container) {
	adminHandler := handlers.NewAdminHandler(c)

	admin := api.Group("/admin")
	admin.Post("/messages", adminHandler.PostMessage)
	admin.Post("/suggest", adminHandler.SuggestReply)
	admin.Post("/sessions/:id/typing", adminHandler.SetTyping)
	admin.Post("/reminders/sweep", adminHandler.RunSweep)
}
