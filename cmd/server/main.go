package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"supportdesk/internal/app"
	"supportdesk/internal/config"
	"supportdesk/internal/container"
	"supportdesk/internal/utils"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	utils.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		utils.LogError(ctx, "failed to initialize services", err)
		os.Exit(1)
	}
	defer c.Close()

	fiberApp := fiber.New(fiber.Config{
		AppName:               "supportdesk",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          0, // streaming responses manage their own pace
		ErrorHandler: func(fc *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return fc.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.SetupRoutes(fiberApp, c)

	go runReminderSweeper(ctx, c, cfg.SweepInterval)

	go func() {
		utils.LogInfo(ctx, "server listening", slog.String("port", cfg.Port))
		if err := fiberApp.Listen(":" + cfg.Port); err != nil {
			utils.LogError(ctx, "server stopped", err)
			stop()
		}
	}()

	<-ctx.Done()

	utils.LogInfo(context.Background(), "shutting down")
	if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.LogError(context.Background(), "shutdown incomplete", err)
	}
}

// runReminderSweeper drives the periodic reminder sweep. Each tick is
// independent; a failed sweep just waits for the next interval.
func runReminderSweeper(ctx context.Context, c *container.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, interval)
			result, err := c.Notifier.SweepReminders(sweepCtx)
			cancel()
			if err != nil {
				utils.LogWarn(ctx, "reminder sweep failed", slog.String("error", err.Error()))
				continue
			}
			if result.Sent > 0 {
				utils.LogInfo(ctx, "reminder sweep complete",
					slog.Int("sent", result.Sent),
					slog.Int("considered_chats", result.ConsideredChats),
				)
			}
		}
	}
}
