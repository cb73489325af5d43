package container

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"supportdesk/internal/config"
	"supportdesk/internal/database"
	"supportdesk/internal/services"
)

// Container wires every shared service once at startup and is passed
// explicitly to handlers. Nothing in the tree reaches for module-level
// singletons.
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Store  *database.Store
	Redis  *redis.Client

	PubSub       *services.PubSubService
	Gemini       *services.GeminiService
	Pipeline     *services.ReplyPipeline
	Availability *services.AvailabilityService
	Ranker       *services.KnowledgeRanker
	Liveness     *services.LivenessService
	Mailer       services.Mailer
	Notifier     *services.Notifier
}

func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection test failed: %w", err)
	}

	gemini, err := services.NewGeminiService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pubsub := services.NewPubSubService(rdb)
	mailer := services.NewSMTPMailer(cfg)

	return &Container{
		Config:       cfg,
		DB:           db,
		Store:        store,
		Redis:        rdb,
		PubSub:       pubsub,
		Gemini:       gemini,
		Pipeline:     services.NewReplyPipeline(gemini, store),
		Availability: services.NewAvailabilityService(),
		Ranker:       services.NewKnowledgeRanker(),
		Liveness:     services.NewLivenessService(store, pubsub, cfg),
		Mailer:       mailer,
		Notifier:     services.NewNotifier(store, mailer, cfg),
	}, nil
}

// HealthCheck reports per-dependency status for the /health endpoint.
func (c *Container) HealthCheck() map[string]string {
	status := map[string]string{"database": "ok", "redis": "ok"}

	if sqlDB, err := c.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status["database"] = "unreachable"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = "unreachable"
	}

	return status
}

func (c *Container) Close() {
	if sqlDB, err := c.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = c.Redis.Close()
}
