package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"supportdesk/internal/utils"
)

type RateLimiterConfig struct {
	Redis        *redis.Client
	Max          int
	Window       time.Duration
	KeyPrefix    string
	Message      string
	StatusCode   int
	KeyGenerator func(c *fiber.Ctx) string
}

// RateLimiter is a fixed-window counter on Redis. The counter key expires
// with the window; a Redis outage fails open so chat keeps working.
func RateLimiter(cfg RateLimiterConfig) fiber.Handler {
	if cfg.StatusCode == 0 {
		cfg.StatusCode = fiber.StatusTooManyRequests
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = func(c *fiber.Ctx) string { return c.IP() }
	}

	return func(c *fiber.Ctx) error {
		key := cfg.KeyPrefix + cfg.KeyGenerator(c)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		count, err := cfg.Redis.Incr(ctx, key).Result()
		if err != nil {
			utils.LogWarn(ctx, "rate limiter unavailable, failing open")
			return c.Next()
		}
		if count == 1 {
			cfg.Redis.Expire(ctx, key, cfg.Window)
		}

		if count > int64(cfg.Max) {
			ttl, _ := cfg.Redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return c.Status(cfg.StatusCode).JSON(fiber.Map{
				"error":   "rate_limit_exceeded",
				"message": cfg.Message,
			})
		}

		return c.Next()
	}
}
