package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is loaded once at startup from the environment and handed to the
// container. Nothing in the tree reads os.Getenv after this point.
type Config struct {
	Port        string
	CORSOrigins string
	LogLevel    string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeminiAPIKey          string
	GeminiModel           string
	GeminiTemperature     float32
	GeminiMaxOutputTokens int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// SupportEmail receives the session-level "no human reply" alerts.
	SupportEmail string

	// Liveness windows. Typing facts are active for TypingWindow after the
	// last tick; a widget counts as online for PresenceWindow after the last
	// heartbeat.
	TypingWindow   time.Duration
	PresenceWindow time.Duration

	// Reminder gates: a message must be at least ReminderMinAge old, and the
	// widget unseen for ReminderPresenceStale, before a reminder can fire.
	ReminderMinAge        time.Duration
	ReminderPresenceStale time.Duration
	SweepInterval         time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTemperature:     getEnvFloat32("GEMINI_TEMPERATURE", 0.7),
		GeminiMaxOutputTokens: getEnvInt("GEMINI_MAX_OUTPUT_TOKENS", 2048),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "support@localhost"),

		SupportEmail: getEnv("SUPPORT_EMAIL", ""),

		TypingWindow:          getEnvDuration("TYPING_WINDOW", 5*time.Second),
		PresenceWindow:        getEnvDuration("PRESENCE_WINDOW", 2*time.Minute),
		ReminderMinAge:        getEnvDuration("REMINDER_MIN_AGE", 5*time.Minute),
		ReminderPresenceStale: getEnvDuration("REMINDER_PRESENCE_STALE", 5*time.Minute),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
