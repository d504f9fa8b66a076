package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Store backend
	switch c.Store.Backend {
	case "postgres", "redis":
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be postgres or redis, got %q", c.Store.Backend))
	}

	// Dispatch pacing
	if c.Dispatch.BatchSize < 1 || c.Dispatch.BatchSize > 10000 {
		errs = append(errs, fmt.Sprintf("DISPATCH_BATCH_SIZE must be 1–10000, got %d", c.Dispatch.BatchSize))
	}
	if c.Dispatch.BatchDelay < 0 {
		errs = append(errs, "DISPATCH_BATCH_DELAY must not be negative")
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, "RATELIMIT_SWEEP_INTERVAL must be positive")
	}

	// Event bus: warn only, the platform runs without it
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty — budget alerts and audit events disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
