package middleware

import (
	"log/slog"

	"eventpass/internal/ratelimit/config"
	"eventpass/internal/ratelimit/service/requestlimit"
	"eventpass/internal/ratelimit/store/counter"
)

// NewFallbackLimiter creates a rate limiter backed by process-local counters,
// used while the shared counter store is unreachable. Returns nil if it cannot
// be built, logging why.
func NewFallbackLimiter(cfg *config.Config, logger *slog.Logger) RateLimiter {
	if cfg == nil {
		logger.Error("fallback limiter requires config")
		return nil
	}
	requests, err := requestlimit.New(
		counter.NewInMemory(),
		requestlimit.WithLogger(logger),
		requestlimit.WithConfig(cfg),
	)
	if err != nil {
		logger.Error("failed to initialize fallback rate limiter", "error", err)
		return nil
	}
	return requests
}
