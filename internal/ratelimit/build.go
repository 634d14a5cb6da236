package ratelimit

import (
	"time"

	"github.com/hook0/webhooks-core/internal/config"
)

// Build wires a Set from RateLimitConfig. The relay server is its only
// caller; the ingestion API does not rate-limit through this package.
func Build(cfg config.RateLimitConfig) *Set {
	cleanup := time.Duration(cfg.CleanupIntervalSec) * time.Second
	return &Set{
		PerIP:    New(cfg.PerIPPerMinute, cleanup),
		PerToken: New(cfg.PerTokenPerMinute, cleanup),
		Global:   New(cfg.GlobalPerMinute, cleanup),
	}
}
