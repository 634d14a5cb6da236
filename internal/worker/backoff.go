package worker

import (
	"math"
	"math/rand"
	"time"

	"github.com/hook0/webhooks-core/internal/config"
)

// computeBackoff implements SPEC_FULL.md open-question decision 1: capped
// exponential backoff with jitter, replacing the source's flat placeholder
// delay. delay = min(cap, base * factor^retryCount) * (1 ± jitterPct).
func computeBackoff(retryCount uint16, cfg config.DeliveryConfig) time.Duration {
	base := cfg.RetryBaseSec
	factor := cfg.RetryFactor
	cap_ := cfg.RetryCapSec
	jitterPct := cfg.RetryJitterPct

	raw := base * math.Pow(factor, float64(retryCount))
	if raw > cap_ {
		raw = cap_
	}

	jitter := 1 + (rand.Float64()*2-1)*jitterPct
	delay := raw * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay * float64(time.Second))
}
