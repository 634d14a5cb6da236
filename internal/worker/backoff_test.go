package worker

import (
	"testing"

	"github.com/hook0/webhooks-core/internal/config"
)

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		RetryBaseSec:   1,
		RetryFactor:    2,
		RetryCapSec:    300,
		RetryJitterPct: 0.2,
	}
}

func TestComputeBackoffMonotonicNonDecreasingWithoutJitter(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.RetryJitterPct = 0

	var prev float64
	for retry := uint16(0); retry < 10; retry++ {
		d := computeBackoff(retry, cfg)
		if d.Seconds() < prev {
			t.Fatalf("retry %d: backoff %v is less than previous %v", retry, d, prev)
		}
		prev = d.Seconds()
	}
}

func TestComputeBackoffRespectsCap(t *testing.T) {
	cfg := testDeliveryConfig()
	cfg.RetryJitterPct = 0
	d := computeBackoff(20, cfg)
	if d.Seconds() > cfg.RetryCapSec {
		t.Fatalf("backoff %v exceeds cap %v", d, cfg.RetryCapSec)
	}
}

func TestComputeBackoffNeverNegative(t *testing.T) {
	cfg := testDeliveryConfig()
	for retry := uint16(0); retry < 50; retry++ {
		if d := computeBackoff(retry, cfg); d < 0 {
			t.Fatalf("retry %d: negative backoff %v", retry, d)
		}
	}
}
