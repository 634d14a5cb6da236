package relay

import (
	"sync"
	"time"
)

// invalidTokenTracker blocks an IP from further token lookups after too
// many invalid-token attempts within a rolling window, to slow down
// enumeration of valid tokens. Grounded on
// original_source/play/src/rate_limiter.rs's InvalidTokenTracker.
type invalidTokenTracker struct {
	mu            sync.Mutex
	attempts      map[string]*attemptWindow
	window        time.Duration
	maxAttempts   int
	blockDuration time.Duration
}

type attemptWindow struct {
	count       int
	windowStart time.Time
}

func newInvalidTokenTracker(window time.Duration, maxAttempts int, blockDuration time.Duration) *invalidTokenTracker {
	return &invalidTokenTracker{
		attempts:      make(map[string]*attemptWindow),
		window:        window,
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
	}
}

// CheckAllowed reports whether ip may attempt another token lookup.
func (t *invalidTokenTracker) CheckAllowed(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	w, ok := t.attempts[ip]
	if !ok {
		return true
	}

	if now.Sub(w.windowStart) > t.window+t.blockDuration {
		w.count = 0
		w.windowStart = now
		return true
	}

	if w.count >= t.maxAttempts {
		if now.Sub(w.windowStart) < t.window+t.blockDuration {
			return false
		}
		w.count = 0
		w.windowStart = now
	}
	return true
}

// RecordInvalid records an invalid-token attempt from ip.
func (t *invalidTokenTracker) RecordInvalid(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	w, ok := t.attempts[ip]
	if !ok {
		t.attempts[ip] = &attemptWindow{count: 1, windowStart: now}
		return
	}
	if now.Sub(w.windowStart) > t.window+t.blockDuration {
		w.count = 1
		w.windowStart = now
	} else {
		w.count++
	}
}

// Cleanup evicts windows that have fully expired.
func (t *invalidTokenTracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	expiry := t.window + t.blockDuration
	for ip, w := range t.attempts {
		if now.Sub(w.windowStart) > expiry {
			delete(t.attempts, ip)
		}
	}
}
