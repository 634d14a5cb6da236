package relay

import (
	"fmt"
	"time"

	"github.com/hook0/webhooks-core/internal/config"
)

// Limits is the resolved, duration-typed form of config.RelayConfig,
// mirroring original_source/play/src/limits.rs's ServerLimits.
type Limits struct {
	MaxPayloadSize       int64
	MaxResponseBodySize  int64
	MaxWebhooksPerToken  int
	MaxTotalConnections  int
	MaxConnectionsPerIP  int
	WebhookTTL           time.Duration
	SessionTimeout       time.Duration
	IdleTimeout          time.Duration
	ResponseDeadline     time.Duration
	HandshakeTimeout     time.Duration
	MaxInvalidTokenTries int
	InvalidTokenBlock    time.Duration
}

// ResolveLimits converts config.RelayConfig's scalar fields into Limits.
func ResolveLimits(cfg config.RelayConfig) Limits {
	return Limits{
		MaxPayloadSize:       cfg.MaxPayloadSize,
		MaxResponseBodySize:  cfg.MaxResponseBodySize,
		MaxWebhooksPerToken:  cfg.MaxWebhooksPerToken,
		MaxTotalConnections:  cfg.MaxTotalConnections,
		MaxConnectionsPerIP:  cfg.MaxConnectionsPerIP,
		WebhookTTL:           time.Duration(cfg.WebhookTTLMinutes) * time.Minute,
		SessionTimeout:       time.Duration(cfg.SessionTimeoutMinutes) * time.Minute,
		IdleTimeout:          time.Duration(cfg.IdleTimeoutMinutes) * time.Minute,
		ResponseDeadline:     time.Duration(cfg.ResponseDeadlineSec) * time.Second,
		HandshakeTimeout:     time.Duration(cfg.HandshakeTimeoutSec) * time.Second,
		MaxInvalidTokenTries: cfg.MaxInvalidTokenTries,
		InvalidTokenBlock:    time.Duration(cfg.InvalidTokenBlockMin) * time.Minute,
	}
}

// LimitError is returned by limit checks that reject a request or
// connection outright (as opposed to SanitizeHeaders' per-header errors).
type LimitError struct {
	Code    string
	Message string
}

func (e *LimitError) Error() string { return e.Message }

func errPayloadTooLarge(max, actual int64) *LimitError {
	return &LimitError{Code: "payload_too_large", Message: fmt.Sprintf("payload too large: %d bytes (max %d)", actual, max)}
}

func errTooManyConnections() *LimitError {
	return &LimitError{Code: "too_many_connections", Message: "too many connections"}
}

func errTooManyConnectionsPerIP(ip string, max int) *LimitError {
	return &LimitError{Code: "too_many_connections_per_ip", Message: fmt.Sprintf("too many connections from %s: max %d allowed", ip, max)}
}

func errResponseTooLarge(max, actual int64) *LimitError {
	return &LimitError{Code: "response_too_large", Message: fmt.Sprintf("response body too large: %d bytes (max %d)", actual, max)}
}

func errInvalidTokenBlocked() *LimitError {
	return &LimitError{Code: "invalid_token_blocked", Message: "too many invalid token attempts, temporarily blocked"}
}
