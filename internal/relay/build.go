package relay

import (
	"github.com/hook0/webhooks-core/internal/config"
	"github.com/hook0/webhooks-core/internal/cryptosecret"
	"github.com/hook0/webhooks-core/internal/observability"
	"github.com/hook0/webhooks-core/internal/ratelimit"
)

// Build wires a Server from the relay section of the process config. The
// relay's rate limiters are a dedicated Set, independent from the
// ingestion API's, since their keys (IP/token of the tunnel) are unrelated
// to application credentials.
func Build(cfg config.Config, metrics *observability.Metrics) (*Server, error) {
	limits := ResolveLimits(cfg.Relay)
	limiters := ratelimit.Build(cfg.RateLimit)

	var box *cryptosecret.Box
	if cfg.Security.EncryptionKeyB64 != "" {
		b, err := cryptosecret.NewBox(cfg.Security.EncryptionKeyB64)
		if err != nil {
			return nil, err
		}
		box = b
	}

	return NewServer(cfg.Relay.PublicBaseURL, limits, limiters, metrics, box), nil
}
