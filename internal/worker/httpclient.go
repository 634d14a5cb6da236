package worker

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/hook0/webhooks-core/internal/auth"
	"github.com/hook0/webhooks-core/internal/config"
)

// buildHTTPClient constructs a per-attempt client per §4.8 step 4:
// connect-timeout and total-timeout are distinct, keep-alive is disabled so
// a slow/hostile target cannot pin a connection across attempts, and a
// Certificate-auth provider's identity (client cert, CA pool, hostname
// verification flag) is attached when present.
func buildHTTPClient(cfg config.DeliveryConfig, identity *auth.ClientIdentity) *http.Client {
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second}

	tlsConfig := &tls.Config{}
	if identity != nil {
		tlsConfig.Certificates = identity.Certificates
		if identity.RootCAs != nil {
			tlsConfig.RootCAs = identity.RootCAs.RootCAs
		}
		tlsConfig.InsecureSkipVerify = !identity.VerifyHostname
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TotalTimeoutSec) * time.Second,
	}
}

