package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

type certificateProvider struct {
	cfg      *storage.AuthenticationConfig
	identity *ClientIdentity
}

// newCertificateProvider resolves the cert/key/CA secret references and
// builds the client TLS identity up front, since authenticate() itself is
// a no-op (TLS is negotiated per-connection, not per-request).
func newCertificateProvider(ctx context.Context, cfg *storage.AuthenticationConfig, applicationID uuid.UUID, secretStore *secrets.Store) (*certificateProvider, error) {
	identity := &ClientIdentity{VerifyHostname: cfg.VerifyHostname}

	if cfg.MTLS {
		certPEM, err := secretStore.Resolve(ctx, cfg.ClientCertRef, applicationID)
		if err != nil {
			return nil, fmt.Errorf("auth: resolve client cert: %w", err)
		}
		keyPEM, err := secretStore.Resolve(ctx, cfg.ClientKeyRef, applicationID)
		if err != nil {
			return nil, fmt.Errorf("auth: resolve client key: %w", err)
		}
		cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return nil, fmt.Errorf("auth: build client identity: %w", err)
		}
		identity.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACertRef != "" {
		caPEM, err := secretStore.Resolve(ctx, cfg.CACertRef, applicationID)
		if err != nil {
			return nil, fmt.Errorf("auth: resolve ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return nil, fmt.Errorf("auth: invalid ca cert PEM")
		}
		identity.RootCAs = &tls.Config{RootCAs: pool, InsecureSkipVerify: !cfg.VerifyHostname}
	} else if !cfg.VerifyHostname {
		identity.RootCAs = &tls.Config{InsecureSkipVerify: true}
	}

	return &certificateProvider{cfg: cfg, identity: identity}, nil
}

func (p *certificateProvider) Kind() storage.AuthKind              { return storage.AuthKindCertificate }
func (p *certificateProvider) RefreshIfNeeded(context.Context) error { return nil }
func (p *certificateProvider) ClientIdentity() *ClientIdentity     { return p.identity }

// Authenticate is a no-op: the certificate identity is attached to the
// *http.Client's transport, not to individual requests.
func (p *certificateProvider) Authenticate(context.Context, *http.Request) error { return nil }
