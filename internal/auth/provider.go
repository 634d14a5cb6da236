// Package auth implements the C3 outbound-authentication providers: one
// per AuthenticationConfig variant, dispatched through a tagged-variant
// factory rather than a trait object, per the spec's §9 re-architecture
// note.
package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

// Provider mutates an outbound HTTP request before dispatch to satisfy a
// subscription's authentication configuration.
type Provider interface {
	// Authenticate mutates req in place (headers, query params) to carry
	// the credentials this provider is responsible for.
	Authenticate(ctx context.Context, req *http.Request) error
	// RefreshIfNeeded proactively refreshes any cached credential (OAuth2
	// tokens); a no-op for static credential kinds.
	RefreshIfNeeded(ctx context.Context) error
	Kind() storage.AuthKind
	// ClientIdentity returns non-nil TLS materials for the Certificate
	// provider so the caller can build a per-subscription *http.Client.
	ClientIdentity() *ClientIdentity
}

// ClientIdentity carries mTLS materials attached to the HTTP client built
// for a subscription, since TLS identity is per-connection, not per-request.
type ClientIdentity struct {
	Certificates   []tls.Certificate
	RootCAs        *tls.Config // only CA pool is read from here by callers
	VerifyHostname bool
}

// NoAuth is used when neither a subscription-scoped nor an
// application-scoped AuthenticationConfig exists.
type NoAuth struct{}

func (NoAuth) Authenticate(context.Context, *http.Request) error { return nil }
func (NoAuth) RefreshIfNeeded(context.Context) error              { return nil }
func (NoAuth) Kind() storage.AuthKind                             { return "" }
func (NoAuth) ClientIdentity() *ClientIdentity                    { return nil }

// NewProvider builds the concrete Provider for a resolved
// AuthenticationConfig. secretStore resolves env://, encrypted:// and
// literal references; tokenCache backs the OAuth2 variant.
func NewProvider(ctx context.Context, cfg *storage.AuthenticationConfig, applicationID uuid.UUID, secretStore *secrets.Store, tokenCache TokenCache) (Provider, error) {
	if cfg == nil {
		return NoAuth{}, nil
	}

	switch cfg.Kind {
	case storage.AuthKindBasic:
		return newBasicProvider(cfg, applicationID, secretStore), nil
	case storage.AuthKindBearer:
		return newBearerProvider(cfg, applicationID, secretStore), nil
	case storage.AuthKindCertificate:
		return newCertificateProvider(ctx, cfg, applicationID, secretStore)
	case storage.AuthKindOAuth2:
		return newOAuth2Provider(cfg, applicationID, secretStore, tokenCache), nil
	case storage.AuthKindCustom:
		return newCustomProvider(cfg), nil
	default:
		return nil, fmt.Errorf("auth: unknown authentication kind %q", cfg.Kind)
	}
}
