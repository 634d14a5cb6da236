package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

type bearerProvider struct {
	cfg           *storage.AuthenticationConfig
	applicationID uuid.UUID
	secretStore   *secrets.Store
}

func newBearerProvider(cfg *storage.AuthenticationConfig, applicationID uuid.UUID, secretStore *secrets.Store) *bearerProvider {
	return &bearerProvider{cfg: cfg, applicationID: applicationID, secretStore: secretStore}
}

func (p *bearerProvider) Kind() storage.AuthKind          { return storage.AuthKindBearer }
func (p *bearerProvider) RefreshIfNeeded(context.Context) error { return nil }
func (p *bearerProvider) ClientIdentity() *ClientIdentity { return nil }

func (p *bearerProvider) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := p.secretStore.Resolve(ctx, p.cfg.TokenRef, p.applicationID)
	if err != nil {
		return fmt.Errorf("auth: resolve bearer token: %w", err)
	}

	headerName := p.cfg.HeaderName
	if headerName == "" {
		headerName = "Authorization"
	}

	// Prefix defaults to "Bearer" at config-creation time; an explicitly
	// empty prefix here means the space is omitted entirely, per §4.3.
	value := token
	if p.cfg.Prefix != "" {
		value = p.cfg.Prefix + " " + token
	}
	req.Header.Set(headerName, value)
	return nil
}
