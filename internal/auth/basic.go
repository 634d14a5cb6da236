package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

type basicProvider struct {
	cfg           *storage.AuthenticationConfig
	applicationID uuid.UUID
	secretStore   *secrets.Store
}

func newBasicProvider(cfg *storage.AuthenticationConfig, applicationID uuid.UUID, secretStore *secrets.Store) *basicProvider {
	return &basicProvider{cfg: cfg, applicationID: applicationID, secretStore: secretStore}
}

func (p *basicProvider) Kind() storage.AuthKind          { return storage.AuthKindBasic }
func (p *basicProvider) RefreshIfNeeded(context.Context) error { return nil }
func (p *basicProvider) ClientIdentity() *ClientIdentity { return nil }

func (p *basicProvider) Authenticate(ctx context.Context, req *http.Request) error {
	password, err := p.secretStore.Resolve(ctx, p.cfg.PasswordRef, p.applicationID)
	if err != nil {
		return fmt.Errorf("auth: resolve basic password: %w", err)
	}
	raw := p.cfg.Username + ":" + password
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	return nil
}
