package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

type oauth2Provider struct {
	cfg           *storage.AuthenticationConfig
	applicationID uuid.UUID
	secretStore   *secrets.Store
	cache         TokenCache

	mu          sync.Mutex
	accessToken string
}

func newOAuth2Provider(cfg *storage.AuthenticationConfig, applicationID uuid.UUID, secretStore *secrets.Store, cache TokenCache) *oauth2Provider {
	return &oauth2Provider{cfg: cfg, applicationID: applicationID, secretStore: secretStore, cache: cache}
}

func (p *oauth2Provider) Kind() storage.AuthKind          { return storage.AuthKindOAuth2 }
func (p *oauth2Provider) ClientIdentity() *ClientIdentity { return nil }

func (p *oauth2Provider) Authenticate(ctx context.Context, req *http.Request) error {
	if err := p.RefreshIfNeeded(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	token := p.accessToken
	p.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// RefreshIfNeeded implements the refresh-ahead policy: a cached token is
// reused while now + refresh_threshold < expires_at; otherwise a fresh
// grant is executed and the result persisted to the cache.
func (p *oauth2Provider) RefreshIfNeeded(ctx context.Context) error {
	threshold := time.Duration(p.cfg.RefreshThresholdSec) * time.Second

	cached, err := p.cache.Get(ctx, p.cfg.ID)
	if err != nil {
		return fmt.Errorf("auth: oauth2 cache lookup: %w", err)
	}
	if cached != nil && time.Now().Add(threshold).Before(cached.ExpiresAt) {
		p.mu.Lock()
		p.accessToken = cached.AccessToken
		p.mu.Unlock()
		return nil
	}

	token, err := p.grant(ctx, cached)
	if err != nil {
		return fmt.Errorf("auth: oauth2 grant: %w", err)
	}

	entry := &storage.OAuthTokenCache{
		AuthConfigID: p.cfg.ID,
		AccessToken:  token.AccessToken,
		ExpiresAt:    token.Expiry,
		Scopes:       p.cfg.Scopes,
	}
	if token.RefreshToken != "" {
		entry.RefreshToken.String = token.RefreshToken
		entry.RefreshToken.Valid = true
	}
	if err := p.cache.Set(ctx, entry); err != nil {
		return fmt.Errorf("auth: oauth2 cache store: %w", err)
	}

	p.mu.Lock()
	p.accessToken = token.AccessToken
	p.mu.Unlock()
	return nil
}

func (p *oauth2Provider) grant(ctx context.Context, cached *storage.OAuthTokenCache) (*xoauth2.Token, error) {
	clientSecret, err := p.secretStore.Resolve(ctx, p.cfg.ClientSecretRef, p.applicationID)
	if err != nil {
		return nil, fmt.Errorf("resolve client secret: %w", err)
	}

	switch p.cfg.GrantType {
	case storage.GrantClientCredentials:
		cc := &clientcredentials.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: clientSecret,
			TokenURL:     p.cfg.TokenEndpoint,
			Scopes:       p.cfg.Scopes,
		}
		return cc.Token(ctx)

	case storage.GrantPassword:
		// The resource-owner password grant needs end-user credentials,
		// which this system does not model per-subscription; the client
		// secret reference doubles as the password in this deployment's
		// convention (documented at config-creation time, not here).
		conf := &xoauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: clientSecret,
			Scopes:       p.cfg.Scopes,
			Endpoint:     xoauth2.Endpoint{TokenURL: p.cfg.TokenEndpoint},
		}
		return conf.PasswordCredentialsToken(ctx, p.cfg.Username, clientSecret)

	case storage.GrantAuthorizationCode:
		if cached == nil || !cached.RefreshToken.Valid {
			return nil, fmt.Errorf("authorization_code grant requires a prior refresh token in cache")
		}
		conf := &xoauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: clientSecret,
			Scopes:       p.cfg.Scopes,
			Endpoint:     xoauth2.Endpoint{TokenURL: p.cfg.TokenEndpoint},
		}
		ts := conf.TokenSource(ctx, &xoauth2.Token{RefreshToken: cached.RefreshToken.String})
		return ts.Token()

	default:
		return nil, fmt.Errorf("unsupported grant type %q", p.cfg.GrantType)
	}
}
