package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hook0/webhooks-core/internal/secrets"
	"github.com/hook0/webhooks-core/internal/storage"
)

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://example.test/hook", nil)
	require.NoError(t, err)
	return req
}

func TestNewProviderNilConfigReturnsNoAuth(t *testing.T) {
	p, err := NewProvider(context.Background(), nil, uuid.New(), secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.AuthKind(""), p.Kind())
	assert.Nil(t, p.ClientIdentity())
	assert.NoError(t, p.Authenticate(context.Background(), newReq(t)))
}

func TestNewProviderUnknownKind(t *testing.T) {
	cfg := &storage.AuthenticationConfig{Kind: "nonsense"}
	_, err := NewProvider(context.Background(), cfg, uuid.New(), secrets.NewStore(nil, nil), nil)
	assert.Error(t, err)
}

func TestBasicProviderSetsAuthorizationHeader(t *testing.T) {
	appID := uuid.New()
	cfg := &storage.AuthenticationConfig{
		Kind:        storage.AuthKindBasic,
		Username:    "alice",
		PasswordRef: "s3cr3t",
	}
	p, err := NewProvider(context.Background(), cfg, appID, secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, storage.AuthKindBasic, p.Kind())

	req := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req))
	assert.Equal(t, "Basic YWxpY2U6czNjcjN0", req.Header.Get("Authorization"))
}

func TestBearerProviderDefaultsHeaderNameAndHonorsExplicitPrefix(t *testing.T) {
	appID := uuid.New()
	cfg := &storage.AuthenticationConfig{
		Kind:     storage.AuthKindBearer,
		TokenRef: "tok-123",
		Prefix:   "Bearer",
	}
	p, err := NewProvider(context.Background(), cfg, appID, secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)

	req := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req))
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
}

func TestBearerProviderEmptyPrefixOmitsSpace(t *testing.T) {
	appID := uuid.New()
	cfg := &storage.AuthenticationConfig{
		Kind:       storage.AuthKindBearer,
		TokenRef:   "tok-123",
		HeaderName: "X-Api-Key",
		Prefix:     "",
	}
	p, err := NewProvider(context.Background(), cfg, appID, secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)

	req := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req))
	assert.Equal(t, "tok-123", req.Header.Get("X-Api-Key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestCustomProviderSetsHeadersAndQueryParams(t *testing.T) {
	cfg := &storage.AuthenticationConfig{
		Kind:        storage.AuthKindCustom,
		Headers:     map[string]string{"X-Partner-Token": "abc"},
		QueryParams: map[string]string{"apikey": "def"},
	}
	p, err := NewProvider(context.Background(), cfg, uuid.New(), secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)

	req := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req))
	assert.Equal(t, "abc", req.Header.Get("X-Partner-Token"))
	assert.Equal(t, "def", req.URL.Query().Get("apikey"))
}

func TestCertificateProviderBuildsClientIdentityWithoutMTLS(t *testing.T) {
	cfg := &storage.AuthenticationConfig{
		Kind:           storage.AuthKindCertificate,
		VerifyHostname: false,
	}
	p, err := NewProvider(context.Background(), cfg, uuid.New(), secrets.NewStore(nil, nil), nil)
	require.NoError(t, err)

	identity := p.ClientIdentity()
	require.NotNil(t, identity)
	assert.Empty(t, identity.Certificates)
	require.NotNil(t, identity.RootCAs)
	assert.True(t, identity.RootCAs.InsecureSkipVerify)

	// Authenticate is a no-op; TLS identity is carried on the transport.
	req := newReq(t)
	assert.NoError(t, p.Authenticate(context.Background(), req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

// memTokenCache is a minimal in-memory TokenCache for exercising the OAuth2
// provider's refresh-ahead logic without a database.
type memTokenCache struct {
	entries map[uuid.UUID]*storage.OAuthTokenCache
}

func newMemTokenCache() *memTokenCache {
	return &memTokenCache{entries: map[uuid.UUID]*storage.OAuthTokenCache{}}
}

func (c *memTokenCache) Get(_ context.Context, authConfigID uuid.UUID) (*storage.OAuthTokenCache, error) {
	return c.entries[authConfigID], nil
}

func (c *memTokenCache) Set(_ context.Context, t *storage.OAuthTokenCache) error {
	c.entries[t.AuthConfigID] = t
	return nil
}

func TestOAuth2ProviderClientCredentialsGrantAndCache(t *testing.T) {
	var tokenRequests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"granted-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := &storage.AuthenticationConfig{
		Kind:                storage.AuthKindOAuth2,
		GrantType:           storage.GrantClientCredentials,
		ClientID:            "client-id",
		ClientSecretRef:     "client-secret",
		TokenEndpoint:       srv.URL,
		RefreshThresholdSec: 30,
	}
	cache := newMemTokenCache()
	p, err := NewProvider(context.Background(), cfg, uuid.New(), secrets.NewStore(nil, nil), cache)
	require.NoError(t, err)
	assert.Equal(t, storage.AuthKindOAuth2, p.Kind())

	req := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req))
	assert.Equal(t, "Bearer granted-token", req.Header.Get("Authorization"))
	assert.Equal(t, 1, tokenRequests)

	// Second call should reuse the cached token rather than re-granting.
	req2 := newReq(t)
	require.NoError(t, p.Authenticate(context.Background(), req2))
	assert.Equal(t, "Bearer granted-token", req2.Header.Get("Authorization"))
	assert.Equal(t, 1, tokenRequests)
}
