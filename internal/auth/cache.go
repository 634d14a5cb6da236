package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/infra"
	"github.com/hook0/webhooks-core/internal/storage"
)

// TokenCache stores and retrieves cached OAuth2 tokens keyed by the owning
// AuthenticationConfig id.
type TokenCache interface {
	Get(ctx context.Context, authConfigID uuid.UUID) (*storage.OAuthTokenCache, error)
	Set(ctx context.Context, t *storage.OAuthTokenCache) error
}

// dbTokenCache is the durable Postgres-backed cache, always present.
type dbTokenCache struct {
	store *storage.Store
}

// NewDBTokenCache wraps the storage layer's oauth_token_cache table.
func NewDBTokenCache(store *storage.Store) TokenCache {
	return &dbTokenCache{store: store}
}

func (c *dbTokenCache) Get(ctx context.Context, authConfigID uuid.UUID) (*storage.OAuthTokenCache, error) {
	t, err := c.store.GetOAuthToken(ctx, authConfigID)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	return t, err
}

func (c *dbTokenCache) Set(ctx context.Context, t *storage.OAuthTokenCache) error {
	return c.store.UpsertOAuthToken(ctx, t)
}

// redisFrontedTokenCache fronts a durable cache with Redis so a hot-path
// token refresh-ahead check does not always round-trip Postgres.
type redisFrontedTokenCache struct {
	redis    *infra.GoRedisAdapter
	fallback TokenCache
	prefix   string
}

// NewRedisFrontedTokenCache wraps fallback (normally a dbTokenCache) with a
// Redis read-through/write-through layer.
func NewRedisFrontedTokenCache(redis *infra.GoRedisAdapter, fallback TokenCache) TokenCache {
	return &redisFrontedTokenCache{redis: redis, fallback: fallback, prefix: "hook0:oauth2:"}
}

func (c *redisFrontedTokenCache) key(authConfigID uuid.UUID) string {
	return c.prefix + authConfigID.String()
}

func (c *redisFrontedTokenCache) Get(ctx context.Context, authConfigID uuid.UUID) (*storage.OAuthTokenCache, error) {
	raw, err := c.redis.Get(ctx, c.key(authConfigID))
	if err == nil {
		var t storage.OAuthTokenCache
		if jerr := json.Unmarshal(raw, &t); jerr == nil {
			return &t, nil
		}
	}
	return c.fallback.Get(ctx, authConfigID)
}

func (c *redisFrontedTokenCache) Set(ctx context.Context, t *storage.OAuthTokenCache) error {
	if err := c.fallback.Set(ctx, t); err != nil {
		return err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("auth: marshal token for redis cache: %w", err)
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return c.redis.Set(ctx, c.key(t.AuthConfigID), raw, ttl)
}
