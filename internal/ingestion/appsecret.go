package ingestion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hook0/webhooks-core/internal/storage"
)

// keyPrefix mirrors the teacher's "<namespace>_<key_id>.<secret>" bearer
// token shape from internal/multitenancy/tenant_manager.go, renamed to
// this domain.
const keyPrefix = "hook0_"

// MintApplicationSecret generates a new ingestion bearer token for an
// application: a public key id used for lookup, and a private secret
// whose bcrypt hash alone is persisted. The full token is returned once
// and never stored.
func MintApplicationSecret(ctx context.Context, store *storage.Store, applicationID uuid.UUID, name string) (fullToken string, err error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("ingestion: generate key id: %w", err)
	}
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("ingestion: generate secret: %w", err)
	}

	keyID := hex.EncodeToString(idBytes)
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("ingestion: hash secret: %w", err)
	}

	if err := store.InsertApplicationSecret(ctx, &storage.ApplicationSecret{
		KeyID:         keyID,
		ApplicationID: applicationID,
		SecretHash:    string(hash),
		Name:          name,
		CreatedAt:     time.Now(),
	}); err != nil {
		return "", fmt.Errorf("ingestion: store application secret: %w", err)
	}

	return keyPrefix + keyID + "." + secret, nil
}

// AuthenticateApplicationSecret parses and verifies a bearer token,
// returning the owning application id.
func AuthenticateApplicationSecret(ctx context.Context, store *storage.Store, fullToken string) (uuid.UUID, error) {
	if !strings.HasPrefix(fullToken, keyPrefix) {
		return uuid.Nil, ErrInvalidAPIKeyFormat
	}
	parts := strings.SplitN(strings.TrimPrefix(fullToken, keyPrefix), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return uuid.Nil, ErrInvalidAPIKeyFormat
	}
	keyID, secret := parts[0], parts[1]

	as, err := store.GetApplicationSecret(ctx, keyID)
	if err == storage.ErrNotFound {
		return uuid.Nil, ErrInvalidAPIKey
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("ingestion: lookup application secret: %w", err)
	}
	if as.RevokedAt.Valid {
		return uuid.Nil, ErrAPIKeyRevoked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(as.SecretHash), []byte(secret)); err != nil {
		return uuid.Nil, ErrInvalidAPIKey
	}
	return as.ApplicationID, nil
}
