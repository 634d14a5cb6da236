// Package secrets implements the C2 secret resolver and the per-application
// encrypted secret store backing it.
package secrets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hook0/webhooks-core/internal/cryptosecret"
)

var (
	ErrEnvVarMissing  = errors.New("secrets: referenced environment variable is not set")
	ErrSecretNotFound = errors.New("secrets: encrypted secret not found")
)

const (
	envPrefix       = "env://"
	encryptedPrefix = "encrypted://"
)

// Store resolves secret references and manages the encrypted_secrets table.
type Store struct {
	db  *sql.DB
	box *cryptosecret.Box
}

// NewStore builds a Store. box may be nil if the deployment never uses
// encrypted:// references (resolve then fails loudly rather than silently).
func NewStore(db *sql.DB, box *cryptosecret.Box) *Store {
	return &Store{db: db, box: box}
}

// Resolve implements C2's resolve(value, application_id) -> plaintext.
func (s *Store) Resolve(ctx context.Context, value string, applicationID uuid.UUID) (string, error) {
	switch {
	case strings.HasPrefix(value, envPrefix):
		name := strings.TrimPrefix(value, envPrefix)
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrEnvVarMissing, name)
		}
		return v, nil
	case strings.HasPrefix(value, encryptedPrefix):
		name := strings.TrimPrefix(value, encryptedPrefix)
		return s.resolveEncrypted(ctx, applicationID, name)
	default:
		return value, nil
	}
}

func (s *Store) resolveEncrypted(ctx context.Context, applicationID uuid.UUID, name string) (string, error) {
	if s.box == nil {
		return "", fmt.Errorf("secrets: no master key configured, cannot resolve encrypted:// references")
	}

	var ciphertextB64, nonceB64 string
	err := s.db.QueryRowContext(ctx, `
		SELECT ciphertext, nonce FROM encrypted_secrets
		WHERE application_id = $1 AND name = $2`, applicationID, name).
		Scan(&ciphertextB64, &nonceB64)
	if err == sql.ErrNoRows {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("secrets: lookup: %w", err)
	}

	plaintext, err := s.box.Decrypt(cryptosecret.Sealed{CiphertextB64: ciphertextB64, NonceB64: nonceB64})
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt %s: %w", name, err)
	}
	return string(plaintext), nil
}

// Store upserts an encrypted secret by (application, name), rotating the
// nonce and updating rotated_at. This is also how the initial write
// happens — there is no distinct "create" path.
func (s *Store) StoreSecret(ctx context.Context, applicationID uuid.UUID, name, value string, meta map[string]string) error {
	if s.box == nil {
		return fmt.Errorf("secrets: no master key configured, cannot store encrypted secrets")
	}
	sealed, err := s.box.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("secrets: encrypt: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("secrets: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO encrypted_secrets (application_id, name, ciphertext, nonce, metadata, rotated_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (application_id, name) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce,
			metadata = EXCLUDED.metadata,
			rotated_at = now()`,
		applicationID, name, sealed.CiphertextB64, sealed.NonceB64, metaJSON)
	return err
}

// Rotate requires the row to already exist and behaves like StoreSecret
// otherwise; it exists as a distinct entry point so callers can express
// intent ("this must already exist") and get a clear error if it doesn't.
func (s *Store) Rotate(ctx context.Context, applicationID uuid.UUID, name, value string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM encrypted_secrets WHERE application_id=$1 AND name=$2)`,
		applicationID, name).Scan(&exists); err != nil {
		return fmt.Errorf("secrets: check existence: %w", err)
	}
	if !exists {
		return ErrSecretNotFound
	}
	return s.StoreSecret(ctx, applicationID, name, value, nil)
}

// Delete removes a secret unconditionally.
func (s *Store) Delete(ctx context.Context, applicationID uuid.UUID, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM encrypted_secrets WHERE application_id=$1 AND name=$2`, applicationID, name)
	return err
}

// RotatedAt reports the last rotation time of a secret, mostly useful for
// housekeeping/audit surfaces.
func (s *Store) RotatedAt(ctx context.Context, applicationID uuid.UUID, name string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT rotated_at FROM encrypted_secrets WHERE application_id=$1 AND name=$2`,
		applicationID, name).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrSecretNotFound
	}
	return t, err
}
