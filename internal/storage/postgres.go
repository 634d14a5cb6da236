package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
)

// Store wraps a *sql.DB as the system of record for all persistent
// entities. It holds no long-lived references beyond the pool itself;
// every operation is transaction-scoped.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and configures the pool per DatabaseConfig.
func Open(url string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an already-open *sql.DB, used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for sibling packages (secrets, OAuth
// token caches) that are constructed directly from *sql.DB rather than
// through Store's own methods.
func (s *Store) DB() *sql.DB { return s.db }

// =============================================================================
// Event ingestion (C4)
// =============================================================================

// InsertEvent inserts an Event row. A duplicate (application_id, id) pair
// returns ErrEventAlreadyIngested rather than the raw driver error.
func (s *Store) InsertEvent(ctx context.Context, tx *sql.Tx, e *Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return fmt.Errorf("storage: marshal labels: %w", err)
	}

	exec := s.execer(tx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO events (id, application_id, event_type_name, occurred_at, received_at,
			payload, content_type, metadata, labels)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (application_id, id) DO NOTHING`,
		e.ID, e.ApplicationID, e.EventTypeName, e.OccurredAt, e.ReceivedAt,
		e.Payload, e.ContentType, meta, labels)
	if err != nil {
		return fmt.Errorf("storage: insert event: %w", err)
	}

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE application_id=$1 AND id=$2 AND received_at=$3)`,
		e.ApplicationID, e.ID, e.ReceivedAt).Scan(&exists); err != nil {
		return fmt.Errorf("storage: verify insert: %w", err)
	}
	if !exists {
		return ErrEventAlreadyIngested
	}
	return nil
}

// BeginTx starts a transaction used to atomically ingest an event and
// materialise its matching request attempts.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.db
}

// =============================================================================
// Subscriptions & matcher (C5)
// =============================================================================

// MatchingSubscriptions implements the C5 matcher: enabled subscriptions
// for the application whose event-type filter intersects eventType and
// whose label filter is a subset of labels.
func (s *Store) MatchingSubscriptions(ctx context.Context, tx *sql.Tx, applicationID uuid.UUID, eventType string, labels map[string]string) ([]Subscription, error) {
	rows, err := s.execer(tx).QueryContext(ctx, `
		SELECT id, application_id, description, enabled, paused_by_quota, event_types,
			labels, target_url, target_method, target_headers, secret,
			consecutive_failures, last_success_at, created_at
		FROM subscriptions
		WHERE application_id = $1 AND enabled = true AND $2 = ANY(event_types)`,
		applicationID, eventType)
	if err != nil {
		return nil, fmt.Errorf("storage: query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		if labelsSubset(sub.Labels, labels) {
			out = append(out, sub)
		}
	}
	return out, rows.Err()
}

// labelsSubset reports whether every key/value in filter is present in event.
func labelsSubset(filter, event map[string]string) bool {
	for k, v := range filter {
		if event[k] != v {
			return false
		}
	}
	return true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(r rowScanner) (Subscription, error) {
	var sub Subscription
	var eventTypesJSON, labelsJSON, headersJSON []byte
	if err := r.Scan(&sub.ID, &sub.ApplicationID, &sub.Description, &sub.Enabled, &sub.PausedByQuota,
		&eventTypesJSON, &labelsJSON, &sub.TargetURL, &sub.TargetMethod, &headersJSON, &sub.Secret,
		&sub.ConsecutiveFailures, &sub.LastSuccessAt, &sub.CreatedAt); err != nil {
		return Subscription{}, fmt.Errorf("storage: scan subscription: %w", err)
	}
	_ = json.Unmarshal(eventTypesJSON, &sub.EventTypes)
	_ = json.Unmarshal(labelsJSON, &sub.Labels)
	_ = json.Unmarshal(headersJSON, &sub.TargetHeaders)
	return sub, nil
}

// GetSubscription loads a single subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, application_id, description, enabled, paused_by_quota, event_types,
			labels, target_url, target_method, target_headers, secret,
			consecutive_failures, last_success_at, created_at
		FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

// RecordSubscriptionOutcome updates the consecutive-failure counter and
// last-success timestamp after a terminal delivery outcome.
func (s *Store) RecordSubscriptionOutcome(ctx context.Context, subscriptionID uuid.UUID, succeeded bool) error {
	if succeeded {
		_, err := s.db.ExecContext(ctx, `
			UPDATE subscriptions SET consecutive_failures = 0, last_success_at = now()
			WHERE id = $1`, subscriptionID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET consecutive_failures = consecutive_failures + 1
		WHERE id = $1`, subscriptionID)
	return err
}

// =============================================================================
// Request attempts (C6)
// =============================================================================

// InsertAttempt creates the initial Pending attempt row for an (event,
// subscription) pair materialised by ingestion.
func (s *Store) InsertAttempt(ctx context.Context, tx *sql.Tx, a *RequestAttempt) error {
	_, err := s.execer(tx).ExecContext(ctx, `
		INSERT INTO request_attempts (id, event_id, subscription_id, created_at, retry_count)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.EventID, a.SubscriptionID, a.CreatedAt, a.RetryCount)
	return err
}

// MarkPicked claims the attempt referenced by a freshly received dispatch
// message, atomic with the queue's ack lease. claimed is false when the
// attempt was already picked by a prior (at-least-once) delivery of the
// same message, telling the caller to treat this as a duplicate and skip
// re-dispatch.
func (s *Store) MarkPicked(ctx context.Context, attemptID uuid.UUID) (claimed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE request_attempts SET picked_at = now()
		WHERE id = $1 AND picked_at IS NULL`, attemptID)
	if err != nil {
		return false, fmt.Errorf("storage: mark picked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: mark picked rows affected: %w", err)
	}
	return n == 1, nil
}

// PickNext atomically claims one pickable attempt via SELECT ... FOR
// UPDATE SKIP LOCKED and marks it InProgress, returning nil, nil if none
// is available. Callers must commit tx to release the lock.
func (s *Store) PickNext(ctx context.Context, tx *sql.Tx) (*RequestAttempt, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, event_id, subscription_id, created_at, picked_at, failed_at,
			succeeded_at, delay_until, response_id, retry_count
		FROM request_attempts
		WHERE succeeded_at IS NULL AND failed_at IS NULL
			AND (delay_until IS NULL OR delay_until <= now())
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)

	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE request_attempts SET picked_at = now() WHERE id = $1`, a.ID); err != nil {
		return nil, fmt.Errorf("storage: mark picked: %w", err)
	}
	now := time.Now()
	a.PickedAt = sql.NullTime{Time: now, Valid: true}
	return &a, nil
}

func scanAttempt(r rowScanner) (RequestAttempt, error) {
	var a RequestAttempt
	if err := r.Scan(&a.ID, &a.EventID, &a.SubscriptionID, &a.CreatedAt, &a.PickedAt, &a.FailedAt,
		&a.SucceededAt, &a.DelayUntil, &a.ResponseID, &a.RetryCount); err != nil {
		return RequestAttempt{}, fmt.Errorf("storage: scan attempt: %w", err)
	}
	return a, nil
}

// MarkSucceeded transitions InProgress -> Succeeded and links the response.
func (s *Store) MarkSucceeded(ctx context.Context, attemptID, responseID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE request_attempts SET succeeded_at = now(), response_id = $2
		WHERE id = $1`, attemptID, responseID)
	return err
}

// MarkFailed transitions InProgress -> Failed and links the response. If
// retryCount < maxRetries, it also inserts the retry attempt row with
// delay_until = now() + delay, all within the same transaction.
func (s *Store) MarkFailed(ctx context.Context, a RequestAttempt, responseID uuid.UUID, maxRetries int, delay time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE request_attempts SET failed_at = now(), response_id = $2
		WHERE id = $1`, a.ID, responseID); err != nil {
		return fmt.Errorf("storage: mark failed: %w", err)
	}

	if int(a.RetryCount) < maxRetries {
		retry := RequestAttempt{
			ID:             uuid.New(),
			EventID:        a.EventID,
			SubscriptionID: a.SubscriptionID,
			CreatedAt:      time.Now(),
			RetryCount:     a.RetryCount + 1,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO request_attempts (id, event_id, subscription_id, created_at, retry_count, delay_until)
			VALUES ($1,$2,$3,$4,$5, now() + $6::interval)`,
			retry.ID, retry.EventID, retry.SubscriptionID, retry.CreatedAt, retry.RetryCount,
			fmt.Sprintf("%d milliseconds", delay.Milliseconds())); err != nil {
			return fmt.Errorf("storage: insert retry: %w", err)
		}
	}

	return tx.Commit()
}

// InsertResponse persists the captured delivery outcome.
func (s *Store) InsertResponse(ctx context.Context, r *Response) error {
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return fmt.Errorf("storage: marshal headers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (id, response_error__name, http_code, headers, body,
			elapsed_time_ms, object_store_key, object_store_size)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.ErrorName, r.HTTPStatus, headers, r.Body, r.ElapsedTimeMs, r.ObjectStoreKey, r.ObjectStoreSize)
	return err
}

// =============================================================================
// Authentication configs & OAuth2 token cache (C3)
// =============================================================================

// GetAuthenticationConfig loads the effective config for a subscription,
// preferring a subscription-scoped row over the application-scoped
// default, per §4.3 "subscription-scoped config wins".
func (s *Store) GetAuthenticationConfig(ctx context.Context, applicationID, subscriptionID uuid.UUID) (*AuthenticationConfig, error) {
	cfg, err := s.queryAuthConfig(ctx, `
		SELECT id, application_id, subscription_id, kind, grant_type, client_id, client_secret_ref,
			token_endpoint, scopes, refresh_threshold_sec, token_ref, header_name, prefix,
			username, password_ref, client_cert_ref, client_key_ref, ca_cert_ref,
			verify_hostname, mtls, headers, query_params
		FROM authentication_configs WHERE application_id=$1 AND subscription_id=$2`,
		applicationID, subscriptionID)
	if err == ErrNotFound {
		return s.queryAuthConfig(ctx, `
			SELECT id, application_id, subscription_id, kind, grant_type, client_id, client_secret_ref,
				token_endpoint, scopes, refresh_threshold_sec, token_ref, header_name, prefix,
				username, password_ref, client_cert_ref, client_key_ref, ca_cert_ref,
				verify_hostname, mtls, headers, query_params
			FROM authentication_configs WHERE application_id=$1 AND subscription_id IS NULL`,
			applicationID)
	}
	return cfg, err
}

func (s *Store) queryAuthConfig(ctx context.Context, query string, args ...any) (*AuthenticationConfig, error) {
	var c AuthenticationConfig
	var scopesJSON, headersJSON, queryParamsJSON []byte
	row := s.db.QueryRowContext(ctx, query, args...)
	err := row.Scan(&c.ID, &c.ApplicationID, &c.SubscriptionID, &c.Kind, &c.GrantType, &c.ClientID, &c.ClientSecretRef,
		&c.TokenEndpoint, &scopesJSON, &c.RefreshThresholdSec, &c.TokenRef, &c.HeaderName, &c.Prefix,
		&c.Username, &c.PasswordRef, &c.ClientCertRef, &c.ClientKeyRef, &c.CACertRef,
		&c.VerifyHostname, &c.MTLS, &headersJSON, &queryParamsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scan auth config: %w", err)
	}
	_ = json.Unmarshal(scopesJSON, &c.Scopes)
	_ = json.Unmarshal(headersJSON, &c.Headers)
	_ = json.Unmarshal(queryParamsJSON, &c.QueryParams)
	return &c, nil
}

// GetOAuthToken loads the cached token for an AuthenticationConfig, if any.
func (s *Store) GetOAuthToken(ctx context.Context, authConfigID uuid.UUID) (*OAuthTokenCache, error) {
	var t OAuthTokenCache
	var scopesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT auth_config_id, access_token, refresh_token, expires_at, scopes
		FROM oauth_token_cache WHERE auth_config_id=$1`, authConfigID).
		Scan(&t.AuthConfigID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &scopesJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get oauth token: %w", err)
	}
	_ = json.Unmarshal(scopesJSON, &t.Scopes)
	return &t, nil
}

// UpsertOAuthToken persists a freshly obtained token, replacing any prior
// cache entry for the same AuthenticationConfig.
func (s *Store) UpsertOAuthToken(ctx context.Context, t *OAuthTokenCache) error {
	scopesJSON, err := json.Marshal(t.Scopes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_token_cache (auth_config_id, access_token, refresh_token, expires_at, scopes)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (auth_config_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes`,
		t.AuthConfigID, t.AccessToken, t.RefreshToken, t.ExpiresAt, scopesJSON)
	return err
}

// =============================================================================
// Application secrets (ingestion bearer tokens)
// =============================================================================

// InsertApplicationSecret persists a newly minted application secret. The
// caller has already hashed the private half.
func (s *Store) InsertApplicationSecret(ctx context.Context, as *ApplicationSecret) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_secrets (key_id, application_id, secret_hash, name, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		as.KeyID, as.ApplicationID, as.SecretHash, as.Name, as.CreatedAt)
	return err
}

// GetApplicationSecret looks up an application secret by its public key id.
func (s *Store) GetApplicationSecret(ctx context.Context, keyID string) (*ApplicationSecret, error) {
	var as ApplicationSecret
	err := s.db.QueryRowContext(ctx, `
		SELECT key_id, application_id, secret_hash, name, created_at, revoked_at
		FROM application_secrets WHERE key_id = $1`, keyID).
		Scan(&as.KeyID, &as.ApplicationID, &as.SecretHash, &as.Name, &as.CreatedAt, &as.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get application secret: %w", err)
	}
	return &as, nil
}

// GetApplication loads an application by id.
func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (Application, error) {
	var app Application
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, deleted_at FROM applications WHERE id=$1`, id).
		Scan(&app.ID, &app.Name, &app.CreatedAt, &app.DeletedAt)
	if err == sql.ErrNoRows {
		return Application{}, ErrNotFound
	}
	return app, err
}
