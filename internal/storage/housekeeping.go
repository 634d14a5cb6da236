package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HousekeepingStore narrows *Store to the handful of retention queries
// C10's tasks need, each performed inside an explicit transaction so a
// --dry-run run can roll back after counting.
type HousekeepingStore struct {
	db *sql.DB
}

func NewHousekeepingStore(s *Store) *HousekeepingStore {
	return &HousekeepingStore{db: s.db}
}

// ExpireTokens deletes application secrets revoked (or otherwise expired)
// more than grace ago. Returns the row count; rolls back instead of
// committing when dryRun is set.
func (h *HousekeepingStore) ExpireTokens(ctx context.Context, grace time.Duration, dryRun bool) (int64, error) {
	return h.runDelete(ctx, dryRun, `
		DELETE FROM application_secrets
		WHERE revoked_at IS NOT NULL AND revoked_at < now() - $1::interval`,
		intervalArg(grace))
}

// PurgeSoftDeletedApplications removes applications (and, via FK cascade,
// their event types/subscriptions/secrets/auth configs) tombstoned more
// than grace ago.
func (h *HousekeepingStore) PurgeSoftDeletedApplications(ctx context.Context, grace time.Duration, dryRun bool) (int64, error) {
	return h.runDelete(ctx, dryRun, `
		DELETE FROM applications
		WHERE deleted_at IS NOT NULL AND deleted_at < now() - $1::interval`,
		intervalArg(grace))
}

// PurgeOldEvents removes events older than retentionDays (plus grace) and
// their now-orphaned responses, per §4.10.
func (h *HousekeepingStore) PurgeOldEvents(ctx context.Context, retentionDays int, grace time.Duration, dryRun bool) (int64, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("housekeeping: begin tx: %w", err)
	}
	defer tx.Rollback()

	cutoff := fmt.Sprintf("%d days", retentionDays)

	res, err := tx.ExecContext(ctx, `
		DELETE FROM responses
		WHERE id IN (
			SELECT r.id FROM responses r
			JOIN request_attempts a ON a.response_id = r.id
			JOIN events e ON e.id = a.event_id
			WHERE e.received_at < now() - $1::interval - $2::interval
		)`, cutoff, intervalArg(grace))
	if err != nil {
		return 0, fmt.Errorf("housekeeping: delete orphan responses: %w", err)
	}
	respRows, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		DELETE FROM events WHERE received_at < now() - $1::interval - $2::interval`,
		cutoff, intervalArg(grace))
	if err != nil {
		return 0, fmt.Errorf("housekeeping: delete old events: %w", err)
	}
	eventRows, _ := res.RowsAffected()

	if dryRun {
		return respRows + eventRows, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("housekeeping: commit: %w", err)
	}
	return respRows + eventRows, nil
}

// RefreshAnalyticsViews concurrently refreshes the delivery analytics
// materialised view. Callers bound this with a context timeout of
// period/2, per §4.10 and §5.
func (h *HousekeepingStore) RefreshAnalyticsViews(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY delivery_analytics`)
	if err != nil {
		return fmt.Errorf("housekeeping: refresh materialized view: %w", err)
	}
	return nil
}

func (h *HousekeepingStore) runDelete(ctx context.Context, dryRun bool, query string, args ...any) (int64, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("housekeeping: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("housekeeping: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("housekeeping: rows affected: %w", err)
	}

	if dryRun {
		return n, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("housekeeping: commit: %w", err)
	}
	return n, nil
}

func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}
