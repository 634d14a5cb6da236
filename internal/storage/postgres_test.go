package storage

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertEventSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	e := &Event{
		ID:            uuid.New(),
		ApplicationID: uuid.New(),
		EventTypeName: "user.account.created",
		OccurredAt:    time.Now(),
		ReceivedAt:    time.Now(),
		Payload:       []byte(`{}`),
		ContentType:   "application/json",
		Metadata:      map[string]string{"k": "v"},
		Labels:        map[string]string{"env": "prod"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs(e.ID, e.ApplicationID, e.EventTypeName, e.OccurredAt, e.ReceivedAt,
			e.Payload, e.ContentType, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(e.ApplicationID, e.ID, e.ReceivedAt).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = store.InsertEvent(context.Background(), nil, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventDuplicateReturnsSentinel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	e := &Event{
		ID:            uuid.New(),
		ApplicationID: uuid.New(),
		EventTypeName: "user.account.created",
		OccurredAt:    time.Now(),
		ReceivedAt:    time.Now(),
		Payload:       []byte(`{}`),
		ContentType:   "application/json",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = store.InsertEvent(context.Background(), nil, e)
	assert.ErrorIs(t, err, ErrEventAlreadyIngested)
}

func TestMatchingSubscriptionsFiltersByLabelSubset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	appID := uuid.New()
	matchSub := uuid.New()
	mismatchSub := uuid.New()

	cols := []string{"id", "application_id", "description", "enabled", "paused_by_quota", "event_types",
		"labels", "target_url", "target_method", "target_headers", "secret",
		"consecutive_failures", "last_success_at", "created_at"}

	rows := sqlmock.NewRows(cols).
		AddRow(matchSub, appID, "matches", true, false, `["user.account.created"]`,
			`{"env":"prod"}`, "https://example.test/hook", "POST", `{}`, uuid.New(),
			0, nil, time.Now()).
		AddRow(mismatchSub, appID, "wrong env", true, false, `["user.account.created"]`,
			`{"env":"staging"}`, "https://example.test/hook", "POST", `{}`, uuid.New(),
			0, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, description, enabled, paused_by_quota, event_types")).
		WithArgs(appID, "user.account.created").
		WillReturnRows(rows)

	subs, err := store.MatchingSubscriptions(context.Background(), nil, appID, "user.account.created",
		map[string]string{"env": "prod"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, matchSub, subs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPickNextReturnsNilWhenNoneAvailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectBegin()
	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)

	cols := []string{"id", "event_id", "subscription_id", "created_at", "picked_at", "failed_at",
		"succeeded_at", "delay_until", "response_id", "retry_count"}
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows(cols))

	a, err := store.PickNext(context.Background(), tx)
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestMarkFailedInsertsRetryRowWhenUnderLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	a := RequestAttempt{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		SubscriptionID: uuid.New(),
		CreatedAt:      time.Now(),
		RetryCount:     1,
	}
	responseID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_attempts SET failed_at = now()")).
		WithArgs(a.ID, responseID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_attempts")).
		WithArgs(sqlmock.AnyArg(), a.EventID, a.SubscriptionID, sqlmock.AnyArg(), uint16(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.MarkFailed(context.Background(), a, responseID, 5, 10*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedSkipsRetryRowAtLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	a := RequestAttempt{
		ID:             uuid.New(),
		EventID:        uuid.New(),
		SubscriptionID: uuid.New(),
		CreatedAt:      time.Now(),
		RetryCount:     5,
	}
	responseID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE request_attempts SET failed_at = now()")).
		WithArgs(a.ID, responseID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.MarkFailed(context.Background(), a, responseID, 5, 10*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplicationSecretNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key_id, application_id, secret_hash, name, created_at, revoked_at")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.GetApplicationSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
