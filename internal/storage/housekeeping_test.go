package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireTokensCommitsWhenNotDryRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	hs := NewHousekeepingStore(NewStore(db))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM application_secrets")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := hs.ExpireTokens(context.Background(), 24*time.Hour, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireTokensRollsBackOnDryRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	hs := NewHousekeepingStore(NewStore(db))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM application_secrets")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectRollback()

	n, err := hs.ExpireTokens(context.Background(), 24*time.Hour, true)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOldEventsDeletesResponsesThenEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	hs := NewHousekeepingStore(NewStore(db))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM responses")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := hs.PurgeOldEvents(context.Background(), 90, 7*24*time.Hour, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshAnalyticsViews(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	hs := NewHousekeepingStore(NewStore(db))

	mock.ExpectExec(regexp.QuoteMeta("REFRESH MATERIALIZED VIEW CONCURRENTLY delivery_analytics")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, hs.RefreshAnalyticsViews(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
