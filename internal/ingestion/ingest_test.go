package ingestion

import (
	"context"
	"encoding/base64"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/storage"
)

func newTestIngester(t *testing.T) (*Ingester, sqlmock.Sqlmock, *storage.Store, *queue.MemQueue) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db)
	mq := queue.NewMemQueue()
	in := New(store, mq, []string{"application/json"})
	return in, mock, store, mq
}

func subscriptionRows(subID, appID uuid.UUID) *sqlmock.Rows {
	cols := []string{"id", "application_id", "description", "enabled", "paused_by_quota", "event_types",
		"labels", "target_url", "target_method", "target_headers", "secret",
		"consecutive_failures", "last_success_at", "created_at"}
	return sqlmock.NewRows(cols).
		AddRow(subID, appID, "sub", true, false, `["user.account.created"]`,
			`{}`, "https://example.test/hook", "POST", `{}`, uuid.New(),
			0, nil, time.Now())
}

func TestIngestHappyPathPublishesOneAttemptPerMatch(t *testing.T) {
	in, mock, _, mq := newTestIngester(t)

	appID := uuid.New()
	subID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, description, enabled, paused_by_quota, event_types")).
		WithArgs(appID, "user.account.created").
		WillReturnRows(subscriptionRows(subID, appID))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_attempts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ev := EventIn{
		EventTypeName: "user.account.created",
		PayloadBase64: base64.StdEncoding.EncodeToString([]byte(`{"hello":"world"}`)),
		ContentType:   "application/json",
	}

	eventID, err := in.Ingest(context.Background(), appID, ev)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, eventID)

	published := mq.Drain()
	require.Len(t, published, 1)
	assert.Equal(t, appID.String(), published[0].ApplicationID)
	assert.Equal(t, subID.String(), published[0].SubscriptionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestDuplicateEventReturnsSentinelWithoutPublishing(t *testing.T) {
	in, mock, _, mq := newTestIngester(t)

	appID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	ev := EventIn{
		ID:            uuid.New().String(),
		EventTypeName: "user.account.created",
		PayloadBase64: base64.StdEncoding.EncodeToString([]byte(`{}`)),
		ContentType:   "application/json",
	}

	_, err := in.Ingest(context.Background(), appID, ev)
	assert.ErrorIs(t, err, storage.ErrEventAlreadyIngested)
	assert.Empty(t, mq.Drain())
}

func TestIngestRejectsUnlistedContentType(t *testing.T) {
	in, _, _, _ := newTestIngester(t)

	_, err := in.Ingest(context.Background(), uuid.New(), EventIn{
		ContentType:   "application/xml",
		PayloadBase64: base64.StdEncoding.EncodeToString([]byte(`<a/>`)),
	})
	assert.ErrorIs(t, err, ErrInvalidPayloadContentType)
}

func TestIngestRejectsInvalidBase64Payload(t *testing.T) {
	in, _, _, _ := newTestIngester(t)

	_, err := in.Ingest(context.Background(), uuid.New(), EventIn{
		ContentType:   "application/json",
		PayloadBase64: "not-valid-base64!!",
	})
	assert.ErrorIs(t, err, ErrInvalidBase64Payload)
}

func TestIngestRejectsNonStringMetadataValue(t *testing.T) {
	in, _, _, _ := newTestIngester(t)

	_, err := in.Ingest(context.Background(), uuid.New(), EventIn{
		ContentType:   "application/json",
		PayloadBase64: base64.StdEncoding.EncodeToString([]byte(`{}`)),
		Metadata:      map[string]any{"count": 5},
	})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestIngestRejectsNonStringLabelValue(t *testing.T) {
	in, _, _, _ := newTestIngester(t)

	_, err := in.Ingest(context.Background(), uuid.New(), EventIn{
		ContentType:   "application/json",
		PayloadBase64: base64.StdEncoding.EncodeToString([]byte(`{}`)),
		Labels:        map[string]any{"env": true},
	})
	assert.ErrorIs(t, err, ErrInvalidLabels)
}
