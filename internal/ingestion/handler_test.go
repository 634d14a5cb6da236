package ingestion

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/hook0/webhooks-core/internal/queue"
	"github.com/hook0/webhooks-core/internal/storage"
)

func newTestHandler(t *testing.T) (*mux.Router, sqlmock.Sqlmock, string, uuid.UUID) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db)
	mq := queue.NewMemQueue()
	in := New(store, mq, []string{"application/json"})
	h := NewHandler(in, store)
	r := mux.NewRouter()
	h.Register(r)

	appID := uuid.New()
	keyID := "deadbeefdeadbeef"
	secret := "cafebabecafebabecafebabecafebabecafebabecafebabe"
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}

	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key_id, application_id, secret_hash, name, created_at, revoked_at")).
		WithArgs(keyID).
		WillReturnRows(sqlmock.NewRows([]string{"key_id", "application_id", "secret_hash", "name", "created_at", "revoked_at"}).
			AddRow(keyID, appID, string(hash), "ci", time.Now(), nil))

	return r, mock, "hook0_" + keyID + "." + secret, appID
}

func TestHandleIngestMissingBearerTokenReturns401(t *testing.T) {
	r, _, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleIngestMalformedJSONReturns400(t *testing.T) {
	r, _, token, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleIngestSuccessReturns201WithEventID(t *testing.T) {
	r, mock, token, appID := newTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, description, enabled, paused_by_quota, event_types")).
		WithArgs(appID, "user.account.created").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "description", "enabled", "paused_by_quota",
			"event_types", "labels", "target_url", "target_method", "target_headers", "secret",
			"consecutive_failures", "last_success_at", "created_at"}))
	mock.ExpectCommit()

	body, _ := json.Marshal(eventRequest{
		EventType:   "user.account.created",
		Payload:     base64.StdEncoding.EncodeToString([]byte(`{}`)),
		ContentType: "application/json",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp eventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EventID == "" {
		t.Fatal("expected non-empty event_id")
	}
}

func TestHandleIngestDuplicateReturns409(t *testing.T) {
	r, mock, token, _ := newTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	body, _ := json.Marshal(eventRequest{
		ID:          uuid.New().String(),
		EventType:   "user.account.created",
		Payload:     base64.StdEncoding.EncodeToString([]byte(`{}`)),
		ContentType: "application/json",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}
