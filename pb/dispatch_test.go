package pb

import (
	"testing"
	"time"
)

func TestDispatchMessageRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second).UTC()
	recv := now.Add(-2 * time.Second)
	want := &DispatchMessage{
		ApplicationID:      "app-1",
		RequestAttemptID:   "attempt-1",
		EventID:            "event-1",
		EventReceivedAt:    &recv,
		SubscriptionID:     "sub-1",
		CreatedAt:          now,
		RetryCount:         3,
		HTTPMethod:         "POST",
		HTTPURL:            "https://example.test/hook",
		HTTPHeaders:        map[string]string{"X-Custom": "v"},
		EventTypeName:      "user.account.created",
		Payload:            []byte(`{"ok":true}`),
		PayloadContentType: "application/json",
		Secret:             "22222222-2222-2222-2222-222222222222",
	}

	got, err := DecodeDispatchMessage(EncodeDispatchMessage(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ApplicationID != want.ApplicationID || got.RequestAttemptID != want.RequestAttemptID ||
		got.EventID != want.EventID || got.SubscriptionID != want.SubscriptionID ||
		got.RetryCount != want.RetryCount || got.HTTPMethod != want.HTTPMethod ||
		got.HTTPURL != want.HTTPURL || got.EventTypeName != want.EventTypeName ||
		string(got.Payload) != string(want.Payload) ||
		got.PayloadContentType != want.PayloadContentType || got.Secret != want.Secret {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.EventReceivedAt == nil || !got.EventReceivedAt.Equal(*want.EventReceivedAt) {
		t.Fatalf("event_received_at mismatch: got %v want %v", got.EventReceivedAt, want.EventReceivedAt)
	}
	if got.HTTPHeaders["X-Custom"] != "v" {
		t.Fatalf("headers mismatch: %+v", got.HTTPHeaders)
	}
}

func TestDispatchMessageAbsentEventReceivedAt(t *testing.T) {
	m := &DispatchMessage{
		ApplicationID: "app-1",
		CreatedAt:     time.Now().Truncate(time.Second).UTC(),
		HTTPHeaders:   map[string]string{},
	}
	got, err := DecodeDispatchMessage(EncodeDispatchMessage(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventReceivedAt != nil {
		t.Fatalf("expected nil EventReceivedAt, got %v", got.EventReceivedAt)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	want := &Blob{Body: []byte("response body"), Headers: map[string]string{"content-type": "text/plain"}}
	got, err := DecodeBlob(EncodeBlob(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got.Body) != string(want.Body) {
		t.Fatalf("body mismatch: %q vs %q", got.Body, want.Body)
	}
	if got.Headers["content-type"] != "text/plain" {
		t.Fatalf("headers mismatch: %+v", got.Headers)
	}
}
