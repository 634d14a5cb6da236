package signature

import (
	"testing"
	"time"
)

// TestVectorFromOriginalImplementation pins the exact test vector carried
// over from the source implementation's own signature tests.
func TestVectorFromOriginalImplementation(t *testing.T) {
	payload := []byte("hello !")
	secret := "secret"
	ts := int64(1636936200)

	got := computeMAC("1636936200", payload, secret)
	want := "1b3d69df55f1e52f05224ba94a5162abeb17ef52cd7f4948c390f810d6a87e98"
	if got != want {
		t.Fatalf("computeMAC mismatch: got %s want %s", got, want)
	}

	header := Sign(payload, secret, time.Unix(ts, 0))
	if err := Verify(header, payload, secret, 365*24*time.Hour*100); err != nil {
		t.Fatalf("Verify() of freshly-signed vector failed: %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	secret := "s3cr3t"
	header := SignNow([]byte("original"), secret)
	if err := Verify(header, []byte("tampered"), secret, time.Minute); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyBoundaryAges(t *testing.T) {
	secret := "s3cr3t"
	payload := []byte(`{"ok":true}`)
	signedAt := time.Now().Add(-5 * time.Second)
	header := Sign(payload, secret, signedAt)

	if err := Verify(header, payload, secret, 5*time.Second); err != nil {
		t.Fatalf("age == tolerance should be accepted, got %v", err)
	}

	if err := Verify(header, payload, secret, 4*time.Second); err == nil {
		t.Fatalf("age > tolerance should be rejected")
	} else if _, ok := err.(*ExpiredWebhookError); !ok {
		t.Fatalf("expected *ExpiredWebhookError, got %T: %v", err, err)
	}
}

func TestVerifyUnparseableHeader(t *testing.T) {
	if err := Verify("garbage", []byte("x"), "secret", time.Minute); err != ErrSignatureParsing {
		t.Fatalf("expected ErrSignatureParsing, got %v", err)
	}
	if err := Verify("t=notanumber,v0=abc", []byte("x"), "secret", time.Minute); err != ErrSignatureParsing {
		t.Fatalf("malformed v0 hex should fail regex match, got %v", err)
	}
}

func TestVerifyInvalidTolerance(t *testing.T) {
	header := SignNow([]byte("x"), "secret")
	if err := Verify(header, []byte("x"), "secret", -time.Second); err != ErrInvalidTolerance {
		t.Fatalf("expected ErrInvalidTolerance, got %v", err)
	}
}
