package secrets

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestResolveLiteral(t *testing.T) {
	s := NewStore(nil, nil)
	got, err := s.Resolve(context.Background(), "literal-value", uuid.New())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "literal-value" {
		t.Fatalf("got %q, want literal-value", got)
	}
}

func TestResolveEnv(t *testing.T) {
	os.Setenv("HOOK0_TEST_SECRET", "env-value")
	defer os.Unsetenv("HOOK0_TEST_SECRET")

	s := NewStore(nil, nil)
	got, err := s.Resolve(context.Background(), "env://HOOK0_TEST_SECRET", uuid.New())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "env-value" {
		t.Fatalf("got %q, want env-value", got)
	}
}

func TestResolveEnvMissing(t *testing.T) {
	s := NewStore(nil, nil)
	if _, err := s.Resolve(context.Background(), "env://HOOK0_DOES_NOT_EXIST", uuid.New()); !errors.Is(err, ErrEnvVarMissing) {
		t.Fatalf("expected ErrEnvVarMissing, got %v", err)
	}
}

func TestResolveEncryptedWithoutBoxFails(t *testing.T) {
	s := NewStore(nil, nil)
	if _, err := s.Resolve(context.Background(), "encrypted://api-key", uuid.New()); err == nil {
		t.Fatalf("expected an error when no master key box is configured")
	}
}
