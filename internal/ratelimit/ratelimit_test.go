package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow("k")
		assert.True(t, ok)
		assert.Nil(t, err)
	}
}

func TestAllowExceedsLimit(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Close()

	ok, _ := l.Allow("k")
	assert.True(t, ok)
	ok, _ = l.Allow("k")
	assert.True(t, ok)

	ok, err := l.Allow("k")
	assert.False(t, ok)
	assert.NotNil(t, err)
	assert.Equal(t, "k", err.Key)
	assert.Greater(t, err.RetryAfterSecs, 0)
}

func TestAllowUnlimitedWhenZero(t *testing.T) {
	l := New(0, time.Minute)
	defer l.Close()
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("k")
		assert.True(t, ok)
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Close()

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)

	ok, _ = l.Allow("a")
	assert.False(t, ok)
}

func TestSetAllowAllChecksAllThreeLimiters(t *testing.T) {
	s := &Set{
		PerIP:    New(1, time.Minute),
		PerToken: New(10, time.Minute),
		Global:   New(10, time.Minute),
	}
	defer s.Close()

	assert.Nil(t, s.AllowAll("1.2.3.4", "tok"))
	err := s.AllowAll("1.2.3.4", "tok")
	assert.NotNil(t, err)
}
