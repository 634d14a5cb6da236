package storage

import (
	"testing"
	"time"
)

func TestComputeAttemptStatusPending(t *testing.T) {
	now := time.Now()
	created := now.Add(-time.Minute)
	st := ComputeAttemptStatus(now, created, nil, nil, nil, nil)
	if st.State != StatePending {
		t.Fatalf("expected pending, got %v", st.State)
	}
}

func TestComputeAttemptStatusWaiting(t *testing.T) {
	now := time.Now()
	created := now.Add(-time.Minute)
	until := now.Add(time.Minute)
	st := ComputeAttemptStatus(now, created, nil, nil, nil, &until)
	if st.State != StateWaiting || !st.Until.Equal(until) {
		t.Fatalf("expected waiting until %v, got %+v", until, st)
	}
}

func TestComputeAttemptStatusInProgress(t *testing.T) {
	now := time.Now()
	created := now.Add(-time.Minute)
	picked := now.Add(-30 * time.Second)
	st := ComputeAttemptStatus(now, created, &picked, nil, nil, nil)
	if st.State != StateInProgress {
		t.Fatalf("expected in_progress, got %v", st.State)
	}
}

func TestComputeAttemptStatusSucceededProcessingTime(t *testing.T) {
	now := time.Now()
	created := now.Add(-time.Minute)
	delay := now.Add(-40 * time.Second)
	succeeded := now.Add(-10 * time.Second)
	st := ComputeAttemptStatus(now, created, &delay, nil, &succeeded, &delay)
	if st.State != StateSucceeded {
		t.Fatalf("expected succeeded, got %v", st.State)
	}
	want := succeeded.Sub(delay).Milliseconds()
	if st.FullProcessingMs != want {
		t.Fatalf("expected processing_ms=%d, got %d", want, st.FullProcessingMs)
	}
}

func TestComputeAttemptStatusIsPure(t *testing.T) {
	now := time.Now()
	created := now.Add(-time.Hour)
	failed := now.Add(-time.Minute)
	a := ComputeAttemptStatus(now, created, nil, &failed, nil, nil)
	b := ComputeAttemptStatus(now, created, nil, &failed, nil, nil)
	if a != b {
		t.Fatalf("expected stable pure function, got %+v vs %+v", a, b)
	}
}

func TestLabelsSubset(t *testing.T) {
	filter := map[string]string{"a": "1", "b": "2"}
	if !labelsSubset(filter, map[string]string{"a": "1", "b": "2", "c": "3"}) {
		t.Fatalf("expected subset match")
	}
	if labelsSubset(filter, map[string]string{"a": "1"}) {
		t.Fatalf("expected non-match when b is missing")
	}
}
