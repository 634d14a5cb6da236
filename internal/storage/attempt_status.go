package storage

import "time"

// AttemptState is the C6 lifecycle state machine's named states.
type AttemptState string

const (
	StatePending     AttemptState = "pending"
	StateWaiting     AttemptState = "waiting"
	StateInProgress  AttemptState = "in_progress"
	StateSucceeded   AttemptState = "succeeded"
	StateFailed      AttemptState = "failed"
)

// AttemptStatus is the derived, non-stored public status of a RequestAttempt.
type AttemptStatus struct {
	State             AttemptState
	Since             time.Time
	Until             time.Time // only meaningful for StateWaiting
	FullProcessingMs  int64     // only meaningful for terminal states
}

// ComputeAttemptStatus is a pure function of a RequestAttempt's timestamps,
// per spec §4.6. It never touches the database and is stable under
// repeated calls with the same inputs.
func ComputeAttemptStatus(now time.Time, createdAt time.Time, pickedAt, failedAt, succeededAt, delayUntil *time.Time) AttemptStatus {
	if failedAt != nil {
		return AttemptStatus{
			State:            StateFailed,
			Since:            *failedAt,
			FullProcessingMs: processingMs(*failedAt, createdAt, delayUntil),
		}
	}
	if succeededAt != nil {
		return AttemptStatus{
			State:            StateSucceeded,
			Since:            *succeededAt,
			FullProcessingMs: processingMs(*succeededAt, createdAt, delayUntil),
		}
	}
	if pickedAt != nil {
		return AttemptStatus{State: StateInProgress, Since: *pickedAt}
	}
	if delayUntil != nil && delayUntil.After(now) {
		return AttemptStatus{State: StateWaiting, Since: createdAt, Until: *delayUntil}
	}
	return AttemptStatus{State: StatePending, Since: createdAt}
}

func processingMs(terminal, createdAt time.Time, delayUntil *time.Time) int64 {
	base := createdAt
	if delayUntil != nil && delayUntil.After(base) {
		base = *delayUntil
	}
	return terminal.Sub(base).Milliseconds()
}
