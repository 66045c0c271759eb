package storage

import "context"

// CycleProgress marks the last snapshot cycle the trader finished.
type CycleProgress struct {
	Cycle       string // snapshot file name
	CompletedAt int64  // unix milliseconds
}

// CycleProgressStore persists trading progress so a restarted daemon
// resumes after the last processed snapshot instead of replaying it.
type CycleProgressStore interface {
	// GetLastCycle returns the last completed cycle.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastCycle(ctx context.Context) (*CycleProgress, error)

	// SetLastCycle saves the last completed cycle.
	SetLastCycle(ctx context.Context, progress *CycleProgress) error
}
