package memory

import (
	"context"
	"sync"

	"bsc-trade-engine/internal/storage"
)

// CycleProgressStore is an in-memory implementation of storage.CycleProgressStore.
type CycleProgressStore struct {
	mu       sync.RWMutex
	progress *storage.CycleProgress
}

// NewCycleProgressStore creates a new in-memory cycle progress store.
func NewCycleProgressStore() *CycleProgressStore {
	return &CycleProgressStore{}
}

// Compile-time interface check.
var _ storage.CycleProgressStore = (*CycleProgressStore)(nil)

// GetLastCycle returns the last completed cycle.
func (s *CycleProgressStore) GetLastCycle(_ context.Context) (*storage.CycleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}
	copy := *s.progress
	return &copy, nil
}

// SetLastCycle saves the last completed cycle.
func (s *CycleProgressStore) SetLastCycle(_ context.Context, progress *storage.CycleProgress) error {
	if progress == nil || progress.Cycle == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *progress
	s.progress = &copy
	return nil
}
