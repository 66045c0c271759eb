package postgres

import (
	"context"
	"fmt"

	"bsc-trade-engine/internal/storage"
)

// CycleProgressStore implements storage.CycleProgressStore using PostgreSQL.
// A single row (id = 1) tracks the last fully processed cycle.
type CycleProgressStore struct {
	pool *Pool
}

// NewCycleProgressStore creates a new CycleProgressStore.
func NewCycleProgressStore(pool *Pool) *CycleProgressStore {
	return &CycleProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CycleProgressStore = (*CycleProgressStore)(nil)

// GetLastCycle returns the last completed cycle. Returns ErrNotFound if
// no cycle has been recorded yet.
func (s *CycleProgressStore) GetLastCycle(ctx context.Context) (*storage.CycleProgress, error) {
	query := `SELECT last_cycle, completed_at FROM cycle_progress WHERE id = 1`

	var p storage.CycleProgress
	err := s.pool.QueryRow(ctx, query).Scan(&p.Cycle, &p.CompletedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get last cycle: %w", err)
	}
	return &p, nil
}

// SetLastCycle saves the last completed cycle, overwriting any previous value.
func (s *CycleProgressStore) SetLastCycle(ctx context.Context, progress *storage.CycleProgress) error {
	if progress == nil || progress.Cycle == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cycle_progress (id, last_cycle, completed_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_cycle = EXCLUDED.last_cycle,
			completed_at = EXCLUDED.completed_at
	`

	_, err := s.pool.Exec(ctx, query, progress.Cycle, progress.CompletedAt)
	if err != nil {
		return fmt.Errorf("set last cycle: %w", err)
	}
	return nil
}
