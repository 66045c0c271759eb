package memory

import (
	"context"
	"sort"
	"sync"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/storage"
)

type snapshotKey struct {
	coinID string
	cycle  string
}

// SnapshotArchiveStore is an in-memory implementation of storage.SnapshotArchiveStore.
type SnapshotArchiveStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.SnapshotPoint
}

// NewSnapshotArchiveStore creates a new in-memory snapshot archive store.
func NewSnapshotArchiveStore() *SnapshotArchiveStore {
	return &SnapshotArchiveStore{
		data: make(map[snapshotKey]*domain.SnapshotPoint),
	}
}

// Compile-time interface check.
var _ storage.SnapshotArchiveStore = (*SnapshotArchiveStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (coin_id, cycle).
func (s *SnapshotArchiveStore) InsertBulk(_ context.Context, points []*domain.SnapshotPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[snapshotKey]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.CoinID == "" || p.Cycle == "" {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{p.CoinID, p.Cycle}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, p := range points {
		copy := *p
		s.data[snapshotKey{p.CoinID, p.Cycle}] = &copy
	}

	return nil
}

// GetByCoin retrieves all points for a coin, ordered by cycle ASC.
func (s *SnapshotArchiveStore) GetByCoin(_ context.Context, coinID string) ([]*domain.SnapshotPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []*domain.SnapshotPoint
	for k, p := range s.data {
		if k.coinID == coinID {
			copy := *p
			points = append(points, &copy)
		}
	}

	sortPoints(points)
	return points, nil
}

// GetByCycleRange retrieves points for a coin within [start, end] (inclusive).
func (s *SnapshotArchiveStore) GetByCycleRange(_ context.Context, coinID, start, end string) ([]*domain.SnapshotPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []*domain.SnapshotPoint
	for k, p := range s.data {
		if k.coinID == coinID && k.cycle >= start && k.cycle <= end {
			copy := *p
			points = append(points, &copy)
		}
	}

	sortPoints(points)
	return points, nil
}

func sortPoints(points []*domain.SnapshotPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Cycle < points[j].Cycle
	})
}
