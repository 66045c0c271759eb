package memory

import (
	"context"
	"sort"
	"sync"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/storage"
)

// TradeRoundStore is an in-memory implementation of storage.TradeRoundStore.
type TradeRoundStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRound // keyed by round_id
}

// NewTradeRoundStore creates a new in-memory trade round store.
func NewTradeRoundStore() *TradeRoundStore {
	return &TradeRoundStore{
		data: make(map[string]*domain.TradeRound),
	}
}

// Compile-time interface check.
var _ storage.TradeRoundStore = (*TradeRoundStore)(nil)

// Insert adds a new round. Returns ErrDuplicateKey if round_id exists.
func (s *TradeRoundStore) Insert(_ context.Context, r *domain.TradeRound) error {
	if r == nil || r.RoundID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RoundID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.RoundID] = &copy
	return nil
}

// InsertBulk adds multiple rounds atomically. Fails entire batch on any duplicate.
func (s *TradeRoundStore) InsertBulk(_ context.Context, rounds []*domain.TradeRound) error {
	if len(rounds) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(rounds))

	for _, r := range rounds {
		if r == nil || r.RoundID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RoundID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.RoundID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.RoundID] = struct{}{}
	}

	for _, r := range rounds {
		copy := *r
		s.data[r.RoundID] = &copy
	}

	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *TradeRoundStore) GetByID(_ context.Context, roundID string) (*domain.TradeRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[roundID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetByWallet retrieves all rounds for a wallet, ordered by entry_cycle ASC.
func (s *TradeRoundStore) GetByWallet(_ context.Context, walletID string) ([]*domain.TradeRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rounds []*domain.TradeRound
	for _, r := range s.data {
		if r.WalletID == walletID {
			copy := *r
			rounds = append(rounds, &copy)
		}
	}

	sortRounds(rounds)
	return rounds, nil
}

// GetByCoin retrieves all rounds for a coin, ordered by entry_cycle ASC.
func (s *TradeRoundStore) GetByCoin(_ context.Context, coinID string) ([]*domain.TradeRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rounds []*domain.TradeRound
	for _, r := range s.data {
		if r.CoinID == coinID {
			copy := *r
			rounds = append(rounds, &copy)
		}
	}

	sortRounds(rounds)
	return rounds, nil
}

// sortRounds orders by entry_cycle ASC with round_id as tiebreaker for
// deterministic output.
func sortRounds(rounds []*domain.TradeRound) {
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].EntryCycle != rounds[j].EntryCycle {
			return rounds[i].EntryCycle < rounds[j].EntryCycle
		}
		return rounds[i].RoundID < rounds[j].RoundID
	})
}
