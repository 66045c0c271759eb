// Package wallets persists wallet settings and per-wallet token state
// as JSON documents, rewritten whole at cycle end.
package wallets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"bsc-trade-engine/internal/domain"
)

// Store reads and writes the wallet settings document: a JSON map of
// wallet id to wallet state.
type Store struct {
	path string
}

// NewStore creates a store over path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and validates all wallet states. Wallet ids come from the
// map keys; parameter validation failures abort the load so a bad
// config never trades.
func (s *Store) Load() (map[string]*domain.WalletState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read wallet settings: %w", err)
	}

	var doc map[string]*domain.WalletState
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode wallet settings: %w", err)
	}

	for id, w := range doc {
		w.WalletID = id
		if w.Holdings == nil {
			w.Holdings = make(map[string]*domain.Holding)
		}
		if err := w.Params.Validate(); err != nil {
			return nil, fmt.Errorf("wallet %s: %w", id, err)
		}
	}
	return doc, nil
}

// Save rewrites the whole settings document atomically.
func (s *Store) Save(wallets map[string]*domain.WalletState) error {
	data, err := sonic.MarshalIndent(wallets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet settings: %w", err)
	}
	return writeAtomic(s.path, data)
}

// TokenStateStore persists the last observed price per coin for each
// wallet, the comparison source in Event trade mode.
type TokenStateStore struct {
	dir string
}

// NewTokenStateStore creates a token state store under dir.
func NewTokenStateStore(dir string) *TokenStateStore {
	return &TokenStateStore{dir: dir}
}

// Load reads a wallet's token state. A missing file is an empty state,
// not an error.
func (t *TokenStateStore) Load(walletID string) (map[string]float64, error) {
	data, err := os.ReadFile(t.path(walletID))
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]float64), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token state: %w", err)
	}

	var state map[string]float64
	if err := sonic.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode token state for %s: %w", walletID, err)
	}
	return state, nil
}

// Save rewrites a wallet's token state atomically.
func (t *TokenStateStore) Save(walletID string, state map[string]float64) error {
	data, err := sonic.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token state: %w", err)
	}
	return writeAtomic(t.path(walletID), data)
}

func (t *TokenStateStore) path(walletID string) string {
	return filepath.Join(t.dir, fmt.Sprintf("token_state_%s.json", walletID))
}

// writeAtomic writes via a temp file and rename so a crash mid-write
// never truncates the previous document.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
