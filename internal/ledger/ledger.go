// Package ledger owns wallet balance and holding mutation. Every change
// goes through it, serialized per wallet, so concurrent decision tasks
// can never overspend a shared balance.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"bsc-trade-engine/internal/domain"
)

var (
	ErrUnknownWallet       = errors.New("unknown wallet")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrAlreadyHeld         = errors.New("coin already held")
	ErrNotHeld             = errors.New("coin not held")
)

// Ledger holds the in-memory wallet states for one run.
type Ledger struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	wallets map[string]*domain.WalletState
}

// New creates a ledger over the loaded wallet states. The map is owned
// by the ledger afterwards.
func New(wallets map[string]*domain.WalletState) *Ledger {
	l := &Ledger{
		locks:   make(map[string]*sync.Mutex, len(wallets)),
		wallets: wallets,
	}
	for id := range wallets {
		l.locks[id] = &sync.Mutex{}
	}
	return l
}

// WalletIDs returns all wallet ids, sorted.
func (l *Ledger) WalletIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.wallets))
	for id := range l.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wallet returns a deep copy of one wallet's state.
func (l *Ledger) Wallet(id string) (*domain.WalletState, error) {
	lock, w, err := l.get(id)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()
	return w.Clone(), nil
}

// Snapshot returns a deep copy of every wallet, for persistence.
func (l *Ledger) Snapshot() map[string]*domain.WalletState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*domain.WalletState, len(l.wallets))
	for id, w := range l.wallets {
		lock := l.locks[id]
		lock.Lock()
		out[id] = w.Clone()
		lock.Unlock()
	}
	return out
}

// Reserve atomically checks and debits the available balance for a
// pending buy. The amount sits in usedBalance until CommitBuy or
// Release. The check and the debit are one critical section; two
// concurrent buys cannot both pass on the same funds.
func (l *Ledger) Reserve(walletID string, amountUsd float64) error {
	lock, w, err := l.get(walletID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	if amountUsd <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %.2f", amountUsd)
	}
	if w.AvailableBalanceUsd < amountUsd {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientBalance, amountUsd, w.AvailableBalanceUsd)
	}
	w.AvailableBalanceUsd -= amountUsd
	w.UsedBalanceUsd += amountUsd
	return nil
}

// Release returns a failed buy's reservation to the available balance.
func (l *Ledger) Release(walletID string, amountUsd float64) error {
	lock, w, err := l.get(walletID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	w.AvailableBalanceUsd += amountUsd
	w.UsedBalanceUsd -= amountUsd
	return nil
}

// CommitBuy converts a reservation into a holding. The holding's
// UsdCost must equal the reserved amount.
func (l *Ledger) CommitBuy(walletID string, holding domain.Holding) error {
	lock, w, err := l.get(walletID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	if _, ok := w.Holdings[holding.CoinID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyHeld, holding.CoinID)
	}
	h := holding
	w.Holdings[holding.CoinID] = &h
	return nil
}

// ApplySell destroys a holding, credits the proceeds, and records the
// round's PnL. A stop-loss is always tallied as a loss; a sell is a win
// or loss by PnL sign.
func (l *Ledger) ApplySell(walletID, coinID string, proceedsUsd float64, action domain.Action) (float64, error) {
	lock, w, err := l.get(walletID)
	if err != nil {
		return 0, err
	}
	lock.Lock()
	defer lock.Unlock()

	holding, ok := w.Holdings[coinID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotHeld, coinID)
	}

	pnl := proceedsUsd - holding.UsdCost
	w.AvailableBalanceUsd += proceedsUsd
	w.UsedBalanceUsd -= holding.UsdCost
	delete(w.Holdings, coinID)

	w.Stats.Trades++
	w.Stats.TotalProfitUsd += pnl
	if action == domain.ActionStopLoss || pnl <= 0 {
		w.Stats.Losses++
	} else {
		w.Stats.Wins++
	}
	return pnl, nil
}

// SetCurrentBalance records the marked-to-market total, informational
// only.
func (l *Ledger) SetCurrentBalance(walletID string, totalUsd float64) error {
	lock, w, err := l.get(walletID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	w.CurrentBalanceUsd = totalUsd
	return nil
}

func (l *Ledger) get(id string) (*sync.Mutex, *domain.WalletState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownWallet, id)
	}
	return l.locks[id], w, nil
}
