package chain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Locker hands out one mutex per sender address. Holding the mutex from
// nonce fetch through receipt wait keeps concurrent per-coin tasks from
// racing on the same nonce.
type Locker struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[common.Address]*sync.Mutex)}
}

// For returns the mutex for addr, creating it on first use.
func (l *Locker) For(addr common.Address) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[addr]
	if !ok {
		m = &sync.Mutex{}
		l.locks[addr] = m
	}
	return m
}
