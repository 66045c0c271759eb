// Package faultinject provides pluggable, seedable network fault
// injection for backtest stress runs. Production code wires Nop.
package faultinject

import (
	"math/rand"
	"sync"
	"time"
)

// Injector decides whether a simulated network fault fires.
type Injector interface {
	// CongestionDelay returns an artificial latency to add before a
	// probe; zero means none.
	CongestionDelay() time.Duration
	// DropQuote reports whether a probe result should be discarded as
	// if the RPC call had failed.
	DropQuote() bool
}

// Nop injects nothing.
type Nop struct{}

func (Nop) CongestionDelay() time.Duration { return 0 }
func (Nop) DropQuote() bool                { return false }

// Congestion injects random delays and quote drops from a seeded
// source, so a backtest with the same seed replays identically.
type Congestion struct {
	mu       sync.Mutex
	rng      *rand.Rand
	dropProb float64
	maxDelay time.Duration
}

// NewCongestion creates an injector that drops quotes with probability
// dropProb and delays probes uniformly in [0, maxDelay).
func NewCongestion(seed int64, dropProb float64, maxDelay time.Duration) *Congestion {
	return &Congestion{
		rng:      rand.New(rand.NewSource(seed)),
		dropProb: dropProb,
		maxDelay: maxDelay,
	}
}

func (c *Congestion) CongestionDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxDelay <= 0 {
		return 0
	}
	return time.Duration(c.rng.Int63n(int64(c.maxDelay)))
}

func (c *Congestion) DropQuote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < c.dropProb
}
