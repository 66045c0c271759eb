// Package backtest replays a directory of historical price snapshots
// through the trade engine in simulation mode.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"bsc-trade-engine/internal/blocklist"
	"bsc-trade-engine/internal/decision"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/faultinject"
	"bsc-trade-engine/internal/ledger"
	"bsc-trade-engine/internal/snapshot"
	"bsc-trade-engine/internal/storage"
	"bsc-trade-engine/internal/trade"
)

// replaySource exposes a snapshot directory to the engine one cycle at
// a time: Latest is the cursor position, AtOffset looks back from it.
type replaySource struct {
	reader *snapshot.Reader
	cycles []string

	mu     sync.Mutex
	cursor int
}

func (s *replaySource) advance(to int) {
	s.mu.Lock()
	s.cursor = to
	s.mu.Unlock()
}

func (s *replaySource) Latest() (*snapshot.Snapshot, error) {
	return s.AtOffset(0)
}

func (s *replaySource) AtOffset(n int) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	if n < 0 {
		return nil, fmt.Errorf("offset must be >= 0, got %d", n)
	}
	idx := cursor - n
	if idx < 0 {
		return nil, fmt.Errorf("need %d snapshots before cycle %s, have %d", n, s.cycles[cursor], cursor)
	}
	return s.reader.Load(s.cycles[idx])
}

// Options configures a backtest run. Reader, Wallets and Resolver are
// required.
type Options struct {
	Reader   *snapshot.Reader
	Wallets  map[string]*domain.WalletState
	Resolver decision.SymbolResolver

	// StartCycle and EndCycle bound the replay (inclusive, lexical);
	// empty means unbounded on that side.
	StartCycle string
	EndCycle   string

	Blocklist  *blocklist.Blocklist
	RoundStore storage.TradeRoundStore
	Archive    storage.SnapshotArchiveStore
	Injector   faultinject.Injector
	Logger     *zap.Logger
}

// WalletResult is one wallet's state after the replay.
type WalletResult struct {
	WalletID            string
	AvailableBalanceUsd float64
	OpenHoldings        int
	Stats               domain.WalletStats
}

// Report is the aggregate outcome of a backtest.
type Report struct {
	StartCycle string
	EndCycle   string
	CyclesRun  int
	Wallets    []WalletResult
	TotalPnl   float64
}

// Runner replays snapshots through an engine.
type Runner struct {
	opts Options
	log  *zap.Logger
}

// NewRunner validates the options and creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Reader == nil || len(opts.Wallets) == 0 || opts.Resolver == nil {
		return nil, fmt.Errorf("reader, wallets and resolver are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{opts: opts, log: opts.Logger}, nil
}

// Run replays every cycle in range and returns the final report.
// Execution is always simulated; backtests never touch the chain.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cycles, err := r.opts.Reader.Cycles()
	if err != nil {
		return nil, err
	}
	cycles = boundCycles(cycles, r.opts.StartCycle, r.opts.EndCycle)
	if len(cycles) == 0 {
		return nil, fmt.Errorf("no snapshots in range [%s, %s]", r.opts.StartCycle, r.opts.EndCycle)
	}

	wallets := make(map[string]*domain.WalletState, len(r.opts.Wallets))
	for id, w := range r.opts.Wallets {
		wc := w.Clone()
		wc.Params.Simulation = true
		wallets[id] = wc
	}
	led := ledger.New(wallets)

	source := &replaySource{reader: r.opts.Reader, cycles: cycles}
	eng, err := trade.New(trade.Options{
		Reader:     source,
		Ledger:     led,
		Resolver:   r.opts.Resolver,
		Executor:   trade.SimExecutor{},
		Blocklist:  r.opts.Blocklist,
		RoundStore: r.opts.RoundStore,
		Archive:    r.opts.Archive,
		Injector:   r.opts.Injector,
		Logger:     r.log,
	})
	if err != nil {
		return nil, err
	}

	for i := range cycles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source.advance(i)
		if _, err := eng.RunCycle(ctx); err != nil {
			return nil, fmt.Errorf("cycle %s: %w", cycles[i], err)
		}
	}

	return r.report(led, cycles), nil
}

func (r *Runner) report(led *ledger.Ledger, cycles []string) *Report {
	report := &Report{
		StartCycle: cycles[0],
		EndCycle:   cycles[len(cycles)-1],
		CyclesRun:  len(cycles),
	}
	final := led.Snapshot()
	ids := make([]string, 0, len(final))
	for id := range final {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		w := final[id]
		report.Wallets = append(report.Wallets, WalletResult{
			WalletID:            id,
			AvailableBalanceUsd: w.AvailableBalanceUsd,
			OpenHoldings:        len(w.Holdings),
			Stats:               w.Stats,
		})
		report.TotalPnl += w.Stats.TotalProfitUsd
	}
	return report
}

func boundCycles(cycles []string, start, end string) []string {
	out := cycles[:0:0]
	for _, c := range cycles {
		if start != "" && c < start {
			continue
		}
		if end != "" && c > end {
			continue
		}
		out = append(out, c)
	}
	return out
}
