package trade

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bytedance/sonic"

	"bsc-trade-engine/internal/blocklist"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/ledger"
	"bsc-trade-engine/internal/snapshot"
	"bsc-trade-engine/internal/storage/memory"
	"bsc-trade-engine/internal/tradelog"
	"bsc-trade-engine/internal/wallets"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(coinID string) (string, bool) {
	addr, ok := m[coinID]
	return addr, ok
}

type stubExecutor struct {
	mu      sync.Mutex
	outcome domain.TradeOutcome
	orders  []Order
}

func (s *stubExecutor) Execute(_ context.Context, o Order) domain.TradeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
	return s.outcome
}

func (s *stubExecutor) executed() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Order(nil), s.orders...)
}

func writeSnapshot(t *testing.T, dir, cycle string, quotes map[string][]float64) {
	t.Helper()
	data, err := sonic.Marshal(map[string]map[string][]float64{"0": quotes})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, cycle), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func testWallet(mode domain.TradeMode) *domain.WalletState {
	return &domain.WalletState{
		WalletID:            "w1",
		Address:             "0x0000000000000000000000000000000000000001",
		Enabled:             true,
		AvailableBalanceUsd: 100,
		Holdings:            make(map[string]*domain.Holding),
		Params: domain.WalletParams{
			BuyTarget:       0.60,
			SellTarget:      1.20,
			StopLossTarget:  0.85,
			MinVolumeUsd:    1000,
			MinBuyUsd:       10,
			MaxBuyUsd:       100,
			TradeMode:       mode,
			TimeframeWindow: 1,
			Simulation:      true,
		},
	}
}

type testEnv struct {
	dir      string
	ledger   *ledger.Ledger
	executor *stubExecutor
	rounds   *memory.TradeRoundStore
	block    *blocklist.Blocklist
	engine   *Engine
}

func newTestEnv(t *testing.T, w *domain.WalletState, exec *stubExecutor) *testEnv {
	t.Helper()
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(snapDir, 0o750); err != nil {
		t.Fatal(err)
	}

	led := ledger.New(map[string]*domain.WalletState{w.WalletID: w})
	rounds := memory.NewTradeRoundStore()
	block, err := blocklist.Load(filepath.Join(dir, "blocklist.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	tl, err := tradelog.NewWriter(filepath.Join(dir, "csv"))
	if err != nil {
		t.Fatal(err)
	}

	eng, err := New(Options{
		Reader:      snapshot.NewReader(snapDir),
		Ledger:      led,
		Resolver:    mapResolver{"coinA": "0x00000000000000000000000000000000000000aa"},
		Executor:    exec,
		Blocklist:   block,
		RoundStore:  rounds,
		TradeLog:    tl,
		TokenStates: wallets.NewTokenStateStore(dir),
		Progress:    memory.NewCycleProgressStore(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		dir:      dir,
		ledger:   led,
		executor: exec,
		rounds:   rounds,
		block:    block,
		engine:   eng,
	}
}

func (env *testEnv) snapDir() string { return filepath.Join(env.dir, "data") }

func TestRunCycleBuysOnDip(t *testing.T) {
	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:           domain.OutcomeSuccess,
		ExecutedPriceUsd: 0.5,
	}}
	env := newTestEnv(t, testWallet(domain.TradeModeTimeFrame), exec)

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {0.5, 5000, 0.5}})

	report, err := env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(report.Summaries) != 1 || report.Summaries[0].Buys != 1 {
		t.Fatalf("expected 1 buy, got %+v", report.Summaries)
	}

	w, err := env.ledger.Wallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	h, ok := w.Holdings["coinA"]
	if !ok {
		t.Fatal("holding not created")
	}
	// Volume 5000 / maxBuy 100 = 50 USD spend at 0.5 per token.
	if h.UsdCost != 50 || h.TokenAmount != 100 {
		t.Fatalf("holding %+v", h)
	}
	if w.AvailableBalanceUsd != 50 || w.UsedBalanceUsd != 50 {
		t.Fatalf("balances %.2f/%.2f", w.AvailableBalanceUsd, w.UsedBalanceUsd)
	}

	rounds, err := env.rounds.GetByWallet(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 1 || rounds[0].Action != domain.ActionBuy || !rounds[0].Simulated {
		t.Fatalf("rounds %+v", rounds)
	}

	if _, err := os.Stat(filepath.Join(env.dir, "csv", "trade_log_latest.csv")); err != nil {
		t.Fatalf("trade log not written: %v", err)
	}
}

func TestRunCycleSellsAtTarget(t *testing.T) {
	w := testWallet(domain.TradeModeTimeFrame)
	w.AvailableBalanceUsd = 50
	w.UsedBalanceUsd = 50
	w.Holdings["coinA"] = &domain.Holding{
		CoinID:        "coinA",
		EntryPriceUsd: 1.0,
		EntryCycle:    "000001",
		TokenAmount:   50,
		UsdCost:       50,
	}

	// Proceeds reported by the executor, as the builder would.
	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:           domain.OutcomeSuccess,
		ExecutedPriceUsd: 65,
	}}
	env := newTestEnv(t, w, exec)

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {1.3, 5000, 1.3}})

	report, err := env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summaries[0].Sells != 1 {
		t.Fatalf("expected 1 sell, got %+v", report.Summaries[0])
	}
	if got := report.Summaries[0].PnlUsd; got != 15 {
		t.Fatalf("pnl %.2f, want 15", got)
	}

	got, err := env.ledger.Wallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	if _, held := got.Holdings["coinA"]; held {
		t.Fatal("holding not destroyed")
	}
	if got.AvailableBalanceUsd != 115 || got.UsedBalanceUsd != 0 {
		t.Fatalf("balances %.2f/%.2f", got.AvailableBalanceUsd, got.UsedBalanceUsd)
	}
	if got.Stats.Wins != 1 || got.Stats.Trades != 1 {
		t.Fatalf("stats %+v", got.Stats)
	}

	rounds, err := env.rounds.GetByWallet(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 1 || rounds[0].PnlUsd != 15 || rounds[0].ExitCycle != "000002" {
		t.Fatalf("rounds %+v", rounds[0])
	}
}

func TestFailedBuyReleasesReservationAndBlocklists(t *testing.T) {
	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:       domain.OutcomeFailed,
		ErrorKind:    domain.ErrorKindSwapReverted,
		RevertReason: "execution reverted: TransferHelper: TRANSFER_FROM_FAILED",
	}}
	env := newTestEnv(t, testWallet(domain.TradeModeTimeFrame), exec)

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {0.5, 5000, 0.5}})

	report, err := env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summaries[0].Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", report.Summaries[0])
	}

	w, err := env.ledger.Wallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	if w.AvailableBalanceUsd != 100 || w.UsedBalanceUsd != 0 {
		t.Fatalf("reservation not released: %.2f/%.2f", w.AvailableBalanceUsd, w.UsedBalanceUsd)
	}
	if len(w.Holdings) != 0 {
		t.Fatal("no holding may be created on failure")
	}
	if !env.block.Blocked("coinA") {
		t.Fatal("fatal revert must blocklist the coin")
	}
}

func TestTimeoutLeavesHoldingUntouched(t *testing.T) {
	w := testWallet(domain.TradeModeTimeFrame)
	w.Holdings["coinA"] = &domain.Holding{
		CoinID:        "coinA",
		EntryPriceUsd: 1.0,
		EntryCycle:    "000001",
		TokenAmount:   50,
		UsdCost:       50,
	}

	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:    domain.OutcomeFailed,
		ErrorKind: domain.ErrorKindTimeout,
		TxHash:    "0xdead",
	}}
	env := newTestEnv(t, w, exec)

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {1.3, 5000, 1.3}})

	if _, err := env.engine.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := env.ledger.Wallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	if _, held := got.Holdings["coinA"]; !held {
		t.Fatal("timeout is indeterminate; the holding must survive")
	}
	if env.block.Blocked("coinA") {
		t.Fatal("timeouts must not blocklist")
	}
}

func TestBlockedCoinIsNotBought(t *testing.T) {
	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:           domain.OutcomeSuccess,
		ExecutedPriceUsd: 0.5,
	}}
	env := newTestEnv(t, testWallet(domain.TradeModeTimeFrame), exec)
	env.block.Block("coinA", "TRANSFER_TAX")

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {0.5, 5000, 0.5}})

	report, err := env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summaries[0].Buys != 0 || report.Summaries[0].Unprocessed != 1 {
		t.Fatalf("blocked coin traded: %+v", report.Summaries[0])
	}
	if len(exec.executed()) != 0 {
		t.Fatal("executor must not run for blocked coins")
	}
}

func TestEventModeSeedsNewCoins(t *testing.T) {
	exec := &stubExecutor{outcome: domain.TradeOutcome{
		Status:           domain.OutcomeSuccess,
		ExecutedPriceUsd: 0.5,
	}}
	w := testWallet(domain.TradeModeEvent)
	env := newTestEnv(t, w, exec)

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {0.5, 5000, 0.5}})

	report, err := env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// First sighting is seeded, not traded.
	if report.Summaries[0].Buys != 0 || report.Summaries[0].Unprocessed != 1 {
		t.Fatalf("first sighting must not trade: %+v", report.Summaries[0])
	}

	state, err := wallets.NewTokenStateStore(env.dir).Load("w1")
	if err != nil {
		t.Fatal(err)
	}
	if state["coinA"] != 0.5 {
		t.Fatalf("seeded state %v", state)
	}

	// Next cycle dips below the target against the seeded price.
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {0.25, 5000, 0.25}})
	report, err = env.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summaries[0].Buys != 1 {
		t.Fatalf("seeded coin must trade on later dip: %+v", report.Summaries[0])
	}
}

func TestSimulationRoundTripPnlZero(t *testing.T) {
	w := testWallet(domain.TradeModeTimeFrame)
	env := newTestEnv(t, w, &stubExecutor{})
	// Use the real simulation executor instead of the stub.
	eng, err := New(Options{
		Reader:   snapshot.NewReader(env.snapDir()),
		Ledger:   env.ledger,
		Resolver: mapResolver{"coinA": "0x00000000000000000000000000000000000000aa"},
		Executor: SimExecutor{},
	})
	if err != nil {
		t.Fatal(err)
	}

	writeSnapshot(t, env.snapDir(), "000001", map[string][]float64{"coinA": {1.0, 5000, 1.0}})
	writeSnapshot(t, env.snapDir(), "000002", map[string][]float64{"coinA": {0.5, 5000, 0.5}})
	if _, err := eng.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Price returns exactly to the entry level times the sell target.
	writeSnapshot(t, env.snapDir(), "000003", map[string][]float64{"coinA": {0.6, 5000, 0.6}})
	report, err := eng.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Summaries[0].Sells != 1 {
		t.Fatalf("expected sell: %+v", report.Summaries[0])
	}

	got, err := env.ledger.Wallet("w1")
	if err != nil {
		t.Fatal(err)
	}
	// Bought 50 USD at 0.5, sold at 0.6 with zero slippage and fee:
	// proceeds 60, PnL +10, balance back to 110.
	if got.AvailableBalanceUsd < 110-1e-9 || got.AvailableBalanceUsd > 110+1e-9 {
		t.Fatalf("balance %.6f, want 110", got.AvailableBalanceUsd)
	}
	if got.UsedBalanceUsd != 0 {
		t.Fatalf("used balance %.6f, want 0", got.UsedBalanceUsd)
	}
}

func TestNewRequiresCoreCollaborators(t *testing.T) {
	_, err := New(Options{})
	if err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}
