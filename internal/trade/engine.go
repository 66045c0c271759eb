package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bsc-trade-engine/internal/blocklist"
	"bsc-trade-engine/internal/decision"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/faultinject"
	"bsc-trade-engine/internal/idhash"
	"bsc-trade-engine/internal/ledger"
	"bsc-trade-engine/internal/notify"
	"bsc-trade-engine/internal/snapshot"
	"bsc-trade-engine/internal/storage"
	"bsc-trade-engine/internal/tradelog"
	"bsc-trade-engine/internal/wallets"
)

const defaultCoinLimit = 50

// SnapshotSource supplies the current snapshot and historical lookback.
// *snapshot.Reader serves live runs; the backtest package substitutes a
// replay source with a moving cursor.
type SnapshotSource interface {
	Latest() (*snapshot.Snapshot, error)
	AtOffset(n int) (*snapshot.Snapshot, error)
}

// Options wires the engine's collaborators. Reader, Ledger, Resolver
// and Executor are required; the rest default to no-ops.
type Options struct {
	Reader   SnapshotSource
	Ledger   *ledger.Ledger
	Resolver decision.SymbolResolver
	Executor Executor

	Blocklist   *blocklist.Blocklist
	Notifier    notify.Notifier
	TradeLog    *tradelog.Writer
	RoundStore  storage.TradeRoundStore
	Archive     storage.SnapshotArchiveStore
	Progress    storage.CycleProgressStore
	TokenStates *wallets.TokenStateStore
	WalletStore *wallets.Store
	Injector    faultinject.Injector

	// CoinLimit bounds concurrent per-coin tasks within one wallet.
	CoinLimit int
	Logger    *zap.Logger
}

// Engine runs trading cycles.
type Engine struct {
	opts Options
	eval *decision.Evaluator
	bldr *decision.Builder
	log  *zap.Logger
}

// New validates the options and creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Reader == nil || opts.Ledger == nil || opts.Resolver == nil || opts.Executor == nil {
		return nil, errors.New("reader, ledger, resolver and executor are required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Injector == nil {
		opts.Injector = faultinject.Nop{}
	}
	if opts.CoinLimit <= 0 {
		opts.CoinLimit = defaultCoinLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		opts: opts,
		eval: decision.NewEvaluator(),
		bldr: decision.NewBuilder(opts.Resolver),
		log:  opts.Logger,
	}, nil
}

// CycleReport aggregates one cycle across all wallets.
type CycleReport struct {
	Cycle     string
	Summaries []*decision.CycleSummary
}

// RunCycle processes the latest snapshot for every enabled wallet.
// Wallets run fully in parallel; a wallet failure is reported but does
// not stop the others.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	current, err := e.opts.Reader.Latest()
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	e.log.Info("cycle start",
		zap.String("cycle", current.Cycle),
		zap.Int("coins", len(current.Quotes)))

	walletIDs := e.opts.Ledger.WalletIDs()
	report := &CycleReport{Cycle: current.Cycle}
	var allRows []tradelog.Row
	var mu sync.Mutex

	var wg sync.WaitGroup
	for _, walletID := range walletIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, rows, err := e.runWallet(ctx, walletID, current)
			if err != nil {
				e.log.Error("wallet cycle failed", zap.String("wallet", walletID), zap.Error(err))
				return
			}
			if summary == nil {
				return
			}
			mu.Lock()
			report.Summaries = append(report.Summaries, summary)
			allRows = append(allRows, rows...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(report.Summaries, func(i, j int) bool {
		return report.Summaries[i].WalletID < report.Summaries[j].WalletID
	})
	sort.Slice(allRows, func(i, j int) bool {
		if allRows[i].WalletID != allRows[j].WalletID {
			return allRows[i].WalletID < allRows[j].WalletID
		}
		return allRows[i].Symbol < allRows[j].Symbol
	})

	e.finishCycle(ctx, current, allRows)

	for _, s := range report.Summaries {
		e.log.Info("wallet cycle done",
			zap.String("wallet", s.WalletID),
			zap.Int("buys", s.Buys),
			zap.Int("sells", s.Sells),
			zap.Int("stop_losses", s.StopLosses),
			zap.Int("failed", s.Failed),
			zap.Int("unprocessed", s.Unprocessed),
			zap.Float64("pnl_usd", s.PnlUsd))
	}
	return report, nil
}

// finishCycle persists everything the cycle produced. Persistence
// failures are logged, never propagated: the trades already happened.
func (e *Engine) finishCycle(ctx context.Context, current *snapshot.Snapshot, rows []tradelog.Row) {
	if e.opts.TradeLog != nil {
		if _, err := e.opts.TradeLog.Write(current.Cycle, rows); err != nil {
			e.log.Warn("write trade log", zap.Error(err))
		}
	}
	if e.opts.WalletStore != nil {
		if err := e.opts.WalletStore.Save(e.opts.Ledger.Snapshot()); err != nil {
			e.log.Warn("save wallet settings", zap.Error(err))
		}
	}
	if e.opts.Blocklist != nil {
		if err := e.opts.Blocklist.Save(); err != nil {
			e.log.Warn("save blocklist", zap.Error(err))
		}
	}
	if e.opts.Archive != nil {
		e.archiveSnapshot(ctx, current)
	}
	if e.opts.Progress != nil {
		err := e.opts.Progress.SetLastCycle(ctx, &storage.CycleProgress{
			Cycle:       current.Cycle,
			CompletedAt: time.Now().UnixMilli(),
		})
		if err != nil {
			e.log.Warn("record cycle progress", zap.Error(err))
		}
	}
}

func (e *Engine) archiveSnapshot(ctx context.Context, current *snapshot.Snapshot) {
	points := make([]*domain.SnapshotPoint, 0, len(current.Quotes))
	for _, q := range current.Quotes {
		points = append(points, &domain.SnapshotPoint{
			CoinID:       q.CoinID,
			Cycle:        current.Cycle,
			TimestampMs:  time.Now().UnixMilli(),
			SpotPriceUsd: q.SpotPriceUsd,
			VolumeUsd:    q.VolumeUsd,
			DexPriceUsd:  q.DexPriceUsd,
			MarketCapUsd: q.MarketCapUsd,
		})
	}
	err := e.opts.Archive.InsertBulk(ctx, points)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.log.Warn("archive snapshot", zap.String("cycle", current.Cycle), zap.Error(err))
	}
}

// runWallet evaluates and executes every coin for one wallet.
func (e *Engine) runWallet(ctx context.Context, walletID string, current *snapshot.Snapshot) (*decision.CycleSummary, []tradelog.Row, error) {
	w, err := e.opts.Ledger.Wallet(walletID)
	if err != nil {
		return nil, nil, err
	}
	if !w.Enabled {
		e.log.Debug("wallet disabled, skipping", zap.String("wallet", walletID))
		return nil, nil, nil
	}

	e.refreshCurrentBalance(walletID, w, current)

	comparison, flush, err := e.comparisonSource(walletID, w, current)
	if err != nil {
		return nil, nil, fmt.Errorf("comparison source: %w", err)
	}

	inputs := e.bldr.BuildAll(current, comparison, w)

	summary := &decision.CycleSummary{WalletID: walletID, Cycle: current.Cycle}
	var rows []tradelog.Row
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.CoinLimit)
	for _, input := range inputs {
		g.Go(func() error {
			row, result, outcome, pnl := e.processCoin(gctx, walletID, current.Cycle, input)
			mu.Lock()
			rows = append(rows, row)
			summary.Count(result, outcome)
			summary.PnlUsd += pnl
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if flush != nil {
		if err := flush(); err != nil {
			e.log.Warn("save token state", zap.String("wallet", walletID), zap.Error(err))
		}
	}
	return summary, rows, nil
}

// refreshCurrentBalance marks holdings to the latest prices, haircut by
// the wallet's slippage, and records the informational total.
func (e *Engine) refreshCurrentBalance(walletID string, w *domain.WalletState, current *snapshot.Snapshot) {
	total := w.AvailableBalanceUsd
	for coinID, h := range w.Holdings {
		price := h.EntryPriceUsd
		if q, ok := current.Quote(coinID); ok && q.RealPrice() > 0 {
			price = q.RealPrice()
		}
		total += h.TokenAmount * price * (1 - w.Params.SlippagePct/100)
	}
	if err := e.opts.Ledger.SetCurrentBalance(walletID, total); err != nil {
		e.log.Warn("refresh current balance", zap.String("wallet", walletID), zap.Error(err))
	}
}

// comparisonSource builds the buy-side reference price lookup for the
// wallet's trade mode. The returned flush persists Event-mode state
// after the cycle; it is nil in TimeFrame mode.
func (e *Engine) comparisonSource(walletID string, w *domain.WalletState, current *snapshot.Snapshot) (decision.ComparisonSource, func() error, error) {
	switch w.Params.TradeMode {
	case domain.TradeModeEvent:
		if e.opts.TokenStates == nil {
			return nil, nil, errors.New("event trade mode requires a token state store")
		}
		state, err := e.opts.TokenStates.Load(walletID)
		if err != nil {
			return nil, nil, err
		}
		// Newly listed coins are seeded at the current price and become
		// tradable next cycle; trading the listing cycle itself would
		// compare a price against itself.
		var mu sync.Mutex
		source := func(coinID string) float64 {
			mu.Lock()
			defer mu.Unlock()
			if price, ok := state[coinID]; ok {
				return price
			}
			if q, ok := current.Quote(coinID); ok && q.RealPrice() > 0 {
				state[coinID] = q.RealPrice()
			}
			return 0
		}
		flush := func() error {
			mu.Lock()
			defer mu.Unlock()
			return e.opts.TokenStates.Save(walletID, state)
		}
		return source, flush, nil

	default: // TimeFrame
		prev, err := e.opts.Reader.AtOffset(w.Params.TimeframeWindow)
		if err != nil {
			// Not enough history yet: every coin skips on no-comparison
			// until the window fills.
			e.log.Info("timeframe window not filled",
				zap.String("wallet", walletID),
				zap.Int("window", w.Params.TimeframeWindow),
				zap.Error(err))
			return func(string) float64 { return 0 }, nil, nil
		}
		return func(coinID string) float64 {
			if q, ok := prev.Quote(coinID); ok {
				return q.RealPrice()
			}
			return 0
		}, nil, nil
	}
}

// processCoin evaluates one coin and executes the resulting action.
// It returns the trade log row, the evaluation, the execution outcome
// (nil when nothing ran), and any realized PnL.
func (e *Engine) processCoin(ctx context.Context, walletID, cycle string, input decision.Input) (tradelog.Row, *decision.Result, *domain.TradeOutcome, float64) {
	if delay := e.opts.Injector.CongestionDelay(); delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
	if e.opts.Injector.DropQuote() {
		res := &decision.Result{Action: domain.ActionNone, Unprocessed: true, Reason: "quote dropped"}
		return e.row(walletID, input, res, nil), res, nil, 0
	}

	blocked := e.opts.Blocklist != nil && e.opts.Blocklist.Blocked(input.CoinID)
	if blocked && !input.Held() {
		res := &decision.Result{Action: domain.ActionNone, Unprocessed: true, Reason: "blocklisted"}
		return e.row(walletID, input, res, nil), res, nil, 0
	}

	res := e.eval.Evaluate(input)
	if res.Unprocessed {
		e.log.Debug("coin unprocessed",
			zap.String("wallet", walletID),
			zap.String("coin", input.CoinID),
			zap.String("reason", res.Reason))
	}

	switch res.Action {
	case domain.ActionBuy:
		if blocked {
			res = &decision.Result{Action: domain.ActionNone, Unprocessed: true, Reason: "blocklisted"}
			return e.row(walletID, input, res, nil), res, nil, 0
		}
		outcome := e.executeBuy(ctx, walletID, cycle, input, res)
		return e.row(walletID, input, res, nil), res, outcome, 0
	case domain.ActionSell, domain.ActionStopLoss:
		outcome, pnl := e.executeClose(ctx, walletID, cycle, input, res)
		var pnlPtr *float64
		if outcome != nil && outcome.Status == domain.OutcomeSuccess {
			pnlPtr = &pnl
		}
		return e.row(walletID, input, res, pnlPtr), res, outcome, pnl
	default:
		return e.row(walletID, input, res, nil), res, nil, 0
	}
}

// executeBuy reserves funds, executes, and either commits the holding
// or releases the reservation.
func (e *Engine) executeBuy(ctx context.Context, walletID, cycle string, input decision.Input, res *decision.Result) *domain.TradeOutcome {
	w := e.walletFor(walletID)
	if w == nil {
		return nil
	}

	if err := e.opts.Ledger.Reserve(walletID, res.BuyAmountUsd); err != nil {
		// Lost the balance race to a concurrent buy.
		res.Unprocessed = true
		res.Reason = decision.ReasonInsufficientBalance
		res.Action = domain.ActionNone
		return nil
	}

	outcome := e.opts.Executor.Execute(ctx, Order{
		Wallet:           w,
		CoinID:           input.CoinID,
		Token:            input.Symbol,
		Action:           domain.ActionBuy,
		AmountUsd:        res.BuyAmountUsd,
		DecisionPriceUsd: res.CurrentPriceUsd,
	})
	if outcome.Status != domain.OutcomeSuccess {
		if err := e.opts.Ledger.Release(walletID, res.BuyAmountUsd); err != nil {
			e.log.Error("release reservation", zap.String("wallet", walletID), zap.Error(err))
		}
		e.handleFailure(walletID, input.CoinID, domain.ActionBuy, &outcome)
		return &outcome
	}

	entryPrice := outcome.ExecutedPriceUsd
	if entryPrice <= 0 {
		// Executed-price derivation can fail even when the swap landed;
		// fall back to the decision price rather than a zero entry.
		entryPrice = res.CurrentPriceUsd
	}
	holding := domain.Holding{
		CoinID:        input.CoinID,
		EntryPriceUsd: entryPrice,
		EntryCycle:    cycle,
		TokenAmount:   res.BuyAmountUsd / entryPrice,
		UsdCost:       res.BuyAmountUsd,
	}
	if err := e.opts.Ledger.CommitBuy(walletID, holding); err != nil {
		e.log.Error("commit buy", zap.String("wallet", walletID), zap.String("coin", input.CoinID), zap.Error(err))
		return &outcome
	}

	e.insertRound(ctx, &domain.TradeRound{
		RoundID:       idhash.ComputeRoundID(walletID, input.CoinID, string(domain.ActionBuy), cycle, ""),
		WalletID:      walletID,
		CoinID:        input.CoinID,
		Symbol:        input.Symbol,
		Action:        domain.ActionBuy,
		EntryCycle:    cycle,
		EntryPriceUsd: entryPrice,
		TokenAmount:   holding.TokenAmount,
		UsdCost:       holding.UsdCost,
		TxHash:        outcome.TxHash,
		Simulated:     w.Params.Simulation,
	})
	e.opts.Notifier.Notify(fmt.Sprintf("BUY %s: %.2f USD at %.8f (wallet %s)",
		input.CoinID, res.BuyAmountUsd, entryPrice, walletID))
	return &outcome
}

// executeClose runs a sell or stop-loss and settles the ledger.
func (e *Engine) executeClose(ctx context.Context, walletID, cycle string, input decision.Input, res *decision.Result) (*domain.TradeOutcome, float64) {
	w := e.walletFor(walletID)
	if w == nil {
		return nil, 0
	}

	outcome := e.opts.Executor.Execute(ctx, Order{
		Wallet:           w,
		CoinID:           input.CoinID,
		Token:            input.Symbol,
		Action:           res.Action,
		TokenAmount:      input.Holding.TokenAmount,
		DecisionPriceUsd: res.CurrentPriceUsd,
	})
	if outcome.Status != domain.OutcomeSuccess {
		e.handleFailure(walletID, input.CoinID, res.Action, &outcome)
		return &outcome, 0
	}

	proceeds := outcome.ExecutedPriceUsd
	pnl, err := e.opts.Ledger.ApplySell(walletID, input.CoinID, proceeds, res.Action)
	if err != nil {
		e.log.Error("apply sell", zap.String("wallet", walletID), zap.String("coin", input.CoinID), zap.Error(err))
		return &outcome, 0
	}

	e.insertRound(ctx, &domain.TradeRound{
		RoundID:       idhash.ComputeRoundID(walletID, input.CoinID, string(res.Action), input.Holding.EntryCycle, cycle),
		WalletID:      walletID,
		CoinID:        input.CoinID,
		Symbol:        input.Symbol,
		Action:        res.Action,
		EntryCycle:    input.Holding.EntryCycle,
		EntryPriceUsd: input.Holding.EntryPriceUsd,
		ExitCycle:     cycle,
		ExitPriceUsd:  res.CurrentPriceUsd,
		TokenAmount:   input.Holding.TokenAmount,
		UsdCost:       input.Holding.UsdCost,
		UsdProceeds:   proceeds,
		PnlUsd:        pnl,
		TxHash:        outcome.TxHash,
		Simulated:     w.Params.Simulation,
	})
	e.opts.Notifier.Notify(fmt.Sprintf("%s %s: %.2f USD, PnL %+.2f, held %s (wallet %s)",
		closeLabel(res.Action), input.CoinID, proceeds, pnl,
		holdDuration(input.Holding.EntryCycle, cycle), walletID))
	return &outcome, pnl
}

// handleFailure logs a failed execution and blocklists the coin when
// the revert reason is recognized as fatal. A timeout leaves state
// untouched: the transaction may still land, and the next cycle reads
// balances fresh.
func (e *Engine) handleFailure(walletID, coinID string, action domain.Action, outcome *domain.TradeOutcome) {
	e.log.Warn("trade failed",
		zap.String("wallet", walletID),
		zap.String("coin", coinID),
		zap.String("action", string(action)),
		zap.String("error_kind", string(outcome.ErrorKind)),
		zap.String("revert_reason", outcome.RevertReason),
		zap.String("tx", outcome.TxHash))

	if outcome.ErrorKind == domain.ErrorKindTimeout {
		return
	}
	if e.opts.Blocklist != nil && e.opts.Blocklist.Fatal(outcome.RevertReason) {
		e.opts.Blocklist.Block(coinID, outcome.RevertReason)
		e.log.Info("coin blocklisted",
			zap.String("coin", coinID),
			zap.String("reason", outcome.RevertReason))
	}
}

func (e *Engine) insertRound(ctx context.Context, round *domain.TradeRound) {
	if e.opts.RoundStore == nil {
		return
	}
	err := e.opts.RoundStore.Insert(ctx, round)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.log.Warn("insert trade round", zap.String("round", round.RoundID), zap.Error(err))
	}
}

func (e *Engine) walletFor(walletID string) *domain.WalletState {
	w, err := e.opts.Ledger.Wallet(walletID)
	if err != nil {
		e.log.Error("load wallet", zap.String("wallet", walletID), zap.Error(err))
		return nil
	}
	return w
}

func (e *Engine) row(walletID string, input decision.Input, res *decision.Result, pnl *float64) tradelog.Row {
	symbol := input.Symbol
	if symbol == "" {
		symbol = input.CoinID
	}
	return tradelog.Row{
		Time:               time.Now(),
		WalletID:           walletID,
		Symbol:             symbol,
		VolumeUsd:          input.Quote.VolumeUsd,
		ComparisonPriceUsd: res.ComparisonPriceUsd,
		CurrentPriceUsd:    input.Quote.SpotPriceUsd,
		RealPriceUsd:       res.CurrentPriceUsd,
		PriceRatio:         res.PriceRatio,
		Action:             res.Action,
		PnlUsd:             pnl,
	}
}

func closeLabel(a domain.Action) string {
	if a == domain.ActionStopLoss {
		return "STOP-LOSS"
	}
	return "SELL"
}

// holdDuration formats the time between entry and exit cycles when the
// cycle names are the original microsecond timestamps; otherwise the
// cycle span is unknown.
func holdDuration(entryCycle, exitCycle string) string {
	entry, err1 := strconv.ParseInt(entryCycle, 10, 64)
	exit, err2 := strconv.ParseInt(exitCycle, 10, 64)
	if err1 != nil || err2 != nil || exit < entry {
		return "n/a"
	}
	return (time.Duration(exit-entry) * time.Microsecond).Round(time.Second).String()
}
