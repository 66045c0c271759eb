package trade

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/pathplan"
	"bsc-trade-engine/internal/quoter"
	"bsc-trade-engine/internal/txbuilder"
)

// ChainExecutor executes orders against real routers: plan the path from
// wallet reserves, probe routers for the best route, then build and
// submit the swap.
type ChainExecutor struct {
	backend chain.Backend
	quoter  *quoter.Quoter
	builder *txbuilder.Builder
	routers []quoter.Router
	log     *zap.Logger

	mu sync.RWMutex
	// nativePriceUsd is refreshed from the feed each cycle; reserve
	// normalization and native sizing depend on it.
	nativePriceUsd float64
}

// NewChainExecutor creates an executor over the given routers. Router
// order is the probe tie-break order.
func NewChainExecutor(backend chain.Backend, q *quoter.Quoter, b *txbuilder.Builder, routers []quoter.Router, log *zap.Logger) *ChainExecutor {
	return &ChainExecutor{
		backend: backend,
		quoter:  q,
		builder: b,
		routers: routers,
		log:     log,
	}
}

// SetNativePrice records the native coin's USD price for the cycle and
// forwards it to the builder, which sizes priority payments with it.
func (e *ChainExecutor) SetNativePrice(usd float64) {
	e.mu.Lock()
	e.nativePriceUsd = usd
	e.mu.Unlock()
	e.builder.SetNativePrice(usd)
}

func (e *ChainExecutor) nativePrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nativePriceUsd
}

// Execute runs one order end to end. The live router quote doubles as
// the price re-check: a quote drifting beyond the wallet's tolerance
// from the decision price aborts the order before anything is signed.
func (e *ChainExecutor) Execute(ctx context.Context, o Order) domain.TradeOutcome {
	signer, err := txbuilder.NewSignerFromHex(o.Wallet.PrivateKey)
	if err != nil {
		return failedOutcome(fmt.Errorf("wallet %s key: %w", o.Wallet.WalletID, err))
	}

	reserves, err := e.usdReserves(ctx, signer.Address)
	if err != nil {
		return failedOutcome(err)
	}

	switch o.Action {
	case domain.ActionBuy:
		return e.executeBuy(ctx, o, signer, reserves)
	case domain.ActionSell, domain.ActionStopLoss:
		return e.executeSell(ctx, o, signer, reserves)
	default:
		return failedOutcome(fmt.Errorf("order action %q is not executable", o.Action))
	}
}

// usdReserves reads the wallet's native and stable balances and
// normalizes both to USD-valued wei, so the path planner compares
// reserves and notional in one unit.
func (e *ChainExecutor) usdReserves(ctx context.Context, addr common.Address) (pathplan.Reserves, error) {
	nativeWei, err := e.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return pathplan.Reserves{}, fmt.Errorf("native balance: %w", err)
	}
	stableWei, err := chain.TokenBalance(ctx, e.backend, quoter.USDT, addr)
	if err != nil {
		return pathplan.Reserves{}, fmt.Errorf("stable balance: %w", err)
	}
	return pathplan.Reserves{
		NativeWei: chain.ScaleWei(nativeWei, e.nativePrice()),
		StableWei: stableWei,
	}, nil
}

func (e *ChainExecutor) executeBuy(ctx context.Context, o Order, signer *txbuilder.Signer, reserves pathplan.Reserves) domain.TradeOutcome {
	token := common.HexToAddress(o.Token)

	candidates, err := pathplan.Plan(token, domain.DirectionBuy, reserves, chain.FloatToWei(o.AmountUsd))
	if err != nil {
		return failedOutcome(err)
	}

	inputIsNative := candidates[0].InputIsNative
	amountIn := chain.FloatToWei(o.AmountUsd)
	if inputIsNative {
		nativePx := e.nativePrice()
		if nativePx <= 0 {
			return failedOutcome(fmt.Errorf("native price not set"))
		}
		amountIn = chain.FloatToWei(o.AmountUsd / nativePx)
	}

	quote, err := e.quoter.Best(ctx, domain.DirectionBuy, pathplan.Probes(candidates, e.routers), amountIn, o.AmountUsd, 0)
	if err != nil {
		return failedOutcome(err)
	}
	if out, ok := e.checkTolerance(o, quote.PriceUsd); !ok {
		return out
	}

	plan, err := e.builder.Build(ctx, domain.DirectionBuy, token, amountIn, inputIsNative,
		e.nativeMethodBNB(quote.RouterName), o.AmountUsd, quote, o.Wallet.Params.SlippagePct)
	if err != nil {
		return failedOutcome(err)
	}
	return e.builder.Execute(ctx, plan, signer)
}

func (e *ChainExecutor) executeSell(ctx context.Context, o Order, signer *txbuilder.Signer, reserves pathplan.Reserves) domain.TradeOutcome {
	token := common.HexToAddress(o.Token)
	amountIn := chain.FloatToWei(o.TokenAmount)

	// The position's USD value drives reserve coverage, mirroring the
	// buy side.
	candidates, err := pathplan.Plan(token, domain.DirectionSell, reserves, chain.FloatToWei(o.TokenAmount*o.DecisionPriceUsd))
	if err != nil {
		return failedOutcome(err)
	}

	quote, err := e.quoter.Best(ctx, domain.DirectionSell, pathplan.Probes(candidates, e.routers), amountIn, 0, 1.0)
	if err != nil {
		return failedOutcome(err)
	}
	if out, ok := e.checkTolerance(o, quote.PriceUsd/o.TokenAmount); !ok {
		return out
	}

	plan, err := e.builder.Build(ctx, domain.DirectionSell, token, amountIn, false, false,
		o.TokenAmount*o.DecisionPriceUsd, quote, o.Wallet.Params.SlippagePct)
	if err != nil {
		return failedOutcome(err)
	}
	return e.builder.Execute(ctx, plan, signer)
}

// checkTolerance gates execution on the live price staying within the
// wallet's tolerance of the decision price.
func (e *ChainExecutor) checkTolerance(o Order, livePriceUsd float64) (domain.TradeOutcome, bool) {
	tol := o.Wallet.Params.PriceTolerancePct
	if tol <= 0 || o.DecisionPriceUsd <= 0 {
		return domain.TradeOutcome{}, true
	}
	driftPct := math.Abs(livePriceUsd/o.DecisionPriceUsd-1) * 100
	if driftPct <= tol {
		return domain.TradeOutcome{}, true
	}
	e.log.Warn("live price outside tolerance, dropping order",
		zap.String("coin", o.CoinID),
		zap.Float64("decision_price", o.DecisionPriceUsd),
		zap.Float64("live_price", livePriceUsd),
		zap.Float64("drift_pct", driftPct))
	return domain.TradeOutcome{
		Status:    domain.OutcomeFailed,
		ErrorKind: domain.ErrorKindPriceTolerance,
		RevertReason: fmt.Sprintf("live price drifted %.2f%% from decision price (tolerance %.2f%%)",
			driftPct, tol),
	}, false
}

func (e *ChainExecutor) nativeMethodBNB(routerName string) bool {
	for _, r := range e.routers {
		if r.Name == routerName {
			return r.NativeBNBName
		}
	}
	return false
}

func failedOutcome(err error) domain.TradeOutcome {
	return domain.TradeOutcome{
		Status:       domain.OutcomeFailed,
		ErrorKind:    txbuilder.Classify(err),
		RevertReason: txbuilder.RevertReason(err),
	}
}
