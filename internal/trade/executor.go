// Package trade orchestrates one trading cycle: it evaluates every
// (wallet, coin) pair against the latest snapshot, executes the
// resulting orders, and settles the ledger.
package trade

import (
	"context"

	"bsc-trade-engine/internal/domain"
)

// Order is one decided trade handed to an executor.
type Order struct {
	Wallet *domain.WalletState
	CoinID string
	// Token is the resolved token address in hex.
	Token  string
	Action domain.Action

	// AmountUsd is the spend for buys.
	AmountUsd float64
	// TokenAmount is the position size for sells and stop-losses.
	TokenAmount float64
	// DecisionPriceUsd is the price the decision was made at; executors
	// that re-check the live price gate against it.
	DecisionPriceUsd float64
}

// Executor performs the on-chain (or simulated) leg of a decision.
// Failures are encoded in the outcome, never panics or partial state.
//
// Outcome price semantics follow the transaction builder: for buys
// ExecutedPriceUsd is USD per token, for closes it is the total USD
// proceeds of the swap.
type Executor interface {
	Execute(ctx context.Context, order Order) domain.TradeOutcome
}

// ModeExecutor routes each order by its wallet's simulation flag, so
// simulated and live wallets can share one engine.
type ModeExecutor struct {
	Sim   Executor
	Chain Executor
}

func (m ModeExecutor) Execute(ctx context.Context, o Order) domain.TradeOutcome {
	if o.Wallet.Params.Simulation {
		return m.Sim.Execute(ctx, o)
	}
	return m.Chain.Execute(ctx, o)
}

// SimExecutor fills every order at the decision-time price without
// touching the chain. Sells are haircut by the wallet's slippage and
// flat fee so simulated PnL stays conservative.
type SimExecutor struct{}

func (SimExecutor) Execute(_ context.Context, o Order) domain.TradeOutcome {
	params := o.Wallet.Params
	switch o.Action {
	case domain.ActionBuy:
		return domain.TradeOutcome{
			Status:           domain.OutcomeSuccess,
			ExecutedPriceUsd: o.DecisionPriceUsd,
		}
	default:
		proceeds := o.TokenAmount*o.DecisionPriceUsd*(1-params.SlippagePct/100) - params.FeeUsd
		if proceeds < 0 {
			proceeds = 0
		}
		return domain.TradeOutcome{
			Status:           domain.OutcomeSuccess,
			ExecutedPriceUsd: proceeds,
		}
	}
}
