package decision

import (
	"sort"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/snapshot"
)

// SymbolResolver maps a coin id to its on-chain token address.
type SymbolResolver interface {
	Resolve(coinID string) (string, bool)
}

// ComparisonSource returns the buy-side reference price for a coin, or
// a non-positive value when none is available. TimeFrame mode reads the
// snapshot a configured number of cycles back; Event mode reads the
// wallet's persisted token state.
type ComparisonSource func(coinID string) float64

// Builder assembles evaluator inputs for one wallet and cycle.
type Builder struct {
	resolver SymbolResolver
}

// NewBuilder creates a new input builder.
func NewBuilder(resolver SymbolResolver) *Builder {
	return &Builder{resolver: resolver}
}

// Build creates the Input for one coin.
func (b *Builder) Build(coinID string, quote domain.PriceQuote, comparison ComparisonSource, wallet *domain.WalletState) Input {
	symbol, _ := b.resolver.Resolve(coinID)
	return Input{
		CoinID:              coinID,
		Symbol:              symbol,
		Quote:               quote,
		ComparisonPrice:     comparison(coinID),
		Holding:             wallet.Holdings[coinID],
		AvailableBalanceUsd: wallet.AvailableBalanceUsd,
		Params:              wallet.Params,
	}
}

// BuildAll creates inputs for every coin in the snapshot plus every held
// coin that dropped out of it, sorted by coin id so task spawn order is
// deterministic.
func (b *Builder) BuildAll(current *snapshot.Snapshot, comparison ComparisonSource, wallet *domain.WalletState) []Input {
	coinIDs := make([]string, 0, len(current.Quotes))
	for coinID := range current.Quotes {
		coinIDs = append(coinIDs, coinID)
	}
	// Held coins must still be evaluated for sell/stop-loss even when
	// the feed stops covering them.
	for coinID := range wallet.Holdings {
		if _, ok := current.Quotes[coinID]; !ok {
			coinIDs = append(coinIDs, coinID)
		}
	}
	sort.Strings(coinIDs)

	inputs := make([]Input, 0, len(coinIDs))
	for _, coinID := range coinIDs {
		quote := current.Quotes[coinID]
		inputs = append(inputs, b.Build(coinID, quote, comparison, wallet))
	}
	return inputs
}
