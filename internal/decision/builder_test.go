package decision

import (
	"sort"
	"testing"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/snapshot"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(coinID string) (string, bool) {
	addr, ok := m[coinID]
	return addr, ok
}

func TestBuildResolvesSymbolAndComparison(t *testing.T) {
	b := NewBuilder(mapResolver{"coin-1": "0x7012"})
	wallet := &domain.WalletState{
		AvailableBalanceUsd: 100,
		Holdings:            map[string]*domain.Holding{},
		Params:              testParams(),
	}
	comparison := func(coinID string) float64 { return 2.0 }

	input := b.Build("coin-1", spotQuote(1.0, 5000), comparison, wallet)
	if input.Symbol != "0x7012" {
		t.Fatalf("symbol %q", input.Symbol)
	}
	if input.ComparisonPrice != 2.0 {
		t.Fatalf("comparison %.2f", input.ComparisonPrice)
	}
	if input.Held() {
		t.Fatal("coin must not be held")
	}

	input = b.Build("coin-2", spotQuote(1.0, 5000), comparison, wallet)
	if input.Symbol != "" {
		t.Fatal("unknown coin must have no symbol")
	}
}

func TestBuildAllIncludesDroppedHoldings(t *testing.T) {
	b := NewBuilder(mapResolver{"a": "0xa", "b": "0xb", "c": "0xc"})
	wallet := &domain.WalletState{
		AvailableBalanceUsd: 100,
		Holdings: map[string]*domain.Holding{
			"c": {CoinID: "c", EntryPriceUsd: 1.0, TokenAmount: 10, UsdCost: 10},
		},
		Params: testParams(),
	}
	snap := &snapshot.Snapshot{
		Cycle: "000123",
		Quotes: map[string]domain.PriceQuote{
			"b": spotQuote(1.0, 5000),
			"a": spotQuote(2.0, 5000),
		},
	}
	comparison := func(string) float64 { return 1.0 }

	inputs := b.BuildAll(snap, comparison, wallet)
	if len(inputs) != 3 {
		t.Fatalf("got %d inputs, want 3 (snapshot coins plus dropped holding)", len(inputs))
	}

	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.CoinID
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("inputs not sorted: %v", ids)
	}

	// The dropped holding carries its Holding and a zero quote.
	for _, in := range inputs {
		if in.CoinID == "c" {
			if !in.Held() {
				t.Fatal("holding must be attached")
			}
			if in.Quote.SpotPriceUsd != 0 {
				t.Fatal("coin absent from snapshot must have a zero quote")
			}
		}
	}
}

func TestCycleSummaryCounts(t *testing.T) {
	s := &CycleSummary{WalletID: "w1", Cycle: "000123"}

	s.Count(&Result{Action: domain.ActionBuy}, &domain.TradeOutcome{Status: domain.OutcomeSuccess})
	s.Count(&Result{Action: domain.ActionSell}, &domain.TradeOutcome{Status: domain.OutcomeSuccess})
	s.Count(&Result{Action: domain.ActionBuy}, &domain.TradeOutcome{Status: domain.OutcomeFailed})
	s.Count(&Result{Unprocessed: true, Reason: ReasonLowVolume}, nil)
	s.Count(&Result{Action: domain.ActionHold}, nil)
	s.Count(&Result{Action: domain.ActionNone}, nil)

	if s.Buys != 1 || s.Sells != 1 || s.Failed != 1 || s.Unprocessed != 1 || s.Holds != 1 || s.NoActions != 1 {
		t.Fatalf("bad counts: %+v", s)
	}

	md := RenderMarkdown(s)
	if md == "" {
		t.Fatal("empty render")
	}
}
