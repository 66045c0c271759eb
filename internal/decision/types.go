package decision

import "bsc-trade-engine/internal/domain"

// Input contains everything needed to evaluate one coin for one wallet
// in one cycle. It is assembled by Builder and consumed by Evaluator;
// evaluation itself never touches the network.
type Input struct {
	CoinID string
	// Symbol is the resolved token address; empty when unresolvable.
	Symbol string
	Quote  domain.PriceQuote

	// ComparisonPrice is the buy-side reference price. Zero or negative
	// means no comparison is available this cycle.
	ComparisonPrice float64

	// Holding is nil when the wallet does not hold the coin.
	Holding *domain.Holding

	AvailableBalanceUsd float64
	Params              domain.WalletParams
}

// Held reports whether the wallet currently holds the coin.
func (in Input) Held() bool { return in.Holding != nil }

// Skip reasons for coins marked unprocessed.
const (
	ReasonLowVolume           = "volume below minimum"
	ReasonUnresolvableSymbol  = "symbol not resolvable"
	ReasonNoPrice             = "no usable price"
	ReasonSanityFailed        = "spot/dex price sanity check failed"
	ReasonNoComparison        = "no comparison price available"
	ReasonInsufficientBalance = "available balance below minimum buy"
)

// Result is the outcome of evaluating one Input.
type Result struct {
	Action domain.Action

	// Unprocessed marks a coin that could not be evaluated this cycle.
	// Its state is left untouched; Reason says why.
	Unprocessed bool
	Reason      string

	// Prices backing the decision, recorded for the trade log.
	CurrentPriceUsd    float64
	ComparisonPriceUsd float64
	PriceRatio         float64

	// BuyAmountUsd is the sized spend, set only when Action is a buy.
	BuyAmountUsd float64
}
