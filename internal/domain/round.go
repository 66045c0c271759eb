package domain

// Action taken for a coin in one cycle.
type Action string

const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionStopLoss Action = "stop_loss"
	ActionHold     Action = "hold"
	ActionNone     Action = "no_action"
)

// Closing reports whether the action destroys a holding.
func (a Action) Closing() bool {
	return a == ActionSell || a == ActionStopLoss
}

// TradeRound records a completed buy or close for PnL history.
// Corresponds to the trade_rounds table.
type TradeRound struct {
	RoundID  string // deterministic hash
	WalletID string
	CoinID   string
	Symbol   string
	Action   Action

	EntryCycle    string // snapshot file name at entry
	EntryPriceUsd float64
	ExitCycle     string // empty for buy rows
	ExitPriceUsd  float64

	TokenAmount float64
	UsdCost     float64
	UsdProceeds float64
	PnlUsd      float64

	TxHash    string
	Simulated bool
}

// SnapshotPoint is one coin's price observation in one cycle, archived
// for backtesting research.
type SnapshotPoint struct {
	CoinID       string
	Cycle        string // snapshot file name (time axis)
	TimestampMs  int64
	SpotPriceUsd float64
	VolumeUsd    float64
	DexPriceUsd  float64
	MarketCapUsd float64
}
