package domain

import "fmt"

// TradeMode selects the comparison price source for buy decisions.
type TradeMode string

const (
	// TradeModeTimeFrame compares against the snapshot TimeframeWindow
	// cycles earlier.
	TradeModeTimeFrame TradeMode = "TimeFrame"

	// TradeModeEvent compares against the last snapshot recorded for the
	// coin in the wallet's token state.
	TradeModeEvent TradeMode = "Event"
)

// Holding is an open position. Created on a successful buy, immutable
// afterwards, destroyed on sell or stop-loss.
type Holding struct {
	CoinID        string  `json:"coin_id"`
	EntryPriceUsd float64 `json:"entry_price_usd"`
	EntryCycle    string  `json:"entry_cycle"` // snapshot file name at entry
	TokenAmount   float64 `json:"token_amount"`
	UsdCost       float64 `json:"usd_cost"`
}

// WalletParams are the per-wallet trading thresholds.
type WalletParams struct {
	BuyTarget         float64   `json:"buy_target"`       // current/comparison <= BuyTarget fires a buy
	SellTarget        float64   `json:"sell_target"`      // current/holding >= SellTarget fires a sell
	StopLossTarget    float64   `json:"stop_loss_target"` // current/holding <= StopLossTarget fires a stop-loss
	MinVolumeUsd      float64   `json:"min_volume_usd"`
	MinBuyUsd         float64   `json:"min_buy_usd"`
	MaxBuyUsd         float64   `json:"max_buy_usd"`
	SlippagePct       float64   `json:"slippage_pct"` // percent in [0, 100], applied exactly once
	FeeUsd            float64   `json:"fee_usd"`
	PriceTolerancePct float64   `json:"price_tolerance_pct"`
	TradeMode         TradeMode `json:"trade_mode"`
	TimeframeWindow   int       `json:"timeframe_window"`
	Simulation        bool      `json:"simulation"`
}

// Validate rejects parameter sets the engine must not run with.
// Slippage has exactly one unit convention: a percent in [0, 100].
func (p WalletParams) Validate() error {
	if p.SlippagePct < 0 || p.SlippagePct > 100 {
		return fmt.Errorf("slippage_pct %.4f out of range [0, 100]", p.SlippagePct)
	}
	if p.PriceTolerancePct < 0 || p.PriceTolerancePct > 100 {
		return fmt.Errorf("price_tolerance_pct %.4f out of range [0, 100]", p.PriceTolerancePct)
	}
	if p.BuyTarget <= 0 || p.SellTarget <= 0 || p.StopLossTarget < 0 {
		return fmt.Errorf("targets must be positive (buy=%.4f sell=%.4f stop=%.4f)", p.BuyTarget, p.SellTarget, p.StopLossTarget)
	}
	if p.MinBuyUsd < 0 || p.MaxBuyUsd < p.MinBuyUsd {
		return fmt.Errorf("buy bounds invalid (min=%.2f max=%.2f)", p.MinBuyUsd, p.MaxBuyUsd)
	}
	if p.TradeMode != TradeModeTimeFrame && p.TradeMode != TradeModeEvent {
		return fmt.Errorf("unknown trade mode %q", p.TradeMode)
	}
	if p.TradeMode == TradeModeTimeFrame && p.TimeframeWindow < 1 {
		return fmt.Errorf("timeframe_window must be >= 1, got %d", p.TimeframeWindow)
	}
	return nil
}

// WalletStats accumulates completed-round bookkeeping.
type WalletStats struct {
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	Trades         int     `json:"trades"`
	TotalProfitUsd float64 `json:"total_profit_usd"`
}

// WalletState is one wallet's full trading state. It is loaded at cycle
// start, mutated only through the ledger, and persisted at cycle end.
type WalletState struct {
	WalletID   string `json:"-"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
	Enabled    bool   `json:"enabled"`

	AvailableBalanceUsd float64 `json:"available_balance_usd"`
	UsedBalanceUsd      float64 `json:"used_balance_usd"`
	// CurrentBalanceUsd is available plus holdings marked to the latest
	// prices; informational, refreshed at cycle start.
	CurrentBalanceUsd float64 `json:"current_balance_usd"`

	Holdings map[string]*Holding `json:"current_holdings"`
	Params   WalletParams        `json:"params"`
	Stats    WalletStats         `json:"stats"`
}

// Clone returns a deep copy, so cycle-local mutation never aliases the
// persisted document.
func (w *WalletState) Clone() *WalletState {
	out := *w
	out.Holdings = make(map[string]*Holding, len(w.Holdings))
	for id, h := range w.Holdings {
		hc := *h
		out.Holdings[id] = &hc
	}
	return &out
}
