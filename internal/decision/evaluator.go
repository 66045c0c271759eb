package decision

import "bsc-trade-engine/internal/domain"

// Evaluator runs the per-coin trade state machine. It is pure: the same
// Input always yields the same Result, and nothing is mutated.
type Evaluator struct{}

// NewEvaluator creates a new decision evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate decides the action for one coin.
//
// Held coins transition out on sell (ratio >= sellTarget) or stop-loss
// (ratio <= stopLossTarget); both thresholds are inclusive. Unheld coins
// transition in on buy (ratio <= buyTarget, inclusive) after volume,
// symbol, sanity and balance gates. Coins failing a gate are marked
// unprocessed, never silently treated as hold.
func (e *Evaluator) Evaluate(input Input) *Result {
	if input.Held() {
		return e.evaluateHeld(input)
	}
	return e.evaluateUnheld(input)
}

func (e *Evaluator) evaluateHeld(input Input) *Result {
	current := input.Quote.RealPrice()
	if current <= 0 || input.Holding.EntryPriceUsd <= 0 {
		return unprocessed(ReasonNoPrice, current)
	}
	if !input.Quote.SanityOK() {
		return unprocessed(ReasonSanityFailed, current)
	}

	ratio := current / input.Holding.EntryPriceUsd
	result := &Result{
		Action:             domain.ActionHold,
		CurrentPriceUsd:    current,
		ComparisonPriceUsd: input.Holding.EntryPriceUsd,
		PriceRatio:         ratio,
	}

	switch {
	case ratio >= input.Params.SellTarget:
		result.Action = domain.ActionSell
	case ratio <= input.Params.StopLossTarget:
		result.Action = domain.ActionStopLoss
	}
	return result
}

func (e *Evaluator) evaluateUnheld(input Input) *Result {
	current := input.Quote.RealPrice()

	switch {
	case input.Quote.VolumeUsd < input.Params.MinVolumeUsd:
		return unprocessed(ReasonLowVolume, current)
	case input.Symbol == "":
		return unprocessed(ReasonUnresolvableSymbol, current)
	case current <= 0:
		return unprocessed(ReasonNoPrice, current)
	case !input.Quote.SanityOK():
		return unprocessed(ReasonSanityFailed, current)
	case input.ComparisonPrice <= 0:
		return unprocessed(ReasonNoComparison, current)
	}

	ratio := current / input.ComparisonPrice
	result := &Result{
		Action:             domain.ActionNone,
		CurrentPriceUsd:    current,
		ComparisonPriceUsd: input.ComparisonPrice,
		PriceRatio:         ratio,
	}
	if ratio > input.Params.BuyTarget {
		return result
	}

	if input.AvailableBalanceUsd < input.Params.MinBuyUsd {
		r := unprocessed(ReasonInsufficientBalance, current)
		r.ComparisonPriceUsd = input.ComparisonPrice
		r.PriceRatio = ratio
		return r
	}

	result.Action = domain.ActionBuy
	result.BuyAmountUsd = BuySize(input.Quote.VolumeUsd, input.Params, input.AvailableBalanceUsd)
	return result
}

// BuySize converts 24h volume into a USD spend: scale with volume up to
// the per-trade cap, never below the configured minimum, never above the
// wallet's available balance.
func BuySize(volumeUsd float64, params domain.WalletParams, availableUsd float64) float64 {
	amount := volumeUsd / params.MaxBuyUsd
	if amount > params.MaxBuyUsd {
		amount = params.MaxBuyUsd
	}
	if amount < params.MinBuyUsd {
		amount = params.MinBuyUsd
	}
	if amount > availableUsd {
		amount = availableUsd
	}
	return amount
}

func unprocessed(reason string, current float64) *Result {
	return &Result{
		Action:          domain.ActionNone,
		Unprocessed:     true,
		Reason:          reason,
		CurrentPriceUsd: current,
	}
}
