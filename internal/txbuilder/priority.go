package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bsc-trade-engine/internal/chain"
)

// PriorityPaymentPolicy sizes the optional ordering-incentive payment
// attached to a swap. The payment is always a plain native-coin value
// transfer: split off the input of native-funded swaps, sized from the
// USD notional for token-funded ones. Recipient and fraction come from
// static config only; nothing about this policy is ever fetched at
// runtime.
type PriorityPaymentPolicy struct {
	Recipient common.Address
	// Fraction of the swap's value paid to Recipient, in [0, 1).
	// Zero disables the payment entirely.
	Fraction float64
}

// Validate rejects fractions that would consume the whole input.
func (p PriorityPaymentPolicy) Validate() error {
	if p.Fraction < 0 || p.Fraction >= 1 {
		return fmt.Errorf("priority fraction %.4f out of range [0, 1)", p.Fraction)
	}
	if p.Fraction > 0 && p.Recipient == (common.Address{}) {
		return fmt.Errorf("priority fraction set without a recipient")
	}
	return nil
}

// Enabled reports whether the policy produces a payment.
func (p PriorityPaymentPolicy) Enabled() bool {
	return p.Fraction > 0
}

// Split deducts the priority amount from a native-funded input. Returns
// the remaining swap input and the priority amount.
func (p PriorityPaymentPolicy) Split(amountIn *big.Int) (remaining, priority *big.Int) {
	if !p.Enabled() {
		return new(big.Int).Set(amountIn), big.NewInt(0)
	}
	priority = chain.ScaleWei(amountIn, p.Fraction)
	remaining = new(big.Int).Sub(amountIn, priority)
	return remaining, priority
}
