package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// EtherToWei converts a decimal ether amount to wei, truncating any
// sub-wei fraction.
func EtherToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(etherDecimals).Truncate(0).BigInt()
}

// WeiToEther converts wei to a decimal ether amount.
func WeiToEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

// WeiToFloat is WeiToEther for callers working in float64 USD math.
func WeiToFloat(wei *big.Int) float64 {
	f, _ := WeiToEther(wei).Float64()
	return f
}

// FloatToWei is EtherToWei for callers working in float64 USD math.
func FloatToWei(amount float64) *big.Int {
	return EtherToWei(decimal.NewFromFloat(amount))
}

// ScaleWei multiplies wei by a float factor, used for gas headroom and
// slippage-padded approvals. Truncates toward zero.
func ScaleWei(wei *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(wei, 0).Mul(decimal.NewFromFloat(factor)).Truncate(0).BigInt()
}
