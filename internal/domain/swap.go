package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Direction of a swap relative to the traded token.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// RouterQuote is one router's answer to a read-only swap simulation.
// Ephemeral: recomputed on every attempt, never persisted.
type RouterQuote struct {
	RouterName      string
	RouterAddress   common.Address
	Path            []common.Address
	SimulatedOutput *big.Int
	// PriceUsd is USD per token for buys and USD received for the whole
	// input for sells; the selection rule minimizes the former and
	// maximizes the latter.
	PriceUsd float64
}

// SwapPlan is everything needed to submit one swap attempt. Built fresh
// per attempt; nonce and gas price are fetched at build time.
type SwapPlan struct {
	Direction Direction
	Token     common.Address
	Quote     RouterQuote

	AmountIn         *big.Int
	AmountInIsNative bool
	// NativeMethodBNB selects the router's swapExactBNBForTokens method
	// name for native-funded swaps.
	NativeMethodBNB bool
	MinAmountOut    *big.Int

	// UsdNotional is the USD value of the swap input before any
	// priority split, used to derive the executed price from balance
	// deltas.
	UsdNotional float64

	ApprovalToken  common.Address
	ApprovalTarget common.Address
	ApprovalAmount *big.Int

	PriorityRecipient common.Address
	PriorityAmount    *big.Int // native wei; zero disables the payment

	GasPrice *big.Int
	Deadline int64
}

// OutcomeStatus of an executed (or attempted) trade.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ErrorKind classifies a failed trade for reporting and retry policy.
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindNetwork             ErrorKind = "network_error"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindNoViableRouter      ErrorKind = "no_viable_router"
	ErrorKindInsufficientReserve ErrorKind = "insufficient_reserve"
	ErrorKindInsufficientBalance ErrorKind = "insufficient_balance"
	ErrorKindPriceTolerance      ErrorKind = "price_tolerance_exceeded"
	ErrorKindApprovalFailed      ErrorKind = "approval_failed"
	ErrorKindSwapReverted        ErrorKind = "swap_reverted"
	ErrorKindUnknown             ErrorKind = "unknown_error"
)

// TradeOutcome is the result of executing a SwapPlan.
type TradeOutcome struct {
	Status           OutcomeStatus
	ExecutedPriceUsd float64
	ErrorKind        ErrorKind
	RevertReason     string
	TxHash           string
}
