// Package txbuilder turns a chosen route into signed on-chain
// transactions: approval, swap, optional priority payment, and the
// atomic multicall bundling them for buys.
package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/quoter"
)

const (
	defaultGasMargin    = 1.2
	defaultDeadline     = 10 * time.Minute
	defaultReceiptWait  = 2 * time.Minute
	defaultReceiptPoll  = 3 * time.Second
	approvalAttempts    = 3
	approvalInitialWait = time.Second
)

// Builder constructs and executes swap plans.
type Builder struct {
	backend chain.Backend
	locker  *chain.Locker
	policy  PriorityPaymentPolicy
	log     *zap.Logger

	multicall   common.Address
	gasMargin   float64
	deadline    time.Duration
	receiptWait time.Duration
	receiptPoll time.Duration

	chainOnce sync.Once
	chainID   *big.Int
	chainErr  error

	priceMu sync.RWMutex
	// nativePriceUsd sizes priority payments for token-funded swaps;
	// refreshed each cycle alongside the executor's copy.
	nativePriceUsd float64
}

// Option configures a Builder.
type Option func(*Builder)

// WithGasMargin sets the safety factor applied to gas estimates.
func WithGasMargin(m float64) Option {
	return func(b *Builder) { b.gasMargin = m }
}

// WithReceiptWait sets the receipt polling window and interval.
func WithReceiptWait(wait, poll time.Duration) Option {
	return func(b *Builder) { b.receiptWait, b.receiptPoll = wait, poll }
}

// WithDeadline sets how far in the future swap deadlines are placed.
func WithDeadline(d time.Duration) Option {
	return func(b *Builder) { b.deadline = d }
}

// WithMulticall overrides the multicall contract address.
func WithMulticall(addr common.Address) Option {
	return func(b *Builder) { b.multicall = addr }
}

// NewBuilder creates a Builder. The policy must already be validated.
func NewBuilder(backend chain.Backend, locker *chain.Locker, policy PriorityPaymentPolicy, log *zap.Logger, opts ...Option) *Builder {
	b := &Builder{
		backend:     backend,
		locker:      locker,
		policy:      policy,
		log:         log,
		multicall:   quoter.Multicall,
		gasMargin:   defaultGasMargin,
		deadline:    defaultDeadline,
		receiptWait: defaultReceiptWait,
		receiptPoll: defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetNativePrice records the native coin's USD price.
func (b *Builder) SetNativePrice(usd float64) {
	b.priceMu.Lock()
	b.nativePriceUsd = usd
	b.priceMu.Unlock()
}

func (b *Builder) nativePrice() float64 {
	b.priceMu.RLock()
	defer b.priceMu.RUnlock()
	return b.nativePriceUsd
}

// Build assembles a SwapPlan from a winning quote. Slippage is a percent
// in [0, 100] and is applied to the simulated output exactly once here;
// no other component may scale the minimum output again.
func (b *Builder) Build(ctx context.Context, dir domain.Direction, token common.Address, amountIn *big.Int, inputIsNative, nativeBNBName bool, usdNotional float64, quote domain.RouterQuote, slippagePct float64) (domain.SwapPlan, error) {
	if slippagePct < 0 || slippagePct > 100 {
		return domain.SwapPlan{}, fmt.Errorf("slippage_pct %.4f out of range [0, 100]", slippagePct)
	}

	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.SwapPlan{}, fmt.Errorf("suggest gas price: %w", err)
	}

	// The priority payment is always native coin: split off the input for
	// native-funded swaps, sized from the USD notional otherwise.
	remaining, priority := new(big.Int).Set(amountIn), big.NewInt(0)
	if b.policy.Enabled() {
		if inputIsNative {
			remaining, priority = b.policy.Split(amountIn)
		} else {
			nativePx := b.nativePrice()
			if nativePx <= 0 {
				return domain.SwapPlan{}, fmt.Errorf("priority payment on a token-funded swap needs the native price")
			}
			priority = chain.FloatToWei(usdNotional * b.policy.Fraction / nativePx)
		}
	}

	plan := domain.SwapPlan{
		Direction:        dir,
		Token:            token,
		Quote:            quote,
		AmountIn:         remaining,
		AmountInIsNative: inputIsNative,
		NativeMethodBNB:  nativeBNBName,
		UsdNotional:      usdNotional,
		MinAmountOut:     chain.ScaleWei(quote.SimulatedOutput, 1-slippagePct/100),
		GasPrice:         gasPrice,
		Deadline:         time.Now().Add(b.deadline).Unix(),
	}

	if !inputIsNative {
		plan.ApprovalToken = quote.Path[0]
		plan.ApprovalTarget = quote.RouterAddress
		plan.ApprovalAmount = chain.ScaleWei(amountIn, 1+slippagePct/100)
	}
	if priority.Sign() > 0 {
		plan.PriorityRecipient = b.policy.Recipient
		plan.PriorityAmount = priority
	}
	return plan, nil
}

// Execute submits the plan and reports the outcome. The sender's address
// lock is held for the whole submission, so one wallet never has two
// unconfirmed transactions in flight.
func (b *Builder) Execute(ctx context.Context, plan domain.SwapPlan, signer *Signer) domain.TradeOutcome {
	mu := b.locker.For(signer.Address)
	mu.Lock()
	defer mu.Unlock()

	if !plan.AmountInIsNative {
		if err := b.ensureAllowance(ctx, signer, plan); err != nil {
			return failedOutcome(err)
		}
	}

	outToken := plan.Quote.Path[len(plan.Quote.Path)-1]
	preBalance, err := chain.TokenBalance(ctx, b.backend, outToken, signer.Address)
	if err != nil {
		return failedOutcome(fmt.Errorf("pre-trade balance: %w", err))
	}

	var receipt *types.Receipt
	var txHash common.Hash
	switch plan.Direction {
	case domain.DirectionBuy:
		receipt, txHash, err = b.executeBuy(ctx, plan, signer)
	case domain.DirectionSell:
		receipt, txHash, err = b.executeSell(ctx, plan, signer)
	default:
		err = fmt.Errorf("unknown direction %q", plan.Direction)
	}
	if err != nil {
		out := failedOutcome(err)
		out.TxHash = txHash.Hex()
		return out
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.TradeOutcome{
			Status:       domain.OutcomeFailed,
			ErrorKind:    domain.ErrorKindSwapReverted,
			RevertReason: "transaction reverted on chain",
			TxHash:       txHash.Hex(),
		}
	}

	executed, err := b.executedPrice(ctx, plan, signer, outToken, preBalance, receipt)
	if err != nil {
		b.log.Warn("executed price fallback failed", zap.Error(err))
	}
	return domain.TradeOutcome{
		Status:           domain.OutcomeSuccess,
		ExecutedPriceUsd: executed,
		TxHash:           txHash.Hex(),
	}
}

// executeBuy submits the swap, bundling the priority payment atomically
// through the multicall contract when one is configured.
func (b *Builder) executeBuy(ctx context.Context, plan domain.SwapPlan, signer *Signer) (*types.Receipt, common.Hash, error) {
	swapData, err := b.packBuySwap(plan, signer.Address)
	if err != nil {
		return nil, common.Hash{}, err
	}

	to := plan.Quote.RouterAddress
	value := big.NewInt(0)
	data := swapData
	if plan.AmountInIsNative {
		value = plan.AmountIn
	}

	if plan.PriorityAmount != nil && plan.PriorityAmount.Sign() > 0 {
		calls, totalValue := b.buyBundle(plan, swapData)
		data, err = chain.PackAggregate3Value(calls)
		if err != nil {
			return nil, common.Hash{}, err
		}
		to, value = b.multicall, totalValue
	}

	return b.sendAndWait(ctx, signer, to, value, data, plan.GasPrice)
}

// buyBundle assembles the multicall legs: priority payment first, swap
// second. Both land in one transaction or neither does. The priority
// leg rides as plain call value forwarded to the recipient, so it never
// depends on the multicall contract holding the swap's input token.
func (b *Builder) buyBundle(plan domain.SwapPlan, swapData []byte) ([]chain.Call3Value, *big.Int) {
	totalValue := new(big.Int).Set(plan.PriorityAmount)
	calls := []chain.Call3Value{{
		Target: plan.PriorityRecipient,
		Value:  plan.PriorityAmount,
	}}

	swapValue := big.NewInt(0)
	if plan.AmountInIsNative {
		swapValue = plan.AmountIn
		totalValue.Add(totalValue, plan.AmountIn)
	}
	calls = append(calls, chain.Call3Value{
		Target:   plan.Quote.RouterAddress,
		Value:    swapValue,
		CallData: swapData,
	})
	return calls, totalValue
}

// executeSell submits the native-coin priority payment first and waits
// for it, then submits the fee-tolerant swap with a freshly fetched
// nonce. The swap variant cannot be bundled, so the two phases stay
// separate.
func (b *Builder) executeSell(ctx context.Context, plan domain.SwapPlan, signer *Signer) (*types.Receipt, common.Hash, error) {
	if plan.PriorityAmount != nil && plan.PriorityAmount.Sign() > 0 {
		receipt, hash, err := b.sendAndWait(ctx, signer, plan.PriorityRecipient, plan.PriorityAmount, nil, plan.GasPrice)
		if err != nil {
			return nil, hash, fmt.Errorf("priority payment: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, hash, fmt.Errorf("priority payment reverted")
		}
	}

	swapData, err := chain.PackSwapSupportingFee(
		plan.AmountIn, plan.MinAmountOut, plan.Quote.Path, signer.Address, big.NewInt(plan.Deadline))
	if err != nil {
		return nil, common.Hash{}, err
	}
	return b.sendAndWait(ctx, signer, plan.Quote.RouterAddress, big.NewInt(0), swapData, plan.GasPrice)
}

func (b *Builder) packBuySwap(plan domain.SwapPlan, recipient common.Address) ([]byte, error) {
	deadline := big.NewInt(plan.Deadline)
	if plan.AmountInIsNative {
		return chain.PackSwapExactNativeForTokens(plan.NativeMethodBNB, plan.MinAmountOut, plan.Quote.Path, recipient, deadline)
	}
	return chain.PackSwapExactTokensForTokens(plan.AmountIn, plan.MinAmountOut, plan.Quote.Path, recipient, deadline)
}

// sendAndWait signs and submits one transaction and waits for its
// receipt. The nonce is fetched immediately before signing; the caller
// already holds the sender's address lock.
func (b *Builder) sendAndWait(ctx context.Context, signer *Signer, to common.Address, value *big.Int, data []byte, gasPrice *big.Int) (*types.Receipt, common.Hash, error) {
	chainID, err := b.networkID(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}

	nonce, err := b.backend.PendingNonceAt(ctx, signer.Address)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	gas, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     signer.Address,
		To:       &to,
		Value:    value,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas = uint64(float64(gas) * b.gasMargin)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), signer.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := b.backend.SendTransaction(ctx, signed); err != nil {
		return nil, signed.Hash(), fmt.Errorf("send transaction: %w", err)
	}
	b.log.Info("transaction submitted",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("to", to.Hex()))

	receipt, err := chain.WaitReceipt(ctx, b.backend, signed.Hash(), b.receiptWait, b.receiptPoll)
	if err != nil {
		return nil, signed.Hash(), err
	}
	return receipt, signed.Hash(), nil
}

// executedPrice derives the realized USD price from the output-asset
// balance delta, falling back to the swap event log when the delta is
// non-positive.
func (b *Builder) executedPrice(ctx context.Context, plan domain.SwapPlan, signer *Signer, outToken common.Address, preBalance *big.Int, receipt *types.Receipt) (float64, error) {
	postBalance, err := chain.TokenBalance(ctx, b.backend, outToken, signer.Address)
	if err != nil {
		return 0, fmt.Errorf("post-trade balance: %w", err)
	}

	delta := new(big.Int).Sub(postBalance, preBalance)
	if delta.Sign() <= 0 {
		logOut, ok := chain.SwapOutputFromLogs(receipt.Logs)
		if !ok {
			return 0, fmt.Errorf("no balance delta and no swap event in logs")
		}
		delta = logOut
	}

	switch plan.Direction {
	case domain.DirectionBuy:
		return plan.UsdNotional / chain.WeiToFloat(delta), nil
	default:
		// Sell paths terminate in the stable, so the delta is USD.
		return chain.WeiToFloat(delta), nil
	}
}

func (b *Builder) networkID(ctx context.Context) (*big.Int, error) {
	b.chainOnce.Do(func() {
		b.chainID, b.chainErr = b.backend.ChainID(ctx)
	})
	if b.chainErr != nil {
		return nil, fmt.Errorf("fetch chain id: %w", b.chainErr)
	}
	return b.chainID, nil
}

func failedOutcome(err error) domain.TradeOutcome {
	return domain.TradeOutcome{
		Status:       domain.OutcomeFailed,
		ErrorKind:    Classify(err),
		RevertReason: RevertReason(err),
	}
}
