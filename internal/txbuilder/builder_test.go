package txbuilder

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/quoter"
)

// Well-known throwaway development key.
const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

var (
	testToken  = common.HexToAddress("0x7012")
	testRouter = quoter.DefaultRouters[0]
)

// fakeChain is a scripted Backend: eth_call answers are keyed by method
// selector, submitted transactions succeed unless a revert is queued.
type fakeChain struct {
	mu sync.Mutex

	allowance *big.Int
	// balanceOf answers in call order; the last entry repeats.
	balanceAnswers []*big.Int
	balanceCalls   int

	estimateErr error
	sendErr     error
	// revertNext marks how many upcoming transactions get a failed
	// receipt.
	revertNext int

	nonce    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		allowance:      big.NewInt(0),
		balanceAnswers: []*big.Int{big.NewInt(0)},
		receipts:       make(map[common.Hash]*types.Receipt),
	}
}

func selector(data []byte) string { return string(data[:4]) }

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowanceSel, _ := chain.PackAllowance(common.Address{}, common.Address{})
	balanceSel, _ := chain.PackBalanceOf(common.Address{})

	switch selector(msg.Data) {
	case selector(allowanceSel):
		return common.LeftPadBytes(f.allowance.Bytes(), 32), nil
	case selector(balanceSel):
		answer := f.balanceAnswers[min(f.balanceCalls, len(f.balanceAnswers)-1)]
		f.balanceCalls++
		return common.LeftPadBytes(answer.Bytes(), 32), nil
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(5_000_000_000), nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100_000, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.nonce++
	f.sent = append(f.sent, tx)

	status := types.ReceiptStatusSuccessful
	if f.revertNext > 0 {
		f.revertNext--
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash()}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return chain.FloatToWei(10), nil
}

func newTestBuilder(t *testing.T, f *fakeChain, policy PriorityPaymentPolicy) (*Builder, *Signer) {
	t.Helper()
	signer, err := NewSignerFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return NewBuilder(f, chain.NewLocker(), policy, zap.NewNop()), signer
}

func buyQuote(simOut *big.Int) domain.RouterQuote {
	return domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{quoter.WBNB, testToken},
		SimulatedOutput: simOut,
	}
}

func TestBuildAppliesSlippageOnce(t *testing.T) {
	b, _ := newTestBuilder(t, newFakeChain(), PriorityPaymentPolicy{})

	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(1), true, false, 600, buyQuote(big.NewInt(1000)), 10)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.MinAmountOut.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("minAmountOut = %v, want 900 (10%% applied once)", plan.MinAmountOut)
	}
}

func TestBuildRejectsBadSlippage(t *testing.T) {
	b, _ := newTestBuilder(t, newFakeChain(), PriorityPaymentPolicy{})

	for _, pct := range []float64{-1, 100.5, 250} {
		_, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
			chain.FloatToWei(1), true, false, 600, buyQuote(big.NewInt(1000)), pct)
		if err == nil {
			t.Errorf("slippage %.1f accepted, want rejection", pct)
		}
	}
}

func TestBuildPadsApprovalForTokenInput(t *testing.T) {
	b, _ := newTestBuilder(t, newFakeChain(), PriorityPaymentPolicy{})
	quote := domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{quoter.USDT, testToken},
		SimulatedOutput: big.NewInt(1000),
	}

	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		big.NewInt(1000), false, false, 600, quote, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.ApprovalToken != quoter.USDT || plan.ApprovalTarget != testRouter.Address {
		t.Fatal("approval must target the input token and the router")
	}
	if plan.ApprovalAmount.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("approval amount = %v, want 1050", plan.ApprovalAmount)
	}
}

func TestBuildSplitsPriorityPayment(t *testing.T) {
	policy := PriorityPaymentPolicy{
		Recipient: common.HexToAddress("0xfee"),
		Fraction:  0.05,
	}
	b, _ := newTestBuilder(t, newFakeChain(), policy)

	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		big.NewInt(1000), true, false, 600, buyQuote(big.NewInt(1000)), 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.PriorityAmount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("priority = %v, want 50", plan.PriorityAmount)
	}
	if plan.AmountIn.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("swap input = %v, want 950 after deduction", plan.AmountIn)
	}
}

func TestBuildSizesTokenFundedPriorityInNative(t *testing.T) {
	policy := PriorityPaymentPolicy{
		Recipient: common.HexToAddress("0xfee"),
		Fraction:  0.05,
	}
	b, _ := newTestBuilder(t, newFakeChain(), policy)
	quote := domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{quoter.USDT, testToken},
		SimulatedOutput: big.NewInt(1000),
	}

	_, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(600), false, false, 600, quote, 0)
	if err == nil {
		t.Fatal("token-funded priority without a native price must be rejected")
	}

	b.SetNativePrice(600)
	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(600), false, false, 600, quote, 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 5% of a 600 USD notional at 600 USD per native coin.
	if plan.PriorityAmount.Cmp(chain.FloatToWei(0.05)) != 0 {
		t.Fatalf("priority = %v, want 0.05 native", plan.PriorityAmount)
	}
	if plan.AmountIn.Cmp(chain.FloatToWei(600)) != 0 {
		t.Fatalf("swap input = %v, token-funded input must stay whole", plan.AmountIn)
	}
}

func TestExecuteNativeBuyDirect(t *testing.T) {
	f := newFakeChain()
	// Wallet token balance: 0 before, 500 after the swap.
	f.balanceAnswers = []*big.Int{big.NewInt(0), chain.FloatToWei(500)}
	b, signer := newTestBuilder(t, f, PriorityPaymentPolicy{})

	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(1), true, false, 600, buyQuote(chain.FloatToWei(500)), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("outcome %+v, want success", out)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(f.sent))
	}
	tx := f.sent[0]
	if *tx.To() != testRouter.Address {
		t.Fatalf("tx to %s, want router", tx.To().Hex())
	}
	if tx.Value().Cmp(plan.AmountIn) != 0 {
		t.Fatal("native buy must carry the input as value")
	}
	if tx.Gas() != 120_000 {
		t.Fatalf("gas %d, want 120000 (20%% margin)", tx.Gas())
	}
	// 600 USD for 500 tokens.
	if out.ExecutedPriceUsd < 1.19 || out.ExecutedPriceUsd > 1.21 {
		t.Fatalf("executed price %.4f, want ~1.2", out.ExecutedPriceUsd)
	}
}

func TestExecuteBuyWithPriorityUsesMulticall(t *testing.T) {
	f := newFakeChain()
	f.balanceAnswers = []*big.Int{big.NewInt(0), chain.FloatToWei(100)}
	policy := PriorityPaymentPolicy{
		Recipient: common.HexToAddress("0xfee"),
		Fraction:  0.05,
	}
	b, signer := newTestBuilder(t, f, policy)

	amountIn := chain.FloatToWei(1)
	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		amountIn, true, false, 600, buyQuote(chain.FloatToWei(100)), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("outcome %+v, want success", out)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1 atomic bundle", len(f.sent))
	}
	tx := f.sent[0]
	if *tx.To() != quoter.Multicall {
		t.Fatalf("tx to %s, want multicall", tx.To().Hex())
	}
	// Value covers priority plus swap input, i.e. the full notional.
	if tx.Value().Cmp(amountIn) != 0 {
		t.Fatalf("bundle value %v, want %v", tx.Value(), amountIn)
	}
}

func TestExecuteStableBuyPriorityRidesAsValue(t *testing.T) {
	f := newFakeChain()
	f.allowance = chain.FloatToWei(1_000_000)
	f.balanceAnswers = []*big.Int{big.NewInt(0), chain.FloatToWei(100)}
	policy := PriorityPaymentPolicy{
		Recipient: common.HexToAddress("0xfee"),
		Fraction:  0.05,
	}
	b, signer := newTestBuilder(t, f, policy)
	b.SetNativePrice(600)

	quote := domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{quoter.USDT, testToken},
		SimulatedOutput: chain.FloatToWei(100),
	}
	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(600), false, false, 600, quote, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("outcome %+v, want success", out)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1 atomic bundle", len(f.sent))
	}
	tx := f.sent[0]
	if *tx.To() != quoter.Multicall {
		t.Fatalf("tx to %s, want multicall", tx.To().Hex())
	}
	// The swap input is USDT, so the only native value in the bundle is
	// the priority payment itself.
	if tx.Value().Cmp(chain.FloatToWei(0.05)) != 0 {
		t.Fatalf("bundle value %v, want the 0.05 native priority payment", tx.Value())
	}
}

func TestExecuteSellTwoPhase(t *testing.T) {
	f := newFakeChain()
	// Allowance already granted; stable balance 0 before, 120 after.
	f.allowance = chain.FloatToWei(1_000_000)
	f.balanceAnswers = []*big.Int{big.NewInt(0), chain.FloatToWei(120)}
	policy := PriorityPaymentPolicy{
		Recipient: common.HexToAddress("0xfee"),
		Fraction:  0.05,
	}
	b, signer := newTestBuilder(t, f, policy)
	b.SetNativePrice(500)

	sellQuote := domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{testToken, quoter.WBNB, quoter.USDT},
		SimulatedOutput: chain.FloatToWei(120),
	}
	plan, err := b.Build(context.Background(), domain.DirectionSell, testToken,
		chain.FloatToWei(1000), false, false, 100, sellQuote, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan.AmountIn.Cmp(chain.FloatToWei(1000)) != 0 {
		t.Fatalf("swap input = %v, the whole position must be sold", plan.AmountIn)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.Status != domain.OutcomeSuccess {
		t.Fatalf("outcome %+v, want success", out)
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent %d transactions, want priority then swap", len(f.sent))
	}
	// 5% of the 100 USD notional at 500 USD per native coin.
	if *f.sent[0].To() != policy.Recipient {
		t.Fatal("first phase must pay the priority recipient")
	}
	if f.sent[0].Value().Cmp(chain.FloatToWei(0.01)) != 0 {
		t.Fatalf("priority value %v, want 0.01 native", f.sent[0].Value())
	}
	if len(f.sent[0].Data()) != 0 {
		t.Fatal("priority payment must be a plain value transfer")
	}
	if *f.sent[1].To() != testRouter.Address {
		t.Fatal("second phase must hit the router")
	}
	if f.sent[1].Nonce() <= f.sent[0].Nonce() {
		t.Fatal("swap must use a nonce fetched after the priority transfer")
	}
	if out.ExecutedPriceUsd < 119.9 || out.ExecutedPriceUsd > 120.1 {
		t.Fatalf("proceeds %.4f, want ~120", out.ExecutedPriceUsd)
	}
}

func TestExecuteApprovalRetryBounded(t *testing.T) {
	f := newFakeChain()
	f.allowance = big.NewInt(0)
	f.revertNext = 100 // every approval attempt reverts
	b, signer := newTestBuilder(t, f, PriorityPaymentPolicy{})

	quote := domain.RouterQuote{
		RouterName:      testRouter.Name,
		RouterAddress:   testRouter.Address,
		Path:            []common.Address{quoter.USDT, testToken},
		SimulatedOutput: big.NewInt(1000),
	}
	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		big.NewInt(1000), false, false, 600, quote, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.Status != domain.OutcomeFailed {
		t.Fatal("expected failure")
	}
	if out.ErrorKind != domain.ErrorKindApprovalFailed {
		t.Fatalf("error kind %s, want approval_failed", out.ErrorKind)
	}
	if len(f.sent) != approvalAttempts {
		t.Fatalf("sent %d approvals, want exactly %d", len(f.sent), approvalAttempts)
	}
}

func TestExecuteRevertClassified(t *testing.T) {
	f := newFakeChain()
	f.estimateErr = errors.New("execution reverted: TRANSFER_FROM_FAILED")
	b, signer := newTestBuilder(t, f, PriorityPaymentPolicy{})

	plan, err := b.Build(context.Background(), domain.DirectionBuy, testToken,
		chain.FloatToWei(1), true, false, 600, buyQuote(chain.FloatToWei(100)), 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out := b.Execute(context.Background(), plan, signer)
	if out.ErrorKind != domain.ErrorKindSwapReverted {
		t.Fatalf("error kind %s, want swap_reverted", out.ErrorKind)
	}
	if out.RevertReason != "TRANSFER_FROM_FAILED" {
		t.Fatalf("revert reason %q", out.RevertReason)
	}
}
