package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
)

// ensureAllowance checks the router's allowance and submits an approval
// sized to the slippage-padded input when it is short. The retry is
// bounded: after the attempt cap the error wraps ErrApprovalFailed.
func (b *Builder) ensureAllowance(ctx context.Context, signer *Signer, plan domain.SwapPlan) error {
	allowance, err := chain.Allowance(ctx, b.backend, plan.ApprovalToken, signer.Address, plan.ApprovalTarget)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Cmp(plan.AmountIn) >= 0 {
		return nil
	}

	data, err := chain.PackApprove(plan.ApprovalTarget, plan.ApprovalAmount)
	if err != nil {
		return err
	}

	var lastErr error
	backoff := approvalInitialWait
	for attempt := 1; attempt <= approvalAttempts; attempt++ {
		receipt, hash, err := b.sendAndWait(ctx, signer, plan.ApprovalToken, big.NewInt(0), data, plan.GasPrice)
		if err == nil && receipt.Status == types.ReceiptStatusSuccessful {
			b.log.Info("approval confirmed",
				zap.String("token", plan.ApprovalToken.Hex()),
				zap.String("spender", plan.ApprovalTarget.Hex()),
				zap.String("tx", hash.Hex()))
			return nil
		}
		if err == nil {
			err = fmt.Errorf("approval reverted in tx %s", hash.Hex())
		}
		lastErr = err
		b.log.Warn("approval attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < approvalAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %v", ErrApprovalFailed, lastErr)
}
