// Package chain wraps EVM JSON-RPC connectivity: endpoint failover,
// contract call encoding, receipt polling and per-address transaction
// serialization.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Backend is the narrow slice of an EVM client the engine uses.
// *ethclient.Client satisfies it; tests provide stubs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial errors.
var ErrAllEndpointsFailed = errors.New("all rpc endpoints failed")

// ErrReceiptTimeout is returned when a receipt did not appear within the
// wait window. The transaction may still land; callers must treat this
// as indeterminate, not as failure.
var ErrReceiptTimeout = errors.New("receipt wait timed out")

// Dial connects to the first endpoint that answers eth_chainId.
// Endpoints are tried in order: primary first, then fallbacks.
func Dial(ctx context.Context, endpoints []string, log *zap.Logger) (*ethclient.Client, error) {
	for _, url := range endpoints {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn("rpc endpoint dial failed", zap.String("endpoint", url), zap.Error(err))
			continue
		}
		if _, err := client.ChainID(ctx); err != nil {
			log.Warn("rpc endpoint unresponsive", zap.String("endpoint", url), zap.Error(err))
			client.Close()
			continue
		}
		log.Info("connected to rpc endpoint", zap.String("endpoint", url))
		return client, nil
	}
	return nil, ErrAllEndpointsFailed
}

// WaitReceipt polls for the receipt of txHash until it appears or the
// wait window expires.
func WaitReceipt(ctx context.Context, b Backend, txHash common.Hash, wait, poll time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) && !isTransient(err) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrReceiptTimeout
		case <-ticker.C:
		}
	}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrReceiptTimeout) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// isTransient reports whether a receipt poll error is worth retrying
// within the wait window.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// TokenBalance reads an ERC20 balance via eth_call.
func TokenBalance(ctx context.Context, b Backend, token, owner common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := b.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	return UnpackUint256(erc20ABI, "balanceOf", out)
}

// Allowance reads an ERC20 allowance via eth_call.
func Allowance(ctx context.Context, b Backend, token, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := b.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call: %w", err)
	}
	return UnpackUint256(erc20ABI, "allowance", out)
}
