package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Minimal ABI fragments for the contracts the engine touches. Parsed once
// at init; a malformed constant is a programming error.
const (
	erc20ABIJSON = `[
		{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
	]`

	routerABIJSON = `[
		{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
		{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactBNBForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
		{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`

	multicallABIJSON = `[
		{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"value","type":"uint256"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate3Value","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
	]`

	pairABIJSON = `[
		{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":false,"name":"amount0In","type":"uint256"},{"indexed":false,"name":"amount1In","type":"uint256"},{"indexed":false,"name":"amount0Out","type":"uint256"},{"indexed":false,"name":"amount1Out","type":"uint256"},{"indexed":true,"name":"to","type":"address"}],"name":"Swap","type":"event"}
	]`
)

var (
	erc20ABI     abi.ABI
	routerABI    abi.ABI
	multicallABI abi.ABI
	pairABI      abi.ABI
)

func init() {
	erc20ABI = mustABI(erc20ABIJSON)
	routerABI = mustABI(routerABIJSON)
	multicallABI = mustABI(multicallABIJSON)
	pairABI = mustABI(pairABIJSON)
}

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Call3Value mirrors the Multicall3 aggregate3Value tuple.
type Call3Value struct {
	Target       common.Address
	AllowFailure bool
	Value        *big.Int
	CallData     []byte
}

// Call3Result mirrors the Multicall3 per-call result tuple.
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// ERC20 packers.

func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// Router packers.

func PackGetAmountsOut(amountIn *big.Int, path []common.Address) ([]byte, error) {
	return routerABI.Pack("getAmountsOut", amountIn, path)
}

// PackAmountsOutResult encodes a getAmountsOut return payload. Used by
// stub backends in tests and by the simulation path.
func PackAmountsOutResult(amounts []*big.Int) ([]byte, error) {
	return routerABI.Methods["getAmountsOut"].Outputs.Pack(amounts)
}

// UnpackAmountsOut decodes a getAmountsOut response.
func UnpackAmountsOut(data []byte) ([]*big.Int, error) {
	out, err := routerABI.Unpack("getAmountsOut", data)
	if err != nil {
		return nil, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack getAmountsOut: unexpected type %T", out[0])
	}
	return amounts, nil
}

func PackSwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

// PackSwapExactNativeForTokens encodes the native-in swap. BakerySwap
// names the method swapExactBNBForTokens; everyone else uses the ETH
// name. The selector differs, the argument layout does not.
func PackSwapExactNativeForTokens(bnbName bool, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	method := "swapExactETHForTokens"
	if bnbName {
		method = "swapExactBNBForTokens"
	}
	return routerABI.Pack(method, amountOutMin, path, to, deadline)
}

func PackSwapSupportingFee(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("swapExactTokensForTokensSupportingFeeOnTransferTokens", amountIn, amountOutMin, path, to, deadline)
}

// Multicall packers.

func PackAggregate3Value(calls []Call3Value) ([]byte, error) {
	return multicallABI.Pack("aggregate3Value", calls)
}

// UnpackUint256 decodes a single uint256 return value of method.
func UnpackUint256(a abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// swapEvent is the pair Swap log payload (non-indexed fields).
type swapEvent struct {
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// SwapOutputFromLogs scans receipt logs for the last pair Swap event and
// returns its output amount. Used as a fallback when the executed price
// cannot be derived from a balance delta.
func SwapOutputFromLogs(logs []*types.Log) (*big.Int, bool) {
	swapID := pairABI.Events["Swap"].ID

	var out *big.Int
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != swapID {
			continue
		}
		var ev swapEvent
		if err := pairABI.UnpackIntoInterface(&ev, "Swap", lg.Data); err != nil {
			continue
		}
		amount := ev.Amount0Out
		if ev.Amount1Out.Cmp(amount) > 0 {
			amount = ev.Amount1Out
		}
		out = amount
	}
	return out, out != nil
}
