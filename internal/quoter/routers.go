// Package quoter probes AMM routers with read-only swap simulations and
// picks the best-priced route deterministically.
package quoter

import "github.com/ethereum/go-ethereum/common"

// Router is one AMM router the engine is willing to trade through.
type Router struct {
	Name    string
	Address common.Address
	// NativeBNBName marks routers whose native-in swap method is named
	// swapExactBNBForTokens instead of swapExactETHForTokens.
	NativeBNBName bool
}

// Well-known BSC mainnet contracts.
var (
	WBNB      = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	USDT      = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	Multicall = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
)

// DefaultRouters in tie-break order. When two routers quote the same
// price the earlier entry wins, which keeps route selection stable
// across runs.
var DefaultRouters = []Router{
	{Name: "PancakeSwap", Address: common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")},
	{Name: "BakerySwap", Address: common.HexToAddress("0xCDe540d7eAFE93aC5fE6233Bee57E1270D3E330F"), NativeBNBName: true},
	{Name: "ApeSwap", Address: common.HexToAddress("0xcF0feBd3f17CEf5b47b0cD257aCf6025c5BFf3b7")},
	{Name: "Biswap", Address: common.HexToAddress("0x3a6d8cA21D1CF76F653A67577FA0D27453350dD8")},
}
