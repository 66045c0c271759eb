// Package pathplan enumerates viable swap paths for a trade based on
// which wallet reserves can fund it.
package pathplan

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/quoter"
)

// ErrInsufficientReserve means neither the native nor the stable reserve
// covers the trade notional.
var ErrInsufficientReserve = errors.New("no wallet reserve covers the trade notional")

// Reserves are the wallet's spendable balances, in wei of each asset.
type Reserves struct {
	NativeWei *big.Int
	StableWei *big.Int
}

// Candidate is one viable path. Candidates are returned in preference
// order; when several survive simulation the caller picks the one with
// the greater output.
type Candidate struct {
	Path          []common.Address
	InputIsNative bool
}

// Plan enumerates swap path candidates for token.
//
// Buys: a native reserve covering the notional yields the direct
// native→token path. Otherwise a covering stable reserve yields
// stable→native→token as primary and direct stable→token as secondary.
// Sells mirror the same routes back out of the token.
func Plan(token common.Address, dir domain.Direction, reserves Reserves, notionalWei *big.Int) ([]Candidate, error) {
	covers := func(reserve *big.Int) bool {
		return reserve != nil && reserve.Cmp(notionalWei) >= 0
	}

	switch dir {
	case domain.DirectionBuy:
		if covers(reserves.NativeWei) {
			return []Candidate{
				{Path: []common.Address{quoter.WBNB, token}, InputIsNative: true},
			}, nil
		}
		if covers(reserves.StableWei) {
			return []Candidate{
				{Path: []common.Address{quoter.USDT, quoter.WBNB, token}},
				{Path: []common.Address{quoter.USDT, token}},
			}, nil
		}
	case domain.DirectionSell:
		if covers(reserves.NativeWei) {
			return []Candidate{
				{Path: []common.Address{token, quoter.WBNB, quoter.USDT}},
			}, nil
		}
		if covers(reserves.StableWei) {
			return []Candidate{
				{Path: []common.Address{token, quoter.WBNB, quoter.USDT}},
				{Path: []common.Address{token, quoter.USDT}},
			}, nil
		}
	}
	return nil, ErrInsufficientReserve
}

// Probes expands candidates across routers into the probe list the
// quoter consumes. Router order dominates so tie-breaks stay stable.
func Probes(candidates []Candidate, routers []quoter.Router) []quoter.Probe {
	probes := make([]quoter.Probe, 0, len(candidates)*len(routers))
	for _, r := range routers {
		for _, c := range candidates {
			probes = append(probes, quoter.Probe{
				Router:        r,
				Path:          c.Path,
				InputIsNative: c.InputIsNative,
			})
		}
	}
	return probes
}
