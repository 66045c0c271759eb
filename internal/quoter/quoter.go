package quoter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
)

// ErrNoViableRouter means every probe failed, timed out, or returned a
// zero output.
var ErrNoViableRouter = errors.New("no router produced a viable quote")

const (
	defaultProbeTimeout = 5 * time.Second
	defaultProbeLimit   = 8
)

// Probe is one router and path combination to simulate.
type Probe struct {
	Router        Router
	Path          []common.Address
	InputIsNative bool
}

// Quoter fans getAmountsOut calls out across routers and paths.
type Quoter struct {
	backend      chain.Backend
	probeTimeout time.Duration
	probeLimit   int
	log          *zap.Logger
}

// Option configures a Quoter.
type Option func(*Quoter)

// WithProbeTimeout bounds each individual simulation call.
func WithProbeTimeout(d time.Duration) Option {
	return func(q *Quoter) { q.probeTimeout = d }
}

// WithProbeLimit bounds concurrent in-flight probes.
func WithProbeLimit(n int) Option {
	return func(q *Quoter) { q.probeLimit = n }
}

// New creates a Quoter over backend.
func New(backend chain.Backend, log *zap.Logger, opts ...Option) *Quoter {
	q := &Quoter{
		backend:      backend,
		probeTimeout: defaultProbeTimeout,
		probeLimit:   defaultProbeLimit,
		log:          log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Simulate runs one getAmountsOut probe and returns the terminal amount.
func (q *Quoter) Simulate(ctx context.Context, router Router, path []common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := chain.PackGetAmountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.probeTimeout)
	defer cancel()

	out, err := q.backend.CallContract(ctx, ethereum.CallMsg{To: &router.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut %s: %w", router.Name, err)
	}
	amounts, err := chain.UnpackAmountsOut(out)
	if err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut %s: empty amounts", router.Name)
	}
	return amounts[len(amounts)-1], nil
}

// Best probes every router and path combination concurrently and picks
// the winner: for buys the lowest USD price per token, for sells the
// highest simulated output. Ties keep the earlier probe, so the result
// is deterministic for a fixed probe order.
//
// usdIn is the USD value of the input amount (priced buys). outUsdPerUnit
// is the USD value of one unit of the path's terminal asset (priced
// sells). A probe that errors or returns zero is skipped; if all probes
// are skipped the result is ErrNoViableRouter.
func (q *Quoter) Best(ctx context.Context, dir domain.Direction, probes []Probe, amountIn *big.Int, usdIn, outUsdPerUnit float64) (domain.RouterQuote, error) {
	if len(probes) == 0 {
		return domain.RouterQuote{}, ErrNoViableRouter
	}

	outputs := make([]*big.Int, len(probes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.probeLimit)
	for i, p := range probes {
		g.Go(func() error {
			out, err := q.Simulate(gctx, p.Router, p.Path, amountIn)
			if err != nil {
				q.log.Debug("router probe failed",
					zap.String("router", p.Router.Name),
					zap.Int("path_len", len(p.Path)),
					zap.Error(err))
				return nil
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.RouterQuote{}, err
	}

	best := -1
	var bestQuote domain.RouterQuote
	for i, out := range outputs {
		if out == nil || out.Sign() <= 0 {
			continue
		}
		quote := domain.RouterQuote{
			RouterName:      probes[i].Router.Name,
			RouterAddress:   probes[i].Router.Address,
			Path:            probes[i].Path,
			SimulatedOutput: out,
		}
		switch dir {
		case domain.DirectionBuy:
			quote.PriceUsd = usdIn / chain.WeiToFloat(out)
			if best < 0 || quote.PriceUsd < bestQuote.PriceUsd {
				best, bestQuote = i, quote
			}
		case domain.DirectionSell:
			quote.PriceUsd = chain.WeiToFloat(out) * outUsdPerUnit
			if best < 0 || out.Cmp(outputs[best]) > 0 {
				best, bestQuote = i, quote
			}
		}
	}
	if best < 0 {
		return domain.RouterQuote{}, ErrNoViableRouter
	}
	return bestQuote, nil
}
