package otc

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"otcrouter/pkg/price"
)

// Jitter bounds. Micro-variance emulates a live desk's pricing noise; it
// never participates in rejection or liquidity accounting.
const (
	marketVolatilityBound = 0.005 // ±0.5% on the resolved cross rate
	priceVarianceBound    = 0.001 // ±0.1% on the final quote
)

// Quote is an immutable OTC quote snapshot. PoolLiquidityRemaining is the
// liquidity as it would stand after execution, advisory only: the
// authoritative check happens at reserve time.
type Quote struct {
	Pair                   string    `json:"pair"`
	InputToken             string    `json:"inputToken"`
	OutputToken            string    `json:"outputToken"`
	InputAmount            float64   `json:"inputAmount"`
	OutputAmount           float64   `json:"outputAmount"`
	Price                  float64   `json:"price"`
	SpreadPct              float64   `json:"spreadPct"`
	PoolLiquidityRemaining float64   `json:"poolLiquidityRemaining"`
	ExecutionEstimate      string    `json:"executionEstimate"`
	GeneratedAt            time.Time `json:"generatedAt"`
}

// PoolStatus is a read-only snapshot of one pool.
type PoolStatus struct {
	Pair           string  `json:"pair"`
	Liquidity      float64 `json:"liquidity"`
	SpreadPct      float64 `json:"spreadPct"`
	MinTrade       float64 `json:"minTrade"`
	MaxTrade       float64 `json:"maxTrade"`
	PriceOffsetPct float64 `json:"priceOffsetPct"`
	UtilizationPct float64 `json:"utilizationPct"`
	Active         bool    `json:"active"`
}

// StatusReport is a consistent-at-the-instant snapshot of all pools.
type StatusReport struct {
	Pools            []PoolStatus `json:"pools"`
	ActivePools      int          `json:"activePools"`
	TotalLiquidity   float64      `json:"totalLiquidity"`
	AverageSpreadPct float64      `json:"averageSpreadPct"`
}

// Registry owns all OTC pools. It prices trades against resolved market
// prices plus per-pool spread/offset, and is the single writer of pool
// liquidity.
type Registry struct {
	pools    map[string]*pool
	resolver *price.Resolver
	log      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

// NewRegistry provisions pools from static configuration. rng may be nil
// for wall-clock seeding; tests pass a seeded source.
func NewRegistry(params []PoolParams, resolver *price.Resolver, rng *rand.Rand, log *zap.Logger) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	pools := make(map[string]*pool, len(params))
	for _, p := range params {
		pools[p.Pair] = newPool(p)
	}
	return &Registry{
		pools:    pools,
		resolver: resolver,
		rng:      rng,
		log:      log,
		now:      time.Now,
	}
}

// Pair builds the ordered pair key for an input/output token combination.
func Pair(inputToken, outputToken string) string {
	return strings.ToUpper(inputToken) + "/" + strings.ToUpper(outputToken)
}

// HasActivePool reports whether a pool exists and is active for the pair.
func (r *Registry) HasActivePool(inputToken, outputToken string) bool {
	p, ok := r.pools[Pair(inputToken, outputToken)]
	if !ok {
		return false
	}
	return p.snapshot().Active
}

// Quote prices a trade against the pool for input/output. Rejections come
// back as *RejectionError in the contract's check order; the first failed
// check wins.
func (r *Registry) Quote(ctx context.Context, inputToken, outputToken string, amount float64) (*Quote, error) {
	pair := Pair(inputToken, outputToken)

	p, ok := r.pools[pair]
	if !ok {
		return nil, rejectf(pair, ReasonNoPool, "no OTC pool available for %s", pair)
	}
	if err := p.checkTrade(amount); err != nil {
		return nil, err
	}

	basePrice := r.crossRate(ctx, inputToken, outputToken)

	snap := p.snapshot()
	otcPrice := basePrice * (1 - snap.SpreadPct/100 + snap.PriceOffsetPct/100)

	// Same variance factor on price and output keeps their ratio exact.
	otcPrice *= 1 + r.jitter(priceVarianceBound)
	outputAmount := amount * otcPrice

	return &Quote{
		Pair:                   pair,
		InputToken:             strings.ToUpper(inputToken),
		OutputToken:            strings.ToUpper(outputToken),
		InputAmount:            amount,
		OutputAmount:           outputAmount,
		Price:                  otcPrice,
		SpreadPct:              snap.SpreadPct,
		PoolLiquidityRemaining: snap.Liquidity - amount,
		ExecutionEstimate:      "0.5-2.0s",
		GeneratedAt:            r.now(),
	}, nil
}

// Reserve atomically re-validates and decrements pool liquidity for an
// execution. Returns the remaining liquidity as observed immediately after
// the decrement. The sum of successful reserves never exceeds the pool's
// provisioned liquidity.
func (r *Registry) Reserve(pair string, amount float64) (float64, error) {
	p, ok := r.pools[pair]
	if !ok {
		return 0, rejectf(pair, ReasonNoPool, "no OTC pool available for %s", pair)
	}
	remaining, err := p.reserve(amount)
	if err != nil {
		return 0, err
	}
	r.log.Info("otc liquidity reserved",
		zap.String("pair", pair),
		zap.Float64("amount", amount),
		zap.Float64("remaining", remaining))
	return remaining, nil
}

// SetLiquidity reprovisions a pool's liquidity (admin operation, clamped
// at zero).
func (r *Registry) SetLiquidity(pair string, liquidity float64) error {
	p, ok := r.pools[pair]
	if !ok {
		return fmt.Errorf("pool %s not found", pair)
	}
	p.setLiquidity(liquidity)
	r.log.Info("otc pool liquidity updated",
		zap.String("pair", pair),
		zap.Float64("liquidity", liquidity))
	return nil
}

// Status snapshots every pool plus aggregate figures. Consistent at the
// instant of the call, not transactionally linked to in-flight executions.
func (r *Registry) Status() *StatusReport {
	report := &StatusReport{}
	var spreadSum float64

	pairs := make([]string, 0, len(r.pools))
	for pair := range r.pools {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	for _, pair := range pairs {
		snap := r.pools[pair].snapshot()
		report.Pools = append(report.Pools, snap)
		spreadSum += snap.SpreadPct
		if snap.Active {
			report.ActivePools++
			report.TotalLiquidity += snap.Liquidity
		}
	}
	if len(report.Pools) > 0 {
		report.AverageSpreadPct = spreadSum / float64(len(report.Pools))
	}
	return report
}

// crossRate is the market price of inputToken denominated in outputToken,
// from resolved USD prices, with small volatility noise.
func (r *Registry) crossRate(ctx context.Context, inputToken, outputToken string) float64 {
	inputPrice := r.resolver.Resolve(ctx, inputToken)
	outputPrice := r.resolver.Resolve(ctx, outputToken)

	rate := inputPrice.Price / outputPrice.Price
	return rate * (1 + r.jitter(marketVolatilityBound))
}

// jitter returns a uniform value in [-bound, bound].
func (r *Registry) jitter(bound float64) float64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return (r.rng.Float64()*2 - 1) * bound
}
