package otc

import "sync"

// PoolParams defines a pool at provisioning time.
type PoolParams struct {
	Pair           string
	Liquidity      float64
	SpreadPct      float64
	MinTrade       float64
	MaxTrade       float64
	PriceOffsetPct float64
	Active         bool
}

// pool is the live state of one OTC pool. Each pool carries its own lock
// so two pools never contend with each other; the lock is held only for
// the checks and the decrement, never across waits.
type pool struct {
	mu sync.Mutex

	pair             string
	liquidity        float64
	initialLiquidity float64
	spreadPct        float64
	minTrade         float64
	maxTrade         float64
	priceOffsetPct   float64
	active           bool
}

func newPool(p PoolParams) *pool {
	return &pool{
		pair:             p.Pair,
		liquidity:        p.Liquidity,
		initialLiquidity: p.Liquidity,
		spreadPct:        p.SpreadPct,
		minTrade:         p.MinTrade,
		maxTrade:         p.MaxTrade,
		priceOffsetPct:   p.PriceOffsetPct,
		active:           p.Active,
	}
}

// checkTrade validates a requested size against the pool's rules, in the
// contract's rejection order: inactive, below minimum, above maximum,
// insufficient liquidity.
func (p *pool) checkTrade(amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return rejectf(p.pair, ReasonInactive, "OTC pool for %s is currently inactive", p.pair)
	}
	if amount < p.minTrade {
		return rejectf(p.pair, ReasonBelowMinimum, "trade size %g below minimum %g", amount, p.minTrade)
	}
	if amount > p.maxTrade {
		return rejectf(p.pair, ReasonAboveMaximum, "trade size %g exceeds maximum %g", amount, p.maxTrade)
	}
	if amount > p.liquidity {
		return rejectf(p.pair, ReasonInsufficientLiquidity,
			"insufficient liquidity: available %g, requested %g", p.liquidity, amount)
	}
	return nil
}

// reserve atomically re-validates and decrements liquidity. The quote-time
// liquidity figure is advisory only; this is the authoritative check, so a
// shortfall here is reported as liquidity consumed by a concurrent trade.
func (p *pool) reserve(amount float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return 0, rejectf(p.pair, ReasonInactive, "OTC pool for %s is currently inactive", p.pair)
	}
	if amount > p.liquidity {
		return 0, rejectf(p.pair, ReasonLiquidityConsumed,
			"liquidity consumed by concurrent trade: available %g, requested %g", p.liquidity, amount)
	}
	p.liquidity -= amount
	return p.liquidity, nil
}

func (p *pool) setLiquidity(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v < 0 {
		v = 0
	}
	p.liquidity = v
	if v > p.initialLiquidity {
		p.initialLiquidity = v
	}
}

func (p *pool) snapshot() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	utilization := 0.0
	if p.initialLiquidity > 0 {
		utilization = (p.initialLiquidity - p.liquidity) / p.initialLiquidity * 100
		if utilization < 0 {
			utilization = 0
		}
	}
	return PoolStatus{
		Pair:           p.pair,
		Liquidity:      p.liquidity,
		SpreadPct:      p.spreadPct,
		MinTrade:       p.minTrade,
		MaxTrade:       p.maxTrade,
		PriceOffsetPct: p.priceOffsetPct,
		UtilizationPct: utilization,
		Active:         p.active,
	}
}
