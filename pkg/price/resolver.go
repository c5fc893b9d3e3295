package price

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"otcrouter/pkg/token"
)

// Options tune the resolver. Zero values fall back to the defaults the
// original desk ran with: 30s per-symbol TTL, 300s batch TTL.
type Options struct {
	TTL      time.Duration
	BatchTTL time.Duration
	Now      func() time.Time
}

// Resolver resolves USD prices for the known symbol set by cascading over
// ordered upstream sources, caching successes and falling back to static
// prices when everything is down. Resolve never fails: the worst case is a
// confidently-wrong fallback price tagged as such.
type Resolver struct {
	registry *token.Registry
	sources  []Source
	cache    *Cache
	ttl      time.Duration
	batchTTL time.Duration
	now      func() time.Time
	log      *zap.Logger

	batchMu sync.Mutex
	batch   *Batch
}

func NewResolver(reg *token.Registry, sources []Source, opts Options, log *zap.Logger) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = 300 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		registry: reg,
		sources:  sources,
		cache:    NewCache(),
		ttl:      opts.TTL,
		batchTTL: opts.BatchTTL,
		now:      opts.Now,
		log:      log,
	}
}

// Resolve returns a usable USD price for symbol. Order of tiers: fresh
// cache, source cascade, stale cache, static fallback.
func (r *Resolver) Resolve(ctx context.Context, symbol string) Quote {
	now := r.now()

	canonical := symbol
	if t, err := r.registry.Lookup(symbol); err == nil {
		canonical = t.Symbol
	}

	if q, ok := r.cache.Get(canonical, now); ok {
		return q
	}

	for _, src := range r.sources {
		points, err := src.FetchAll(ctx)
		if err != nil {
			r.log.Warn("price source failed, trying next",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}

		// Cache everything the source gave us, not just the asked symbol.
		r.storePoints(points, src.Name(), now)

		if p, ok := points[canonical]; ok && p.Price > 0 {
			return Quote{
				Symbol:     canonical,
				Price:      p.Price,
				Change24h:  p.Change24h,
				Source:     src.Name(),
				ObservedAt: now,
			}
		}
	}

	if q, ok := r.cache.GetStale(canonical); ok {
		r.log.Warn("all price sources failed, serving stale cache",
			zap.String("symbol", canonical),
			zap.String("source", q.Source))
		return q
	}

	r.log.Warn("all price sources failed, serving static fallback",
		zap.String("symbol", canonical))
	return Quote{
		Symbol:     canonical,
		Price:      r.registry.FallbackPrice(canonical),
		Source:     SourceFallback,
		ObservedAt: now,
	}
}

// ResolveAll returns prices for the whole known symbol set. Partial source
// results are backfilled from fallback so consumers never see a missing
// symbol. The batch itself is cached for the batch TTL.
func (r *Resolver) ResolveAll(ctx context.Context) *Batch {
	now := r.now()

	r.batchMu.Lock()
	if r.batch != nil && now.Sub(r.batch.FetchedAt) < r.batchTTL {
		b := copyBatch(r.batch)
		r.batchMu.Unlock()
		return b
	}
	r.batchMu.Unlock()

	var (
		points map[string]Point
		tier   = TierFallback
		source = SourceFallback
	)
	for _, src := range r.sources {
		p, err := src.FetchAll(ctx)
		if err != nil {
			r.log.Warn("price source failed during batch resolve",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}
		points = p
		tier = src.Tier()
		source = src.Name()
		break
	}

	prices := make(map[string]Quote, len(r.registry.Symbols()))
	for _, sym := range r.registry.Symbols() {
		if p, ok := points[sym]; ok && p.Price > 0 {
			prices[sym] = Quote{
				Symbol:     sym,
				Price:      p.Price,
				Change24h:  p.Change24h,
				Source:     source,
				ObservedAt: now,
			}
			continue
		}
		// Backfill from fallback so the set is always complete.
		prices[sym] = Quote{
			Symbol:     sym,
			Price:      r.registry.FallbackPrice(sym),
			Source:     SourceFallback,
			ObservedAt: now,
		}
	}

	batch := &Batch{Prices: prices, Tier: tier, FetchedAt: now}

	// Only successful results are cached. An all-failed batch is served
	// once and the next call retries the cascade, so a recovered source is
	// picked up immediately instead of after the batch TTL.
	if tier != TierFallback {
		r.batchMu.Lock()
		r.batch = batch
		r.batchMu.Unlock()
	}

	// Seed the per-symbol cache from live entries only.
	for _, q := range prices {
		if q.Source != SourceFallback {
			r.cache.Put(q, r.ttl, now)
		}
	}
	r.cache.Evict(now)

	if tier == TierFallback {
		r.log.Error("all price sources failed, batch served from fallback")
	}

	return copyBatch(batch)
}

func (r *Resolver) storePoints(points map[string]Point, source string, now time.Time) {
	for sym, p := range points {
		if p.Price <= 0 {
			continue
		}
		r.cache.Put(Quote{
			Symbol:     sym,
			Price:      p.Price,
			Change24h:  p.Change24h,
			Source:     source,
			ObservedAt: now,
		}, r.ttl, now)
	}
}

func copyBatch(b *Batch) *Batch {
	prices := make(map[string]Quote, len(b.Prices))
	for k, v := range b.Prices {
		prices[k] = v
	}
	return &Batch{Prices: prices, Tier: b.Tier, FetchedAt: b.FetchedAt}
}
