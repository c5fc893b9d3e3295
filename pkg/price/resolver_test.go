package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"otcrouter/pkg/token"
)

type fakeSource struct {
	name   string
	tier   Tier
	points map[string]Point
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Tier() Tier   { return f.tier }
func (f *fakeSource) FetchAll(context.Context) (map[string]Point, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestResolveAllSourcesFailServesFallback(t *testing.T) {
	down := &fakeSource{name: "coingecko", tier: TierLive, err: errors.New("upstream down")}
	r := NewResolver(token.NewRegistry(), []Source{down}, Options{}, nil)

	q := r.Resolve(context.Background(), "SOL")
	if q.Source != SourceFallback {
		t.Errorf("source = %q, want %q", q.Source, SourceFallback)
	}
	if q.Price <= 0 {
		t.Errorf("fallback price must be positive, got %g", q.Price)
	}
	if q.Price != 150.0 {
		t.Errorf("price = %g, want static fallback 150", q.Price)
	}
}

func TestResolveCascadesToSecondSource(t *testing.T) {
	primary := &fakeSource{name: "coingecko", tier: TierLive, err: errors.New("429")}
	secondary := &fakeSource{
		name:   "kraken",
		tier:   TierPartial,
		points: map[string]Point{"SOL": {Price: 151.5, Change24h: 1.2}},
	}
	r := NewResolver(token.NewRegistry(), []Source{primary, secondary}, Options{}, nil)

	q := r.Resolve(context.Background(), "sol")
	if q.Source != "kraken" {
		t.Errorf("source = %q, want kraken", q.Source)
	}
	if q.Price != 151.5 {
		t.Errorf("price = %g, want 151.5", q.Price)
	}
	if q.Symbol != "SOL" {
		t.Errorf("symbol should be canonical uppercase, got %q", q.Symbol)
	}
}

func TestResolveUsesFreshCache(t *testing.T) {
	nowFn, advance := fixedClock(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{
		name:   "coingecko",
		tier:   TierLive,
		points: map[string]Point{"SOL": {Price: 150.0}},
	}
	r := NewResolver(token.NewRegistry(), []Source{src}, Options{TTL: 30 * time.Second, Now: nowFn}, nil)

	ctx := context.Background()
	r.Resolve(ctx, "SOL")
	r.Resolve(ctx, "SOL")
	if src.calls != 1 {
		t.Errorf("source called %d times within TTL, want 1", src.calls)
	}

	advance(31 * time.Second)
	r.Resolve(ctx, "SOL")
	if src.calls != 2 {
		t.Errorf("source called %d times after expiry, want 2", src.calls)
	}
}

func TestResolveServesStaleBeforeStaticFallback(t *testing.T) {
	nowFn, advance := fixedClock(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{
		name:   "coingecko",
		tier:   TierLive,
		points: map[string]Point{"SOL": {Price: 162.0}},
	}
	r := NewResolver(token.NewRegistry(), []Source{src}, Options{TTL: 30 * time.Second, Now: nowFn}, nil)

	ctx := context.Background()
	r.Resolve(ctx, "SOL")

	// Source goes down and the cache expires: the stale price still beats
	// the static fallback.
	src.err = errors.New("upstream down")
	advance(5 * time.Minute)

	q := r.Resolve(ctx, "SOL")
	if q.Price != 162.0 {
		t.Errorf("price = %g, want stale 162", q.Price)
	}
	if q.Source != "coingecko" {
		t.Errorf("stale quote should keep its original source, got %q", q.Source)
	}
}

func TestResolveAllBackfillsMissingSymbols(t *testing.T) {
	partial := &fakeSource{
		name:   "kraken",
		tier:   TierPartial,
		points: map[string]Point{"SOL": {Price: 149.0}},
	}
	reg := token.NewRegistry()
	r := NewResolver(reg, []Source{partial}, Options{}, nil)

	batch := r.ResolveAll(context.Background())
	if batch.Tier != TierPartial {
		t.Errorf("tier = %q, want %q", batch.Tier, TierPartial)
	}
	for _, sym := range reg.Symbols() {
		q, ok := batch.Prices[sym]
		if !ok {
			t.Fatalf("symbol %s missing from batch", sym)
		}
		if q.Price <= 0 {
			t.Errorf("symbol %s has non-positive price %g", sym, q.Price)
		}
	}
	if batch.Prices["SOL"].Source != "kraken" {
		t.Errorf("SOL source = %q, want kraken", batch.Prices["SOL"].Source)
	}
	if batch.Prices["RAY"].Source != SourceFallback {
		t.Errorf("RAY source = %q, want fallback backfill", batch.Prices["RAY"].Source)
	}
}

func TestResolveAllCachesBatch(t *testing.T) {
	nowFn, advance := fixedClock(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{
		name:   "coingecko",
		tier:   TierLive,
		points: map[string]Point{"SOL": {Price: 150.0}, "USDC": {Price: 1.0}},
	}
	r := NewResolver(token.NewRegistry(), []Source{src}, Options{BatchTTL: 300 * time.Second, Now: nowFn}, nil)

	ctx := context.Background()
	r.ResolveAll(ctx)
	r.ResolveAll(ctx)
	if src.calls != 1 {
		t.Errorf("source called %d times within batch TTL, want 1", src.calls)
	}

	advance(301 * time.Second)
	r.ResolveAll(ctx)
	if src.calls != 2 {
		t.Errorf("source called %d times after batch expiry, want 2", src.calls)
	}
}

func TestResolveAllEverySourceDown(t *testing.T) {
	down := &fakeSource{name: "coingecko", tier: TierLive, err: errors.New("down")}
	alsoDown := &fakeSource{name: "kraken", tier: TierPartial, err: errors.New("down")}
	reg := token.NewRegistry()
	r := NewResolver(reg, []Source{down, alsoDown}, Options{}, nil)

	batch := r.ResolveAll(context.Background())
	if batch.Tier != TierFallback {
		t.Errorf("tier = %q, want %q", batch.Tier, TierFallback)
	}
	if len(batch.Prices) != len(reg.Symbols()) {
		t.Errorf("batch has %d prices, want %d", len(batch.Prices), len(reg.Symbols()))
	}
	for sym, q := range batch.Prices {
		if q.Source != SourceFallback {
			t.Errorf("%s source = %q, want fallback", sym, q.Source)
		}
	}
}

func TestResolveAllRetriesAfterOutage(t *testing.T) {
	src := &fakeSource{name: "coingecko", tier: TierLive, err: errors.New("down")}
	r := NewResolver(token.NewRegistry(), []Source{src}, Options{BatchTTL: 300 * time.Second}, nil)
	ctx := context.Background()

	if batch := r.ResolveAll(ctx); batch.Tier != TierFallback {
		t.Fatalf("tier = %q, want fallback while source is down", batch.Tier)
	}

	// The upstream recovers. A fallback batch must not occupy the batch
	// cache, so the very next call retries the cascade.
	src.err = nil
	src.points = map[string]Point{"SOL": {Price: 150.0}}

	batch := r.ResolveAll(ctx)
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2 (recovered source retried)", src.calls)
	}
	if batch.Tier != TierLive {
		t.Errorf("tier = %q, want live after recovery", batch.Tier)
	}
	if batch.Prices["SOL"].Source != "coingecko" {
		t.Errorf("SOL source = %q, want coingecko", batch.Prices["SOL"].Source)
	}

	// The successful batch is cached as usual.
	r.ResolveAll(ctx)
	if src.calls != 2 {
		t.Errorf("source calls = %d after live batch, want still 2", src.calls)
	}
}

func TestResolveAllReturnsCopies(t *testing.T) {
	src := &fakeSource{
		name:   "coingecko",
		tier:   TierLive,
		points: map[string]Point{"SOL": {Price: 150.0}},
	}
	r := NewResolver(token.NewRegistry(), []Source{src}, Options{}, nil)

	first := r.ResolveAll(context.Background())
	first.Prices["SOL"] = Quote{Symbol: "SOL", Price: -1}

	second := r.ResolveAll(context.Background())
	if second.Prices["SOL"].Price == -1 {
		t.Error("mutating a returned batch leaked into the cached batch")
	}
}
