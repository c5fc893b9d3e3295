package price

import "time"

// SourceFallback tags quotes produced from static fallback prices rather
// than a live upstream.
const SourceFallback = "fallback"

// Tier describes how a batch price result was produced.
type Tier string

const (
	// TierLive means the primary source returned the full symbol set.
	TierLive Tier = "live"
	// TierPartial means a secondary source covered part of the set and the
	// rest was backfilled from fallback prices.
	TierPartial Tier = "partial"
	// TierFallback means every source failed.
	TierFallback Tier = "fallback"
)

// Quote is a resolved USD price for one symbol. Price is always positive.
type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Change24h  float64   `json:"change24h"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observedAt"`
}

// Batch is the full-set resolution result. Every known symbol is present;
// symbols a partial source could not serve are backfilled from fallback.
type Batch struct {
	Prices    map[string]Quote `json:"prices"`
	Tier      Tier             `json:"source"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// Point is a single price observation as reported by a source.
type Point struct {
	Price     float64
	Change24h float64
}
