package recorder

import (
	"context"
	"errors"
	"time"

	"otcrouter/pkg/routing"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("trade record not found")
	// ErrInvalidRecord is returned when input validation fails.
	ErrInvalidRecord = errors.New("invalid trade record")
)

// TradeRecord is the finalized outcome of one swap. Created exactly once
// per completed execution, never mutated afterwards.
type TradeRecord struct {
	ID          string        `json:"id"`
	Route       routing.Route `json:"route"`
	InputToken  string        `json:"inputToken"`
	OutputToken string        `json:"outputToken"`
	InputAmount float64       `json:"inputAmount"`
	// OutputAmount and Price are in output-token units.
	OutputAmount float64 `json:"outputAmount"`
	Price        float64 `json:"price"`
	// SlippagePct is the slippage of the executed route (zero for OTC's
	// fixed pricing); ReferenceSlippagePct is the DEX figure used for the
	// routing comparison, recorded on both routes.
	SlippagePct          float64 `json:"slippagePct"`
	ReferenceSlippagePct float64 `json:"referenceSlippagePct"`
	// CostSavings is outputAmount minus the equivalent DEX output, zero
	// for DEX routes.
	CostSavings        float64       `json:"costSavings"`
	TxSignature        string        `json:"txSignature"`
	ExecutionDelay     time.Duration `json:"executionDelay"`
	RemainingLiquidity float64       `json:"remainingLiquidity,omitempty"`
	ExecutedAt         time.Time     `json:"executedAt"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// DailySavings is one day's summed cost savings.
type DailySavings struct {
	Day     string  `json:"day"` // YYYY-MM-DD, UTC
	Savings float64 `json:"savings"`
}

// Stats aggregates the stored trade history by route and by day.
type Stats struct {
	TotalTrades int `json:"totalTrades"`
	DexTrades   int `json:"dexTrades"`
	OtcTrades   int `json:"otcTrades"`

	TotalVolume float64 `json:"totalVolume"`
	DexVolume   float64 `json:"dexVolume"`
	OtcVolume   float64 `json:"otcVolume"`

	TotalCostSavings        float64 `json:"totalCostSavings"`
	AvgDexSlippagePct       float64 `json:"avgDexSlippagePct"`
	AvgReferenceSlippagePct float64 `json:"avgReferenceSlippagePct"`

	TodayTrades  int     `json:"todayTrades"`
	TodayVolume  float64 `json:"todayVolume"`
	TodaySavings float64 `json:"todaySavings"`

	OtcSharePct float64 `json:"otcSharePct"`

	// DailySavings covers the last 30 days, ascending by day.
	DailySavings []DailySavings `json:"dailySavings"`
}

// Recorder is the durable append-only store of finalized trades. The core
// treats it purely as a sink plus a read API; storage technology is an
// implementation concern.
type Recorder interface {
	// Record stores a finalized trade and returns its record id.
	Record(ctx context.Context, t *TradeRecord) (string, error)
	// Recent returns up to limit records, most recent first.
	Recent(ctx context.Context, limit int) ([]*TradeRecord, error)
	// Stats aggregates the stored history.
	Stats(ctx context.Context) (*Stats, error)
}
