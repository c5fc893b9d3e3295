package recorder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"otcrouter/pkg/routing"
)

// Memory is an in-memory Recorder used in tests and DSN-less runs.
type Memory struct {
	mu      sync.RWMutex
	records []*TradeRecord
	byID    map[string]*TradeRecord
	now     func() time.Time
}

// Compile-time interface check.
var _ Recorder = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]*TradeRecord),
		now:  time.Now,
	}
}

func (m *Memory) Record(_ context.Context, t *TradeRecord) (string, error) {
	if t == nil || t.InputToken == "" || t.OutputToken == "" || t.InputAmount <= 0 {
		return "", ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	m.records = append(m.records, &stored)
	m.byID[stored.ID] = &stored
	return stored.ID, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]*TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*TradeRecord, len(m.records))
	for i, r := range m.records {
		cp := *r
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{}
	today := m.now().UTC().Format("2006-01-02")
	cutoff := m.now().UTC().AddDate(0, 0, -30)

	var dexSlippageSum, refSlippageSum float64
	daily := make(map[string]float64)

	for _, r := range m.records {
		stats.TotalTrades++
		stats.TotalVolume += r.InputAmount
		stats.TotalCostSavings += r.CostSavings
		refSlippageSum += r.ReferenceSlippagePct

		switch r.Route {
		case routing.RouteOTC:
			stats.OtcTrades++
			stats.OtcVolume += r.InputAmount
		default:
			stats.DexTrades++
			stats.DexVolume += r.InputAmount
			dexSlippageSum += r.SlippagePct
		}

		day := r.CreatedAt.UTC().Format("2006-01-02")
		if day == today {
			stats.TodayTrades++
			stats.TodayVolume += r.InputAmount
			stats.TodaySavings += r.CostSavings
		}
		if !r.CreatedAt.UTC().Before(cutoff) {
			daily[day] += r.CostSavings
		}
	}

	if stats.DexTrades > 0 {
		stats.AvgDexSlippagePct = dexSlippageSum / float64(stats.DexTrades)
	}
	if stats.TotalTrades > 0 {
		stats.AvgReferenceSlippagePct = refSlippageSum / float64(stats.TotalTrades)
		stats.OtcSharePct = float64(stats.OtcTrades) / float64(stats.TotalTrades) * 100
	}

	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		stats.DailySavings = append(stats.DailySavings, DailySavings{Day: d, Savings: daily[d]})
	}

	return stats, nil
}
