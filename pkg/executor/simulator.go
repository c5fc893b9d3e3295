package executor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otcrouter/pkg/otc"
	"otcrouter/pkg/recorder"
	"otcrouter/pkg/routing"
)

// Status is the per-trade execution state. Quoted moves to Reserving, then
// to exactly one of Executed or Rejected; both are terminal.
type Status string

const (
	StatusQuoted    Status = "quoted"
	StatusReserving Status = "reserving"
	StatusExecuted  Status = "executed"
	StatusRejected  Status = "rejected"
)

// Result is the terminal outcome of an OTC execution attempt. Record is
// set on Executed, Reason on Rejected. No retry happens at this layer; a
// rejected attempt is the caller's to re-route.
type Result struct {
	Status Status
	Record *recorder.TradeRecord
	Reason error
}

// Simulator models execution of the chosen route. No transaction is ever
// signed or broadcast; the DEX path is a pass-through of the upstream
// quote and the OTC path reserves liquidity and waits out a settlement
// delay.
type Simulator struct {
	registry *otc.Registry
	log      *zap.Logger

	delayMin time.Duration
	delayMax time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

// NewSimulator builds a simulator. rng may be nil for wall-clock seeding;
// tests pass a seeded source so delays are deterministic.
func NewSimulator(registry *otc.Registry, delayMin, delayMax time.Duration, rng *rand.Rand, log *zap.Logger) *Simulator {
	if delayMin <= 0 {
		delayMin = 500 * time.Millisecond
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		registry: registry,
		log:      log,
		delayMin: delayMin,
		delayMax: delayMax,
		rng:      rng,
		now:      time.Now,
	}
}

// ExecuteDex finalizes a DEX-routed swap. Output fields come directly from
// the upstream quote; the transaction identifier is synthetic.
func (s *Simulator) ExecuteDex(inputToken, outputToken string, inputAmount, outputAmount, slippagePct float64) *recorder.TradeRecord {
	now := s.now()

	price := 0.0
	if inputAmount > 0 {
		price = outputAmount / inputAmount
	}

	record := &recorder.TradeRecord{
		Route:                routing.RouteDEX,
		InputToken:           inputToken,
		OutputToken:          outputToken,
		InputAmount:          inputAmount,
		OutputAmount:         outputAmount,
		Price:                price,
		SlippagePct:          slippagePct,
		ReferenceSlippagePct: slippagePct,
		CostSavings:          0,
		TxSignature:          s.txSignature("dex", now),
		ExecutedAt:           now,
	}

	s.log.Info("dex trade executed",
		zap.String("pair", inputToken+"/"+outputToken),
		zap.Float64("inputAmount", inputAmount),
		zap.Float64("outputAmount", outputAmount),
		zap.String("tx", record.TxSignature))

	return record
}

// ExecuteOtc reserves pool liquidity and simulates settlement of an OTC
// quote. The liquidity decrement is atomic and happens before the
// settlement wait, so it is exactly-once even though the wait always runs
// to completion; no pool lock is held during the wait. dexOutputAmount is
// the equivalent DEX output used for the savings figure; pass zero when no
// DEX quote was obtainable.
func (s *Simulator) ExecuteOtc(quote *otc.Quote, referenceSlippagePct, dexOutputAmount float64) *Result {
	remaining, err := s.registry.Reserve(quote.Pair, quote.InputAmount)
	if err != nil {
		s.log.Warn("otc execution rejected at reserve",
			zap.String("pair", quote.Pair),
			zap.Float64("amount", quote.InputAmount),
			zap.Error(err))
		return &Result{Status: StatusRejected, Reason: err}
	}

	delay := s.settlementDelay()
	timer := time.NewTimer(delay)
	// Settlement is irrevocable once liquidity is reserved; the wait runs
	// to completion even if the caller's context expires.
	<-timer.C

	now := s.now()
	savings := 0.0
	if dexOutputAmount > 0 {
		savings = quote.OutputAmount - dexOutputAmount
	}

	record := &recorder.TradeRecord{
		Route:                routing.RouteOTC,
		InputToken:           quote.InputToken,
		OutputToken:          quote.OutputToken,
		InputAmount:          quote.InputAmount,
		OutputAmount:         quote.OutputAmount,
		Price:                quote.Price,
		SlippagePct:          0, // fixed OTC pricing
		ReferenceSlippagePct: referenceSlippagePct,
		CostSavings:          savings,
		TxSignature:          s.txSignature("otc", now),
		ExecutionDelay:       delay,
		RemainingLiquidity:   remaining,
		ExecutedAt:           now,
	}

	s.log.Info("otc trade executed",
		zap.String("pair", quote.Pair),
		zap.Float64("inputAmount", quote.InputAmount),
		zap.Float64("outputAmount", quote.OutputAmount),
		zap.Duration("delay", delay),
		zap.Float64("remainingLiquidity", remaining),
		zap.String("tx", record.TxSignature))

	return &Result{Status: StatusExecuted, Record: record}
}

// settlementDelay draws a uniform delay in [delayMin, delayMax].
func (s *Simulator) settlementDelay() time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	span := s.delayMax - s.delayMin
	if span <= 0 {
		return s.delayMin
	}
	return s.delayMin + time.Duration(s.rng.Int63n(int64(span)+1))
}

func (s *Simulator) txSignature(route string, now time.Time) string {
	return fmt.Sprintf("%s_tx_%d_%s", route, now.Unix(), uuid.NewString()[:8])
}
