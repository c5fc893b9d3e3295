package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"otcrouter/pkg/dex"
	"otcrouter/pkg/executor"
	"otcrouter/pkg/otc"
	"otcrouter/pkg/recorder"
	"otcrouter/pkg/routing"
	"otcrouter/pkg/token"
)

var (
	// ErrInvalidRequest covers bad input rejected before any upstream
	// call: non-positive amount, unknown token symbol.
	ErrInvalidRequest = errors.New("invalid swap request")
	// ErrNoRoute means neither venue can take the trade right now.
	ErrNoRoute = errors.New("no route available")
)

// maxSwapAmount bounds the request size so the raw-unit conversion stays
// within int64 even at 9 decimals.
const maxSwapAmount = 1e9

// SwapRequest is one requested token swap. Amount is in input-token units.
type SwapRequest struct {
	InputToken  string  `json:"inputToken"`
	OutputToken string  `json:"outputToken"`
	Amount      float64 `json:"amount"`
}

// Notifier receives finalized trades for fan-out (websocket hub). May be
// nil.
type Notifier interface {
	TradeExecuted(*recorder.TradeRecord)
}

// QuoteComparison is the side-by-side view served by the quote endpoint.
type QuoteComparison struct {
	DexAvailable     bool          `json:"dexAvailable"`
	DexOutputAmount  float64       `json:"dexOutputAmount,omitempty"`
	DexSlippagePct   float64       `json:"dexSlippagePct,omitempty"`
	RouteHops        int           `json:"routeHops,omitempty"`
	OtcAvailable     bool          `json:"otcAvailable"`
	OtcQuote         *otc.Quote    `json:"otcQuote,omitempty"`
	OtcRejection     string        `json:"otcRejection,omitempty"`
	RecommendedRoute routing.Route `json:"recommendedRoute"`
	EstimatedSavings float64       `json:"estimatedSavings"`
}

// Engine wires the quote, routing, execution and recording stages of one
// swap. All collaborators are injected at construction.
type Engine struct {
	tokens      *token.Registry
	dex         *dex.Client
	otc         *otc.Registry
	policy      routing.Policy
	sim         *executor.Simulator
	recorder    recorder.Recorder
	notifier    Notifier
	slippageBps int
	log         *zap.Logger
}

func New(tokens *token.Registry, dexClient *dex.Client, otcRegistry *otc.Registry,
	policy routing.Policy, sim *executor.Simulator, rec recorder.Recorder,
	notifier Notifier, slippageBps int, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if slippageBps <= 0 {
		slippageBps = 50
	}
	return &Engine{
		tokens:      tokens,
		dex:         dexClient,
		otc:         otcRegistry,
		policy:      policy,
		sim:         sim,
		recorder:    rec,
		notifier:    notifier,
		slippageBps: slippageBps,
		log:         log,
	}
}

// ExecuteSwap runs the full decision and execution path for one request
// and hands the finalized record to the recorder.
func (e *Engine) ExecuteSwap(ctx context.Context, req SwapRequest) (*recorder.TradeRecord, error) {
	in, out, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	dexQuote, dexOut, slippage := e.fetchDexQuote(ctx, in, out, req.Amount)

	otcQuote, otcErr := e.otc.Quote(ctx, in.Symbol, out.Symbol, req.Amount)
	otcAvailable := otcErr == nil

	var record *recorder.TradeRecord
	switch {
	case dexQuote == nil && !otcAvailable:
		if rej, ok := otc.AsRejection(otcErr); ok {
			return nil, fmt.Errorf("%w: dex quote unavailable, otc rejected: %s", ErrNoRoute, rej.Error())
		}
		return nil, fmt.Errorf("%w: dex quote unavailable and no otc pool", ErrNoRoute)

	case dexQuote == nil:
		// No DEX reference; take the OTC side directly rather than
		// fabricating a quote for the comparison.
		e.log.Warn("dex unavailable, executing otc directly",
			zap.String("pair", otcQuote.Pair))
		res := e.sim.ExecuteOtc(otcQuote, 0, 0)
		if res.Status == executor.StatusRejected {
			return nil, fmt.Errorf("%w: dex unavailable and otc rejected: %s", ErrNoRoute, res.Reason.Error())
		}
		record = res.Record

	default:
		route := e.policy.Decide(req.Amount, slippage, otcAvailable)
		if route == routing.RouteOTC {
			res := e.sim.ExecuteOtc(otcQuote, slippage, dexOut)
			if res.Status == executor.StatusExecuted {
				record = res.Record
				break
			}
			// Liquidity consumed or pool deactivated between quote and
			// execute: re-route to the DEX side.
			e.log.Warn("otc execution rejected, re-routing to dex",
				zap.String("pair", otcQuote.Pair),
				zap.Error(res.Reason))
		}
		record = e.sim.ExecuteDex(in.Symbol, out.Symbol, req.Amount, dexOut, slippage)
	}

	if id, err := e.recorder.Record(ctx, record); err != nil {
		// The trade already executed; a storage fault must not undo it.
		e.log.Error("failed to record trade", zap.Error(err))
	} else {
		record.ID = id
	}

	if e.notifier != nil {
		e.notifier.TradeExecuted(record)
	}

	e.log.Info("swap completed",
		zap.String("route", string(record.Route)),
		zap.String("pair", in.Symbol+"/"+out.Symbol),
		zap.Float64("inputAmount", record.InputAmount),
		zap.Float64("outputAmount", record.OutputAmount),
		zap.Float64("costSavings", record.CostSavings))

	return record, nil
}

// GetQuote returns the side-by-side DEX/OTC comparison without executing.
func (e *Engine) GetQuote(ctx context.Context, req SwapRequest) (*QuoteComparison, error) {
	in, out, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	cmp := &QuoteComparison{RecommendedRoute: routing.RouteDEX}

	dexQuote, dexOut, slippage := e.fetchDexQuote(ctx, in, out, req.Amount)
	if dexQuote != nil {
		cmp.DexAvailable = true
		cmp.DexOutputAmount = dexOut
		cmp.DexSlippagePct = slippage
		cmp.RouteHops = dexQuote.HopCount()
	}

	otcQuote, otcErr := e.otc.Quote(ctx, in.Symbol, out.Symbol, req.Amount)
	if otcErr != nil {
		cmp.OtcRejection = otcErr.Error()
	} else {
		cmp.OtcAvailable = true
		cmp.OtcQuote = otcQuote
	}

	if cmp.DexAvailable {
		cmp.RecommendedRoute = e.policy.Decide(req.Amount, slippage, cmp.OtcAvailable)
	} else if cmp.OtcAvailable {
		cmp.RecommendedRoute = routing.RouteOTC
	}

	if cmp.RecommendedRoute == routing.RouteOTC && cmp.OtcAvailable && cmp.DexAvailable {
		cmp.EstimatedSavings = otcQuote.OutputAmount - dexOut
	}

	return cmp, nil
}

func (e *Engine) validate(req SwapRequest) (token.Token, token.Token, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return token.Token{}, token.Token{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if req.Amount > maxSwapAmount {
		return token.Token{}, token.Token{}, fmt.Errorf("%w: amount %g exceeds maximum %g", ErrInvalidRequest, req.Amount, float64(maxSwapAmount))
	}
	in, err := e.tokens.Lookup(req.InputToken)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	out, err := e.tokens.Lookup(req.OutputToken)
	if err != nil {
		return token.Token{}, token.Token{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if in.Symbol == out.Symbol {
		return token.Token{}, token.Token{}, fmt.Errorf("%w: input and output tokens must differ", ErrInvalidRequest)
	}
	return in, out, nil
}

// fetchDexQuote obtains the upstream quote and derives output units and
// slippage. A nil quote means the DEX side is unavailable right now.
func (e *Engine) fetchDexQuote(ctx context.Context, in, out token.Token, amount float64) (*dex.Quote, float64, float64) {
	raw := toRawAmount(amount, in.Decimals)
	quote, err := e.dex.GetQuote(ctx, in.Mint.String(), out.Mint.String(), raw, e.slippageBps)
	if err != nil {
		e.log.Warn("dex quote unavailable",
			zap.String("pair", in.Symbol+"/"+out.Symbol),
			zap.Error(err))
		return nil, 0, 0
	}
	return quote, fromRawAmount(quote.OutAmount, out.Decimals), e.dex.DeriveSlippage(quote)
}

// toRawAmount converts token units to the chain's smallest denomination.
// Values that cannot be represented as int64 raw units map to zero, which
// the quote client rejects as non-positive.
func toRawAmount(amount float64, decimals int) sdkmath.Int {
	raw := amount * math.Pow10(decimals)
	if raw < 0 || raw >= float64(math.MaxInt64) || math.IsNaN(raw) {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewInt(int64(raw))
}

// fromRawAmount converts a raw-unit decimal string back to token units.
func fromRawAmount(raw string, decimals int) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v / math.Pow10(decimals)
}
