package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"
)

// ErrUnavailable means the upstream could not produce a quote right now.
// Callers must treat it as "no DEX route", never substitute a fabricated
// quote.
var ErrUnavailable = errors.New("dex quote unavailable")

// Slippage heuristic constants, used when the upstream omits an explicit
// price impact figure. Estimated from route complexity.
const (
	slippageComplexRoute = 2.5 // more than two hops
	slippageMultiHop     = 1.5 // two hops
	slippageDirectRoute  = 0.5 // direct or single hop
)

// Quote is the upstream swap quote. Amounts are raw-unit decimal strings
// as the upstream returns them.
type Quote struct {
	InputMint            string      `json:"inputMint"`
	OutputMint           string      `json:"outputMint"`
	InAmount             string      `json:"inAmount"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	PriceImpactPct       string      `json:"priceImpactPct,omitempty"`
	SlippageBps          int         `json:"slippageBps"`
	RoutePlan            []RoutePlan `json:"routePlan"`
}

type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label,omitempty"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// OutAmountInt parses the quoted output amount.
func (q *Quote) OutAmountInt() (sdkmath.Int, bool) {
	return sdkmath.NewIntFromString(q.OutAmount)
}

// HopCount is the number of route steps the quote goes through.
func (q *Quote) HopCount() int {
	return len(q.RoutePlan)
}

// Client talks to the Jupiter v6 quote API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetQuote requests a swap quote. Any transport failure, non-2xx status or
// unusable body yields ErrUnavailable.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount sdkmath.Int, slippageBps int) (*Quote, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive amount", ErrUnavailable)
	}

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", amount.String())
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "otc-routing-engine/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("jupiter quote request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("jupiter quote returned non-200", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	out, ok := quote.OutAmountInt()
	if !ok || !out.IsPositive() {
		return nil, fmt.Errorf("%w: unusable outAmount %q", ErrUnavailable, quote.OutAmount)
	}

	return &quote, nil
}

// DeriveSlippage estimates the slippage percentage of a quote. When the
// upstream reports price impact (decimal, 0.01 = 1%) that wins; otherwise
// the route-complexity heuristic applies. A nil quote gets a conservative
// estimate.
func (c *Client) DeriveSlippage(q *Quote) float64 {
	if q == nil {
		return 5.0
	}
	if q.PriceImpactPct != "" {
		if impact, err := strconv.ParseFloat(q.PriceImpactPct, 64); err == nil {
			return math.Abs(impact * 100)
		}
	}
	switch hops := q.HopCount(); {
	case hops > 2:
		return slippageComplexRoute
	case hops == 2:
		return slippageMultiHop
	default:
		return slippageDirectRoute
	}
}

// DepthSample is one probe of the liquidity depth analysis.
type DepthSample struct {
	Amount      string  `json:"amount"`
	SlippagePct float64 `json:"slippagePct"`
	OutAmount   string  `json:"outAmount"`
}

// DepthAnalysis reports how slippage grows with trade size.
type DepthAnalysis struct {
	Samples            []DepthSample `json:"samples"`
	LiquidityWarning   bool          `json:"liquidityWarning"`
	RecommendedMaxSize string        `json:"recommendedMaxSize"`
}

// CheckLiquidityDepth quotes 25%, 50%, 100% and 200% of the trade size and
// flags a warning when slippage grows more than two points from the
// smallest to the largest probe.
func (c *Client) CheckLiquidityDepth(ctx context.Context, inputMint, outputMint string, amount sdkmath.Int) (*DepthAnalysis, error) {
	probes := []sdkmath.Int{
		amount.Quo(sdkmath.NewInt(4)),
		amount.Quo(sdkmath.NewInt(2)),
		amount,
		amount.Mul(sdkmath.NewInt(2)),
	}

	analysis := &DepthAnalysis{RecommendedMaxSize: amount.String()}
	for _, probe := range probes {
		if !probe.IsPositive() {
			continue
		}
		q, err := c.GetQuote(ctx, inputMint, outputMint, probe, 50)
		if err != nil {
			continue
		}
		analysis.Samples = append(analysis.Samples, DepthSample{
			Amount:      probe.String(),
			SlippagePct: c.DeriveSlippage(q),
			OutAmount:   q.OutAmount,
		})
	}

	if len(analysis.Samples) == 0 {
		return nil, fmt.Errorf("%w: no depth probes succeeded", ErrUnavailable)
	}

	if n := len(analysis.Samples); n >= 2 {
		growth := analysis.Samples[n-1].SlippagePct - analysis.Samples[0].SlippagePct
		if growth > 2.0 {
			analysis.LiquidityWarning = true
			analysis.RecommendedMaxSize = amount.Quo(sdkmath.NewInt(2)).String()
		}
	}

	return analysis, nil
}
