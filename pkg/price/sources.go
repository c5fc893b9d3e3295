package price

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"otcrouter/pkg/token"
)

// Stablecoin prices pinned by the partial sources, which only quote SOL.
const (
	pinnedUSDC = 1.0001
	pinnedUSDT = 0.9999
)

// CoinGeckoSource serves the full symbol set in one call.
type CoinGeckoSource struct {
	httpSource
	registry *token.Registry
}

func NewCoinGecko(reg *token.Registry, baseURL string, timeout time.Duration, rps float64) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &CoinGeckoSource{
		httpSource: newHTTPSource("coingecko", baseURL, timeout, rps),
		registry:   reg,
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }
func (s *CoinGeckoSource) Tier() Tier   { return TierLive }

func (s *CoinGeckoSource) FetchAll(ctx context.Context) (map[string]Point, error) {
	ids := make([]string, 0, len(s.registry.Symbols()))
	for _, sym := range s.registry.Symbols() {
		t, _ := s.registry.Lookup(sym)
		ids = append(ids, t.CoinGeckoID)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")

	var body map[string]map[string]float64
	if err := s.getJSON(ctx, "/api/v3/simple/price", params, &body); err != nil {
		return nil, err
	}

	out := make(map[string]Point)
	for id, fields := range body {
		t, ok := s.registry.ByCoinGeckoID(id)
		if !ok {
			continue
		}
		usd, ok := fields["usd"]
		if !ok || usd <= 0 {
			continue
		}
		out[t.Symbol] = Point{Price: usd, Change24h: fields["usd_24h_change"]}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("coingecko returned no usable prices")
	}
	return out, nil
}

// KrakenSource quotes SOL/USD from the public ticker; stablecoins are
// pinned and the rest of the set is left for fallback backfill.
type KrakenSource struct {
	httpSource
}

func NewKraken(baseURL string, timeout time.Duration, rps float64) *KrakenSource {
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	return &KrakenSource{httpSource: newHTTPSource("kraken", baseURL, timeout, rps)}
}

func (s *KrakenSource) Name() string { return "kraken" }
func (s *KrakenSource) Tier() Tier   { return TierPartial }

func (s *KrakenSource) FetchAll(ctx context.Context) (map[string]Point, error) {
	params := url.Values{}
	params.Set("pair", "SOLUSD")

	var body struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // last trade closed [price, lot volume]
		} `json:"result"`
	}
	if err := s.getJSON(ctx, "/0/public/Ticker", params, &body); err != nil {
		return nil, err
	}
	if len(body.Error) > 0 {
		return nil, fmt.Errorf("kraken error: %s", strings.Join(body.Error, "; "))
	}

	ticker, ok := body.Result["SOLUSD"]
	if !ok || len(ticker.C) == 0 {
		return nil, fmt.Errorf("kraken response missing SOLUSD ticker")
	}
	solPrice, err := strconv.ParseFloat(ticker.C[0], 64)
	if err != nil || solPrice <= 0 {
		return nil, fmt.Errorf("kraken returned unusable SOL price %q", ticker.C[0])
	}

	return map[string]Point{
		"SOL":  {Price: solPrice},
		"USDC": {Price: pinnedUSDC, Change24h: 0.01},
		"USDT": {Price: pinnedUSDT, Change24h: -0.01},
	}, nil
}

// BinanceSource quotes SOL via the SOLUSDT ticker, same partial shape as
// Kraken.
type BinanceSource struct {
	httpSource
}

func NewBinance(baseURL string, timeout time.Duration, rps float64) *BinanceSource {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceSource{httpSource: newHTTPSource("binance", baseURL, timeout, rps)}
}

func (s *BinanceSource) Name() string { return "binance" }
func (s *BinanceSource) Tier() Tier   { return TierPartial }

func (s *BinanceSource) FetchAll(ctx context.Context) (map[string]Point, error) {
	params := url.Values{}
	params.Set("symbol", "SOLUSDT")

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := s.getJSON(ctx, "/api/v3/ticker/price", params, &body); err != nil {
		return nil, err
	}

	solPrice, err := strconv.ParseFloat(body.Price, 64)
	if err != nil || solPrice <= 0 {
		return nil, fmt.Errorf("binance returned unusable SOL price %q", body.Price)
	}

	return map[string]Point{
		"SOL":  {Price: solPrice},
		"USDC": {Price: pinnedUSDC, Change24h: 0.01},
		"USDT": {Price: pinnedUSDT, Change24h: -0.01},
	}, nil
}

// DefaultSources builds the provider cascade in the configured order.
// Unknown names are skipped.
func DefaultSources(reg *token.Registry, order []string, timeout time.Duration, rps float64) []Source {
	var sources []Source
	for _, name := range order {
		switch name {
		case "coingecko":
			sources = append(sources, NewCoinGecko(reg, "", timeout, rps))
		case "kraken":
			sources = append(sources, NewKraken("", timeout, rps))
		case "binance":
			sources = append(sources, NewBinance("", timeout, rps))
		}
	}
	return sources
}
