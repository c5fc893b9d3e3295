package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otcrouter/pkg/token"
)

func TestCoinGeckoFetchAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/simple/price" {
			http.NotFound(w, r)
			return
		}
		ids := r.URL.Query().Get("ids")
		for _, want := range []string{"solana", "usd-coin", "tether", "raydium", "serum"} {
			if !strings.Contains(ids, want) {
				t.Errorf("request missing id %q: %s", want, ids)
			}
		}
		w.Write([]byte(`{
			"solana": {"usd": 148.7, "usd_24h_change": -2.1},
			"usd-coin": {"usd": 1.0001},
			"tether": {"usd": 0.9998},
			"raydium": {"usd": 2.41},
			"serum": {"usd": 0.39}
		}`))
	}))
	defer ts.Close()

	src := NewCoinGecko(token.NewRegistry(), ts.URL, time.Second, 100)
	points, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(points) != 5 {
		t.Errorf("got %d points, want 5", len(points))
	}
	if points["SOL"].Price != 148.7 || points["SOL"].Change24h != -2.1 {
		t.Errorf("SOL point = %+v", points["SOL"])
	}
	if src.Tier() != TierLive {
		t.Errorf("tier = %q, want live", src.Tier())
	}
}

func TestCoinGeckoRejectsEmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	src := NewCoinGecko(token.NewRegistry(), ts.URL, time.Second, 100)
	if _, err := src.FetchAll(context.Background()); err == nil {
		t.Error("expected error for empty price set")
	}
}

func TestKrakenFetchAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pair") != "SOLUSD" {
			t.Errorf("pair = %q", r.URL.Query().Get("pair"))
		}
		w.Write([]byte(`{"error":[],"result":{"SOLUSD":{"c":["151.23","12.5"]}}}`))
	}))
	defer ts.Close()

	src := NewKraken(ts.URL, time.Second, 100)
	points, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if points["SOL"].Price != 151.23 {
		t.Errorf("SOL price = %g, want 151.23", points["SOL"].Price)
	}
	if points["USDC"].Price != pinnedUSDC || points["USDT"].Price != pinnedUSDT {
		t.Errorf("stablecoins not pinned: %+v", points)
	}
	if src.Tier() != TierPartial {
		t.Errorf("tier = %q, want partial", src.Tier())
	}
}

func TestKrakenReportsAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`))
	}))
	defer ts.Close()

	src := NewKraken(ts.URL, time.Second, 100)
	if _, err := src.FetchAll(context.Background()); err == nil {
		t.Error("expected error from kraken error array")
	}
}

func TestBinanceFetchAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SOLUSDT" {
			t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
		}
		w.Write([]byte(`{"symbol":"SOLUSDT","price":"150.88"}`))
	}))
	defer ts.Close()

	src := NewBinance(ts.URL, time.Second, 100)
	points, err := src.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if points["SOL"].Price != 150.88 {
		t.Errorf("SOL price = %g, want 150.88", points["SOL"].Price)
	}
}

func TestSourceRateLimitStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	src := NewBinance(ts.URL, time.Second, 100)
	_, err := src.FetchAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want rate limit mention", err)
	}
}

func TestDefaultSourcesOrder(t *testing.T) {
	sources := DefaultSources(token.NewRegistry(), []string{"coingecko", "kraken", "binance", "bogus"}, time.Second, 2)
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	names := []string{sources[0].Name(), sources[1].Name(), sources[2].Name()}
	want := []string{"coingecko", "kraken", "binance"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("source %d = %q, want %q", i, names[i], want[i])
		}
	}
}
