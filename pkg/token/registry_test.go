package token

import "testing"

func TestLookupCaseInsensitive(t *testing.T) {
	reg := NewRegistry()

	for _, sym := range []string{"SOL", "sol", " Sol "} {
		tok, err := reg.Lookup(sym)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", sym, err)
		}
		if tok.Symbol != "SOL" || tok.Decimals != 9 {
			t.Errorf("Lookup(%q) = %+v", sym, tok)
		}
	}

	if _, err := reg.Lookup("DOGE"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestFallbackPrices(t *testing.T) {
	reg := NewRegistry()

	cases := map[string]float64{
		"SOL":  150.0,
		"USDC": 1.0,
		"USDT": 1.0,
		"RAY":  2.5,
		"SRM":  0.4,
		"WEN":  1.0, // unknown symbols default to 1.0
	}
	for sym, want := range cases {
		if got := reg.FallbackPrice(sym); got != want {
			t.Errorf("FallbackPrice(%q) = %g, want %g", sym, got, want)
		}
	}
}

func TestSymbolsStableOrder(t *testing.T) {
	reg := NewRegistry()

	want := []string{"RAY", "SOL", "SRM", "USDC", "USDT"}
	got := reg.Symbols()
	if len(got) != len(want) {
		t.Fatalf("got %d symbols, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestByCoinGeckoID(t *testing.T) {
	reg := NewRegistry()

	tok, ok := reg.ByCoinGeckoID("solana")
	if !ok || tok.Symbol != "SOL" {
		t.Errorf("ByCoinGeckoID(solana) = %+v, %v", tok, ok)
	}
	if _, ok := reg.ByCoinGeckoID("dogecoin"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestMintAddresses(t *testing.T) {
	reg := NewRegistry()

	mint, err := reg.Mint("SOL")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if mint.String() != "So11111111111111111111111111111111111111112" {
		t.Errorf("SOL mint = %s", mint)
	}
}
