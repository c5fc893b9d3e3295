package token

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Token describes a supported token: its Solana mint, on-chain decimals,
// the CoinGecko id used by the price resolver, and a static fallback USD
// price used when every upstream source is down.
type Token struct {
	Symbol        string
	Mint          solana.PublicKey
	Decimals      int
	CoinGeckoID   string
	FallbackPrice float64
}

// Registry maps uppercase token symbols to chain metadata. The mapping is
// fixed at construction and never mutated at runtime.
type Registry struct {
	tokens map[string]Token
}

// NewRegistry returns a registry preloaded with the tokens this service
// trades.
func NewRegistry() *Registry {
	tokens := []Token{
		{
			Symbol:        "SOL",
			Mint:          solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
			Decimals:      9,
			CoinGeckoID:   "solana",
			FallbackPrice: 150.0,
		},
		{
			Symbol:        "USDC",
			Mint:          solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
			Decimals:      6,
			CoinGeckoID:   "usd-coin",
			FallbackPrice: 1.0,
		},
		{
			Symbol:        "USDT",
			Mint:          solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
			Decimals:      6,
			CoinGeckoID:   "tether",
			FallbackPrice: 1.0,
		},
		{
			Symbol:        "RAY",
			Mint:          solana.MustPublicKeyFromBase58("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"),
			Decimals:      6,
			CoinGeckoID:   "raydium",
			FallbackPrice: 2.5,
		},
		{
			Symbol:        "SRM",
			Mint:          solana.MustPublicKeyFromBase58("SRMuApVNdxXokk5GT7XD5cUUgXMBCoAz2LHeuAoKWRt"),
			Decimals:      6,
			CoinGeckoID:   "serum",
			FallbackPrice: 0.4,
		},
	}

	m := make(map[string]Token, len(tokens))
	for _, t := range tokens {
		m[t.Symbol] = t
	}
	return &Registry{tokens: m}
}

// Lookup resolves a symbol (case-insensitive) to its token metadata.
func (r *Registry) Lookup(symbol string) (Token, error) {
	t, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("unknown token symbol %q", symbol)
	}
	return t, nil
}

// Mint returns the mint address for a symbol.
func (r *Registry) Mint(symbol string) (solana.PublicKey, error) {
	t, err := r.Lookup(symbol)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return t.Mint, nil
}

// FallbackPrice returns the static fallback USD price for a symbol, or
// 1.0 when the symbol is unknown.
func (r *Registry) FallbackPrice(symbol string) float64 {
	t, err := r.Lookup(symbol)
	if err != nil {
		return 1.0
	}
	return t.FallbackPrice
}

// Symbols returns all known symbols in stable order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.tokens))
	for s := range r.tokens {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ByCoinGeckoID resolves a CoinGecko id back to a token.
func (r *Registry) ByCoinGeckoID(id string) (Token, bool) {
	for _, t := range r.tokens {
		if t.CoinGeckoID == id {
			return t, true
		}
	}
	return Token{}, false
}
