package config

import "time"

// PoolConfig defines one OTC pool at startup. Only Liquidity and Active
// change at runtime, and only through the registry.
type PoolConfig struct {
	Pair           string  // "SOL/USDC" (input/output)
	Liquidity      float64 // input-token units
	SpreadPct      float64
	MinTrade       float64
	MaxTrade       float64
	PriceOffsetPct float64
	Active         bool
}

// Config is the full service configuration, assembled at process start
// from defaults, .env and flags. Immutable afterwards.
type Config struct {
	Port            int
	RefreshInterval time.Duration // pool status broadcast cadence

	// Price resolution
	PriceTTL        time.Duration // per-symbol cache entries
	BatchPriceTTL   time.Duration // full-set batch cache
	SourceTimeout   time.Duration // per upstream call
	SourceRateLimit float64       // requests/second per provider
	SourceOrder     []string      // provider cascade order

	// DEX quoting
	JupiterBaseURL string
	QuoteTimeout   time.Duration
	SlippageBps    int

	// Routing thresholds
	MinOTCSize           float64
	SlippageThresholdPct float64

	// Execution simulation
	ExecutionDelayMin time.Duration
	ExecutionDelayMax time.Duration

	PostgresDSN string

	Pools []PoolConfig
}

// Default returns the configuration the original desk ran with.
func Default() Config {
	return Config{
		Port:            5000,
		RefreshInterval: 15 * time.Second,

		PriceTTL:        30 * time.Second,
		BatchPriceTTL:   300 * time.Second,
		SourceTimeout:   5 * time.Second,
		SourceRateLimit: 2,
		SourceOrder:     []string{"coingecko", "kraken", "binance"},

		JupiterBaseURL: "https://quote-api.jup.ag/v6",
		QuoteTimeout:   10 * time.Second,
		SlippageBps:    50,

		MinOTCSize:           500,
		SlippageThresholdPct: 1.0,

		ExecutionDelayMin: 500 * time.Millisecond,
		ExecutionDelayMax: 2 * time.Second,

		Pools: []PoolConfig{
			{
				Pair:           "SOL/USDC",
				Liquidity:      50000,
				SpreadPct:      0.25,
				MinTrade:       100,
				MaxTrade:       5000,
				PriceOffsetPct: 0,
				Active:         true,
			},
			{
				Pair:           "SOL/USDT",
				Liquidity:      25000,
				SpreadPct:      0.35,
				MinTrade:       250,
				MaxTrade:       2500,
				PriceOffsetPct: -0.1,
				Active:         true,
			},
		},
	}
}

// ApplyEnv overlays environment overrides on top of the defaults.
func (c *Config) ApplyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.JupiterBaseURL = envString("JUPITER_BASE_URL", c.JupiterBaseURL)
	c.PostgresDSN = envString("DATABASE_URL", c.PostgresDSN)
	c.PriceTTL = envDuration("PRICE_CACHE_TTL", c.PriceTTL)
	c.BatchPriceTTL = envDuration("BATCH_PRICE_CACHE_TTL", c.BatchPriceTTL)
	c.MinOTCSize = envFloat("OTC_MIN_SIZE", c.MinOTCSize)
	c.SlippageThresholdPct = envFloat("OTC_SLIPPAGE_THRESHOLD_PCT", c.SlippageThresholdPct)
}
