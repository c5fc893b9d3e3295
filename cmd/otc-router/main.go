package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"otcrouter/pkg/config"
	"otcrouter/pkg/dex"
	"otcrouter/pkg/engine"
	"otcrouter/pkg/executor"
	"otcrouter/pkg/otc"
	"otcrouter/pkg/price"
	"otcrouter/pkg/recorder"
	"otcrouter/pkg/routing"
	"otcrouter/pkg/stream"
	"otcrouter/pkg/token"
	"otcrouter/pkg/util"
)

var (
	port       = flag.Int("port", 0, "HTTP server port (overrides PORT env)")
	refresh    = flag.Int("refresh", 0, "Pool status broadcast interval in seconds")
	dsn        = flag.String("dsn", "", "Postgres DSN (overrides DATABASE_URL; empty keeps trades in memory)")
	jupiterURL = flag.String("jupiter", "", "Jupiter quote API base URL")
	seed       = flag.Int64("seed", 0, "Random seed for simulation (0 uses wall clock)")
)

func main() {
	logger, err := util.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := config.LoadEnv(".env"); err != nil {
		logger.Warn("could not load .env file", zap.Error(err))
	}

	flag.Parse()

	cfg := config.Default()
	cfg.ApplyEnv()
	if *port > 0 {
		cfg.Port = *port
	}
	if *refresh > 0 {
		cfg.RefreshInterval = time.Duration(*refresh) * time.Second
	}
	if *dsn != "" {
		cfg.PostgresDSN = *dsn
	}
	if *jupiterURL != "" {
		cfg.JupiterBaseURL = *jupiterURL
	}

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewSource(*seed))
		logger.Info("using fixed random seed", zap.Int64("seed", *seed))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := token.NewRegistry()
	resolver := price.NewResolver(
		tokens,
		price.DefaultSources(tokens, cfg.SourceOrder, cfg.SourceTimeout, cfg.SourceRateLimit),
		price.Options{TTL: cfg.PriceTTL, BatchTTL: cfg.BatchPriceTTL},
		logger.Named("price"),
	)

	pools := make([]otc.PoolParams, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		pools = append(pools, otc.PoolParams{
			Pair:           p.Pair,
			Liquidity:      p.Liquidity,
			SpreadPct:      p.SpreadPct,
			MinTrade:       p.MinTrade,
			MaxTrade:       p.MaxTrade,
			PriceOffsetPct: p.PriceOffsetPct,
			Active:         p.Active,
		})
	}
	otcRegistry := otc.NewRegistry(pools, resolver, rng, logger.Named("otc"))

	var rec recorder.Recorder
	if cfg.PostgresDSN != "" {
		pg, err := recorder.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pg.Close()
		rec = pg
		logger.Info("trade history persisted to postgres")
	} else {
		rec = recorder.NewMemory()
		logger.Info("no DATABASE_URL set, trade history kept in memory")
	}

	hub := stream.NewHub(logger.Named("ws"))
	go hub.Run()

	dexClient := dex.NewClient(cfg.JupiterBaseURL, cfg.QuoteTimeout, logger.Named("dex"))
	sim := executor.NewSimulator(otcRegistry, cfg.ExecutionDelayMin, cfg.ExecutionDelayMax, rng, logger.Named("executor"))
	policy := routing.Policy{MinOTCSize: cfg.MinOTCSize, SlippageThresholdPct: cfg.SlippageThresholdPct}
	eng := engine.New(tokens, dexClient, otcRegistry, policy, sim, rec, hub, cfg.SlippageBps, logger.Named("engine"))

	srv := newServer(eng, otcRegistry, resolver, rec, hub, logger)

	// Periodic pool snapshot for websocket subscribers.
	go func() {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.BroadcastPools(otcRegistry.Status())
			}
		}
	}()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: corsMiddleware(srv.routes()),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		cancel()
	}()

	logger.Info("otc routing engine listening",
		zap.Int("port", cfg.Port),
		zap.Strings("pairs", poolPairs(cfg.Pools)),
		zap.Duration("refresh", cfg.RefreshInterval))

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func poolPairs(pools []config.PoolConfig) []string {
	pairs := make([]string, len(pools))
	for i, p := range pools {
		pairs[i] = p.Pair
	}
	return pairs
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
