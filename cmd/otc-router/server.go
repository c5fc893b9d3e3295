package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"otcrouter/pkg/engine"
	"otcrouter/pkg/otc"
	"otcrouter/pkg/price"
	"otcrouter/pkg/recorder"
	"otcrouter/pkg/stream"
)

type server struct {
	engine    *engine.Engine
	pools     *otc.Registry
	prices    *price.Resolver
	recorder  recorder.Recorder
	hub       *stream.Hub
	log       *zap.Logger
	startTime time.Time
}

func newServer(eng *engine.Engine, pools *otc.Registry, prices *price.Resolver,
	rec recorder.Recorder, hub *stream.Hub, log *zap.Logger) *server {
	return &server{
		engine:    eng,
		pools:     pools,
		prices:    prices,
		recorder:  rec,
		hub:       hub,
		log:       log.Named("http"),
		startTime: time.Now(),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trade", s.handleTrade)
	mux.HandleFunc("/api/quote", s.handleQuote)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/prices", s.handlePrices)
	mux.HandleFunc("/api/pools", s.handlePools)
	mux.HandleFunc("/api/pools/liquidity", s.handlePoolLiquidity)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "OTC Liquidity Router",
		"status":  "running",
		"pools":   s.pools.Status(),
		"endpoints": map[string]string{
			"trade":     "POST /api/trade",
			"quote":     "GET /api/quote?inputToken=<sym>&outputToken=<sym>&amount=<n>",
			"trades":    "GET /api/trades?limit=<n>",
			"stats":     "GET /api/stats",
			"prices":    "GET /api/prices",
			"pools":     "GET /api/pools",
			"liquidity": "POST /api/pools/liquidity",
			"ws":        "GET /ws",
			"health":    "GET /health",
		},
	})
}

func (s *server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req engine.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	record, err := s.engine.ExecuteSwap(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidRequest):
			writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, engine.ErrNoRoute):
			writeError(w, err.Error(), http.StatusServiceUnavailable)
		default:
			s.log.Error("trade failed", zap.Error(err))
			writeError(w, "Trade execution failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := swapRequestFromQuery(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmp, err := s.engine.GetQuote(r.Context(), req)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("quote failed", zap.Error(err))
		writeError(w, "Quote failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cmp)
}

func (s *server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, "Invalid limit parameter (must be 1-500)", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to load trades", zap.Error(err))
		writeError(w, "Failed to load trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []*recorder.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.recorder.Stats(r.Context())
	if err != nil {
		s.log.Error("failed to aggregate stats", zap.Error(err))
		writeError(w, "Failed to aggregate stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, s.prices.ResolveAll(r.Context()))
}

func (s *server) handlePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, s.pools.Status())
}

func (s *server) handlePoolLiquidity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Pair == "" || req.Liquidity < 0 {
		writeError(w, "Missing pair or negative liquidity", http.StatusBadRequest)
		return
	}

	if err := s.pools.SetLiquidity(req.Pair, req.Liquidity); err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	status := s.pools.Status()
	s.hub.BroadcastPools(status)
	writeJSON(w, http.StatusOK, status)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.pools.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		ActivePools: status.ActivePools,
		WSClients:   s.hub.ClientCount(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
	})
}

func swapRequestFromQuery(r *http.Request) (engine.SwapRequest, error) {
	q := r.URL.Query()
	input := q.Get("inputToken")
	output := q.Get("outputToken")
	amountParam := q.Get("amount")

	if input == "" || output == "" || amountParam == "" {
		return engine.SwapRequest{}, errors.New("missing required parameters: inputToken, outputToken, amount")
	}
	amount, err := strconv.ParseFloat(amountParam, 64)
	if err != nil {
		return engine.SwapRequest{}, errors.New("invalid amount parameter")
	}
	return engine.SwapRequest{InputToken: input, OutputToken: output, Amount: amount}, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
