package main

type errorResponse struct {
	Error string `json:"error"`
}

type liquidityRequest struct {
	Pair      string  `json:"pair"`
	Liquidity float64 `json:"liquidity"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ActivePools int    `json:"activePools"`
	WSClients   int    `json:"wsClients"`
	Uptime      string `json:"uptime"`
}
