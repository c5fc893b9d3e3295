package routing

// Route identifies the execution venue for a swap.
type Route string

const (
	RouteDEX Route = "DEX"
	RouteOTC Route = "OTC"
)

// Policy holds the routing thresholds. Deliberately the simplest possible
// policy: deterministic, side-effect free, no hidden heuristics.
type Policy struct {
	// MinOTCSize is the smallest trade (input-token units) eligible for
	// the OTC route.
	MinOTCSize float64
	// SlippageThresholdPct routes to OTC only when the DEX slippage
	// strictly exceeds it.
	SlippageThresholdPct float64
}

// DefaultPolicy returns the desk's standing thresholds.
func DefaultPolicy() Policy {
	return Policy{MinOTCSize: 500, SlippageThresholdPct: 1.0}
}

// Decide picks the route: OTC iff a pool is available, the trade meets the
// size floor, and DEX slippage strictly exceeds the threshold.
func (p Policy) Decide(amount, dexSlippagePct float64, otcAvailable bool) Route {
	if otcAvailable && amount >= p.MinOTCSize && dexSlippagePct > p.SlippageThresholdPct {
		return RouteOTC
	}
	return RouteDEX
}
