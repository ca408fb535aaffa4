package builtins

import "traderbot/internal/strategy"

// DefaultRegistry returns a Registry with all built-in strategies
// registered.
func DefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("sma_cross", NewSMACrossFromParams)
	r.Register("rsi_reversion", NewRSIReversionFromParams)
	return r
}
