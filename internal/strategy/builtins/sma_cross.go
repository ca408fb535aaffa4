// Package builtins provides the built-in strategy implementations that ship
// with traderbot and a registry pre-populated with them.
package builtins

import (
	"fmt"

	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross is a simple moving average crossover strategy: long while the
// fast SMA is above the slow SMA, flat otherwise.
type SMACross struct {
	fast int
	slow int
}

// NewSMACross creates an SMACross strategy. The fast period must be
// positive and strictly smaller than the slow period.
func NewSMACross(fast, slow int) (*SMACross, error) {
	if fast <= 0 {
		return nil, fmt.Errorf("sma_cross: fast period must be positive, got %d", fast)
	}
	if fast >= slow {
		return nil, fmt.Errorf("sma_cross: fast period %d must be < slow period %d", fast, slow)
	}
	return &SMACross{fast: fast, slow: slow}, nil
}

// NewSMACrossFromParams is the registry factory for SMACross. It expects
// "fast" and "slow" keys.
func NewSMACrossFromParams(params map[string]int) (strategy.Strategy, error) {
	return NewSMACross(params["fast"], params["slow"])
}

// Name returns "sma_cross".
func (s *SMACross) Name() string { return "sma_cross" }

// Params returns the fast and slow periods.
func (s *SMACross) Params() []strategy.Param {
	return []strategy.Param{
		{Key: "fast", Value: s.fast},
		{Key: "slow", Value: s.slow},
	}
}

// GenerateSignals returns 1 wherever the fast SMA exceeds the slow SMA.
// Bars before the slow window has filled produce 0.
func (s *SMACross) GenerateSignals(bars []domain.Bar) []int {
	signals := make([]int, len(bars))
	smaFast := rollingMean(bars, s.fast)
	smaSlow := rollingMean(bars, s.slow)
	for i := range bars {
		if i >= s.slow-1 && smaFast[i] > smaSlow[i] {
			signals[i] = 1
		}
	}
	return signals
}

// rollingMean computes a simple moving average of closes over the given
// window. Indices before the window has filled hold 0.
func rollingMean(bars []domain.Bar, window int) []float64 {
	out := make([]float64, len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= window {
			sum -= bars[i-window].Close
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}
