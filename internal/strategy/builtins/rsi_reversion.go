package builtins

import (
	"fmt"

	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversion)(nil)

// RSIReversion is a mean-reversion strategy on Wilder's RSI: it goes long
// when RSI drops below the buy threshold, exits when RSI rises above the
// sell threshold, and holds the previous regime in between.
type RSIReversion struct {
	period int
	buyTh  int
	sellTh int
}

// NewRSIReversion creates an RSIReversion strategy. The period must be
// positive and the buy threshold strictly below the sell threshold.
func NewRSIReversion(period, buyTh, sellTh int) (*RSIReversion, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi_reversion: period must be positive, got %d", period)
	}
	if buyTh <= 0 || sellTh >= 100 || buyTh >= sellTh {
		return nil, fmt.Errorf("rsi_reversion: thresholds must satisfy 0 < buy %d < sell %d < 100", buyTh, sellTh)
	}
	return &RSIReversion{period: period, buyTh: buyTh, sellTh: sellTh}, nil
}

// NewRSIReversionFromParams is the registry factory for RSIReversion. It
// expects "period", "buy_th" and "sell_th" keys.
func NewRSIReversionFromParams(params map[string]int) (strategy.Strategy, error) {
	return NewRSIReversion(params["period"], params["buy_th"], params["sell_th"])
}

// Name returns "rsi_reversion".
func (s *RSIReversion) Name() string { return "rsi_reversion" }

// Params returns the RSI period and thresholds.
func (s *RSIReversion) Params() []strategy.Param {
	return []strategy.Param{
		{Key: "period", Value: s.period},
		{Key: "buy_th", Value: s.buyTh},
		{Key: "sell_th", Value: s.sellTh},
	}
}

// GenerateSignals maps the RSI series to a regime: 1 below the buy
// threshold, 0 above the sell threshold, previous regime otherwise.
func (s *RSIReversion) GenerateSignals(bars []domain.Bar) []int {
	signals := make([]int, len(bars))
	r := rsi(bars, s.period)
	prev := 0
	for i := range bars {
		switch {
		case i > 0 && r[i] < float64(s.buyTh):
			prev = 1
		case i > 0 && r[i] > float64(s.sellTh):
			prev = 0
		}
		signals[i] = prev
	}
	return signals
}

// rsi computes Wilder's RSI over the bar closes using an exponentially
// weighted mean of gains and losses with alpha = 1/period. Index 0 has no
// price change and holds 50 (neutral).
func rsi(bars []domain.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if len(bars) == 0 {
		return out
	}
	out[0] = 50

	alpha := 1 / float64(period)
	var maUp, maDown float64
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		up, down := 0.0, 0.0
		if delta > 0 {
			up = delta
		} else {
			down = -delta
		}
		if i == 1 {
			maUp, maDown = up, down
		} else {
			maUp = alpha*up + (1-alpha)*maUp
			maDown = alpha*down + (1-alpha)*maDown
		}
		if maDown == 0 {
			out[i] = 100
			continue
		}
		rs := maUp / maDown
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
