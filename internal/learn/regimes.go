package learn

import (
	"math"

	"traderbot/internal/domain"
)

// Regime classifies one bar as trending, ranging, both, or neither.
type Regime struct {
	Trend bool
	Range bool
}

const (
	regimeTrendWindow = 200
	regimeATRWindow   = 14
	regimeATRQuiet    = 0.02
	regimeFlatSlope   = 1e-3
)

// DetectRegimes labels each bar with trend/range flags. Trend means the
// 200-bar moving average is rising. Range means the 14-bar average true
// range is below 2% of price and the moving average is near flat. Bars
// inside the warmup of the 200-bar average carry neither flag.
func DetectRegimes(bars []domain.Bar) []Regime {
	out := make([]Regime, len(bars))
	if len(bars) == 0 {
		return out
	}

	sma := rollingMean(closes(bars), regimeTrendWindow)
	tr := make([]float64, len(bars))
	for i, b := range bars {
		tr[i] = b.High - b.Low
	}
	atr := rollingMean(tr, regimeATRWindow)

	for i := range bars {
		// Slope needs two consecutive defined moving-average values.
		if i < regimeTrendWindow || math.IsNaN(sma[i]) || math.IsNaN(sma[i-1]) {
			continue
		}
		slope := sma[i] - sma[i-1]
		out[i].Trend = slope > 0

		atrRatio := 0.0
		if !math.IsNaN(atr[i]) && bars[i].Close != 0 {
			atrRatio = atr[i] / bars[i].Close
		}
		out[i].Range = atrRatio < regimeATRQuiet && math.Abs(slope) < regimeFlatSlope
	}
	return out
}

func closes(bars []domain.Bar) []float64 {
	vals := make([]float64, len(bars))
	for i, b := range bars {
		vals[i] = b.Close
	}
	return vals
}

// rollingMean returns the trailing window mean, NaN inside the warmup.
func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= window {
			sum -= vals[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
