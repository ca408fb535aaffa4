// Package metrics derives performance statistics from an equity series and
// a trade log: return-based metrics (CAGR, Sharpe, Sortino, drawdown) and
// trade-level metrics (hit rate, profit factor, average trade).
package metrics

import (
	"fmt"
	"math"
	"sort"

	"traderbot/internal/domain"
	"traderbot/internal/util"
)

// Metric map keys.
const (
	KeyCAGR         = "CAGR"
	KeySharpe       = "Sharpe"
	KeySortino      = "Sortino"
	KeyMaxDrawdown  = "MaxDrawdown"
	KeyCalmar       = "Calmar"
	KeyHitRate      = "HitRate"
	KeyProfitFactor = "ProfitFactor"
	KeyAvgTrade     = "AvgTrade"
	KeyVolatility   = "Volatility"
)

// RealizedTrade is one closed round trip produced by pairing a BUY with the
// following SELL of the same symbol.
type RealizedTrade struct {
	Symbol string
	PnL    float64
}

// Compute derives the full metrics map from an account snapshot series and
// the trade log. The timeframe determines the annualization factor.
//
// Degenerate inputs produce sentinel values rather than errors: zero
// variance, zero duration and zero drawdown all yield 0 for the dependent
// metrics, and ProfitFactor is NaN when there are no losing trades.
func Compute(snapshots []domain.AccountSnapshot, trades []domain.Trade, timeframe string) (map[string]float64, error) {
	perYear, err := util.BarsPerYear(timeframe)
	if err != nil {
		return nil, fmt.Errorf("computing metrics: %w", err)
	}

	equity := make([]float64, len(snapshots))
	for i, s := range snapshots {
		equity[i] = s.Equity
	}
	returns := simpleReturns(equity)

	years := float64(len(equity)) / float64(perYear)
	cagr := 0.0
	if years > 0 && len(equity) > 0 && equity[0] != 0 {
		cagr = math.Pow(equity[len(equity)-1]/equity[0], 1/years) - 1
	}

	mean := meanOf(returns)
	vol := stdevOf(returns)
	sqrtPerYear := math.Sqrt(float64(perYear))

	sharpe := 0.0
	if vol != 0 {
		sharpe = mean / vol * sqrtPerYear
	}

	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	downside := stdevOf(negative)
	sortino := 0.0
	if downside != 0 {
		sortino = mean / downside * sqrtPerYear
	}

	maxDD := maxDrawdown(equity)
	calmar := 0.0
	if maxDD != 0 {
		calmar = cagr / math.Abs(maxDD)
	}

	realized := PairTrades(trades)
	wins, grossProfit, grossLoss, totalPnL := 0, 0.0, 0.0, 0.0
	for _, r := range realized {
		totalPnL += r.PnL
		if r.PnL > 0 {
			wins++
			grossProfit += r.PnL
		} else if r.PnL < 0 {
			grossLoss += -r.PnL
		}
	}

	hitRate := 0.0
	avgTrade := 0.0
	if len(realized) > 0 {
		hitRate = float64(wins) / float64(len(realized))
		avgTrade = totalPnL / float64(len(realized))
	}
	profitFactor := math.NaN()
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}

	return map[string]float64{
		KeyCAGR:         cagr,
		KeySharpe:       sharpe,
		KeySortino:      sortino,
		KeyMaxDrawdown:  maxDD,
		KeyCalmar:       calmar,
		KeyHitRate:      hitRate,
		KeyProfitFactor: profitFactor,
		KeyAvgTrade:     avgTrade,
		KeyVolatility:   vol * sqrtPerYear,
	}, nil
}

// PairTrades matches each SELL against the pending BUY of the same symbol,
// in timestamp order, and returns the realized round trips. A second BUY
// before the SELL silently replaces the pending entry, matching the
// ledger's single-lot position model. Unclosed entries produce no record.
func PairTrades(trades []domain.Trade) []RealizedTrade {
	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	entries := make(map[string]domain.Trade)
	var realized []RealizedTrade
	for _, t := range ordered {
		switch t.Side {
		case domain.TradeSideBuy:
			entries[t.Symbol] = t
		case domain.TradeSideSell:
			entry, ok := entries[t.Symbol]
			if !ok {
				continue
			}
			delete(entries, t.Symbol)
			realized = append(realized, RealizedTrade{
				Symbol: t.Symbol,
				PnL:    (t.Price-entry.Price)*t.Qty - entry.Fee - t.Fee,
			})
		}
	}
	return realized
}

// simpleReturns computes the ratio change between consecutive equity
// points. The first point has no return.
func simpleReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

// maxDrawdown returns the deepest peak-to-trough decline as a non-positive
// fraction of the running peak.
func maxDrawdown(equity []float64) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (e - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdevOf returns the sample standard deviation, or 0 when fewer than two
// values are present.
func stdevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
