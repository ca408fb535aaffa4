// Package learn implements parameter search over strategies: single-window
// tuning via bounded random search, and walk-forward optimization chaining
// tuning and out-of-sample testing across sliding windows.
package learn

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/metrics"
	"traderbot/internal/strategy"
)

// TuningResult holds the best parameter set found for one training window.
type TuningResult struct {
	Params map[string]int
	Score  float64
	Trials int
}

// suggestParams draws one parameter set uniformly from the strategy's
// bounded search space. Spaces mirror the strategy constraints, but a drawn
// set is still validated by the factory, so constraint violations fail the
// trial instead of corrupting the search.
func suggestParams(strategyName string, rng *rand.Rand) (map[string]int, error) {
	intIn := func(lo, hi int) int { // inclusive bounds
		return lo + rng.Intn(hi-lo+1)
	}
	switch strategyName {
	case "sma_cross":
		fast := intIn(5, 50)
		slow := intIn(fast+10, 200)
		return map[string]int{"fast": fast, "slow": slow}, nil
	case "rsi_reversion":
		return map[string]int{
			"period":  intIn(5, 50),
			"buy_th":  intIn(10, 40),
			"sell_th": intIn(60, 90),
		}, nil
	}
	return nil, fmt.Errorf("no search space for strategy %q", strategyName)
}

// trial is one parameter evaluation: backtest plus objective score.
type trial struct {
	params map[string]int
	score  float64
	err    error
}

// Tune runs the configured number of random-search trials for the named
// strategy over the given data and returns the best parameter set under the
// CAGR+MaxDrawdown objective.
//
// Trials are pure evaluations over read-only inputs and run on a worker
// pool; each trial backtests against its own fresh ledger. Invalid
// parameter combinations and failed backtests count as failed trials.
func Tune(
	barsBySymbol map[string][]domain.Bar,
	strategyName string,
	reg *strategy.Registry,
	cfg *config.Config,
) (*TuningResult, error) {
	if !reg.Has(strategyName) {
		return nil, fmt.Errorf("unknown strategy %q", strategyName)
	}

	nTrials := cfg.Tuning.NTrials
	workers := cfg.Tuning.Workers
	if workers < 1 {
		workers = 1
	}

	// The suggestion step is the only serialization point: draw every
	// parameter set up front, then evaluate in parallel.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	suggestions := make([]map[string]int, 0, nTrials)
	for i := 0; i < nTrials; i++ {
		params, err := suggestParams(strategyName, rng)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, params)
	}

	jobs := make(chan map[string]int)
	results := make(chan trial, nTrials)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for params := range jobs {
				score, err := evaluate(barsBySymbol, strategyName, params, reg, cfg)
				results <- trial{params: params, score: score, err: err}
			}
		}()
	}
	go func() {
		for _, params := range suggestions {
			jobs <- params
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	maximize := cfg.Tuning.Direction != "minimize"
	best := (*TuningResult)(nil)
	completed := 0
	for t := range results {
		if t.err != nil {
			slog.Debug("trial failed", "strategy", strategyName, "params", t.params, "err", t.err)
			continue
		}
		completed++
		if best == nil || better(t.score, best.Score, maximize) {
			best = &TuningResult{Params: t.params, Score: t.score}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("tuning %s: all %d trials failed", strategyName, nTrials)
	}
	best.Trials = completed
	return best, nil
}

func better(candidate, incumbent float64, maximize bool) bool {
	if maximize {
		return candidate > incumbent
	}
	return candidate < incumbent
}

// evaluate scores one parameter set: backtest over the full data, then
// CAGR + MaxDrawdown (drawdown is non-positive, so the objective rewards
// return net of drawdown magnitude).
func evaluate(
	barsBySymbol map[string][]domain.Bar,
	strategyName string,
	params map[string]int,
	reg *strategy.Registry,
	cfg *config.Config,
) (float64, error) {
	strat, err := reg.Create(strategyName, params)
	if err != nil {
		return 0, err
	}
	res, err := engine.RunBacktest(barsBySymbol, strat, cfg)
	if err != nil {
		return 0, err
	}
	m, err := metrics.Compute(res.Snapshots, res.Trades, cfg.Timeframe)
	if err != nil {
		return 0, err
	}
	score := m[metrics.KeyCAGR] + m[metrics.KeyMaxDrawdown]
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("objective is not finite")
	}
	return score, nil
}
