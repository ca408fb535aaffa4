// Package engine drives the bar-by-bar trading simulation: it merges
// multi-symbol bar series, detects signal transitions, sizes entries through
// the equal-weight allocator, and executes them against the paper ledger.
package engine

import (
	"fmt"
	"sort"
	"time"

	"traderbot/internal/broker"
	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/strategy"
)

// BacktestResult holds the full output of one simulation run: the account
// snapshot per simulated timestamp and the executed trade log.
type BacktestResult struct {
	Snapshots []domain.AccountSnapshot
	Trades    []domain.Trade
}

// FinalEquity returns the equity of the last snapshot, or 0 when the run
// produced no snapshots.
func (r *BacktestResult) FinalEquity() float64 {
	if len(r.Snapshots) == 0 {
		return 0
	}
	return r.Snapshots[len(r.Snapshots)-1].Equity
}

// RunBacktest simulates the strategy's long/flat signal over the given bar
// series against a fresh paper ledger.
//
// Signals are generated once per symbol from its full series, then replayed
// chronologically over the sorted union of all symbols' timestamps. At each
// timestamp the engine first resolves the complete cross-symbol signal
// snapshot (carrying forward the previous value for symbols without a fresh
// signal), then acts on transitions: 0→1 buys the allocator-sized fraction
// of cash, 1→0 liquidates the whole position. After the transitions it marks
// the account to market using the last known price of every symbol seen so
// far.
func RunBacktest(
	barsBySymbol map[string][]domain.Bar,
	strat strategy.Strategy,
	cfg *config.Config,
) (*BacktestResult, error) {
	pb := broker.NewPaperBroker(cfg.Paper.StartingBalance, cfg.Paper.FeeBps, cfg.Paper.SlippageBps)

	symbols := make([]string, 0, len(barsBySymbol))
	for sym := range barsBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	// Generate each symbol's signal series once from its full history and
	// index it by timestamp.
	signalAt := make(map[string]map[time.Time]int, len(symbols))
	for _, sym := range symbols {
		bars := barsBySymbol[sym]
		signals := strat.GenerateSignals(bars)
		if len(signals) != len(bars) {
			return nil, fmt.Errorf("strategy %s: %d signals for %d bars of %s",
				strat.Name(), len(signals), len(bars), sym)
		}
		bySym := make(map[time.Time]int, len(signals))
		for i, s := range signals {
			bySym[bars[i].Timestamp] = s
		}
		signalAt[sym] = bySym
	}

	timeline := unionTimestamps(barsBySymbol)

	prevSig := make(map[string]int, len(symbols))
	barAt := make(map[string]map[time.Time]domain.Bar, len(symbols))
	for _, sym := range symbols {
		byTs := make(map[time.Time]domain.Bar, len(barsBySymbol[sym]))
		for _, b := range barsBySymbol[sym] {
			byTs[b.Timestamp] = b
		}
		barAt[sym] = byTs
	}

	lastPrice := make(map[string]float64, len(symbols))
	for _, ts := range timeline {
		// Resolve the complete signal snapshot before sizing anything, so
		// allocation cannot depend on symbol iteration order.
		current := make(map[string]int, len(symbols))
		for _, sym := range symbols {
			sig := prevSig[sym]
			if _, present := barAt[sym][ts]; present {
				if s, ok := signalAt[sym][ts]; ok {
					sig = s
				}
			}
			current[sym] = sig
		}
		targets := EqualWeightTargets(current, cfg.Risk.MaxPositionFraction)

		for _, sym := range symbols {
			bar, present := barAt[sym][ts]
			if !present {
				continue
			}
			lastPrice[sym] = bar.Close

			sig := current[sym]
			switch {
			case prevSig[sym] == 0 && sig == 1:
				pb.Buy(ts, sym, bar.Close, targets[sym])
			case prevSig[sym] == 1 && sig == 0:
				pb.Liquidate(ts, sym, bar.Close)
			}
			prevSig[sym] = sig
		}

		pb.MarkToMarket(ts, lastPrice)
	}

	return &BacktestResult{
		Snapshots: pb.Snapshots(),
		Trades:    pb.Trades(),
	}, nil
}

// unionTimestamps returns the sorted union of all symbols' bar timestamps.
func unionTimestamps(barsBySymbol map[string][]domain.Bar) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, bars := range barsBySymbol {
		for _, b := range bars {
			seen[b.Timestamp] = struct{}{}
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline
}
