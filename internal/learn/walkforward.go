package learn

import (
	"fmt"
	"log/slog"
	"time"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/strategy"
)

// Window records one train/test split and the parameters tuned on it.
type Window struct {
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
	Params     map[string]int
	Score      float64
}

// WalkForwardResult is the stitched out-of-sample run: the concatenated
// test-window equity series, the per-window record, and the parameters from
// the most recent window (the set a live deployment would trade with).
type WalkForwardResult struct {
	Snapshots []domain.AccountSnapshot
	Windows   []Window
	Params    map[string]int
}

// WalkForward slides a train/test split across the data: tune on each
// training window, backtest the winning parameters on the following test
// window, and stitch the test equity curves into one continuous series.
// Each window's test run starts from a fresh ledger; stitching rescales it
// so the series compounds from where the previous window ended.
func WalkForward(
	barsBySymbol map[string][]domain.Bar,
	strategyName string,
	reg *strategy.Registry,
	cfg *config.Config,
) (*WalkForwardResult, error) {
	if len(barsBySymbol) == 0 {
		return nil, fmt.Errorf("walk-forward: no data")
	}
	trainSpan := time.Duration(cfg.WalkForward.TrainDays) * 24 * time.Hour
	testSpan := time.Duration(cfg.WalkForward.TestDays) * 24 * time.Hour

	start, end, err := commonRange(barsBySymbol)
	if err != nil {
		return nil, err
	}

	res := &WalkForwardResult{}
	equity := cfg.Paper.StartingBalance
	cursor := start
	for {
		trainEnd := cursor.Add(trainSpan)
		testEnd := trainEnd.Add(testSpan)
		if testEnd.After(end) {
			break
		}

		trainBars := sliceBars(barsBySymbol, cursor, trainEnd)
		testBars := sliceBars(barsBySymbol, trainEnd, testEnd)

		tuned, err := Tune(trainBars, strategyName, reg, cfg)
		if err != nil {
			return nil, fmt.Errorf("walk-forward train %s: %w", cursor.Format(time.DateOnly), err)
		}
		strat, err := reg.Create(strategyName, tuned.Params)
		if err != nil {
			return nil, err
		}
		run, err := engine.RunBacktest(testBars, strat, cfg)
		if err != nil {
			return nil, fmt.Errorf("walk-forward test %s: %w", trainEnd.Format(time.DateOnly), err)
		}
		if len(run.Snapshots) == 0 {
			return nil, fmt.Errorf("walk-forward test %s: empty window", trainEnd.Format(time.DateOnly))
		}

		// Rescale the fresh-ledger test run onto the running equity so
		// consecutive windows compound. Cash and position value scale by
		// the same factor, preserving the equity identity.
		scale := equity / run.Snapshots[0].Equity
		for _, s := range run.Snapshots {
			res.Snapshots = append(res.Snapshots, domain.AccountSnapshot{
				Timestamp:      s.Timestamp,
				Equity:         s.Equity * scale,
				Cash:           s.Cash * scale,
				PositionsValue: s.PositionsValue * scale,
			})
		}
		equity = res.Snapshots[len(res.Snapshots)-1].Equity

		res.Windows = append(res.Windows, Window{
			TrainStart: cursor,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    testEnd,
			Params:     tuned.Params,
			Score:      tuned.Score,
		})
		res.Params = tuned.Params
		slog.Info("walk-forward window done",
			"train_start", cursor.Format(time.DateOnly),
			"test_end", testEnd.Format(time.DateOnly),
			"params", tuned.Params,
			"equity", equity)

		cursor = trainEnd
	}
	if len(res.Windows) == 0 {
		return nil, fmt.Errorf("walk-forward: data span shorter than one train+test window")
	}
	return res, nil
}

// commonRange returns the latest first timestamp and earliest last timestamp
// across symbols, the span over which every symbol has data.
func commonRange(barsBySymbol map[string][]domain.Bar) (time.Time, time.Time, error) {
	var start, end time.Time
	first := true
	for sym, bars := range barsBySymbol {
		if len(bars) == 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("walk-forward: no bars for %s", sym)
		}
		lo, hi := bars[0].Timestamp, bars[len(bars)-1].Timestamp
		if first {
			start, end = lo, hi
			first = false
			continue
		}
		if lo.After(start) {
			start = lo
		}
		if hi.Before(end) {
			end = hi
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("walk-forward: symbols share no overlapping range")
	}
	return start, end, nil
}

// sliceBars returns each symbol's bars with timestamps in [from, to).
func sliceBars(barsBySymbol map[string][]domain.Bar, from, to time.Time) map[string][]domain.Bar {
	out := make(map[string][]domain.Bar, len(barsBySymbol))
	for sym, bars := range barsBySymbol {
		var window []domain.Bar
		for _, b := range bars {
			if b.Timestamp.Before(from) || !b.Timestamp.Before(to) {
				continue
			}
			window = append(window, b)
		}
		out[sym] = window
	}
	return out
}
