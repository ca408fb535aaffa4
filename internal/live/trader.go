// Package live runs the paper-trading loop against a live market-data feed:
// it polls for fresh bars, regenerates signals, executes transitions on the
// paper ledger, and persists run artifacts. A gRPC health endpoint reports
// loop liveness.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"traderbot/internal/broker"
	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/feed"
	"traderbot/internal/store"
	"traderbot/internal/strategy"
)

// Trader drives live paper trading for one strategy over the configured
// symbols. Construct it with NewTrader, then call Run.
type Trader struct {
	cfg    *config.Config
	feed   feed.BarFetcher
	strat  strategy.Strategy
	broker *broker.PaperBroker
	risk   *engine.DailyRiskManager
	runs   store.RunStore
	log    *slog.Logger

	runID      int64
	history    map[string][]domain.Bar
	lastSig    map[string]int
	prevSig    map[string]int
	savedCount int // trades already persisted

	// Overridable in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewTrader creates a Trader over the given feed, strategy, and run store.
func NewTrader(cfg *config.Config, f feed.BarFetcher, strat strategy.Strategy, runs store.RunStore) *Trader {
	return &Trader{
		cfg:     cfg,
		feed:    f,
		strat:   strat,
		broker:  broker.NewPaperBroker(cfg.Paper.StartingBalance, cfg.Paper.FeeBps, cfg.Paper.SlippageBps),
		risk:    engine.NewDailyRiskManager(cfg.Risk.MaxDailyLossFraction),
		runs:    runs,
		log:     slog.Default().With("component", "live"),
		history: make(map[string][]domain.Bar),
		lastSig: make(map[string]int),
		prevSig: make(map[string]int),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Init registers the run, loads the initial bar history for every symbol,
// and seeds the signal state so the first tick only acts on transitions that
// happen after startup.
func (t *Trader) Init(ctx context.Context) error {
	runID, err := t.runs.CreateRun(ctx, domain.RunTypePaper, "")
	if err != nil {
		return err
	}
	t.runID = runID

	if err := t.runs.SaveStrategyVersion(ctx, runID, t.strat.Name(), strategy.ParamsToMap(t.strat.Params())); err != nil {
		return err
	}

	for _, sym := range t.cfg.Symbols {
		bars, err := t.feed.FetchBars(ctx, sym, t.cfg.Timeframe, t.cfg.Data.LookbackLimit)
		if err != nil {
			return err
		}
		t.history[sym] = bars
		sig := 0
		if len(bars) > 0 {
			signals := t.strat.GenerateSignals(bars)
			sig = signals[len(signals)-1]
		}
		t.lastSig[sym] = sig
		t.prevSig[sym] = sig
	}

	params, _ := json.Marshal(strategy.ParamsToMap(t.strat.Params()))
	t.log.Info("paper trading initialized",
		"run_id", runID,
		"strategy", t.strat.Name(),
		"params", string(params),
		"symbols", t.cfg.Symbols)
	return nil
}

// Tick performs one polling iteration: refresh each symbol's latest bar,
// act on signal transitions, mark the account to market at wall-clock time,
// update the daily circuit breaker, and persist new artifacts.
func (t *Trader) Tick(ctx context.Context) error {
	prices := make(map[string]float64, len(t.cfg.Symbols))
	for _, sym := range t.cfg.Symbols {
		latest, err := t.feed.PollLatest(ctx, sym, t.cfg.Timeframe)
		if err != nil {
			return err
		}
		prices[sym] = latest.Close

		if t.extendHistory(sym, latest) {
			signals := t.strat.GenerateSignals(t.history[sym])
			t.lastSig[sym] = signals[len(signals)-1]
		}

		sig := t.lastSig[sym]
		switch {
		case t.prevSig[sym] == 0 && sig == 1 && t.risk.AllowTrading():
			targets := engine.EqualWeightTargets(t.lastSig, t.cfg.Risk.MaxPositionFraction)
			t.broker.Buy(t.now().UTC(), sym, latest.Close, targets[sym])
		case t.prevSig[sym] == 1 && sig == 0:
			t.broker.Liquidate(t.now().UTC(), sym, latest.Close)
		}
		t.prevSig[sym] = sig
	}

	ts := t.now().UTC()
	t.broker.MarkToMarket(ts, prices)

	snaps := t.broker.Snapshots()
	equity := snaps[len(snaps)-1].Equity
	t.risk.Update(ts, equity)

	if err := t.persist(ctx, snaps[len(snaps)-1]); err != nil {
		return err
	}

	t.log.Info("heartbeat",
		"equity", equity,
		"cash", t.broker.Cash(),
		"trading_allowed", t.risk.AllowTrading())
	return nil
}

// Run executes the polling loop until the context is cancelled. Tick errors
// are logged and retried after a fixed delay rather than stopping the loop.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.Init(ctx); err != nil {
		return err
	}

	pollInterval := time.Duration(t.cfg.Live.PollIntervalSec) * time.Second
	retryDelay := time.Duration(t.cfg.Live.RetryDelaySec) * time.Second

	t.log.Info("starting paper trading loop", "poll_interval", pollInterval)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.Error("tick failed", "err", err)
			t.sleep(ctx, retryDelay)
			continue
		}
		t.sleep(ctx, pollInterval)
	}
}

// extendHistory appends the bar when it is newer than the stored history,
// replacing the last bar when the timestamp matches (an updating partial
// bar). Reports whether the history changed.
func (t *Trader) extendHistory(sym string, bar domain.Bar) bool {
	hist := t.history[sym]
	if len(hist) == 0 {
		t.history[sym] = []domain.Bar{bar}
		return true
	}
	last := hist[len(hist)-1].Timestamp
	switch {
	case bar.Timestamp.After(last):
		t.history[sym] = append(hist, bar)
		return true
	case bar.Timestamp.Equal(last):
		hist[len(hist)-1] = bar
		return true
	}
	return false
}

// persist writes the newest snapshot, any unsaved trades, and the current
// open positions.
func (t *Trader) persist(ctx context.Context, snap domain.AccountSnapshot) error {
	if err := t.runs.SaveSnapshots(ctx, t.runID, []domain.AccountSnapshot{snap}); err != nil {
		return err
	}
	trades := t.broker.Trades()
	if len(trades) > t.savedCount {
		if err := t.runs.SaveTrades(ctx, t.runID, trades[t.savedCount:]); err != nil {
			return err
		}
		t.savedCount = len(trades)
	}
	return t.runs.SavePositions(ctx, t.runID, t.broker.Positions())
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
