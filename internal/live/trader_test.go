package live

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/store"
	"traderbot/internal/strategy"
)

// thresholdStrategy signals long whenever the close is above a fixed level,
// so tests drive transitions through polled bar prices.
type thresholdStrategy struct {
	level float64
}

func (s *thresholdStrategy) Name() string             { return "threshold" }
func (s *thresholdStrategy) Params() []strategy.Param { return []strategy.Param{{Key: "level", Value: int(s.level)}} }

func (s *thresholdStrategy) GenerateSignals(bars []domain.Bar) []int {
	signals := make([]int, len(bars))
	for i, b := range bars {
		if b.Close > s.level {
			signals[i] = 1
		}
	}
	return signals
}

// scriptFeed serves a fixed history and a queue of polled bars per symbol.
type scriptFeed struct {
	history map[string][]domain.Bar
	polls   map[string][]domain.Bar
}

func (f *scriptFeed) FetchBars(_ context.Context, symbol, _ string, limit int) ([]domain.Bar, error) {
	bars := f.history[symbol]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (f *scriptFeed) PollLatest(_ context.Context, symbol, _ string) (domain.Bar, error) {
	queue := f.polls[symbol]
	if len(queue) == 0 {
		return f.history[symbol][len(f.history[symbol])-1], nil
	}
	bar := queue[0]
	if len(queue) > 1 {
		f.polls[symbol] = queue[1:]
	}
	return bar, nil
}

func bar(symbol string, ts time.Time, close float64) domain.Bar {
	return domain.Bar{
		Symbol: symbol, Timestamp: ts,
		Open: close, High: close, Low: close, Close: close,
		Volume: 10,
	}
}

func liveConfig() *config.Config {
	return &config.Config{
		Symbols:   []string{"AAA"},
		Timeframe: "1h",
		Paper:     config.PaperConfig{StartingBalance: 10000},
		Risk:      config.RiskConfig{MaxPositionFraction: 0.5, MaxDailyLossFraction: 0.05},
		Data:      config.DataConfig{LookbackLimit: 10},
		Live:      config.LiveConfig{PollIntervalSec: 60, RetryDelaySec: 5},
	}
}

func newTestTrader(t *testing.T, f *scriptFeed) *Trader {
	t.Helper()
	runs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	tr := NewTrader(liveConfig(), f, &thresholdStrategy{level: 100}, runs)
	clock := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return tr
}

func flatHistory(symbol string, end time.Time, n int, close float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = bar(symbol, end.Add(-time.Duration(n-1-i)*time.Hour), close)
	}
	return bars
}

func TestTraderEntryAndExit(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &scriptFeed{
		history: map[string][]domain.Bar{"AAA": flatHistory("AAA", t0, 5, 95)},
		polls: map[string][]domain.Bar{"AAA": {
			bar("AAA", t0.Add(time.Hour), 105),
			bar("AAA", t0.Add(2*time.Hour), 95),
		}},
	}
	tr := newTestTrader(t, f)
	ctx := context.Background()

	if err := tr.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tr.prevSig["AAA"] != 0 {
		t.Fatalf("seed signal = %d, want 0", tr.prevSig["AAA"])
	}

	// First tick crosses the threshold: one entry sized by the allocator.
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	trades := tr.broker.Trades()
	if len(trades) != 1 || trades[0].Side != domain.TradeSideBuy {
		t.Fatalf("after entry tick trades = %+v, want one buy", trades)
	}
	// Half the cash at 105: qty = 5000/105.
	wantQty := 5000.0 / 105.0
	if diff := trades[0].Qty - wantQty; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("entry qty = %v, want %v", trades[0].Qty, wantQty)
	}

	// Second tick falls back under the threshold: full liquidation.
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	trades = tr.broker.Trades()
	if len(trades) != 2 || trades[1].Side != domain.TradeSideSell {
		t.Fatalf("after exit tick trades = %+v, want buy then sell", trades)
	}
	if pos := tr.broker.Position("AAA"); pos.Qty != 0 {
		t.Errorf("position qty after exit = %v, want 0", pos.Qty)
	}
}

func TestTraderPersistsArtifacts(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &scriptFeed{
		history: map[string][]domain.Bar{"AAA": flatHistory("AAA", t0, 5, 95)},
		polls: map[string][]domain.Bar{"AAA": {
			bar("AAA", t0.Add(time.Hour), 105),
		}},
	}
	tr := newTestTrader(t, f)
	ctx := context.Background()

	if err := tr.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	gotTrades, err := tr.runs.ReadTrades(ctx, tr.runID)
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(gotTrades) != 1 {
		t.Fatalf("persisted %d trades, want 1 (no duplicates across ticks)", len(gotTrades))
	}

	gotSnaps, err := tr.runs.ReadSnapshots(ctx, tr.runID)
	if err != nil {
		t.Fatalf("ReadSnapshots: %v", err)
	}
	if len(gotSnaps) != 2 {
		t.Fatalf("persisted %d snapshots, want one per tick", len(gotSnaps))
	}

	runs, err := tr.runs.ListRuns(ctx, domain.RunTypePaper, 1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != tr.runID {
		t.Fatalf("run record not found: %+v", runs)
	}
}

func TestTraderCircuitBreakerGatesEntriesOnly(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &scriptFeed{
		history: map[string][]domain.Bar{"AAA": flatHistory("AAA", t0, 5, 105)},
		polls: map[string][]domain.Bar{"AAA": {
			bar("AAA", t0.Add(time.Hour), 106),
			bar("AAA", t0.Add(2*time.Hour), 95),
			bar("AAA", t0.Add(3*time.Hour), 106),
		}},
	}
	tr := newTestTrader(t, f)
	ctx := context.Background()

	if err := tr.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// History is already above the threshold, so Init seeds signal 1 and the
	// trader holds no position until a fresh transition.
	if tr.prevSig["AAA"] != 1 {
		t.Fatalf("seed signal = %d, want 1", tr.prevSig["AAA"])
	}

	// Trip the breaker before any entries.
	day := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	tr.risk.Update(day, 10000)
	tr.risk.Update(day.Add(time.Minute), 9000)
	if tr.risk.AllowTrading() {
		t.Fatal("breaker should be tripped")
	}

	// Tick 1 stays long (no transition). Tick 2 drops to flat, tick 3 is a
	// fresh 0→1 entry attempt that the breaker must block.
	for i := 0; i < 3; i++ {
		if err := tr.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if trades := tr.broker.Trades(); len(trades) != 0 {
		t.Fatalf("tripped breaker allowed trades: %+v", trades)
	}
}

func TestTraderExitAllowedWhenTripped(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &scriptFeed{
		history: map[string][]domain.Bar{"AAA": flatHistory("AAA", t0, 5, 95)},
		polls: map[string][]domain.Bar{"AAA": {
			bar("AAA", t0.Add(time.Hour), 105),
			bar("AAA", t0.Add(2*time.Hour), 95),
		}},
	}
	tr := newTestTrader(t, f)
	ctx := context.Background()

	if err := tr.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick (entry): %v", err)
	}
	if len(tr.broker.Trades()) != 1 {
		t.Fatal("expected the entry to execute before tripping")
	}

	day := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	tr.risk.Update(day, 10000)
	tr.risk.Update(day.Add(time.Minute), 9000)

	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick (exit): %v", err)
	}
	trades := tr.broker.Trades()
	if len(trades) != 2 || trades[1].Side != domain.TradeSideSell {
		t.Fatalf("tripped breaker must still allow exits, trades = %+v", trades)
	}
}

func TestExtendHistory(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &scriptFeed{history: map[string][]domain.Bar{"AAA": flatHistory("AAA", t0, 3, 95)}}
	tr := newTestTrader(t, f)
	if err := tr.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Same timestamp replaces the partial bar in place.
	if !tr.extendHistory("AAA", bar("AAA", t0, 96)) {
		t.Fatal("same-timestamp bar should update history")
	}
	if n := len(tr.history["AAA"]); n != 3 {
		t.Fatalf("history length = %d after in-place update, want 3", n)
	}
	if c := tr.history["AAA"][2].Close; c != 96 {
		t.Fatalf("last close = %v, want replaced 96", c)
	}

	// Newer timestamp appends.
	if !tr.extendHistory("AAA", bar("AAA", t0.Add(time.Hour), 97)) {
		t.Fatal("newer bar should extend history")
	}
	if n := len(tr.history["AAA"]); n != 4 {
		t.Fatalf("history length = %d after append, want 4", n)
	}

	// Older timestamp is ignored.
	if tr.extendHistory("AAA", bar("AAA", t0.Add(-time.Hour), 90)) {
		t.Fatal("stale bar should be ignored")
	}
}
