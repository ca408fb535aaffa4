package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/engine"
	"traderbot/internal/feed"
	"traderbot/internal/metrics"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
	"traderbot/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbol list override")
	timeframe := flag.String("timeframe", "", "bar timeframe override, e.g. 1h")
	timeoutMs := flag.Int("timeout-ms", 0, "network timeout override in milliseconds")
	flag.Parse()

	cfgPath := "config/traderbot.yaml"
	if p := os.Getenv("TRADERBOT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg = cfg.WithOverrides(config.Overrides{
		Symbols:   splitSymbols(*symbols),
		Timeframe: *timeframe,
		TimeoutMs: *timeoutMs,
	})

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)
	logger.Info("starting backtest",
		"symbols", cfg.Symbols,
		"timeframe", cfg.Timeframe,
		"strategy", cfg.Strategy.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	strat, err := builtins.DefaultRegistry().Create(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		log.Fatalf("creating strategy: %v", err)
	}

	src := feed.NewCachedFeed(feed.NewAlpacaFetcher(cfg), store.NewParquetStore(cfg.Storage.DataDir), cfg.Data.CacheMinutes)
	data, err := loadData(ctx, src, cfg)
	if err != nil {
		log.Fatalf("loading data: %v", err)
	}

	res, err := engine.RunBacktest(data, strat, cfg)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	m, err := metrics.Compute(res.Snapshots, res.Trades, cfg.Timeframe)
	if err != nil {
		log.Fatalf("computing metrics: %v", err)
	}
	printMetrics(m)

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	runID, err := runs.CreateRun(ctx, domain.RunTypeBacktest, "")
	if err != nil {
		log.Fatalf("creating run: %v", err)
	}
	if err := runs.SaveStrategyVersion(ctx, runID, strat.Name(), cfg.Strategy.Params); err != nil {
		log.Fatalf("saving strategy version: %v", err)
	}
	if err := runs.SaveSnapshots(ctx, runID, res.Snapshots); err != nil {
		log.Fatalf("saving snapshots: %v", err)
	}
	if err := runs.SaveTrades(ctx, runID, res.Trades); err != nil {
		log.Fatalf("saving trades: %v", err)
	}
	logger.Info("backtest saved",
		"run_id", runID,
		"final_equity", res.FinalEquity(),
		"trades", len(res.Trades))
}

func loadData(ctx context.Context, src feed.BarFetcher, cfg *config.Config) (map[string][]domain.Bar, error) {
	data := make(map[string][]domain.Bar, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		bars, err := src.FetchBars(ctx, sym, cfg.Timeframe, cfg.Data.LookbackLimit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", sym, err)
		}
		data[sym] = bars
	}
	return data, nil
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printMetrics(m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-15s %12.6f\n", k, m[k])
	}
}
