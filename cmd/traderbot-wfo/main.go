package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/feed"
	"traderbot/internal/learn"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
	"traderbot/internal/util"
)

// lastParamsFile carries the newest walk-forward parameters to the paper
// trader.
const lastParamsFile = "config.last_params.json"

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbol list override")
	timeframe := flag.String("timeframe", "", "bar timeframe override, e.g. 1h")
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
	})

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)
	logger.Info("starting walk-forward optimization",
		"strategy", cfg.Strategy.Name,
		"train_days", cfg.WalkForward.TrainDays,
		"test_days", cfg.WalkForward.TestDays)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src := feed.NewCachedFeed(feed.NewAlpacaFetcher(cfg), store.NewParquetStore(cfg.Storage.DataDir), cfg.Data.CacheMinutes)
	data := make(map[string][]domain.Bar, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		bars, err := src.FetchBars(ctx, sym, cfg.Timeframe, cfg.Data.LookbackLimit)
		if err != nil {
			log.Fatalf("fetching %s: %v", sym, err)
		}
		data[sym] = bars
	}

	res, err := learn.WalkForward(data, cfg.Strategy.Name, builtins.DefaultRegistry(), cfg)
	if err != nil {
		log.Fatalf("walk-forward failed: %v", err)
	}
	fmt.Printf("suggested params: %v (%d windows)\n", res.Params, len(res.Windows))

	payload, err := json.Marshal(res.Params)
	if err != nil {
		log.Fatalf("encoding params: %v", err)
	}
	if err := os.WriteFile(lastParamsFile, payload, 0o644); err != nil {
		log.Fatalf("writing %s: %v", lastParamsFile, err)
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	runID, err := runs.CreateRun(ctx, domain.RunTypeWFO, "")
	if err != nil {
		log.Fatalf("creating run: %v", err)
	}
	if err := runs.SaveStrategyVersion(ctx, runID, cfg.Strategy.Name, res.Params); err != nil {
		log.Fatalf("saving strategy version: %v", err)
	}
	if err := runs.SaveSnapshots(ctx, runID, res.Snapshots); err != nil {
		log.Fatalf("saving stitched equity: %v", err)
	}
	final := res.Snapshots[len(res.Snapshots)-1].Equity
	logger.Info("walk-forward saved", "run_id", runID, "final_equity", final)
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
