package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/feed"
	"traderbot/internal/learn"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
	"traderbot/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbol list override")
	timeframe := flag.String("timeframe", "", "bar timeframe override, e.g. 1h")
	trials := flag.Int("trials", 0, "number of tuning trials override")
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
		NTrials:   *trials,
	})

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)
	logger.Info("starting tuning",
		"strategy", cfg.Strategy.Name,
		"trials", cfg.Tuning.NTrials,
		"workers", cfg.Tuning.Workers)

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

	best, err := learn.Tune(data, cfg.Strategy.Name, builtins.DefaultRegistry(), cfg)
	if err != nil {
		log.Fatalf("tuning failed: %v", err)
	}
	fmt.Printf("best params: %v (score %.6f over %d trials)\n", best.Params, best.Score, best.Trials)

	if err := writeArtifact(best.Params); err != nil {
		log.Fatalf("writing tuning artifact: %v", err)
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	runID, err := runs.CreateRun(ctx, domain.RunTypeTuning, "")
	if err != nil {
		log.Fatalf("creating run: %v", err)
	}
	if err := runs.SaveStrategyVersion(ctx, runID, cfg.Strategy.Name, best.Params); err != nil {
		log.Fatalf("saving strategy version: %v", err)
	}
	logger.Info("tuning saved", "run_id", runID, "best_score", best.Score)
}

func writeArtifact(params map[string]int) error {
	if err := os.MkdirAll("runs", 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}
	name := filepath.Join("runs", fmt.Sprintf("tuning_%s.json", time.Now().UTC().Format("20060102_150405")))
	return os.WriteFile(name, payload, 0o644)
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
