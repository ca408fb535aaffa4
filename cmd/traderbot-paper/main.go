package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"traderbot/internal/config"
	"traderbot/internal/feed"
	"traderbot/internal/httpapi"
	"traderbot/internal/live"
	"traderbot/internal/store"
	"traderbot/internal/strategy/builtins"
	"traderbot/internal/util"
)

// lastParamsFile is written by the walk-forward optimizer; when present it
// overrides the configured strategy parameters.
const lastParamsFile = "config.last_params.json"

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbol list override")
	timeframe := flag.String("timeframe", "", "bar timeframe override, e.g. 1h")
	check := flag.Bool("check", false, "probe a running trader's health endpoint and exit")
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

	if *check {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		up, err := live.CheckHealth(ctx, fmt.Sprintf("localhost:%d", cfg.Server.GRPCPort))
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		fmt.Printf("serving: %v\n", up)
		if !up {
			os.Exit(1)
		}
		return
	}

	params := cfg.Strategy.Params
	if tuned, ok := loadLastParams(); ok {
		logger.Info("using tuned params", "source", lastParamsFile, "params", tuned)
		params = tuned
	}
	strat, err := builtins.DefaultRegistry().Create(cfg.Strategy.Name, params)
	if err != nil {
		log.Fatalf("creating strategy: %v", err)
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	src := feed.NewCachedFeed(feed.NewAlpacaFetcher(cfg), store.NewParquetStore(cfg.Storage.DataDir), cfg.Data.CacheMinutes)
	trader := live.NewTrader(cfg, src, strat, runs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	health := live.NewServer(logger)
	go func() {
		if err := health.Serve(ctx, cfg.Server.GRPCPort); err != nil {
			logger.Error("health server failed", "err", err)
		}
	}()
	health.SetServing(true)
	defer health.SetServing(false)

	dash := httpapi.NewDashboardServer(runs, cfg.Timeframe, logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: dash.Handler(),
	}
	go func() {
		logger.Info("dashboard api listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("dashboard api failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		httpSrv.Shutdown(shutCtx)
	}()

	if err := trader.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("paper trading loop failed: %v", err)
	}
	logger.Info("paper trading stopped")
}

func loadLastParams() (map[string]int, bool) {
	payload, err := os.ReadFile(lastParamsFile)
	if err != nil {
		return nil, false
	}
	var params map[string]int
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, false
	}
	return params, true
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
