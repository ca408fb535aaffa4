package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
symbols: ["BTC/EUR", "ETH/EUR"]
timeframe: "1h"
paper:
  starting_balance: 10000
  fee_bps: 10
  slippage_bps: 5
risk:
  max_position_fraction: 0.5
  max_daily_loss_fraction: 0.05
strategy:
  name: "sma_cross"
  params:
    fast: 20
    slow: 50
data:
  lookback_limit: 1000
  cache_minutes: 15
tuning:
  n_trials: 25
  direction: "maximize"
storage:
  data_dir: "/tmp/traderbot/data"
  sqlite_path: "/tmp/traderbot/traderbot.db"
server:
  grpc_port: 9090
logging:
  level: "info"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "APCA_API_DATA_URL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Core settings --
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "BTC/EUR" {
		t.Errorf("Symbols = %v, want [BTC/EUR ETH/EUR]", cfg.Symbols)
	}
	if cfg.Timeframe != "1h" {
		t.Errorf("Timeframe = %q, want %q", cfg.Timeframe, "1h")
	}

	// -- Paper --
	if cfg.Paper.StartingBalance != 10000 {
		t.Errorf("Paper.StartingBalance = %v, want 10000", cfg.Paper.StartingBalance)
	}
	if cfg.Paper.FeeBps != 10 || cfg.Paper.SlippageBps != 5 {
		t.Errorf("Paper fees = %v/%v, want 10/5", cfg.Paper.FeeBps, cfg.Paper.SlippageBps)
	}

	// -- Risk --
	if cfg.Risk.MaxPositionFraction != 0.5 {
		t.Errorf("Risk.MaxPositionFraction = %v, want 0.5", cfg.Risk.MaxPositionFraction)
	}
	if cfg.Risk.MaxDailyLossFraction != 0.05 {
		t.Errorf("Risk.MaxDailyLossFraction = %v, want 0.05", cfg.Risk.MaxDailyLossFraction)
	}

	// -- Strategy --
	if cfg.Strategy.Name != "sma_cross" {
		t.Errorf("Strategy.Name = %q, want %q", cfg.Strategy.Name, "sma_cross")
	}
	if cfg.Strategy.Params["fast"] != 20 || cfg.Strategy.Params["slow"] != 50 {
		t.Errorf("Strategy.Params = %v, want fast=20 slow=50", cfg.Strategy.Params)
	}

	// -- Tuning --
	if cfg.Tuning.NTrials != 25 {
		t.Errorf("Tuning.NTrials = %d, want 25", cfg.Tuning.NTrials)
	}
	if cfg.Tuning.Direction != "maximize" {
		t.Errorf("Tuning.Direction = %q, want maximize", cfg.Tuning.Direction)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.WalkForward.TrainDays != 180 {
		t.Errorf("WalkForward.TrainDays = %d, want default 180", cfg.WalkForward.TrainDays)
	}
	if cfg.WalkForward.TestDays != 30 {
		t.Errorf("WalkForward.TestDays = %d, want default 30", cfg.WalkForward.TestDays)
	}
	if cfg.Network.TimeoutMs != 20000 {
		t.Errorf("Network.TimeoutMs = %d, want default 20000", cfg.Network.TimeoutMs)
	}
	if cfg.Network.MaxRetries != 5 {
		t.Errorf("Network.MaxRetries = %d, want default 5", cfg.Network.MaxRetries)
	}
	if cfg.Live.PollIntervalSec != 60 {
		t.Errorf("Live.PollIntervalSec = %d, want default 60", cfg.Live.PollIntervalSec)
	}
	if cfg.Live.RetryDelaySec != 5 {
		t.Errorf("Live.RetryDelaySec = %d, want default 5", cfg.Live.RetryDelaySec)
	}
	if cfg.Tuning.Workers != 1 {
		t.Errorf("Tuning.Workers = %d, want default 1", cfg.Tuning.Workers)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("Server.HTTPPort = %d, want default 8080", cfg.Server.HTTPPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	t.Setenv("DATA_DIR", "/override/data")
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("Storage.DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	if cfg.Feed.APIKey != "env-key" {
		t.Errorf("Feed.APIKey = %q, want env override", cfg.Feed.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnvOverrides(t)

	cases := []struct {
		name string
		yaml string
	}{
		{"no symbols", "timeframe: 1h\npaper:\n  starting_balance: 100\nrisk:\n  max_position_fraction: 0.5\n  max_daily_loss_fraction: 0.05\n"},
		{"no timeframe", "symbols: [A]\npaper:\n  starting_balance: 100\nrisk:\n  max_position_fraction: 0.5\n  max_daily_loss_fraction: 0.05\n"},
		{"zero balance", "symbols: [A]\ntimeframe: 1h\nrisk:\n  max_position_fraction: 0.5\n  max_daily_loss_fraction: 0.05\n"},
		{"bad fraction", "symbols: [A]\ntimeframe: 1h\npaper:\n  starting_balance: 100\nrisk:\n  max_position_fraction: 1.5\n  max_daily_loss_fraction: 0.05\n"},
	}
	for _, c := range cases {
		path := writeTestConfig(t, c.yaml)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load() should fail", c.name)
		}
	}
}

func TestWithOverrides(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	derived := cfg.WithOverrides(Overrides{
		Symbols:   []string{"SOL/EUR"},
		Timeframe: "4h",
		TimeoutMs: 1234,
	})

	if derived.Timeframe != "4h" || len(derived.Symbols) != 1 || derived.Symbols[0] != "SOL/EUR" {
		t.Errorf("derived config missing overrides: %v %v", derived.Symbols, derived.Timeframe)
	}
	if derived.Network.TimeoutMs != 1234 {
		t.Errorf("derived Network.TimeoutMs = %d, want 1234", derived.Network.TimeoutMs)
	}

	// The original must be untouched.
	if cfg.Timeframe != "1h" || len(cfg.Symbols) != 2 {
		t.Error("WithOverrides mutated the original config")
	}

	// Mutating the derived params map must not alias the original.
	derived.Strategy.Params["fast"] = 99
	if cfg.Strategy.Params["fast"] != 20 {
		t.Error("derived Strategy.Params aliases the original map")
	}
}
