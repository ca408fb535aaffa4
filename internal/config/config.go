// Package config loads and validates the traderbot YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for traderbot.
type Config struct {
	Symbols     []string          `yaml:"symbols"`
	Timeframe   string            `yaml:"timeframe"`
	Paper       PaperConfig       `yaml:"paper"`
	Risk        RiskConfig        `yaml:"risk"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Data        DataConfig        `yaml:"data"`
	Tuning      TuningConfig      `yaml:"tuning"`
	WalkForward WalkForwardConfig `yaml:"walkforward"`
	Feed        FeedConfig        `yaml:"feed"`
	Network     NetworkConfig     `yaml:"network"`
	Live        LiveConfig        `yaml:"live"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PaperConfig holds paper-trading account parameters.
type PaperConfig struct {
	StartingBalance float64 `yaml:"starting_balance"`
	FeeBps          float64 `yaml:"fee_bps"`
	SlippageBps     float64 `yaml:"slippage_bps"`
}

// RiskConfig defines position sizing and daily loss limits.
type RiskConfig struct {
	MaxPositionFraction  float64 `yaml:"max_position_fraction"`
	MaxDailyLossFraction float64 `yaml:"max_daily_loss_fraction"`
}

// StrategyConfig selects the active strategy and its parameters.
type StrategyConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]int `yaml:"params"`
}

// DataConfig controls historical data retrieval.
type DataConfig struct {
	LookbackLimit int `yaml:"lookback_limit"`
	CacheMinutes  int `yaml:"cache_minutes"`
}

// TuningConfig holds parameter-search settings.
type TuningConfig struct {
	NTrials   int    `yaml:"n_trials"`
	Direction string `yaml:"direction"`
	Workers   int    `yaml:"workers"`
}

// WalkForwardConfig holds walk-forward window lengths in days.
type WalkForwardConfig struct {
	TrainDays int `yaml:"train_days"`
	TestDays  int `yaml:"test_days"`
}

// FeedConfig holds market-data credentials and endpoints.
type FeedConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// NetworkConfig holds timeouts and retry behaviour for the data feed.
type NetworkConfig struct {
	TimeoutMs       int `yaml:"timeout_ms"`
	MaxRetries      int `yaml:"max_retries"`
	BackoffBaseMs   int `yaml:"backoff_base_ms"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// LiveConfig controls the live paper-trading loop.
type LiveConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
	RetryDelaySec   int `yaml:"retry_delay_sec"`
}

// StorageConfig holds paths for data persistence.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig holds network listener configuration for the live process.
type ServerConfig struct {
	GRPCPort int `yaml:"grpc_port"`
	HTTPPort int `yaml:"http_port"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config, applies defaults and environment variable overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Tuning.NTrials == 0 {
		cfg.Tuning.NTrials = 50
	}
	if cfg.Tuning.Direction == "" {
		cfg.Tuning.Direction = "maximize"
	}
	if cfg.Tuning.Workers == 0 {
		cfg.Tuning.Workers = 1
	}
	if cfg.WalkForward.TrainDays == 0 {
		cfg.WalkForward.TrainDays = 180
	}
	if cfg.WalkForward.TestDays == 0 {
		cfg.WalkForward.TestDays = 30
	}
	if cfg.Network.TimeoutMs == 0 {
		cfg.Network.TimeoutMs = 20000
	}
	if cfg.Network.MaxRetries == 0 {
		cfg.Network.MaxRetries = 5
	}
	if cfg.Network.BackoffBaseMs == 0 {
		cfg.Network.BackoffBaseMs = 500
	}
	if cfg.Network.RateLimitPerMin == 0 {
		cfg.Network.RateLimitPerMin = 200
	}
	if cfg.Live.PollIntervalSec == 0 {
		cfg.Live.PollIntervalSec = 60
	}
	if cfg.Live.RetryDelaySec == 0 {
		cfg.Live.RetryDelaySec = 5
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical Alpaca env vars take priority over the YAML values.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Feed.APISecret = v
	}
	if v := os.Getenv("APCA_API_DATA_URL"); v != "" {
		cfg.Feed.DataURL = v
	}
}

// Validate checks the configuration for values that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if c.Timeframe == "" {
		return fmt.Errorf("config: timeframe is required")
	}
	if c.Paper.StartingBalance <= 0 {
		return fmt.Errorf("config: paper.starting_balance must be positive")
	}
	if c.Paper.FeeBps < 0 || c.Paper.SlippageBps < 0 {
		return fmt.Errorf("config: fee_bps and slippage_bps must be non-negative")
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("config: risk.max_position_fraction must be in (0, 1]")
	}
	if c.Risk.MaxDailyLossFraction <= 0 || c.Risk.MaxDailyLossFraction >= 1 {
		return fmt.Errorf("config: risk.max_daily_loss_fraction must be in (0, 1)")
	}
	if d := c.Tuning.Direction; d != "maximize" && d != "minimize" {
		return fmt.Errorf("config: tuning.direction must be maximize or minimize, got %q", d)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Derivation
// ---------------------------------------------------------------------------

// Overrides carries optional per-invocation settings, typically from command
// line flags. Zero values leave the corresponding field untouched.
type Overrides struct {
	Symbols   []string
	Timeframe string
	TimeoutMs int
	NTrials   int
}

// WithOverrides returns a copy of the configuration with the given overrides
// applied. The receiver is never mutated, so a loaded Config can be shared
// across runs without hidden aliasing.
func (c *Config) WithOverrides(o Overrides) *Config {
	derived := *c

	// Deep-copy the shared reference fields before touching anything.
	derived.Symbols = append([]string(nil), c.Symbols...)
	if c.Strategy.Params != nil {
		derived.Strategy.Params = make(map[string]int, len(c.Strategy.Params))
		for k, v := range c.Strategy.Params {
			derived.Strategy.Params[k] = v
		}
	}

	if len(o.Symbols) > 0 {
		derived.Symbols = append([]string(nil), o.Symbols...)
	}
	if o.Timeframe != "" {
		derived.Timeframe = o.Timeframe
	}
	if o.TimeoutMs > 0 {
		derived.Network.TimeoutMs = o.TimeoutMs
	}
	if o.NTrials > 0 {
		derived.Tuning.NTrials = o.NTrials
	}
	return &derived
}
