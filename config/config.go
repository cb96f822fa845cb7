// Package config loads the bot configuration from YAML with .env and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration.
type Config struct {
	Mode      ModeConfig      `yaml:"mode"`
	API       APIConfig       `yaml:"api"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ModeConfig selects live vs dry-run operation.
type ModeConfig struct {
	DryRun                 bool    `yaml:"dry_run"`
	FillProbability        float64 `yaml:"fill_probability"` // dry-run fill chance per second
	MonitorIntervalSeconds int     `yaml:"monitor_interval_seconds"`
}

// APIConfig holds the venue endpoints.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	WSBase     string `yaml:"ws_base"`
	MaxMarkets int    `yaml:"max_markets"` // markets to stream
}

// TradingConfig holds detection thresholds and sizing.
type TradingConfig struct {
	MinEdge          float64 `yaml:"min_edge"`
	MinSpread        float64 `yaml:"min_spread"`
	TickSize         float64 `yaml:"tick_size"`
	DefaultOrderSize float64 `yaml:"default_order_size"` // USDC notional target
	MinOrderSize     float64 `yaml:"min_order_size"`     // shares
	MaxOrderSize     float64 `yaml:"max_order_size"`     // shares
	TakerFeeBps      float64 `yaml:"taker_fee_bps"`
	GasCostPerOrder  float64 `yaml:"gas_cost_per_order"`
}

// RiskConfig holds the pre-trade limits.
type RiskConfig struct {
	MaxPositionPerMarket float64  `yaml:"max_position_per_market"`
	MaxGlobalExposure    float64  `yaml:"max_global_exposure"`
	MaxDailyLoss         float64  `yaml:"max_daily_loss"`
	MaxDrawdownPct       float64  `yaml:"max_drawdown_pct"`
	TradeOnlyHighVolume  bool     `yaml:"trade_only_high_volume"`
	Min24hVolume         float64  `yaml:"min_24h_volume"`
	Whitelist            []string `yaml:"whitelist"`
	Blacklist            []string `yaml:"blacklist"`
	KillSwitchEnabled    bool     `yaml:"kill_switch_enabled"`
	InitialBalance       float64  `yaml:"initial_balance"`
}

// ExecutionConfig holds order-lifecycle parameters.
type ExecutionConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	RetryDelayMs        int     `yaml:"retry_delay_ms"`
	SlippageTolerance   float64 `yaml:"slippage_tolerance"`
	OrderTimeoutSeconds int     `yaml:"order_timeout_seconds"`
	QueueCapacity       int     `yaml:"queue_capacity"`
}

// StorageConfig controls the trade journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, empty disables journaling
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override matching YAML values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	cfg.Mode.DryRun = true
	return &cfg
}

// RetryDelay returns the placement retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Execution.RetryDelayMs) * time.Millisecond
}

// OrderTimeout returns the stale-order cutoff as a duration.
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Execution.OrderTimeoutSeconds) * time.Second
}

// MonitorInterval returns the status-report period as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Mode.MonitorIntervalSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.Mode.DryRun = v == "1" || v == "true"
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Mode.FillProbability <= 0 {
		cfg.Mode.FillProbability = 0.10
	}
	if cfg.Mode.MonitorIntervalSeconds <= 0 {
		cfg.Mode.MonitorIntervalSeconds = 30
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WSBase == "" {
		cfg.API.WSBase = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.API.MaxMarkets <= 0 {
		cfg.API.MaxMarkets = 50
	}

	if cfg.Trading.MinEdge <= 0 {
		cfg.Trading.MinEdge = 0.01
	}
	if cfg.Trading.MinSpread <= 0 {
		cfg.Trading.MinSpread = 0.05
	}
	if cfg.Trading.TickSize <= 0 {
		cfg.Trading.TickSize = 0.01
	}
	if cfg.Trading.DefaultOrderSize <= 0 {
		cfg.Trading.DefaultOrderSize = 50
	}
	if cfg.Trading.MinOrderSize <= 0 {
		cfg.Trading.MinOrderSize = 5
	}
	if cfg.Trading.MaxOrderSize <= 0 {
		cfg.Trading.MaxOrderSize = 200
	}
	if cfg.Trading.TakerFeeBps <= 0 {
		cfg.Trading.TakerFeeBps = 150
	}
	if cfg.Trading.GasCostPerOrder <= 0 {
		cfg.Trading.GasCostPerOrder = 0.02
	}

	if cfg.Risk.MaxPositionPerMarket <= 0 {
		cfg.Risk.MaxPositionPerMarket = 200
	}
	if cfg.Risk.MaxGlobalExposure <= 0 {
		cfg.Risk.MaxGlobalExposure = 5000
	}
	if cfg.Risk.MaxDailyLoss <= 0 {
		cfg.Risk.MaxDailyLoss = 500
	}
	if cfg.Risk.MaxDrawdownPct <= 0 {
		cfg.Risk.MaxDrawdownPct = 0.10
	}
	if cfg.Risk.Min24hVolume <= 0 {
		cfg.Risk.Min24hVolume = 10000
	}
	if cfg.Risk.InitialBalance <= 0 {
		cfg.Risk.InitialBalance = 10000
	}

	if cfg.Execution.MaxRetries <= 0 {
		cfg.Execution.MaxRetries = 3
	}
	if cfg.Execution.RetryDelayMs <= 0 {
		cfg.Execution.RetryDelayMs = 500
	}
	if cfg.Execution.SlippageTolerance <= 0 {
		cfg.Execution.SlippageTolerance = 0.02
	}
	if cfg.Execution.OrderTimeoutSeconds <= 0 {
		cfg.Execution.OrderTimeoutSeconds = 60
	}
	if cfg.Execution.QueueCapacity <= 0 {
		cfg.Execution.QueueCapacity = 256
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
