package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full gridbot configuration.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Grid     GridConfig     `yaml:"grid"`
	Hedge    HedgeConfig    `yaml:"hedge"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Backtest BacktestConfig `yaml:"backtest"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// BotConfig holds the capital and fee parameters shared by every mode.
type BotConfig struct {
	Symbol         string  `yaml:"symbol"`
	FuturesSymbol  string  `yaml:"futures_symbol"`
	InitialCapital float64 `yaml:"initial_capital"`
	ReserveRatio   float64 `yaml:"reserve_ratio"`   // portion of capital never deployed into the grid
	OrderSizeUSDT  float64 `yaml:"order_size_usdt"` // per-level order size ceiling
	SpotFeeRate    float64 `yaml:"spot_fee_rate"`
	FuturesFeeRate float64 `yaml:"futures_fee_rate"`
}

// GridConfig controls ladder construction and recentering.
type GridConfig struct {
	Levels        int     `yaml:"levels"`
	ATRMultiplier float64 `yaml:"atr_multiplier"`
	DriftK        float64 `yaml:"drift_k"`        // recenter when price drifts k spacings outside the window
	VolUpRatio    float64 `yaml:"vol_up_ratio"`   // atr14 > atr28*ratio → widen spacing
	VolDownRatio  float64 `yaml:"vol_down_ratio"` // atr14 < atr28*ratio → narrow spacing
}

// HedgeConfig controls the protective short sub-system.
type HedgeConfig struct {
	Leverage     int     `yaml:"leverage"`
	SizeRatio    float64 `yaml:"size_ratio"`     // target hedge/spot ratio on a strong breakdown
	OpenKATR     float64 `yaml:"open_k_atr"`     // breakdown trigger: lowest level − k*atr14
	TPRatio      float64 `yaml:"tp_ratio"`       // take profit once hedge pnl covers this share of spot loss
	SLRatio      float64 `yaml:"sl_ratio"`       // reversal stop threshold vs spot loss
	MaxLossRatio float64 `yaml:"max_loss_ratio"` // hard cut when hedge loss exceeds this share of spot loss
	MinHoldMs    int64   `yaml:"min_hold_ms"`    // minimum hold before a plain reversal cut
	MinNotional  float64 `yaml:"min_notional"`   // skip scale-ins below the venue minimum
}

// ExchangeConfig contains the live exchange endpoints and credentials.
// Credentials come from the environment only, never from YAML.
type ExchangeConfig struct {
	RESTBase  string `yaml:"rest_base"`
	WSBase    string `yaml:"ws_base"`
	Interval  string `yaml:"interval"` // kline interval, e.g. "1m"
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// BacktestConfig controls CSV-driven backtests.
type BacktestConfig struct {
	CSVPath    string `yaml:"csv_path"`
	WarmupBars int    `yaml:"warmup_bars"` // leading bars used to seed indicators only
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls log level, format and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	Output     string `yaml:"output"` // empty/"stdout" or a file path (rotated)
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML config and the .env file if present.
// Environment values override the YAML for the keys that map to them.
func Load(path string) (*Config, error) {
	// Load .env if it exists (silence the error when there is none).
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

// applyEnvOverrides pulls credentials and operational overrides from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("OHLCV_FILE"); v != "" {
		cfg.Backtest.CSVPath = v
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Bot.InitialCapital = f
		}
	}
}

// setDefaults ensures required values have sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Bot.Symbol == "" {
		cfg.Bot.Symbol = "BTCUSDT"
	}
	if cfg.Bot.FuturesSymbol == "" {
		cfg.Bot.FuturesSymbol = cfg.Bot.Symbol
	}
	if cfg.Bot.InitialCapital <= 0 {
		cfg.Bot.InitialCapital = 10000
	}
	if cfg.Bot.ReserveRatio <= 0 || cfg.Bot.ReserveRatio >= 1 {
		cfg.Bot.ReserveRatio = 0.3
	}
	if cfg.Bot.OrderSizeUSDT <= 0 {
		cfg.Bot.OrderSizeUSDT = 500
	}
	if cfg.Bot.SpotFeeRate <= 0 {
		cfg.Bot.SpotFeeRate = 0.001
	}
	if cfg.Bot.FuturesFeeRate <= 0 {
		cfg.Bot.FuturesFeeRate = 0.0004
	}

	if cfg.Grid.Levels <= 0 {
		cfg.Grid.Levels = 5
	}
	if cfg.Grid.ATRMultiplier <= 0 {
		cfg.Grid.ATRMultiplier = 1.0
	}
	if cfg.Grid.DriftK <= 0 {
		cfg.Grid.DriftK = 2.5
	}
	if cfg.Grid.VolUpRatio <= 0 {
		cfg.Grid.VolUpRatio = 1.5
	}
	if cfg.Grid.VolDownRatio <= 0 {
		cfg.Grid.VolDownRatio = 0.7
	}

	if cfg.Hedge.Leverage <= 0 {
		cfg.Hedge.Leverage = 2
	}
	if cfg.Hedge.SizeRatio <= 0 {
		cfg.Hedge.SizeRatio = 0.5
	}
	if cfg.Hedge.OpenKATR <= 0 {
		cfg.Hedge.OpenKATR = 0.5
	}
	if cfg.Hedge.TPRatio <= 0 {
		cfg.Hedge.TPRatio = 0.5
	}
	if cfg.Hedge.SLRatio <= 0 {
		cfg.Hedge.SLRatio = 0.3
	}
	if cfg.Hedge.MaxLossRatio <= 0 {
		cfg.Hedge.MaxLossRatio = 1.0
	}
	if cfg.Hedge.MinHoldMs <= 0 {
		cfg.Hedge.MinHoldMs = 30 * 60 * 1000
	}
	if cfg.Hedge.MinNotional <= 0 {
		cfg.Hedge.MinNotional = 10
	}

	if cfg.Exchange.RESTBase == "" {
		cfg.Exchange.RESTBase = "https://api.binance.com"
	}
	if cfg.Exchange.WSBase == "" {
		cfg.Exchange.WSBase = "wss://stream.binance.com:9443"
	}
	if cfg.Exchange.Interval == "" {
		cfg.Exchange.Interval = "1m"
	}

	if cfg.Backtest.WarmupBars <= 0 {
		cfg.Backtest.WarmupBars = 100
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gridbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
}
