package config

import "time"

// Config is the main configuration carrier for riptide.
type Config struct {
	App      AppConfig      `toml:"app"`
	Trading  TradingConfig  `toml:"trading"`
	Risk     RiskConfig     `toml:"risk"`
	Exchange ExchangeConfig `toml:"exchange"`
	Storage  StorageConfig  `toml:"storage"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// TradingConfig controls the execution bridge: queue sizing, worker pool,
// timeouts and the default order parameter model.
type TradingConfig struct {
	Symbols                 []string `toml:"symbols"`
	MaxConcurrentExecutions int      `toml:"max_concurrent_executions"` // worker pool size
	QueueCapacity           int      `toml:"queue_capacity"`
	ExecutionTimeoutSeconds float64  `toml:"execution_timeout_seconds"`
	RetryAttempts           int      `toml:"retry_attempts"`
	RiskPerTrade            float64  `toml:"risk_per_trade"`      // fraction of balance risked per signal
	DefaultStopLoss         float64  `toml:"default_stop_loss"`   // fraction below/above entry
	DefaultTakeProfit       float64  `toml:"default_take_profit"` // fraction above/below entry
	SerializePerSymbol      bool     `toml:"serialize_per_symbol"`
	SlippageRate            float64  `toml:"slippage_rate"`
	CommissionRate          float64  `toml:"commission_rate"`
	InitialBalance          float64  `toml:"initial_balance"`
}

// RiskConfig carries the base (pre-adjustment) risk limits.
// The risk manager scales these by volatility and stress multipliers at runtime.
type RiskConfig struct {
	MaxPositionSize float64 `toml:"max_position_size"` // fraction of balance per symbol
	MaxDailyLoss    float64 `toml:"max_daily_loss"`    // fraction of balance
	MaxDrawdown     float64 `toml:"max_drawdown"`      // fraction from equity peak
	MaxLeverage     float64 `toml:"max_leverage"`
	MaxCorrelation  float64 `toml:"max_correlation"`
}

type ExchangeConfig struct {
	Backend        string `toml:"backend"` // "paper" | "binance"
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	Testnet        bool   `toml:"testnet"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ExecutionTimeout returns the per-request wall clock budget.
func (t TradingConfig) ExecutionTimeout() time.Duration {
	return time.Duration(t.ExecutionTimeoutSeconds * float64(time.Second))
}

func (e ExchangeConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}
