package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"

	defaultMaxConcurrentExecutions = 5
	defaultQueueCapacity           = 1000
	defaultExecutionTimeoutSec     = 30.0
	defaultRetryAttempts           = 3
	defaultRiskPerTrade            = 0.02
	defaultStopLoss                = 0.02
	defaultTakeProfit              = 0.04
	defaultSlippageRate            = 0.0005
	defaultCommissionRate          = 0.001
	defaultInitialBalance          = 10000

	defaultMaxPositionSize = 0.1
	defaultMaxDailyLoss    = 0.05
	defaultMaxDrawdown     = 0.2
	defaultMaxLeverage     = 3.0
	defaultMaxCorrelation  = 0.7

	defaultExchangeBackend = "paper"
	defaultStoragePath     = "data/riptide.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Trading.applyDefaults()
	c.Risk.applyDefaults()
	c.Exchange.applyDefaults()
	c.Storage.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (t *TradingConfig) applyDefaults() {
	if len(t.Symbols) == 0 {
		t.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if t.MaxConcurrentExecutions <= 0 {
		t.MaxConcurrentExecutions = defaultMaxConcurrentExecutions
	}
	if t.QueueCapacity <= 0 {
		t.QueueCapacity = defaultQueueCapacity
	}
	if t.ExecutionTimeoutSeconds <= 0 {
		t.ExecutionTimeoutSeconds = defaultExecutionTimeoutSec
	}
	if t.RetryAttempts <= 0 {
		t.RetryAttempts = defaultRetryAttempts
	}
	if t.RiskPerTrade <= 0 {
		t.RiskPerTrade = defaultRiskPerTrade
	}
	if t.DefaultStopLoss <= 0 {
		t.DefaultStopLoss = defaultStopLoss
	}
	if t.DefaultTakeProfit <= 0 {
		t.DefaultTakeProfit = defaultTakeProfit
	}
	if t.SlippageRate < 0 {
		t.SlippageRate = defaultSlippageRate
	}
	if t.CommissionRate < 0 {
		t.CommissionRate = defaultCommissionRate
	}
	if t.InitialBalance <= 0 {
		t.InitialBalance = defaultInitialBalance
	}
}

func (r *RiskConfig) applyDefaults() {
	if r.MaxPositionSize <= 0 {
		r.MaxPositionSize = defaultMaxPositionSize
	}
	if r.MaxDailyLoss <= 0 {
		r.MaxDailyLoss = defaultMaxDailyLoss
	}
	if r.MaxDrawdown <= 0 {
		r.MaxDrawdown = defaultMaxDrawdown
	}
	if r.MaxLeverage <= 0 {
		r.MaxLeverage = defaultMaxLeverage
	}
	if r.MaxCorrelation <= 0 {
		r.MaxCorrelation = defaultMaxCorrelation
	}
}

func (e *ExchangeConfig) applyDefaults() {
	if e.Backend == "" {
		e.Backend = defaultExchangeBackend
	}
}

func (s *StorageConfig) applyDefaults() {
	if s.Enabled && s.Path == "" {
		s.Path = defaultStoragePath
	}
}
