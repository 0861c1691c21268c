package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.MaxConcurrentExecutions > 256 {
		return fmt.Errorf("trading.max_concurrent_executions must be <= 256")
	}
	if t.RiskPerTrade >= 1 {
		return fmt.Errorf("trading.risk_per_trade must be a fraction in (0,1)")
	}
	if t.DefaultStopLoss >= 1 || t.DefaultTakeProfit >= 1 {
		return fmt.Errorf("trading.default_stop_loss / default_take_profit must be fractions in (0,1)")
	}
	if t.SlippageRate >= 0.1 {
		return fmt.Errorf("trading.slippage_rate must be < 0.1")
	}
	if t.CommissionRate >= 0.1 {
		return fmt.Errorf("trading.commission_rate must be < 0.1")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	for name, v := range map[string]float64{
		"risk.max_position_size": r.MaxPositionSize,
		"risk.max_daily_loss":    r.MaxDailyLoss,
		"risk.max_drawdown":      r.MaxDrawdown,
		"risk.max_correlation":   r.MaxCorrelation,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be a fraction in (0,1]", name)
		}
	}
	if r.MaxLeverage < 1 {
		return fmt.Errorf("risk.max_leverage must be >= 1")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Backend)) {
	case "paper", "binance":
	default:
		return fmt.Errorf("exchange.backend must be one of: paper, binance (got %q)", e.Backend)
	}
	if strings.EqualFold(e.Backend, "binance") && (e.APIKey == "" || e.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required for the binance backend")
	}
	return nil
}
