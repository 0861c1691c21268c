package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
trading:
  initial_balance: 25000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, 25000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 5, cfg.Trading.MaxConcurrentExecutions)
	assert.Equal(t, 1000, cfg.Trading.QueueCapacity)
	assert.Equal(t, 0.1, cfg.Risk.MaxPositionSize)
	assert.Equal(t, "paper", cfg.Exchange.Backend)
	assert.False(t, cfg.Storage.Enabled)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
trading:
  symbols: ["SOLUSDT"]
  max_concurrent_executions: 2
  execution_timeout_seconds: 1.5
  serialize_per_symbol: true
risk:
  max_position_size: 0.25
  max_leverage: 2
exchange:
  backend: paper
storage:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 1500, int(cfg.Trading.ExecutionTimeout().Milliseconds()))
	assert.True(t, cfg.Trading.SerializePerSymbol)
	assert.Equal(t, 0.25, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 2.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, "data/riptide.db", cfg.Storage.Path, "enabled storage gets default path")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"risk_per_trade too big": `
trading:
  risk_per_trade: 1.5
`,
		"leverage below one": `
risk:
  max_leverage: 0.5
`,
		"unknown backend": `
exchange:
  backend: kraken
`,
		"binance without keys": `
exchange:
  backend: binance
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLimitsWatcherReloadAndClose(t *testing.T) {
	path := writeConfig(t, `
risk:
  max_position_size: 0.1
`)
	w, err := NewLimitsWatcher(path, Default().Risk)
	require.NoError(t, err)

	got := make(chan RiskConfig, 1)
	w.OnChange(func(rc RiskConfig) {
		select {
		case got <- rc:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte(`
risk:
  max_position_size: 0.25
`), 0o644))

	select {
	case rc := <-got:
		assert.Equal(t, 0.25, rc.MaxPositionSize)
		assert.Equal(t, rc, w.Current())
	case <-time.After(3 * time.Second):
		t.Fatal("limits reload not observed")
	}

	assert.NoError(t, w.Close())
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.Equal(t, 10000.0, cfg.Trading.InitialBalance)
	assert.NotEmpty(t, cfg.Trading.Symbols)
}
