package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `{
	"mode": "backtest",
	"broker_name": "sim",
	"account_name": "paper1",
	"portfolio_name": "intraday",
	"broker": {
		"slippage_percent": 0.1,
		"fill_probability": 0.95,
		"initial_cash": 100000
	},
	"data": {"file": "ticks.csv", "delay_ms": 10},
	"queue": {"capacity": 256},
	"strategies": [
		{"name": "ema_cross", "params": {"short_period": 5, "long_period": 20}}
	],
	"manager": {"max_concurrent": 5, "max_errors": 5, "heartbeat_seconds": 30, "staleness_seconds": 300},
	"signals": {"max_quantity": 10000, "max_per_minute": 10, "retention_minutes": 5},
	"store": {"kind": "memory"},
	"export": {"dir": "out"},
	"metrics": {"addr": ":9100"}
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, ModeBacktest, cfg.Mode)
	assert.Equal(t, "sim", cfg.BrokerName)
	assert.Equal(t, "paper1", cfg.AccountName)
	assert.Equal(t, "intraday", cfg.PortfolioName)
	assert.Equal(t, "ticks.csv", cfg.DataFile)
	assert.Equal(t, 10*time.Millisecond, cfg.DataDelay)
	assert.Equal(t, 256, cfg.QueueCapacity)
	assert.Equal(t, "100000", cfg.Simulator.InitialCash.String())
	assert.Equal(t, 0.95, cfg.Simulator.FillProbability)
	assert.Equal(t, 30*time.Second, cfg.Manager.HeartbeatInterval)
	assert.Equal(t, 300*time.Second, cfg.Manager.StalenessTimeout)
	assert.Equal(t, int64(10000), cfg.Signals.MaxQuantity)
	assert.Equal(t, 5*time.Minute, cfg.Signals.RateRetention)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "out", cfg.ExportDir)
	assert.Equal(t, ":9100", cfg.MetricsAddr)

	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, "ema_cross", cfg.Strategies[0].Name)
	assert.Equal(t, 5, cfg.Strategies[0].Params.Int("short_period", 0))
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"unknown mode", `{"mode":"replay","account_name":"a","broker":{"initial_cash":1},"strategies":[{"name":"ema_cross"}]}`},
		{"backtest without file", `{"mode":"backtest","account_name":"a","broker":{"initial_cash":1},"strategies":[{"name":"ema_cross"}]}`},
		{"live without url", `{"mode":"live","account_name":"a","broker":{"initial_cash":1},"data":{"instruments":["NIFTY"]},"strategies":[{"name":"ema_cross"}]}`},
		{"live without instruments", `{"mode":"live","account_name":"a","broker":{"initial_cash":1},"data":{"url":"ws://x"},"strategies":[{"name":"ema_cross"}]}`},
		{"missing account", `{"mode":"backtest","broker":{"initial_cash":1},"data":{"file":"t.csv"},"strategies":[{"name":"ema_cross"}]}`},
		{"no strategies", `{"mode":"backtest","account_name":"a","broker":{"initial_cash":1},"data":{"file":"t.csv"},"strategies":[]}`},
		{"unknown strategy", `{"mode":"backtest","account_name":"a","broker":{"initial_cash":1},"data":{"file":"t.csv"},"strategies":[{"name":"nope"}]}`},
		{"zero cash", `{"mode":"backtest","account_name":"a","broker":{},"data":{"file":"t.csv"},"strategies":[{"name":"ema_cross"}]}`},
		{"redis without addr", `{"mode":"backtest","account_name":"a","broker":{"initial_cash":1},"data":{"file":"t.csv"},"strategies":[{"name":"ema_cross"}],"store":{"kind":"redis"}}`},
		{"unknown store", `{"mode":"backtest","account_name":"a","broker":{"initial_cash":1},"data":{"file":"t.csv"},"strategies":[{"name":"ema_cross"}],"store":{"kind":"sqlite"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadDefaultsExportDirAndStore(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"mode": "backtest",
		"account_name": "paper1",
		"broker": {"initial_cash": 1000},
		"data": {"file": "ticks.csv"},
		"strategies": [{"name": "ema_cross"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "exports", cfg.ExportDir)
	assert.Equal(t, "sim", cfg.BrokerName)
	assert.Equal(t, "portfolio", cfg.PortfolioName)
}
