package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/broker"
	"tradecore/internal/ops"
	"tradecore/internal/strategy"
)

func writeTicks(t *testing.T, prices ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("symbol,price\n")
	for _, p := range prices {
		b.WriteString("NIFTY," + p + "\n")
	}
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func backtestConfig(t *testing.T) ops.Config {
	return ops.Config{
		Mode:        ops.ModeBacktest,
		BrokerName:  "sim",
		AccountName: "paper1",
		Simulator: broker.SimulatorConfig{
			AccountName:     "paper1",
			FillProbability: 1,
			InitialCash:     decimal.NewFromInt(100000),
			Rand:            func() float64 { return 0 },
		},
		DataFile:      writeTicks(t, "100", "94", "93", "93"),
		DataDelay:     10 * time.Millisecond,
		QueueCapacity: 256,
		Strategies: []ops.StrategySpec{{
			Name: "threshold_exit",
			Params: strategy.Params{
				"instrument":    "NIFTY",
				"trigger_price": float64(95),
				"quantity":      float64(5),
			},
		}},
		Store:     ops.StoreSpec{Kind: "memory"},
		ExportDir: t.TempDir(),
	}
}

func TestBacktestEndToEnd(t *testing.T) {
	cfg := backtestConfig(t)

	eng, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	// One SELL 5 at the trigger-crossing price 94: 100000 + 470 - 20.
	assert.Equal(t, "100450", eng.ledger.Cash().String())
	assert.Equal(t, "94", eng.ledger.Trades()[0].Price.String())

	trades := eng.ledger.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "SELL", trades[0].Side)
	assert.Equal(t, int64(5), trades[0].Quantity)

	records := eng.audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "FILLED", records[0].Status)
	assert.Contains(t, records[0].StrategyID, "threshold_exit")

	// Artifacts land in the export directory.
	entries, err := os.ReadDir(cfg.ExportDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	assert.Contains(t, joined, "equity_curve")
	assert.Contains(t, joined, "trades")
	assert.Contains(t, joined, "order_audit")
	assert.Contains(t, joined, "orders_")
}

func TestTradeOnFinalTickStillSettles(t *testing.T) {
	// The trigger crosses on the last replay row; shutdown must still carry
	// the signal through order and fill before the queues close.
	cfg := backtestConfig(t)
	cfg.DataFile = writeTicks(t, "100", "94")
	cfg.DataDelay = 0

	eng, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	trades := eng.ledger.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "94", trades[0].Price.String())
	assert.Equal(t, "100450", eng.ledger.Cash().String())
}

func TestEngineRejectsUnknownStrategyAtStartup(t *testing.T) {
	cfg := backtestConfig(t)
	cfg.Strategies = []ops.StrategySpec{{Name: "unregistered"}}

	eng, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Error(t, eng.Run(context.Background()))
}
