package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func TestResolveColumns(t *testing.T) {
	cols, err := resolveColumns([]string{"timestamp", "instrument_token", "last_traded_price"})
	require.NoError(t, err)
	assert.Equal(t, 0, cols.timestamp)
	assert.Equal(t, 1, cols.instrument)
	assert.Equal(t, 2, cols.price)

	cols, err = resolveColumns([]string{"Symbol", " LTP "})
	require.NoError(t, err)
	assert.Equal(t, 0, cols.instrument)
	assert.Equal(t, 1, cols.price)
	assert.Equal(t, -1, cols.timestamp)

	cols, err = resolveColumns([]string{"symbol", "open", "close"})
	require.NoError(t, err)
	assert.Equal(t, 2, cols.price)

	_, err = resolveColumns([]string{"last_traded_price"})
	assert.Error(t, err, "instrument column is required")

	_, err = resolveColumns([]string{"symbol", "volume"})
	assert.Error(t, err, "price column is required")
}

func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplayEmitsTicksInOrder(t *testing.T) {
	path := writeReplayFile(t,
		"timestamp,instrument_token,last_traded_price\n"+
			"1700000000000,NIFTY,100.5\n"+
			"1700000001000,NIFTY,101.25\n"+
			"1700000002000,BANKNIFTY,200\n")

	var ticks []schema.MarketTick
	f := NewCSV(path, 0)
	err := f.Run(context.Background(), func(tick schema.MarketTick) {
		ticks = append(ticks, tick)
	})
	require.NoError(t, err)

	require.Len(t, ticks, 3)
	assert.Equal(t, "NIFTY", ticks[0].Instrument)
	assert.Equal(t, "100.5", ticks[0].Price.String())
	assert.Equal(t, int64(1700000000000), ticks[0].At.UnixMilli())
	assert.Equal(t, "BANKNIFTY", ticks[2].Instrument)
}

func TestReplaySkipsMalformedRows(t *testing.T) {
	path := writeReplayFile(t,
		"symbol,price\n"+
			"NIFTY,100\n"+
			"NIFTY,not-a-number\n"+
			"NIFTY,102\n")

	var ticks []schema.MarketTick
	f := NewCSV(path, 0)
	err := f.Run(context.Background(), func(tick schema.MarketTick) {
		ticks = append(ticks, tick)
	})
	require.NoError(t, err)

	require.Len(t, ticks, 2)
	assert.Equal(t, "102", ticks[1].Price.String())
}

func TestReplayMissingFile(t *testing.T) {
	f := NewCSV(filepath.Join(t.TempDir(), "absent.csv"), 0)
	err := f.Run(context.Background(), func(schema.MarketTick) {})
	assert.Error(t, err)
}

func TestReplayHonorsCancellation(t *testing.T) {
	path := writeReplayFile(t,
		"symbol,price\n"+
			"NIFTY,100\n"+
			"NIFTY,101\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewCSV(path, 0)
	err := f.Run(ctx, func(schema.MarketTick) {})
	assert.Error(t, err)
}
