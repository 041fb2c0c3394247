package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func feedPrices(t *testing.T, s Strategy, prices ...float64) {
	t.Helper()
	for _, p := range prices {
		err := s.HandleMarketEvent(context.Background(), schema.MarketTick{
			Instrument: "NIFTY",
			Price:      decimal.NewFromFloat(p),
			At:         time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestEMACrossRejectsBadPeriods(t *testing.T) {
	_, err := NewEMACross("x", Params{"short_period": float64(20), "long_period": float64(5)}, nil)
	assert.Error(t, err)

	_, err = NewEMACross("x", Params{"short_period": float64(0)}, nil)
	assert.Error(t, err)
}

func TestEMACrossSignalsOncePerCrossover(t *testing.T) {
	var signals []schema.Signal
	s, err := NewEMACross("ema_1", Params{
		"short_period": float64(2),
		"long_period":  float64(4),
		"quantity":     float64(10),
	}, func(sig schema.Signal) { signals = append(signals, sig) })
	require.NoError(t, err)

	// Rising series: once the window is full the short average sits above
	// the long one. Continued rise must not re-signal.
	feedPrices(t, s, 100, 101, 102, 103, 104, 105)
	require.Len(t, signals, 1)
	assert.Equal(t, schema.SideBuy, signals[0].Side)
	assert.Equal(t, int64(10), signals[0].Quantity)
	assert.Equal(t, "ema_1", signals[0].StrategyID)

	// Falling series flips the crossover exactly once.
	feedPrices(t, s, 90, 80, 70, 60)
	require.Len(t, signals, 2)
	assert.Equal(t, schema.SideSell, signals[1].Side)
}

func TestEMACrossNeedsFullWindow(t *testing.T) {
	var signals []schema.Signal
	s, err := NewEMACross("ema_1", Params{
		"short_period": float64(2),
		"long_period":  float64(4),
	}, func(sig schema.Signal) { signals = append(signals, sig) })
	require.NoError(t, err)

	feedPrices(t, s, 100, 110, 120)
	assert.Empty(t, signals)
}

func TestThresholdExitFiresOnce(t *testing.T) {
	var signals []schema.Signal
	s, err := NewThresholdExit("th_1", Params{
		"instrument":    "NIFTY",
		"trigger_price": float64(95),
		"quantity":      float64(5),
	}, func(sig schema.Signal) { signals = append(signals, sig) })
	require.NoError(t, err)

	feedPrices(t, s, 100, 96)
	assert.Empty(t, signals, "above trigger")

	feedPrices(t, s, 94, 90, 85)
	require.Len(t, signals, 1, "fires once, then flat")
	assert.Equal(t, schema.SideSell, signals[0].Side)
	assert.Equal(t, int64(5), signals[0].Quantity)
}

func TestThresholdExitIgnoresOtherInstruments(t *testing.T) {
	var signals []schema.Signal
	s, err := NewThresholdExit("th_1", Params{
		"instrument":    "BANKNIFTY",
		"trigger_price": float64(95),
		"quantity":      float64(5),
	}, func(sig schema.Signal) { signals = append(signals, sig) })
	require.NoError(t, err)

	feedPrices(t, s, 50)
	assert.Empty(t, signals)
}

func TestRegistryRejectsUnknownName(t *testing.T) {
	_, err := New("no_such_strategy", "id", nil, func(schema.Signal) {})
	assert.Error(t, err)

	assert.True(t, Registered("ema_cross"))
	assert.True(t, Registered("threshold_exit"))
}
