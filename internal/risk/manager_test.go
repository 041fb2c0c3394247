package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"tradecore/internal/broker"
	"tradecore/internal/schema"
)

func simWithCash(cash float64) *broker.Simulator {
	return broker.NewSimulator(broker.SimulatorConfig{
		AccountName: "test",
		InitialCash: decimal.NewFromFloat(cash),
		Rand:        func() float64 { return 0 },
	})
}

func TestEntryBoundaryEqualityPasses(t *testing.T) {
	// price 100 x qty 10: margin 100 (10% of notional) + brokerage 20 = 120.
	m := NewManager(simWithCash(120))

	valid, margin, brokerage := m.ValidateOrder(context.Background(),
		"NIFTY", 10, "MIS", schema.SideBuy, schema.TradeTypeEntry, decimal.NewFromInt(100))

	assert.True(t, valid)
	assert.Equal(t, "100", margin.String())
	assert.Equal(t, "20", brokerage.String())
}

func TestEntryOneCentShortFails(t *testing.T) {
	m := NewManager(simWithCash(119.99))

	valid, _, _ := m.ValidateOrder(context.Background(),
		"NIFTY", 10, "MIS", schema.SideBuy, schema.TradeTypeEntry, decimal.NewFromInt(100))

	assert.False(t, valid)
}

func TestExitNeedsOnlyBrokerage(t *testing.T) {
	m := NewManager(simWithCash(20))

	valid, _, _ := m.ValidateOrder(context.Background(),
		"NIFTY", 10, "MIS", schema.SideSell, schema.TradeTypeExit, decimal.NewFromInt(100))
	assert.True(t, valid)

	valid, _, _ = NewManager(simWithCash(19.99)).ValidateOrder(context.Background(),
		"NIFTY", 10, "MIS", schema.SideSell, schema.TradeTypeExit, decimal.NewFromInt(100))
	assert.False(t, valid)
}

type failingFunds struct {
	*broker.Simulator
}

func (failingFunds) FundsAndMargin(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("broker unavailable")
}

func TestBrokerErrorReportsInvalid(t *testing.T) {
	m := NewManager(failingFunds{simWithCash(100000)})

	valid, margin, brokerage := m.ValidateOrder(context.Background(),
		"NIFTY", 10, "MIS", schema.SideBuy, schema.TradeTypeEntry, decimal.NewFromInt(100))

	assert.False(t, valid)
	assert.True(t, margin.IsZero())
	assert.True(t, brokerage.IsZero())
}
