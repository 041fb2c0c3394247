package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/broker"
	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

func newFillBus(t *testing.T) (*bus.Bus, chan schema.Fill) {
	t.Helper()
	eventBus := bus.New(16)
	fills := make(chan schema.Fill, 16)
	eventBus.Subscribe(schema.EventFill, func(_ context.Context, e schema.Event) error {
		fills <- e.(schema.Fill)
		return nil
	})
	require.NoError(t, eventBus.Start(context.Background()))
	t.Cleanup(eventBus.Stop)
	return eventBus, fills
}

func order(qty int64) schema.Order {
	return schema.Order{
		ID:         "order-1",
		Instrument: "NIFTY",
		StrategyID: "s1",
		Side:       schema.SideBuy,
		Quantity:   qty,
		Price:      decimal.NewFromInt(100),
		OrderKind:  schema.OrderKindMarket,
		Status:     schema.OrderStatusPending,
		At:         time.Now(),
	}
}

func TestFilledOrderPublishesFill(t *testing.T) {
	sim := broker.NewSimulator(broker.SimulatorConfig{
		AccountName: "test",
		InitialCash: decimal.NewFromInt(100000),
		Rand:        func() float64 { return 0 },
	})
	eventBus, fills := newFillBus(t)
	exec := New(sim, eventBus, nil)

	require.NoError(t, exec.OnOrder(context.Background(), order(10)))

	select {
	case fill := <-fills:
		assert.Equal(t, "NIFTY", fill.Instrument)
		assert.Equal(t, "s1", fill.StrategyID, "fill carries the owning strategy")
		assert.Equal(t, int64(10), fill.Quantity)
		assert.Equal(t, "20", fill.Brokerage.String())
		assert.NotEmpty(t, fill.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("no fill published")
	}
}

func TestRejectedOrderPublishesNoFill(t *testing.T) {
	sim := broker.NewSimulator(broker.SimulatorConfig{
		AccountName: "test",
		InitialCash: decimal.NewFromInt(10), // cannot afford anything
		Rand:        func() float64 { return 0 },
	})
	eventBus, fills := newFillBus(t)
	audit, err := NewAuditLog(t.TempDir(), 16)
	require.NoError(t, err)
	require.NoError(t, audit.Start(context.Background()))
	defer audit.Close()

	exec := New(sim, eventBus, audit)
	require.NoError(t, exec.OnOrder(context.Background(), order(10)))

	select {
	case <-fills:
		t.Fatal("rejected order produced a fill")
	case <-time.After(100 * time.Millisecond):
	}

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "REJECTED", records[0].Status)
}

type brokenBroker struct {
	*broker.Simulator
}

func (brokenBroker) PlaceOrder(context.Context, broker.OrderRequest) (broker.OrderResult, error) {
	return broker.OrderResult{}, errors.New("gateway down")
}

func TestPlacementErrorIsAuditedNotPropagated(t *testing.T) {
	eventBus, fills := newFillBus(t)
	audit, err := NewAuditLog(t.TempDir(), 16)
	require.NoError(t, err)
	require.NoError(t, audit.Start(context.Background()))
	defer audit.Close()

	sim := broker.NewSimulator(broker.SimulatorConfig{InitialCash: decimal.NewFromInt(1)})
	exec := New(brokenBroker{sim}, eventBus, audit)

	require.NoError(t, exec.OnOrder(context.Background(), order(1)), "broker errors never propagate")

	select {
	case <-fills:
		t.Fatal("failed placement produced a fill")
	case <-time.After(100 * time.Millisecond):
	}

	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "ERROR", records[0].Status)
	assert.Contains(t, records[0].Error, "gateway down")
}

func TestAuditLogLifecycle(t *testing.T) {
	audit, err := NewAuditLog(t.TempDir(), 4)
	require.NoError(t, err)

	record := AuditRecord{At: time.Now(), OrderID: "o1", Status: "FILLED"}
	// Before Start the record is kept in memory but not queued to disk.
	assert.Equal(t, ErrAuditNotStarted, audit.TryAppend(record))

	require.NoError(t, audit.Start(context.Background()))
	require.NoError(t, audit.TryAppend(record))
	require.NoError(t, audit.Close())

	records := audit.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "o1", records[0].OrderID)

	assert.Equal(t, ErrAuditClosed, audit.TryAppend(record))
}
