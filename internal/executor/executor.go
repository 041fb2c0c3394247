// Package executor consumes order events, places them through the broker
// capability and publishes fill events for filled orders. Every processed
// order is appended to an append-only audit log.
package executor

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/broker"
	"tradecore/internal/bus"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// Executor places orders and reports fills back onto the bus.
type Executor struct {
	broker broker.Broker
	bus    *bus.Bus
	audit  *AuditLog
}

// New creates an executor backed by the given broker and audit log.
func New(b broker.Broker, eventBus *bus.Bus, audit *AuditLog) *Executor {
	return &Executor{broker: b, bus: eventBus, audit: audit}
}

// OnOrder handles one order event. A placement failure is recorded as
// status ERROR in the audit log and never propagates: one failing order
// must not stop the executor.
func (e *Executor) OnOrder(ctx context.Context, event schema.Event) error {
	order, ok := event.(schema.Order)
	if !ok {
		return nil
	}

	record := AuditRecord{
		At:         time.Now().UTC(),
		OrderID:    order.ID,
		Instrument: order.Instrument,
		StrategyID: order.StrategyID,
		Side:       order.Side.String(),
		Quantity:   order.Quantity,
		Price:      order.Price,
		OrderKind:  order.OrderKind.String(),
		Status:     schema.OrderStatusPending.String(),
	}

	result, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		Instrument: order.Instrument,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Kind:       order.OrderKind,
		Price:      order.Price,
		Product:    order.Product,
		Validity:   order.Validity,
		Tag:        order.Tag,
	})
	if err != nil {
		record.Status = "ERROR"
		record.Error = err.Error()
		e.append(record)
		obs.OrdersTotal.WithLabelValues("ERROR").Inc()
		logs.Errorf("place order %s for %s, err: %+v", order.ID, order.Instrument, err)
		return nil
	}

	record.OrderID = result.OrderID
	record.ExchangeOrderID = result.ExchangeOrderID
	record.Status = result.Status.String()
	record.FilledQuantity = result.FilledQuantity
	record.FilledPrice = result.FilledPrice
	record.Brokerage = result.Brokerage
	e.append(record)
	obs.OrdersTotal.WithLabelValues(result.Status.String()).Inc()

	if result.Status != schema.OrderStatusFilled {
		logs.Warnf("order %s not filled: status=%s", result.OrderID, result.Status)
		return nil
	}

	fill := schema.Fill{
		OrderID:         result.OrderID,
		ExchangeOrderID: result.ExchangeOrderID,
		Instrument:      result.Instrument,
		StrategyID:      order.StrategyID,
		Side:            result.Side,
		Quantity:        result.FilledQuantity,
		Price:           result.FilledPrice,
		Brokerage:       result.Brokerage,
		At:              time.Now().UTC(),
	}
	if err := e.bus.Publish(ctx, fill); err != nil {
		logs.Errorf("publish fill for order %s, err: %+v", result.OrderID, err)
		return nil
	}
	obs.FillsTotal.WithLabelValues(fill.Side.String()).Inc()
	logs.Infof("fill dispatched for %s: %s %d@%s", fill.Instrument, fill.Side, fill.Quantity, fill.Price)
	return nil
}

func (e *Executor) append(record AuditRecord) {
	if e.audit == nil {
		return
	}
	if err := e.audit.TryAppend(record); err != nil {
		logs.Warnf("audit append for order %s, err: %+v", record.OrderID, err)
	}
}
