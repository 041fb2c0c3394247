// Package risk implements pre-trade validation against the broker's funds,
// margin and brokerage queries.
package risk

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/broker"
	"tradecore/internal/schema"
)

// Manager validates orders before they reach the executor.
type Manager struct {
	broker broker.Broker
}

// NewManager creates a risk manager backed by the given broker.
func NewManager(b broker.Broker) *Manager {
	return &Manager{broker: b}
}

// ValidateOrder checks an intended order against available funds. For an
// entry trade the funds must cover margin plus brokerage (boundary equality
// passes); for an exit only the brokerage, since the position being closed
// already covers margin. Broker query failures report invalid with zero
// margin and brokerage and never propagate past this boundary.
func (m *Manager) ValidateOrder(
	ctx context.Context,
	instrument string,
	quantity int64,
	product string,
	side schema.Side,
	tradeType schema.TradeType,
	price decimal.Decimal,
) (bool, decimal.Decimal, decimal.Decimal) {
	req := broker.OrderRequest{
		Instrument: instrument,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Product:    product,
	}

	margin, err := m.broker.CalculateMargin(ctx, req)
	if err != nil {
		logs.Errorf("calculate margin for %s, err: %+v", instrument, err)
		return false, decimal.Zero, decimal.Zero
	}
	brokerage, err := m.broker.CalculateBrokerage(ctx, req)
	if err != nil {
		logs.Errorf("calculate brokerage for %s, err: %+v", instrument, err)
		return false, decimal.Zero, decimal.Zero
	}
	funds, err := m.broker.FundsAndMargin(ctx)
	if err != nil {
		logs.Errorf("fetch funds for %s, err: %+v", instrument, err)
		return false, decimal.Zero, decimal.Zero
	}

	switch tradeType {
	case schema.TradeTypeEntry:
		total := margin.Add(brokerage)
		if funds.GreaterThanOrEqual(total) {
			logs.Debugf("order %s (entry) validated: margin=%s brokerage=%s funds=%s", instrument, margin, brokerage, funds)
			return true, margin, brokerage
		}
		logs.Warnf("order %s (entry) rejected: required=%s funds=%s", instrument, total, funds)
		return false, margin, brokerage
	case schema.TradeTypeExit:
		if funds.GreaterThanOrEqual(brokerage) {
			logs.Debugf("order %s (exit) validated: brokerage=%s funds=%s", instrument, brokerage, funds)
			return true, margin, brokerage
		}
		logs.Warnf("order %s (exit) rejected: brokerage=%s funds=%s", instrument, brokerage, funds)
		return false, margin, brokerage
	default:
		logs.Errorf("order %s rejected: unknown trade type %d", instrument, tradeType)
		return false, decimal.Zero, decimal.Zero
	}
}
