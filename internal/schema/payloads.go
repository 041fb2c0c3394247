package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketTick is a single market price update for an instrument.
type MarketTick struct {
	Instrument string
	Price      decimal.Decimal
	At         time.Time
}

func (MarketTick) Kind() EventKind { return EventMarketTick }

// Signal is a strategy's trading intent prior to risk validation.
type Signal struct {
	Instrument string
	StrategyID string
	Side       Side
	Quantity   int64
	Price      decimal.Decimal
	OrderKind  OrderKind
	Product    string
	Validity   string
	Tag        string
	At         time.Time
}

func (Signal) Kind() EventKind { return EventSignal }

// Order is a validated, broker-directed instruction derived from a signal.
// A zero price means market.
type Order struct {
	ID         string
	Instrument string
	StrategyID string
	Side       Side
	Quantity   int64
	Price      decimal.Decimal
	OrderKind  OrderKind
	Product    string
	Validity   string
	Tag        string
	Status     OrderStatus
	At         time.Time
}

func (Order) Kind() EventKind { return EventOrder }

// Fill confirms that an order executed. It always references an order that
// was PENDING and transitioned to FILLED.
type Fill struct {
	OrderID         string
	ExchangeOrderID string
	Instrument      string
	StrategyID      string
	Side            Side
	Quantity        int64
	Price           decimal.Decimal
	Brokerage       decimal.Decimal
	At              time.Time
}

func (Fill) Kind() EventKind { return EventFill }

// Position is a net holding: signed quantity and volume-weighted average
// entry price. A positive quantity is long, negative is short.
type Position struct {
	Instrument  string          `json:"instrument_token"`
	Quantity    int64           `json:"quantity"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Notional returns the absolute mark value of the position at the given price.
func (p Position) Notional(mark decimal.Decimal) decimal.Decimal {
	return mark.Mul(decimal.NewFromInt(p.Quantity)).Abs()
}

// UnrealizedPnL derives the open P&L at the given mark price. It is not
// stored; callers recompute it on demand.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return mark.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// EquitySnapshot is a point-in-time record of cash plus position value.
// Snapshots are appended after every fill and never mutated.
type EquitySnapshot struct {
	At         time.Time        `json:"timestamp"`
	Cash       decimal.Decimal  `json:"cash"`
	Positions  map[string]int64 `json:"positions"`
	TotalValue decimal.Decimal  `json:"total_value"`
}
