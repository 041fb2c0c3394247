// Package broker defines the broker capability consumed by the core and the
// paper-trading simulator implementing it. A live-exchange adapter satisfies
// the same interface.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/schema"
)

// OrderRequest carries the fields needed to place an order.
type OrderRequest struct {
	Instrument string
	Side       schema.Side
	Quantity   int64
	Kind       schema.OrderKind
	Price      decimal.Decimal
	Product    string
	Validity   string
	Tag        string
}

// OrderResult is the broker's record of a placed order.
type OrderResult struct {
	OrderID         string
	ExchangeOrderID string
	Instrument      string
	Side            schema.Side
	Quantity        int64
	Kind            schema.OrderKind
	Price           decimal.Decimal
	Status          schema.OrderStatus
	FilledQuantity  int64
	FilledPrice     decimal.Decimal
	Brokerage       decimal.Decimal
	PlacedAt        time.Time
}

// ModifyRequest carries the mutable fields of a pending order.
type ModifyRequest struct {
	Quantity int64
	Price    decimal.Decimal
}

// OHLC is a single candle quote.
type OHLC struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Candle is one historical bar.
type Candle struct {
	At     time.Time
	OHLC
	Volume int64
}

// OptionQuote is one leg of an option chain.
type OptionQuote struct {
	Strike decimal.Decimal
	LTP    decimal.Decimal
}

// OptionChain holds call and put quotes for one expiry.
type OptionChain struct {
	Expiry time.Time
	Calls  []OptionQuote
	Puts   []OptionQuote
}

// Broker is the capability interface for order placement and account
// queries. The method set is fixed; both the simulator and any real-broker
// adapter satisfy it at compile time.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	ModifyOrder(ctx context.Context, orderID string, req ModifyRequest) error
	OrderDetails(ctx context.Context, orderID string) (OrderResult, bool)
	OrderBook(ctx context.Context) []OrderResult
	TradeBook(ctx context.Context) []schema.Fill

	FundsAndMargin(ctx context.Context) (decimal.Decimal, error)
	CalculateMargin(ctx context.Context, req OrderRequest) (decimal.Decimal, error)
	CalculateBrokerage(ctx context.Context, req OrderRequest) (decimal.Decimal, error)

	LTPQuote(ctx context.Context, instrument string) (decimal.Decimal, error)
	OHLCQuote(ctx context.Context, instrument string) (OHLC, error)
	HistoricalCandles(ctx context.Context, instrument string, bars int) ([]Candle, error)
	ExpiryDates(ctx context.Context, instrument string) ([]time.Time, error)
	OptionChain(ctx context.Context, instrument string, expiry time.Time) (OptionChain, error)
}
