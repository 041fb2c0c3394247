package broker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

var (
	ErrUnknownOrder = errors.New("order not found")
	ErrNotPending   = errors.New("order is not pending")
)

// marginRate is the fraction of notional reserved as margin by the simulator.
var marginRate = decimal.NewFromFloat(0.1)

// SimulatorConfig controls fill behavior of the simulated broker.
type SimulatorConfig struct {
	AccountName     string
	SlippagePercent float64
	FillProbability float64
	Brokerage       decimal.Decimal
	InitialCash     decimal.Decimal
	// Rand overrides the fill-probability draw. Nil uses a time-seeded source.
	Rand func() float64
}

// Simulator implements Broker for paper trading. It keeps its own cash
// ledger, independent of the portfolio ledger, so that funds and margin
// queries are self-contained.
//
// PlaceOrder and FundsAndMargin are called from different dispatch
// goroutines; all internal state is guarded by one mutex.
type Simulator struct {
	cfg  SimulatorConfig
	rand func() float64

	mu     sync.Mutex
	cash   decimal.Decimal
	orders map[string]*OrderResult
	trades []schema.Fill
	quotes map[string]decimal.Decimal
}

// NewSimulator creates a simulated broker with the given limits.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	draw := cfg.Rand
	if draw == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		draw = rng.Float64
	}
	if cfg.Brokerage.IsZero() {
		cfg.Brokerage = decimal.NewFromInt(20)
	}
	return &Simulator{
		cfg:    cfg,
		rand:   draw,
		cash:   cfg.InitialCash,
		orders: make(map[string]*OrderResult),
		quotes: make(map[string]decimal.Decimal),
	}
}

// MarkPrice records the last traded price for an instrument. It feeds the
// quote endpoints and the market-order price fallback.
func (s *Simulator) MarkPrice(instrument string, price decimal.Decimal) {
	s.mu.Lock()
	s.quotes[instrument] = price
	s.mu.Unlock()
}

// PlaceOrder simulates order placement. Market orders fill immediately when
// the fill-probability draw passes; limit orders are recorded and stay
// PENDING; any other kind is rejected. A BUY fill requires the simulated
// cash to cover quantity*price plus brokerage; there are no partial fills.
func (s *Simulator) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := &OrderResult{
		OrderID:    uuid.NewString(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Kind:       req.Kind,
		Price:      req.Price,
		Status:     schema.OrderStatusPending,
		PlacedAt:   time.Now().UTC(),
	}
	s.orders[order.OrderID] = order

	switch {
	case req.Kind == schema.OrderKindMarket && s.rand() <= s.cfg.FillProbability:
		s.fillLocked(order, req)
	case req.Kind == schema.OrderKindLimit:
		logs.Debugf("simulated LIMIT order %s placed, awaiting fill conditions", order.OrderID)
	default:
		order.Status = schema.OrderStatusRejected
		logs.Warnf("simulated order %s rejected: fill chance missed or unsupported kind %s", order.OrderID, req.Kind)
	}
	return *order, nil
}

func (s *Simulator) fillLocked(order *OrderResult, req OrderRequest) {
	fillPrice := req.Price
	if !fillPrice.IsPositive() {
		if ltp, ok := s.quotes[req.Instrument]; ok {
			fillPrice = ltp
		} else {
			fillPrice = decimal.NewFromInt(100)
		}
	}

	slip := fillPrice.Mul(decimal.NewFromFloat(s.cfg.SlippagePercent)).Div(decimal.NewFromInt(100))
	if req.Side == schema.SideBuy {
		fillPrice = fillPrice.Add(slip)
	} else {
		fillPrice = fillPrice.Sub(slip)
	}
	fillPrice = fillPrice.Round(2)

	brokerage := s.cfg.Brokerage
	tradeValue := fillPrice.Mul(decimal.NewFromInt(req.Quantity))

	if req.Side == schema.SideBuy {
		cost := tradeValue.Add(brokerage)
		if s.cash.LessThan(cost) {
			order.Status = schema.OrderStatusRejected
			logs.Warnf("simulated order %s rejected: insufficient funds, cost=%s cash=%s", order.OrderID, cost, s.cash)
			return
		}
		s.cash = s.cash.Sub(cost)
	} else {
		// No short-sale funds check; sells credit unconditionally.
		s.cash = s.cash.Add(tradeValue.Sub(brokerage))
	}

	order.Status = schema.OrderStatusFilled
	order.FilledQuantity = req.Quantity
	order.FilledPrice = fillPrice
	order.Brokerage = brokerage
	order.ExchangeOrderID = uuid.NewString()

	s.trades = append(s.trades, schema.Fill{
		OrderID:         order.OrderID,
		ExchangeOrderID: order.ExchangeOrderID,
		Instrument:      req.Instrument,
		Side:            req.Side,
		Quantity:        req.Quantity,
		Price:           fillPrice,
		Brokerage:       brokerage,
		At:              time.Now().UTC(),
	})
	logs.Infof("simulated order %s filled: %s %d@%s brokerage=%s cash=%s",
		order.OrderID, req.Side, req.Quantity, fillPrice, brokerage, s.cash)
}

// CancelOrder succeeds only while the order is PENDING.
func (s *Simulator) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status != schema.OrderStatusPending {
		return ErrNotPending
	}
	order.Status = schema.OrderStatusCancelled
	return nil
}

// ModifyOrder succeeds only while the order is PENDING.
func (s *Simulator) ModifyOrder(ctx context.Context, orderID string, req ModifyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status != schema.OrderStatusPending {
		return ErrNotPending
	}
	if req.Quantity > 0 {
		order.Quantity = req.Quantity
	}
	if req.Price.IsPositive() {
		order.Price = req.Price
	}
	return nil
}

// OrderDetails returns the broker's record of an order.
func (s *Simulator) OrderDetails(ctx context.Context, orderID string) (OrderResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return OrderResult{}, false
	}
	return *order, true
}

// OrderBook returns all orders known to the simulator.
func (s *Simulator) OrderBook(ctx context.Context) []OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OrderResult, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, *order)
	}
	return out
}

// TradeBook returns all fills produced by the simulator.
func (s *Simulator) TradeBook(ctx context.Context) []schema.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Fill, len(s.trades))
	copy(out, s.trades)
	return out
}

// FundsAndMargin returns the current simulated cash.
func (s *Simulator) FundsAndMargin(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash, nil
}

// CalculateMargin reserves a flat fraction of notional.
func (s *Simulator) CalculateMargin(ctx context.Context, req OrderRequest) (decimal.Decimal, error) {
	return req.Price.Mul(decimal.NewFromInt(req.Quantity)).Mul(marginRate), nil
}

// CalculateBrokerage charges a flat fee per trade.
func (s *Simulator) CalculateBrokerage(ctx context.Context, req OrderRequest) (decimal.Decimal, error) {
	return s.cfg.Brokerage, nil
}

// LTPQuote returns the last marked price for an instrument.
func (s *Simulator) LTPQuote(ctx context.Context, instrument string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ltp, ok := s.quotes[instrument]; ok {
		return ltp, nil
	}
	return decimal.NewFromInt(100), nil
}

// OHLCQuote returns a synthetic candle around the last price.
func (s *Simulator) OHLCQuote(ctx context.Context, instrument string) (OHLC, error) {
	ltp, err := s.LTPQuote(ctx, instrument)
	if err != nil {
		return OHLC{}, err
	}
	one := decimal.NewFromInt(1)
	return OHLC{
		Open:  ltp.Sub(one),
		High:  ltp.Add(one),
		Low:   ltp.Sub(one).Sub(one),
		Close: ltp,
	}, nil
}

// HistoricalCandles returns synthetic flat bars ending at the last price.
func (s *Simulator) HistoricalCandles(ctx context.Context, instrument string, bars int) ([]Candle, error) {
	ltp, err := s.LTPQuote(ctx, instrument)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]Candle, 0, bars)
	for i := bars; i > 0; i-- {
		out = append(out, Candle{
			At:     now.Add(-time.Duration(i) * time.Minute),
			OHLC:   OHLC{Open: ltp, High: ltp, Low: ltp, Close: ltp},
			Volume: 1000,
		})
	}
	return out, nil
}

// ExpiryDates returns one synthetic expiry thirty days out.
func (s *Simulator) ExpiryDates(ctx context.Context, instrument string) ([]time.Time, error) {
	return []time.Time{time.Now().UTC().AddDate(0, 0, 30)}, nil
}

// OptionChain returns an empty synthetic chain.
func (s *Simulator) OptionChain(ctx context.Context, instrument string, expiry time.Time) (OptionChain, error) {
	return OptionChain{Expiry: expiry}, nil
}

var _ Broker = (*Simulator)(nil)
