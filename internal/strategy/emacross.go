package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

func init() {
	Register("ema_cross", NewEMACross)
}

// EMACross emits a signal whenever the short moving average of the trailing
// price window crosses the long one. Only a change of crossover direction
// produces a signal, so a sustained trend fires once.
type EMACross struct {
	id       string
	short    int
	long     int
	quantity int64
	emit     SignalSink

	mu         sync.Mutex
	prices     map[string][]decimal.Decimal
	lastAction map[string]schema.Side
}

// NewEMACross builds an EMA cross strategy. Defaults: short 5, long 20,
// quantity 10.
func NewEMACross(id string, params Params, emit SignalSink) (Strategy, error) {
	s := &EMACross{
		id:         id,
		short:      params.Int("short_period", 5),
		long:       params.Int("long_period", 20),
		quantity:   int64(params.Int("quantity", 10)),
		emit:       emit,
		prices:     make(map[string][]decimal.Decimal),
		lastAction: make(map[string]schema.Side),
	}
	if s.short <= 0 || s.long <= 0 {
		return nil, errors.Errorf("ema periods must be positive, got short=%d long=%d", s.short, s.long)
	}
	if s.short >= s.long {
		return nil, errors.Errorf("short period %d must be less than long period %d", s.short, s.long)
	}
	if s.quantity <= 0 {
		return nil, errors.Errorf("quantity must be positive, got %d", s.quantity)
	}
	return s, nil
}

func (s *EMACross) Description() string {
	return fmt.Sprintf("ema cross short=%d long=%d", s.short, s.long)
}

func (s *EMACross) HandleMarketEvent(_ context.Context, tick schema.MarketTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := append(s.prices[tick.Instrument], tick.Price)
	if len(window) > s.long {
		window = window[len(window)-s.long:]
	}
	s.prices[tick.Instrument] = window
	if len(window) < s.long {
		return nil
	}

	shortAvg := average(window[len(window)-s.short:])
	longAvg := average(window)

	var cross schema.Side
	switch {
	case shortAvg.GreaterThan(longAvg):
		cross = schema.SideBuy
	case shortAvg.LessThan(longAvg):
		cross = schema.SideSell
	default:
		return nil
	}
	if s.lastAction[tick.Instrument] == cross {
		return nil
	}
	s.lastAction[tick.Instrument] = cross

	logs.Infof("[%s] %s: short %s long %s, crossover %s", s.id, tick.Instrument, shortAvg.StringFixed(2), longAvg.StringFixed(2), cross)
	s.emit(schema.Signal{
		Instrument: tick.Instrument,
		StrategyID: s.id,
		Side:       cross,
		Quantity:   s.quantity,
		Price:      tick.Price,
		OrderKind:  schema.OrderKindMarket,
		At:         tick.At,
	})
	return nil
}

func (s *EMACross) HandleFillEvent(_ context.Context, fill schema.Fill) error {
	logs.Debugf("[%s] fill %s %d %s @ %s", s.id, fill.Side, fill.Quantity, fill.Instrument, fill.Price)
	return nil
}

func average(window []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range window {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(len(window))))
}
