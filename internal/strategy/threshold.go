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
	Register("threshold_exit", NewThresholdExit)
}

// ThresholdExit sells a fixed quantity of one instrument the first time its
// price drops below a configured trigger. It starts holding, so the exit
// path can be exercised without an entry leg.
type ThresholdExit struct {
	id         string
	instrument string
	trigger    decimal.Decimal
	quantity   int64
	emit       SignalSink

	mu      sync.Mutex
	holding bool
	fills   []schema.Fill
}

// NewThresholdExit builds a threshold exit strategy. Required params:
// instrument, trigger_price, quantity.
func NewThresholdExit(id string, params Params, emit SignalSink) (Strategy, error) {
	s := &ThresholdExit{
		id:         id,
		instrument: params.String("instrument", ""),
		trigger:    decimal.NewFromFloat(params.Float("trigger_price", 0)),
		quantity:   int64(params.Int("quantity", 0)),
		emit:       emit,
		holding:    true,
	}
	if s.instrument == "" {
		return nil, errors.New("instrument is required")
	}
	if !s.trigger.IsPositive() {
		return nil, errors.Errorf("trigger_price must be positive, got %s", s.trigger)
	}
	if s.quantity <= 0 {
		return nil, errors.Errorf("quantity must be positive, got %d", s.quantity)
	}
	return s, nil
}

func (s *ThresholdExit) Description() string {
	return fmt.Sprintf("threshold exit %s below %s", s.instrument, s.trigger)
}

func (s *ThresholdExit) HandleMarketEvent(_ context.Context, tick schema.MarketTick) error {
	if tick.Instrument != s.instrument {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holding || !tick.Price.LessThan(s.trigger) {
		return nil
	}
	s.holding = false

	logs.Infof("[%s] trigger: %s < %s, selling %d %s", s.id, tick.Price, s.trigger, s.quantity, s.instrument)
	s.emit(schema.Signal{
		Instrument: s.instrument,
		StrategyID: s.id,
		Side:       schema.SideSell,
		Quantity:   s.quantity,
		Price:      tick.Price,
		OrderKind:  schema.OrderKindMarket,
		At:         tick.At,
	})
	return nil
}

func (s *ThresholdExit) HandleFillEvent(_ context.Context, fill schema.Fill) error {
	s.mu.Lock()
	s.fills = append(s.fills, fill)
	s.mu.Unlock()
	logs.Infof("[%s] filled %s %d %s @ %s", s.id, fill.Side, fill.Quantity, fill.Instrument, fill.Price)
	return nil
}

// Fills returns the fills the strategy has observed.
func (s *ThresholdExit) Fills() []schema.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Fill, len(s.fills))
	copy(out, s.fills)
	return out
}
