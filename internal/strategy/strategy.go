// Package strategy defines the capability interfaces trading strategies
// implement and the registry mapping configured strategy names to their
// constructors.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
)

// Strategy consumes market and fill events and emits signals through the
// sink it was constructed with.
type Strategy interface {
	HandleMarketEvent(ctx context.Context, tick schema.MarketTick) error
	HandleFillEvent(ctx context.Context, fill schema.Fill) error
	Description() string
}

// PositionState is one instrument's exposure as reported by a strategy.
type PositionState struct {
	Quantity int64
	AvgPrice decimal.Decimal
}

// State is the extended view a strategy may expose for portfolio level
// gating. MaxDrawdown is a fraction, 0.12 meaning a 12% peak-to-trough.
type State struct {
	Positions   map[string]PositionState
	MaxDrawdown decimal.Decimal
}

// StateReporter is implemented by strategies that track their own exposure
// and performance. Strategies without it skip the portfolio gates.
type StateReporter interface {
	StrategyState() State
}

// SignalSink delivers a generated signal into the engine.
type SignalSink func(schema.Signal)

// Params carries a strategy's configured parameters as decoded JSON.
type Params map[string]any

// Int reads an integer parameter, tolerating the float64 JSON numbers
// decode to. Missing or mistyped values fall back to def.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// Float reads a numeric parameter, falling back to def.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// String reads a string parameter, falling back to def.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Constructor builds a strategy instance. id is the instance identifier the
// manager assigned, used to tag emitted signals.
type Constructor func(id string, params Params, emit SignalSink) (Strategy, error)

var registry = map[string]Constructor{}

// Register binds a strategy name to its constructor. Call from an init
// function; a duplicate name panics.
func Register(name string, ctor Constructor) {
	if _, ok := registry[name]; ok {
		panic("strategy: duplicate registration of " + name)
	}
	registry[name] = ctor
}

// New constructs a registered strategy. Unregistered names fail here so a
// bad configuration is caught before the engine starts.
func New(name, id string, params Params, emit SignalSink) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown strategy %q", name)
	}
	return ctor(id, params, emit)
}

// Registered reports whether a strategy name has a constructor.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}
