// Package adapter validates and gates strategy signals before they become
// orders. A signal passes structural validation, the per-instrument rate
// limit, the portfolio gates and the risk check, in that order; surviving
// signals are published as orders tagged with the emitting strategy.
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/obs"
	"tradecore/internal/risk"
	"tradecore/internal/schema"
	"tradecore/internal/strategy"
)

// StateFunc looks up the extended state of the strategy that emitted a
// signal. ok is false when the strategy does not report state, which skips
// the portfolio gates.
type StateFunc func(strategyID string) (state strategy.State, ok bool)

// Config bounds the adapter's gates. Zero values take defaults.
type Config struct {
	MaxQuantity      int64           // per-signal quantity ceiling
	MaxPerMinute     int             // rate limit per (instrument, minute)
	HistoryLimit     int             // retained signal records
	RateRetention    time.Duration   // how long rate buckets are kept
	MaxConcentration decimal.Decimal // new exposure vs total, fraction
	MaxDrawdown      decimal.Decimal // strategy drawdown ceiling, fraction
}

func (c Config) withDefaults() Config {
	if c.MaxQuantity <= 0 {
		c.MaxQuantity = 10000
	}
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = 10
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 1000
	}
	if c.RateRetention <= 0 {
		c.RateRetention = 5 * time.Minute
	}
	if c.MaxConcentration.IsZero() {
		c.MaxConcentration = decimal.NewFromFloat(0.3)
	}
	if c.MaxDrawdown.IsZero() {
		c.MaxDrawdown = decimal.NewFromFloat(0.15)
	}
	return c
}

// SignalRecord is one entry of the adapter's signal history.
type SignalRecord struct {
	At         time.Time       `json:"timestamp"`
	StrategyID string          `json:"strategy_id"`
	Instrument string          `json:"instrument_token"`
	Side       string          `json:"signal_type"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OrderKind  string          `json:"order_type"`
	Status     string          `json:"status"`
	FillPrice  decimal.Decimal `json:"fill_price,omitempty"`
	FilledAt   time.Time       `json:"fill_timestamp,omitempty"`
}

// Adapter sits between strategies and the executor.
type Adapter struct {
	cfg     Config
	risk    *risk.Manager
	bus     *bus.Bus
	states  StateFunc
	limiter *rateLimiter

	mu      sync.Mutex
	history []SignalRecord
}

// New creates a signal adapter. states may be nil when no strategy reports
// extended state.
func New(cfg Config, riskManager *risk.Manager, eventBus *bus.Bus, states StateFunc) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		cfg:     cfg,
		risk:    riskManager,
		bus:     eventBus,
		states:  states,
		limiter: newRateLimiter(cfg.MaxPerMinute, cfg.RateRetention),
	}
}

// OnSignal handles one signal event. Rejections are logged and counted,
// never returned: a bad signal must not disturb the bus.
func (a *Adapter) OnSignal(ctx context.Context, event schema.Event) error {
	sig, ok := event.(schema.Signal)
	if !ok {
		return nil
	}

	if !a.validate(sig) {
		obs.SignalsRejected.WithLabelValues("validation").Inc()
		logs.Warnf("invalid signal rejected: %s %s qty=%d from %s", sig.Side, sig.Instrument, sig.Quantity, sig.StrategyID)
		return nil
	}
	if !a.limiter.Allow(sig.Instrument, time.Now()) {
		obs.SignalsRejected.WithLabelValues("rate_limit").Inc()
		logs.Debugf("rate limited signal for %s from %s", sig.Instrument, sig.StrategyID)
		return nil
	}

	a.record(sig)

	if a.states != nil {
		if state, ok := a.states(sig.StrategyID); ok {
			if reason := a.checkPortfolio(sig, state); reason != "" {
				obs.SignalsRejected.WithLabelValues(reason).Inc()
				logs.Warnf("portfolio %s limit exceeded for %s from %s", reason, sig.Instrument, sig.StrategyID)
				return nil
			}
		}
	}

	valid, margin, brokerage := a.risk.ValidateOrder(ctx, sig.Instrument, sig.Quantity, sig.Product, sig.Side, schema.TradeTypeEntry, sig.Price)
	if !valid {
		obs.SignalsRejected.WithLabelValues("risk").Inc()
		logs.Warnf("signal rejected by risk check: %s %d %s from %s", sig.Side, sig.Quantity, sig.Instrument, sig.StrategyID)
		return nil
	}

	tag := sig.StrategyID
	if sig.Tag != "" {
		tag = sig.StrategyID + "_" + sig.Tag
	}
	order := schema.Order{
		ID:         uuid.NewString(),
		Instrument: sig.Instrument,
		StrategyID: sig.StrategyID,
		Side:       sig.Side,
		Quantity:   sig.Quantity,
		Price:      sig.Price,
		OrderKind:  sig.OrderKind,
		Product:    sig.Product,
		Validity:   sig.Validity,
		Tag:        tag,
		Status:     schema.OrderStatusPending,
		At:         time.Now().UTC(),
	}
	if err := a.bus.Publish(ctx, order); err != nil {
		logs.Errorf("publish order for signal from %s: %+v", sig.StrategyID, err)
		return nil
	}

	obs.SignalsAccepted.Inc()
	logs.Infof("signal accepted: %s %d %s from %s (margin %s, brokerage %s)",
		sig.Side, sig.Quantity, sig.Instrument, sig.StrategyID, margin.StringFixed(2), brokerage.StringFixed(2))
	return nil
}

// OnFill marks the matching pending history record as filled. Matching is
// by instrument over the most recent records within a five minute window.
func (a *Adapter) OnFill(_ context.Context, event schema.Event) error {
	fill, ok := event.(schema.Fill)
	if !ok {
		return nil
	}

	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.history) - 10
	if start < 0 {
		start = 0
	}
	for i := len(a.history) - 1; i >= start; i-- {
		rec := &a.history[i]
		if rec.Instrument == fill.Instrument && rec.Status == "pending" && now.Sub(rec.At) < 5*time.Minute {
			rec.Status = "filled"
			rec.FillPrice = fill.Price
			rec.FilledAt = fill.At
			break
		}
	}
	return nil
}

// History returns up to limit records, most recent first.
func (a *Adapter) History(limit int) []SignalRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]SignalRecord, 0, n)
	for i := len(a.history) - 1; i >= len(a.history)-n; i-- {
		out = append(out, a.history[i])
	}
	return out
}

func (a *Adapter) validate(sig schema.Signal) bool {
	if sig.Instrument == "" || sig.StrategyID == "" {
		return false
	}
	if sig.Side != schema.SideBuy && sig.Side != schema.SideSell {
		return false
	}
	if sig.Quantity <= 0 || sig.Quantity > a.cfg.MaxQuantity {
		return false
	}
	return true
}

// checkPortfolio returns a rejection reason, or "" when the signal passes.
func (a *Adapter) checkPortfolio(sig schema.Signal, state strategy.State) string {
	totalExposure := decimal.Zero
	for _, pos := range state.Positions {
		totalExposure = totalExposure.Add(pos.AvgPrice.Mul(decimal.NewFromInt(pos.Quantity)).Abs())
	}
	newExposure := sig.Price.Mul(decimal.NewFromInt(sig.Quantity))
	if newExposure.GreaterThan(totalExposure.Mul(a.cfg.MaxConcentration)) {
		return "concentration"
	}
	if state.MaxDrawdown.Abs().GreaterThan(a.cfg.MaxDrawdown) {
		return "drawdown"
	}
	return ""
}

func (a *Adapter) record(sig schema.Signal) {
	rec := SignalRecord{
		At:         time.Now(),
		StrategyID: sig.StrategyID,
		Instrument: sig.Instrument,
		Side:       sig.Side.String(),
		Quantity:   sig.Quantity,
		Price:      sig.Price,
		OrderKind:  sig.OrderKind.String(),
		Status:     "pending",
	}

	a.mu.Lock()
	a.history = append(a.history, rec)
	if len(a.history) > a.cfg.HistoryLimit {
		a.history = a.history[len(a.history)-a.cfg.HistoryLimit:]
	}
	a.mu.Unlock()
}
