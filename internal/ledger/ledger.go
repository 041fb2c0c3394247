// Package ledger owns cash and positions. All financial state is mutated
// only inside OnFill, which runs to completion on the fill dispatch
// goroutine before the next fill is delivered; that single-writer,
// run-to-completion discipline replaces locking around the update sequence.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"tradecore/internal/ledger/store"
	"tradecore/internal/schema"
)

// TradeRecord is one processed fill, kept for the shutdown trade log.
type TradeRecord struct {
	At              time.Time       `json:"timestamp"`
	Instrument      string          `json:"instrument_token"`
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id"`
	StrategyID      string          `json:"strategy_id"`
	Side            string          `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Brokerage       decimal.Decimal `json:"brokerage"`
	CashAfter       decimal.Decimal `json:"current_cash_after_trade"`
}

// Config identifies the ledger's persistence partition and starting cash.
type Config struct {
	BrokerName  string
	AccountName string
	Strategy    string
	InitialCash decimal.Decimal
}

// Ledger tracks cash, positions, realized P&L and the equity curve for one
// broker/account/strategy identity.
type Ledger struct {
	cfg   Config
	key   string
	store store.Store

	// Written only by OnFill.
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*schema.Position
	realized    decimal.Decimal
	equity      []schema.EquitySnapshot
	trades      []TradeRecord

	// Mark prices arrive on the tick dispatch goroutine, not the fill
	// goroutine, so they carry their own lock.
	priceMu sync.RWMutex
	prices  map[string]decimal.Decimal
}

// New creates a ledger and reloads persisted state for its key, resuming
// from the last known cash and positions. A load failure resets to the
// initial cash and is logged.
func New(ctx context.Context, cfg Config, st store.Store) *Ledger {
	l := &Ledger{
		cfg:         cfg,
		key:         store.Key(cfg.BrokerName, cfg.AccountName, cfg.Strategy),
		store:       st,
		initialCash: cfg.InitialCash,
		cash:        cfg.InitialCash,
		positions:   make(map[string]*schema.Position),
		prices:      make(map[string]decimal.Decimal),
	}
	if st == nil {
		return l
	}
	state, ok, err := st.Load(ctx, l.key)
	if err != nil {
		logs.Errorf("load ledger state %s, err: %+v", l.key, err)
		return l
	}
	if ok {
		l.cash = state.CurrentCash
		for i := range state.Positions {
			pos := state.Positions[i]
			l.positions[pos.Instrument] = &pos
		}
		logs.Infof("ledger %s resumed: cash=%s positions=%d", l.key, l.cash, len(l.positions))
	}
	return l
}

// OnTick records the last traded price for mark-to-market valuation.
func (l *Ledger) OnTick(ctx context.Context, event schema.Event) error {
	tick, ok := event.(schema.MarketTick)
	if !ok {
		return nil
	}
	l.priceMu.Lock()
	l.prices[tick.Instrument] = tick.Price
	l.priceMu.Unlock()
	return nil
}

// OnFill applies a fill to cash and positions, appends an equity snapshot
// and persists the new state. It is the only mutator of financial state.
func (l *Ledger) OnFill(ctx context.Context, event schema.Event) error {
	fill, ok := event.(schema.Fill)
	if !ok {
		return nil
	}

	qty := decimal.NewFromInt(fill.Quantity)
	tradeValue := fill.Price.Mul(qty)
	if fill.Side == schema.SideBuy {
		l.cash = l.cash.Sub(tradeValue).Sub(fill.Brokerage)
	} else {
		l.cash = l.cash.Add(tradeValue).Sub(fill.Brokerage)
	}

	l.applyPosition(fill)

	l.trades = append(l.trades, TradeRecord{
		At:              fill.At,
		Instrument:      fill.Instrument,
		OrderID:         fill.OrderID,
		ExchangeOrderID: fill.ExchangeOrderID,
		StrategyID:      fill.StrategyID,
		Side:            fill.Side.String(),
		Quantity:        fill.Quantity,
		Price:           fill.Price,
		Brokerage:       fill.Brokerage,
		CashAfter:       l.cash,
	})
	l.snapshotEquity(fill.At)

	if l.store != nil {
		if err := l.store.Save(ctx, l.key, l.state()); err != nil {
			// Best-effort durability: trading continues on in-memory state.
			logs.Errorf("persist ledger state %s, err: %+v", l.key, err)
		}
	}
	logs.Infof("%s fill applied: %d@%s brokerage=%s cash=%s",
		fill.Side, fill.Quantity, fill.Price, fill.Brokerage, l.cash)
	return nil
}

// applyPosition nets the fill into the instrument's position. Reducing a
// position realizes P&L against the held average; a fill that crosses zero
// realizes the closed portion and reopens the residual at the fill price.
// Reaching exactly zero deletes the position entry.
func (l *Ledger) applyPosition(fill schema.Fill) {
	delta := fill.Quantity
	if fill.Side == schema.SideSell {
		delta = -delta
	}

	pos, ok := l.positions[fill.Instrument]
	if !ok {
		l.positions[fill.Instrument] = &schema.Position{
			Instrument:  fill.Instrument,
			Quantity:    delta,
			AvgPrice:    fill.Price,
			RealizedPnL: decimal.Zero,
		}
		return
	}

	oldQty := pos.Quantity
	newQty := oldQty + delta

	switch {
	case (oldQty > 0) == (delta > 0):
		// Same direction: extend at volume-weighted average price.
		oldValue := pos.AvgPrice.Mul(decimal.NewFromInt(oldQty))
		addValue := fill.Price.Mul(decimal.NewFromInt(delta))
		pos.AvgPrice = oldValue.Add(addValue).Div(decimal.NewFromInt(newQty))
		pos.Quantity = newQty

	case (oldQty > 0 && newQty >= 0) || (oldQty < 0 && newQty <= 0):
		// Reduce without crossing zero: realize on the closed quantity.
		closed := oldQty - newQty
		pnl := fill.Price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(closed))
		pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
		l.realized = l.realized.Add(pnl)
		pos.Quantity = newQty

	default:
		// Sign flip: realize the full old position, reopen the remainder
		// at the fill price.
		pnl := fill.Price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(oldQty))
		l.realized = l.realized.Add(pnl)
		pos.RealizedPnL = decimal.Zero
		pos.AvgPrice = fill.Price
		pos.Quantity = newQty
	}

	if pos.Quantity == 0 {
		delete(l.positions, fill.Instrument)
		logs.Infof("position %s closed", fill.Instrument)
	}
}

func (l *Ledger) snapshotEquity(at time.Time) {
	total := l.cash
	positions := make(map[string]int64, len(l.positions))
	l.priceMu.RLock()
	for instrument, pos := range l.positions {
		positions[instrument] = pos.Quantity
		if mark, ok := l.prices[instrument]; ok {
			total = total.Add(mark.Mul(decimal.NewFromInt(pos.Quantity)))
		}
	}
	l.priceMu.RUnlock()
	l.equity = append(l.equity, schema.EquitySnapshot{
		At:         at,
		Cash:       l.cash,
		Positions:  positions,
		TotalValue: total,
	})
}

func (l *Ledger) state() store.State {
	positions := make([]schema.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		positions = append(positions, *pos)
	}
	return store.State{Positions: positions, CurrentCash: l.cash}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// Position returns the current position for an instrument.
func (l *Ledger) Position(instrument string) (schema.Position, bool) {
	pos, ok := l.positions[instrument]
	if !ok {
		return schema.Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() map[string]schema.Position {
	out := make(map[string]schema.Position, len(l.positions))
	for instrument, pos := range l.positions {
		out[instrument] = *pos
	}
	return out
}

// RealizedPnL returns cumulative realized profit and loss.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	return l.realized
}

// EquityCurve returns the appended equity snapshots.
func (l *Ledger) EquityCurve() []schema.EquitySnapshot {
	out := make([]schema.EquitySnapshot, len(l.equity))
	copy(out, l.equity)
	return out
}

// Trades returns the per-fill trade log.
func (l *Ledger) Trades() []TradeRecord {
	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// Summary logs the final portfolio state.
func (l *Ledger) Summary() {
	logs.Infof("portfolio %s/%s/%s: initial_cash=%s final_cash=%s realized_pnl=%s open_positions=%d",
		l.cfg.BrokerName, l.cfg.AccountName, l.cfg.Strategy,
		l.initialCash, l.cash, l.realized, len(l.positions))
}
