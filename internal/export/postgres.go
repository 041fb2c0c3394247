package export

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/ledger"
	"tradecore/internal/schema"
	"tradecore/pkg/conn"
)

// TradeRow is the trades table layout.
type TradeRow struct {
	ID              uint            `gorm:"primaryKey"`
	RunID           string          `gorm:"index;size:64"`
	At              time.Time       `gorm:"index"`
	Instrument      string          `gorm:"size:64"`
	OrderID         string          `gorm:"size:64"`
	ExchangeOrderID string          `gorm:"size:64"`
	StrategyID      string          `gorm:"size:128"`
	Side            string          `gorm:"size:8"`
	Quantity        int64
	Price           decimal.Decimal `gorm:"type:numeric(20,6)"`
	Brokerage       decimal.Decimal `gorm:"type:numeric(20,6)"`
	CashAfter       decimal.Decimal `gorm:"type:numeric(20,6)"`
}

func (TradeRow) TableName() string { return "trades" }

// EquityRow is the equity_snapshots table layout. Positions is the
// instrument to quantity map serialized as JSON.
type EquityRow struct {
	ID         uint            `gorm:"primaryKey"`
	RunID      string          `gorm:"index;size:64"`
	At         time.Time       `gorm:"index"`
	Cash       decimal.Decimal `gorm:"type:numeric(20,6)"`
	TotalValue decimal.Decimal `gorm:"type:numeric(20,6)"`
	Positions  string          `gorm:"type:jsonb"`
}

func (EquityRow) TableName() string { return "equity_snapshots" }

// PostgresSink persists run artifacts to Postgres on shutdown.
type PostgresSink struct {
	client *conn.Client
	runID  string
}

// NewPostgresSink connects and migrates the artifact tables.
func NewPostgresSink(opt conn.Option, runID string) (*PostgresSink, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := client.DB().AutoMigrate(&TradeRow{}, &EquityRow{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate artifact tables")
	}
	return &PostgresSink{client: client, runID: runID}, nil
}

// SaveRun inserts the run's trades and equity curve in batches.
func (s *PostgresSink) SaveRun(trades []ledger.TradeRecord, curve []schema.EquitySnapshot) error {
	if len(trades) > 0 {
		rows := make([]TradeRow, 0, len(trades))
		for _, t := range trades {
			rows = append(rows, TradeRow{
				RunID:           s.runID,
				At:              t.At,
				Instrument:      t.Instrument,
				OrderID:         t.OrderID,
				ExchangeOrderID: t.ExchangeOrderID,
				StrategyID:      t.StrategyID,
				Side:            t.Side,
				Quantity:        t.Quantity,
				Price:           t.Price,
				Brokerage:       t.Brokerage,
				CashAfter:       t.CashAfter,
			})
		}
		if err := s.client.DB().CreateInBatches(rows, 500).Error; err != nil {
			return errors.Wrap(err, "insert trades")
		}
	}

	if len(curve) > 0 {
		rows := make([]EquityRow, 0, len(curve))
		for _, snap := range curve {
			positions, err := sonic.MarshalString(snap.Positions)
			if err != nil {
				return errors.Wrap(err, "marshal snapshot positions")
			}
			rows = append(rows, EquityRow{
				RunID:      s.runID,
				At:         snap.At,
				Cash:       snap.Cash,
				TotalValue: snap.TotalValue,
				Positions:  positions,
			})
		}
		if err := s.client.DB().CreateInBatches(rows, 500).Error; err != nil {
			return errors.Wrap(err, "insert equity snapshots")
		}
	}

	logs.Infof("persisted run %s: %d trades, %d snapshots", s.runID, len(trades), len(curve))
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	return s.client.Close()
}
