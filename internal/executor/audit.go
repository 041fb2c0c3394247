package executor

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

var (
	ErrAuditClosed     = errors.New("audit log closed")
	ErrAuditNotStarted = errors.New("audit log not started")
	ErrAuditQueueFull  = errors.New("audit queue full")
)

// AuditRecord is one processed order, whatever its outcome.
type AuditRecord struct {
	At              time.Time       `json:"timestamp_processed"`
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	Instrument      string          `json:"instrument_token"`
	StrategyID      string          `json:"strategy_id"`
	Side            string          `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	OrderKind       string          `json:"order_type"`
	Status          string          `json:"status"`
	FilledQuantity  int64           `json:"filled_quantity,omitempty"`
	FilledPrice     decimal.Decimal `json:"filled_price,omitempty"`
	Brokerage       decimal.Decimal `json:"brokerage,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// AuditLog appends order records to a JSON-lines file from a buffered
// queue, keeping file IO off the dispatch goroutine. Records are also held
// in memory for the shutdown export and status queries.
type AuditLog struct {
	dir string
	ch  chan AuditRecord
	wg  sync.WaitGroup
	err atomic.Value

	mu      sync.Mutex
	records []AuditRecord

	started uint32
	closed  uint32
}

// NewAuditLog creates an audit log writing under dir.
func NewAuditLog(dir string, queueSize int) (*AuditLog, error) {
	if queueSize <= 0 {
		queueSize = 256
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &AuditLog{
		dir: dir,
		ch:  make(chan AuditRecord, queueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (a *AuditLog) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&a.started, 0, 1) {
		return nil
	}
	name := filepath.Join(a.dir, "orders_"+time.Now().UTC().Format("20060102_150405")+".jsonl")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(f)
	}()
	return nil
}

func (a *AuditLog) run(f *os.File) {
	w := bufio.NewWriter(f)
	defer func() {
		if err := w.Flush(); err != nil {
			a.err.Store(err)
		}
		if err := f.Close(); err != nil {
			a.err.Store(err)
		}
	}()
	for record := range a.ch {
		line, err := sonic.Marshal(record)
		if err != nil {
			a.err.Store(err)
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			a.err.Store(err)
		}
	}
}

// TryAppend enqueues a record without blocking. The record is retained in
// memory even when the file queue is full.
func (a *AuditLog) TryAppend(record AuditRecord) error {
	a.mu.Lock()
	a.records = append(a.records, record)
	a.mu.Unlock()

	if atomic.LoadUint32(&a.closed) != 0 {
		return ErrAuditClosed
	}
	if atomic.LoadUint32(&a.started) == 0 {
		return ErrAuditNotStarted
	}
	select {
	case a.ch <- record:
		return nil
	default:
		return ErrAuditQueueFull
	}
}

// Records returns a copy of all appended records.
func (a *AuditLog) Records() []AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Close stops the writer and flushes buffered records.
func (a *AuditLog) Close() error {
	if atomic.CompareAndSwapUint32(&a.closed, 0, 1) {
		close(a.ch)
	}
	a.wg.Wait()
	if v := a.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}
