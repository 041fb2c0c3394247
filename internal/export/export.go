// Package export writes run artifacts to timestamped JSON files and,
// optionally, persists them to Postgres.
package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/executor"
	"tradecore/internal/ledger"
	"tradecore/internal/schema"
)

// Writer exports run artifacts into a directory.
type Writer struct {
	dir   string
	stamp string
}

// NewWriter creates the export directory if needed. All files of one run
// share the same timestamp suffix.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export dir")
	}
	return &Writer{dir: dir, stamp: time.Now().Format("20060102_150405")}, nil
}

// WriteEquityCurve exports the per-fill equity snapshots.
func (w *Writer) WriteEquityCurve(curve []schema.EquitySnapshot) (string, error) {
	return w.writeJSON("equity_curve", curve)
}

// WriteTrades exports the trade log.
func (w *Writer) WriteTrades(trades []ledger.TradeRecord) (string, error) {
	return w.writeJSON("trades", trades)
}

// WriteAudit exports the order audit trail.
func (w *Writer) WriteAudit(records []executor.AuditRecord) (string, error) {
	return w.writeJSON("order_audit", records)
}

// WritePositions exports the final open positions.
func (w *Writer) WritePositions(positions map[string]schema.Position) (string, error) {
	return w.writeJSON("positions", positions)
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal "+name)
	}

	path := filepath.Join(w.dir, name+"_"+w.stamp+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write "+name)
	}
	logs.Infof("exported %s", path)
	return path, nil
}
