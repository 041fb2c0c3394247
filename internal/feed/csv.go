package feed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

// CSVFeed replays ticks from a CSV file with a fixed delay between rows.
type CSVFeed struct {
	path  string
	delay time.Duration
}

// NewCSV creates a replay feed over the given file.
func NewCSV(path string, delay time.Duration) *CSVFeed {
	return &CSVFeed{path: path, delay: delay}
}

// columnSet holds the resolved column indexes of a replay file. timestamp
// may be -1, the other two are required.
type columnSet struct {
	instrument int
	price      int
	timestamp  int
}

// resolveColumns maps a header row to the columns the feed reads.
// Instrument accepts instrument_token or symbol, price accepts
// last_traded_price, ltp, price or close. Matching is case-insensitive.
func resolveColumns(header []string) (columnSet, error) {
	cols := columnSet{instrument: -1, price: -1, timestamp: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "instrument_token", "symbol":
			if cols.instrument < 0 {
				cols.instrument = i
			}
		case "last_traded_price", "ltp", "price", "close":
			if cols.price < 0 {
				cols.price = i
			}
		case "timestamp":
			cols.timestamp = i
		}
	}
	if cols.instrument < 0 {
		return cols, errors.New("no instrument column (instrument_token or symbol)")
	}
	if cols.price < 0 {
		return cols, errors.New("no price column (last_traded_price, ltp, price or close)")
	}
	return cols, nil
}

// Run replays every row. A malformed row is logged and skipped, the replay
// continues.
func (f *CSVFeed) Run(ctx context.Context, emit Emit) error {
	file, err := os.Open(f.path)
	if err != nil {
		return errors.Wrap(err, "open replay file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return errors.Wrap(err, "resolve columns").With("file", f.path)
	}

	logs.Infof("replaying %s with %s delay", f.path, f.delay)
	count := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logs.Errorf("read replay row: %+v", err)
			continue
		}

		tick, ok := f.parseRow(row, cols)
		if !ok {
			continue
		}
		emit(tick)
		count++

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}

	logs.Infof("replay finished, %d ticks", count)
	return nil
}

func (f *CSVFeed) parseRow(row []string, cols columnSet) (schema.MarketTick, bool) {
	if cols.instrument >= len(row) || cols.price >= len(row) {
		logs.Errorf("short replay row: %v", row)
		return schema.MarketTick{}, false
	}

	price, err := decimal.NewFromString(strings.TrimSpace(row[cols.price]))
	if err != nil {
		logs.Errorf("bad price %q in replay row: %+v", row[cols.price], err)
		return schema.MarketTick{}, false
	}

	at := time.Now()
	if cols.timestamp >= 0 && cols.timestamp < len(row) {
		if ms, err := strconv.ParseInt(strings.TrimSpace(row[cols.timestamp]), 10, 64); err == nil {
			at = time.UnixMilli(ms)
		}
	}

	return schema.MarketTick{
		Instrument: strings.TrimSpace(row[cols.instrument]),
		Price:      price,
		At:         at,
	}, true
}
