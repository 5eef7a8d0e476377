// Package tradelog appends one line per evaluated symbol to a daily file.
package tradelog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

const fieldCount = 8

// ErrMalformedLine is returned by ReadDay for lines that do not parse
var ErrMalformedLine = errors.New("malformed trade log line")

// Log implements repository.TradeLogRepository on trades_YYYY-MM-DD.txt files
type Log struct {
	mu       sync.Mutex
	folder   string
	location *time.Location
}

// Option configures a Log
type Option func(*Log)

// WithLocation sets the time zone that decides which daily file an entry
// lands in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) { l.location = loc }
}

// New creates a trade log rooted at folder
func New(folder string, opts ...Option) *Log {
	l := &Log{folder: folder, location: time.Local}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PathFor returns the file an entry stamped at t is written to
func (l *Log) PathFor(t time.Time) string {
	return filepath.Join(l.folder, "trades_"+t.In(l.location).Format("2006-01-02")+".txt")
}

// Append writes one record, creating the folder and daily file as needed
func (l *Log) Append(ctx context.Context, e entity.TradeLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.folder, 0o755); err != nil {
		return fmt.Errorf("create trade log folder: %w", err)
	}
	path := l.PathFor(e.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Format(e)); err != nil {
		f.Close()
		return fmt.Errorf("write trade log: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write trade log: %w", err)
	}
	return f.Close()
}

// ReadDay returns the records of the calendar day containing day. A day
// without a file has no records.
func (l *Log) ReadDay(ctx context.Context, day time.Time) ([]entity.TradeLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.PathFor(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []entity.TradeLogEntry
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read trade log: %w", err)
		}
		e, err := Parse(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLine, line, err)
		}
		out = append(out, e)
	}
}

// Format renders e as the eight trade log fields:
// timestamp,symbol,price,action,quantity,stop_price,pnl,confidence
func Format(e entity.TradeLogEntry) []string {
	stop := ""
	if e.StopPrice.Valid {
		stop = e.StopPrice.Decimal.StringFixed(2)
	}
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Symbol,
		e.Price.StringFixed(2),
		string(e.Action),
		strconv.FormatInt(e.Quantity, 10),
		stop,
		e.PnL.StringFixed(2),
		strconv.FormatFloat(e.Confidence, 'f', 4, 64),
	}
}

// Parse is the inverse of Format
func Parse(rec []string) (entity.TradeLogEntry, error) {
	if len(rec) != fieldCount {
		return entity.TradeLogEntry{}, fmt.Errorf("want %d fields, got %d", fieldCount, len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	var (
		e   entity.TradeLogEntry
		err error
	)
	if e.Timestamp, err = time.Parse(time.RFC3339, rec[0]); err != nil {
		return e, fmt.Errorf("timestamp: %w", err)
	}
	e.Symbol = rec[1]
	if e.Price, err = decimal.NewFromString(rec[2]); err != nil {
		return e, fmt.Errorf("price: %w", err)
	}
	switch a := entity.Action(rec[3]); a {
	case entity.ActionBuy, entity.ActionSell, entity.ActionHold:
		e.Action = a
	default:
		return e, fmt.Errorf("action %q", rec[3])
	}
	if e.Quantity, err = strconv.ParseInt(rec[4], 10, 64); err != nil {
		return e, fmt.Errorf("quantity: %w", err)
	}
	if rec[5] != "" {
		stop, err := decimal.NewFromString(rec[5])
		if err != nil {
			return e, fmt.Errorf("stop price: %w", err)
		}
		e.StopPrice = decimal.NewNullDecimal(stop)
	}
	if e.PnL, err = decimal.NewFromString(rec[6]); err != nil {
		return e, fmt.Errorf("pnl: %w", err)
	}
	if e.Confidence, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return e, fmt.Errorf("confidence: %w", err)
	}
	return e, nil
}
