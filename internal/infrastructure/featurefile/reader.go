// Package featurefile reads per-symbol feature tables produced by the
// offline feature pipeline and exposes the latest row as an observation.
package featurefile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
)

var (
	ErrNoRows        = errors.New("feature table has no data rows")
	ErrMissingColumn = errors.New("feature table is missing a required column")
	ErrInvalidValue  = errors.New("feature table holds an invalid value")
)

const (
	closeColumn = "Close"
	placeholder = "{symbol}"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Reader loads the latest observation of a symbol from its CSV feature table
type Reader struct {
	template string
	derive   bool
	wanted   []string
}

// Option configures a Reader
type Option func(*Reader)

// WithDerivedFeatures fills indicator columns that are absent from the
// table by computing them over the Close series.
func WithDerivedFeatures(enabled bool) Option {
	return func(r *Reader) { r.derive = enabled }
}

// WithFeatureNames lists the columns the model needs, so derivation can
// also produce parameterised ones such as SMA_7 or EMA_30.
func WithFeatureNames(names []string) Option {
	return func(r *Reader) { r.wanted = append([]string(nil), names...) }
}

// NewReader creates a reader for tables found at template with {symbol} substituted
func NewReader(template string, opts ...Option) *Reader {
	r := &Reader{template: template}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the table path for symbol
func (r *Reader) Path(symbol string) string {
	return strings.ReplaceAll(r.template, placeholder, symbol)
}

// Latest returns the last row of the symbol's feature table
func (r *Reader) Latest(ctx context.Context, symbol string) (*entity.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.Path(symbol)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature table %s: %w", path, err)
	}
	defer f.Close()

	obs, err := r.parse(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obs, nil
}

func (r *Reader) parse(src io.Reader, symbol string) (*entity.Observation, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	closeIdx := indexOf(header, closeColumn)
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, closeColumn)
	}

	var (
		last   []string
		closes []float64
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if blank(rec) {
			continue
		}
		if r.derive {
			// Rows without a numeric close are dropped from the series.
			if c := cell(rec, closeIdx); !math.IsNaN(c) {
				closes = append(closes, c)
			}
		}
		last = rec
	}
	if last == nil {
		return nil, ErrNoRows
	}
	if len(last) != len(header) {
		return nil, fmt.Errorf("%w: latest row has %d fields, header has %d", ErrInvalidValue, len(last), len(header))
	}

	rawClose := strings.TrimSpace(last[closeIdx])
	price, err := decimal.NewFromString(rawClose)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, closeColumn, rawClose)
	}

	features := make(map[string]float64, len(header))
	for i := 1; i < len(header); i++ {
		features[strings.TrimSpace(header[i])] = cell(last, i)
	}

	if r.derive {
		Derive(closes, r.wanted, features)
	}

	obs := &entity.Observation{
		Symbol:    symbol,
		Timestamp: parseTimestamp(last[0]),
		Close:     price,
		Features:  features,
	}
	return obs, nil
}

// cell coerces a field to a number; empty or unparseable fields become NaN
func cell(rec []string, i int) float64 {
	if i >= len(rec) {
		return math.NaN()
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
