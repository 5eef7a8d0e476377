// Package snapshot persists the position ledger as a small CSV file that
// dashboards can read while the loop is running.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/domain/repository"
)

// ErrMalformed is returned when a snapshot exists but cannot be trusted
var ErrMalformed = repository.ErrCorruptSnapshot

const (
	realizedKey  = "realized_pnl"
	savedAtKey   = "saved_at"
	corruptExt   = ".corrupt"
	timestampFmt = time.RFC3339Nano
)

var header = []string{"symbol", "entry_price", "quantity", "side", "opened_at"}

// Store implements repository.SnapshotRepository on a single file
type Store struct {
	path string
}

// NewStore creates a store for path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (repository.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return repository.Snapshot{}, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := Decode(f)
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return snap, nil
}

// Save atomically replaces the snapshot; an empty ledger removes the file
func (s *Store) Save(ctx context.Context, snap repository.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Ledger.IsEmpty() {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove snapshot: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return err
	}
	return writeAtomic(s.path, buf.Bytes())
}

// Quarantine renames the current snapshot to <path>.corrupt
func (s *Store) Quarantine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := s.path + corruptExt
	if err := os.Rename(s.path, dst); err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return dst, nil
}

// Encode writes snap in the snapshot CSV format, rows sorted by symbol
func Encode(w io.Writer, snap repository.Snapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s=%s\n", realizedKey, snap.RealizedPnL.String())
	if !snap.SavedAt.IsZero() {
		fmt.Fprintf(bw, "# %s=%s\n", savedAtKey, snap.SavedAt.UTC().Format(timestampFmt))
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	for _, p := range snap.Ledger.Positions() {
		opened := ""
		if !p.OpenedAt.IsZero() {
			opened = p.OpenedAt.UTC().Format(timestampFmt)
		}
		rec := []string{p.Symbol, p.EntryPrice.String(), fmt.Sprint(p.Quantity), string(p.Side), opened}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write snapshot row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return bw.Flush()
}

// Decode parses a snapshot. Besides its own format it accepts the legacy
// pandas export: unnamed index column, entry_price and qty, no side column
// (BUY). Every row must have exactly the header's field count.
func Decode(r io.Reader) (repository.Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	snap := emptySnapshot()
	var body bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if err := applyMeta(&snap, strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))); err != nil {
				return repository.Snapshot{}, err
			}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return repository.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	cr := csv.NewReader(&body)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 {
		return repository.Snapshot{}, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	cols, err := columns(records[0])
	if err != nil {
		return repository.Snapshot{}, err
	}

	positions := make([]entity.Position, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			return repository.Snapshot{}, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformed, i+1, len(rec), len(records[0]))
		}
		p, err := cols.position(rec)
		if err != nil {
			return repository.Snapshot{}, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+1, err)
		}
		positions = append(positions, p)
	}

	ledger, err := entity.NewLedger(positions...)
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	snap.Ledger = ledger
	return snap, nil
}

func applyMeta(snap *repository.Snapshot, meta string) error {
	key, value, ok := strings.Cut(meta, "=")
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	switch strings.TrimSpace(key) {
	case realizedKey:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrMalformed, realizedKey, value)
		}
		snap.RealizedPnL = d
	case savedAtKey:
		t, err := time.Parse(timestampFmt, value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrMalformed, savedAtKey, value)
		}
		snap.SavedAt = t
	}
	return nil
}

type columnIndex struct {
	symbol, price, qty, side, opened int
}

func columns(h []string) (columnIndex, error) {
	idx := columnIndex{symbol: -1, price: -1, qty: -1, side: -1, opened: -1}
	for i, name := range h {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "symbol":
			idx.symbol = i
		case "":
			if i == 0 {
				idx.symbol = 0
			}
		case "entry_price":
			idx.price = i
		case "quantity", "qty":
			idx.qty = i
		case "side":
			idx.side = i
		case "opened_at":
			idx.opened = i
		}
	}
	switch {
	case idx.symbol < 0:
		return idx, fmt.Errorf("%w: no symbol column", ErrMalformed)
	case idx.price < 0:
		return idx, fmt.Errorf("%w: no entry_price column", ErrMalformed)
	case idx.qty < 0:
		return idx, fmt.Errorf("%w: no quantity column", ErrMalformed)
	}
	return idx, nil
}

func (c columnIndex) position(rec []string) (entity.Position, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	p := entity.Position{Symbol: field(c.symbol), Side: entity.SideBuy}
	if p.Symbol == "" {
		return p, fmt.Errorf("empty symbol")
	}

	price, err := decimal.NewFromString(field(c.price))
	if err != nil {
		return p, fmt.Errorf("%s entry_price %q", p.Symbol, field(c.price))
	}
	p.EntryPrice = price

	qty, err := decimal.NewFromString(field(c.qty))
	if err != nil || !qty.IsInteger() {
		return p, fmt.Errorf("%s quantity %q", p.Symbol, field(c.qty))
	}
	p.Quantity = qty.IntPart()

	if c.side >= 0 {
		side, err := entity.ParseSide(field(c.side))
		if err != nil {
			return p, fmt.Errorf("%s: %v", p.Symbol, err)
		}
		p.Side = side
	}
	if s := field(c.opened); s != "" {
		t, err := time.Parse(timestampFmt, s)
		if err != nil {
			return p, fmt.Errorf("%s opened_at %q", p.Symbol, s)
		}
		p.OpenedAt = t
	}
	return p, nil
}

func emptySnapshot() repository.Snapshot {
	l, _ := entity.NewLedger()
	return repository.Snapshot{Ledger: l}
}

// writeAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path, so readers see either the old or the new file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace snapshot: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
