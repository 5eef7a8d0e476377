package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/domain/repository"
	"github.com/zono819/signal-trader/internal/domain/service/decision"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/usecase/risk"
)

var (
	up   = entity.Prediction{Label: 1, Probabilities: [2]float64{0.3, 0.7}}
	down = entity.Prediction{Label: 0, Probabilities: [2]float64{0.8, 0.2}}
	flat = entity.Prediction{Label: 1, Probabilities: [2]float64{0.45, 0.55}}
)

// fakeMarket serves a price and a prediction per symbol. The prediction is
// smuggled through the single "key" feature so fakePredictor can find it.
type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]string
	preds  map[string]entity.Prediction
	errs   map[string]error
	panics map[string]bool
	keys   map[string]float64
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices: map[string]string{},
		preds:  map[string]entity.Prediction{},
		errs:   map[string]error{},
		panics: map[string]bool{},
		keys:   map[string]float64{},
	}
}

func (m *fakeMarket) set(symbol, price string, pred entity.Prediction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
	m.preds[symbol] = pred
	if _, ok := m.keys[symbol]; !ok {
		m.keys[symbol] = float64(len(m.keys) + 1)
	}
}

func (m *fakeMarket) Latest(_ context.Context, symbol string) (*entity.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics[symbol] {
		panic("corrupt row for " + symbol)
	}
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return &entity.Observation{
		Symbol:   symbol,
		Close:    decimal.RequireFromString(price),
		Features: map[string]float64{"key": m.keys[symbol]},
	}, nil
}

type fakePredictor struct {
	market *fakeMarket
}

func (p *fakePredictor) Name() string           { return "fake" }
func (p *fakePredictor) FeatureNames() []string { return []string{"key"} }
func (p *fakePredictor) Close() error           { return nil }

func (p *fakePredictor) Predict(x []float64) (entity.Prediction, error) {
	p.market.mu.Lock()
	defer p.market.mu.Unlock()
	for sym, k := range p.market.keys {
		if k == x[0] {
			return p.market.preds[sym], nil
		}
	}
	return entity.Prediction{}, fmt.Errorf("unknown key %v", x[0])
}

type memTrades struct {
	mu      sync.Mutex
	entries []entity.TradeLogEntry
}

func (m *memTrades) Append(_ context.Context, e entity.TradeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memTrades) ReadDay(context.Context, time.Time) ([]entity.TradeLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.TradeLogEntry(nil), m.entries...), nil
}

func (m *memTrades) all() []entity.TradeLogEntry {
	out, _ := m.ReadDay(context.Background(), time.Time{})
	return out
}

type memSnapshots struct {
	mu          sync.Mutex
	snap        *repository.Snapshot
	loadErr     error
	saveErr     error
	saves       int
	quarantined bool
}

func (m *memSnapshots) Load(context.Context) (repository.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return repository.Snapshot{}, m.loadErr
	}
	if m.snap == nil {
		return repository.Snapshot{Ledger: mustLedger()}, nil
	}
	return *m.snap, nil
}

func (m *memSnapshots) Save(_ context.Context, snap repository.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	snap.Ledger = snap.Ledger.Clone()
	m.snap = &snap
	return nil
}

func (m *memSnapshots) Quarantine(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quarantined = true
	m.loadErr = nil
	return "positions.csv.corrupt", nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []IterationReport
	onPub   func(IterationReport)
}

func (p *recordingPublisher) Publish(r IterationReport) {
	p.mu.Lock()
	p.reports = append(p.reports, r)
	cb := p.onPub
	p.mu.Unlock()
	if cb != nil {
		cb(r)
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func mustLedger(ps ...entity.Position) entity.Ledger {
	l, err := entity.NewLedger(ps...)
	if err != nil {
		panic(err)
	}
	return l
}

type harness struct {
	market *fakeMarket
	trades *memTrades
	trader *Trader
	logs   *bytes.Buffer
	log    *logger.Logger
}

func newHarness(t *testing.T, cfg TraderConfig, sizer risk.Sizer) *harness {
	t.Helper()
	h := &harness{market: newFakeMarket(), trades: &memTrades{}, logs: &bytes.Buffer{}}
	h.log = logger.New(logger.LevelDebug, &syncWriter{w: h.logs})

	engine, err := decision.NewEngine(decision.DefaultConfig())
	require.NoError(t, err)
	if sizer == nil {
		sizer, err = risk.NewFixed(10)
		require.NoError(t, err)
	}
	h.trader, err = NewTrader(cfg, h.market, &fakePredictor{market: h.market}, engine, sizer, h.trades, h.log)
	require.NoError(t, err)
	h.trader.now = func() time.Time { return time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC) }
	return h
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
