package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var t0 = time.Date(2026, 1, 2, 15, 30, 0, 0, time.UTC)

func TestLedger_OpenFromNone(t *testing.T) {
	for _, side := range []Side{SideBuy, SideSell} {
		t.Run(string(side), func(t *testing.T) {
			var l Ledger
			tr, err := l.Apply("AAPL", side, d("150"), 10, t0, ReentryReplace)
			require.NoError(t, err)

			assert.Equal(t, TransitionOpened, tr.Kind)
			assert.Nil(t, tr.Previous)
			require.NotNil(t, tr.Position)

			p, ok := l.Get("AAPL")
			require.True(t, ok)
			assert.Equal(t, side, p.Side)
			assert.True(t, p.EntryPrice.Equal(d("150")))
			assert.Equal(t, int64(10), p.Quantity)
			assert.Equal(t, t0, p.OpenedAt)
		})
	}
}

func TestLedger_CloseBuyRealizesProfit(t *testing.T) {
	l, err := NewLedger(Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("150"), Quantity: 10, OpenedAt: t0})
	require.NoError(t, err)

	tr, err := l.Apply("AAPL", SideSell, d("155"), 133, t0.Add(time.Minute), ReentryReplace)
	require.NoError(t, err)

	assert.Equal(t, TransitionClosed, tr.Kind)
	assert.True(t, tr.RealizedPnL.Equal(d("50")), "realized = %s", tr.RealizedPnL)
	assert.Nil(t, tr.Position)
	require.NotNil(t, tr.Previous)
	assert.Equal(t, int64(10), tr.Previous.Quantity)

	_, ok := l.Get("AAPL")
	assert.False(t, ok, "closed symbol must leave the ledger")
	assert.True(t, l.IsEmpty())
}

func TestLedger_CloseSellRealizesShortPnL(t *testing.T) {
	tests := []struct {
		name  string
		close string
		want  string
	}{
		{"Price fell", "140", "100"},
		{"Price rose", "152.5", "-25"},
		{"Flat", "150", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l Ledger
			_, err := l.Apply("MSFT", SideSell, d("150"), 10, t0, ReentryReplace)
			require.NoError(t, err)

			tr, err := l.Apply("MSFT", SideBuy, d(tt.close), 10, t0, ReentryReplace)
			require.NoError(t, err)
			assert.Equal(t, TransitionClosed, tr.Kind)
			assert.True(t, tr.RealizedPnL.Equal(d(tt.want)), "realized = %s, want %s", tr.RealizedPnL, tt.want)
			assert.Equal(t, 0, l.Len())
		})
	}
}

func TestLedger_ReentryReplace(t *testing.T) {
	var l Ledger
	_, err := l.Apply("AAPL", SideBuy, d("150"), 10, t0, ReentryReplace)
	require.NoError(t, err)

	later := t0.Add(time.Hour)
	tr, err := l.Apply("AAPL", SideBuy, d("160"), 7, later, ReentryReplace)
	require.NoError(t, err)

	assert.Equal(t, TransitionReentered, tr.Kind)
	require.NotNil(t, tr.Previous)
	assert.True(t, tr.Previous.EntryPrice.Equal(d("150")))

	p, _ := l.Get("AAPL")
	assert.True(t, p.EntryPrice.Equal(d("160")))
	assert.Equal(t, int64(7), p.Quantity)
	assert.Equal(t, later, p.OpenedAt)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_ReentryAccumulate(t *testing.T) {
	var l Ledger
	_, err := l.Apply("AAPL", SideBuy, d("150"), 10, t0, ReentryAccumulate)
	require.NoError(t, err)

	_, err = l.Apply("AAPL", SideBuy, d("180"), 20, t0.Add(time.Hour), ReentryAccumulate)
	require.NoError(t, err)

	p, _ := l.Get("AAPL")
	assert.Equal(t, int64(30), p.Quantity)
	assert.True(t, p.EntryPrice.Equal(d("170")), "weighted entry = %s", p.EntryPrice)
	assert.Equal(t, t0, p.OpenedAt, "accumulating keeps the original open time")
}

func TestLedger_ApplyRejectsInvalidTrades(t *testing.T) {
	var l Ledger
	_, err := l.Apply("AAPL", SideBuy, decimal.Zero, 10, t0, ReentryReplace)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = l.Apply("AAPL", SideBuy, d("150"), 0, t0, ReentryReplace)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	_, err = l.Apply("AAPL", Side("HOLD"), d("150"), 1, t0, ReentryReplace)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	assert.True(t, l.IsEmpty())
}

func TestLedger_UnrealizedMonotonicInPrice(t *testing.T) {
	long, err := NewLedger(Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("150"), Quantity: 10})
	require.NoError(t, err)
	short, err := NewLedger(Position{Symbol: "AAPL", Side: SideSell, EntryPrice: d("150"), Quantity: 10})
	require.NoError(t, err)

	low := map[string]decimal.Decimal{"AAPL": d("145")}
	high := map[string]decimal.Decimal{"AAPL": d("158")}

	longLow, _ := long.Unrealized(low)
	longHigh, _ := long.Unrealized(high)
	assert.True(t, longHigh.GreaterThan(longLow), "long pnl must rise with price")
	assert.True(t, longLow.Equal(d("-50")))
	assert.True(t, longHigh.Equal(d("80")))

	shortLow, _ := short.Unrealized(low)
	shortHigh, _ := short.Unrealized(high)
	assert.True(t, shortHigh.LessThan(shortLow), "short pnl must fall with price")

	// computing pnl must not touch the ledger
	p, _ := long.Get("AAPL")
	assert.True(t, p.EntryPrice.Equal(d("150")))
}

func TestLedger_UnrealizedReportsMissingMarks(t *testing.T) {
	l, err := NewLedger(
		Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("100"), Quantity: 2},
		Position{Symbol: "MSFT", Side: SideSell, EntryPrice: d("300"), Quantity: 1},
		Position{Symbol: "AMZN", Side: SideBuy, EntryPrice: d("50"), Quantity: 4},
	)
	require.NoError(t, err)

	total, missing := l.Unrealized(map[string]decimal.Decimal{
		"AAPL": d("110"),
		"MSFT": d("290"),
	})
	assert.True(t, total.Equal(d("30")), "total = %s", total)
	assert.Equal(t, []string{"AMZN"}, missing)
}

func TestLedger_CloneIsIndependent(t *testing.T) {
	orig, err := NewLedger(Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("150"), Quantity: 10})
	require.NoError(t, err)

	cp := orig.Clone()
	_, err = cp.Apply("AAPL", SideSell, d("151"), 1, t0, ReentryReplace)
	require.NoError(t, err)

	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, 0, cp.Len())
	assert.False(t, orig.Equal(cp))
}

func TestNewLedger_RejectsDuplicates(t *testing.T) {
	_, err := NewLedger(
		Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("1"), Quantity: 1},
		Position{Symbol: "AAPL", Side: SideSell, EntryPrice: d("2"), Quantity: 1},
	)
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestLedger_PositionsSorted(t *testing.T) {
	l, err := NewLedger(
		Position{Symbol: "MSFT", Side: SideBuy, EntryPrice: d("1"), Quantity: 1},
		Position{Symbol: "AAPL", Side: SideBuy, EntryPrice: d("1"), Quantity: 1},
		Position{Symbol: "GOOGL", Side: SideBuy, EntryPrice: d("1"), Quantity: 1},
	)
	require.NoError(t, err)

	var syms []string
	for _, p := range l.Positions() {
		syms = append(syms, p.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT"}, syms)
}
