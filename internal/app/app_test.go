package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zono819/signal-trader/internal/infrastructure/config"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
)

// The artifact is strongly bullish whenever returns is positive.
const bullish = `{"type":"logistic","features":["Close","returns"],"weights":[0,500],"bias":0}`

func setup(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(bullish), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "AAPL_features.csv"),
		[]byte("Datetime,Close,Volume,returns\n2026-01-02 15:58:00,149,10,0.001\n2026-01-02 15:59:00,150.00,12,0.0067\n"), 0o644))

	cfg := config.Default()
	cfg.Symbols = []string{"AAPL", "MSFT"}
	cfg.ModelPath = filepath.Join(dir, "model.json")
	cfg.DataPathTemplate = filepath.Join(dir, "data", "{symbol}_features.csv")
	cfg.LogFolder = filepath.Join(dir, "trade_logs")
	cfg.SnapshotPath = filepath.Join(dir, "trade_logs", "positions.csv")
	return cfg
}

func TestApp_SinglePassEndToEnd(t *testing.T) {
	cfg := setup(t)
	a, err := New(cfg, logger.New(logger.LevelError, io.Discard))
	require.NoError(t, err)
	defer a.Close()
	assert.NotEmpty(t, a.RunID)

	ctx := context.Background()
	_, err = a.Scheduler().Restore(ctx)
	require.NoError(t, err)
	rep, err := a.Scheduler().RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, rep.Symbols, 2)
	assert.Equal(t, "BUY", string(rep.Symbols[0].Action))
	assert.Equal(t, int64(133), rep.Symbols[0].Quantity)
	assert.NotEmpty(t, rep.Symbols[1].Error, "MSFT has no feature table")

	_, err = os.Stat(cfg.SnapshotPath)
	assert.NoError(t, err)

	entries, err := os.ReadDir(cfg.LogFolder)
	require.NoError(t, err)
	var logs int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".txt" {
			logs++
		}
	}
	assert.Equal(t, 1, logs)

	pr, err := LoadPositions(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, pr.Positions, 1)
	assert.Equal(t, "AAPL", pr.Positions[0].Symbol)
	assert.True(t, pr.Positions[0].MarkPrice.Valid)
	assert.True(t, pr.UnrealizedPnL.Equal(decimal.Zero))
	assert.False(t, pr.SavedAt.IsZero())
}

func TestApp_RestartRestoresLedger(t *testing.T) {
	cfg := setup(t)
	log := logger.New(logger.LevelError, io.Discard)
	ctx := context.Background()

	first, err := New(cfg, log)
	require.NoError(t, err)
	_, err = first.Scheduler().RunOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(cfg, log)
	require.NoError(t, err)
	defer second.Close()
	st, err := second.Scheduler().Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Ledger.Len())
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := setup(t)
	cfg.PollIntervalSeconds = 0.01
	a, err := New(cfg, logger.New(logger.LevelError, io.Discard))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestApp_TelemetryBindFailureKeepsTrading(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := setup(t)
	cfg.PollIntervalSeconds = 0.01
	cfg.Telemetry.ListenAddr = busy.Addr().String()

	var logs bytes.Buffer
	a, err := New(cfg, logger.New(logger.LevelError, &logs))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.GreaterOrEqual(t, a.Scheduler().State().Iteration, int64(2), "passes continue after telemetry fails")
	assert.Contains(t, logs.String(), "Telemetry stopped")
}

func TestNew_ModelFailureIsFatal(t *testing.T) {
	cfg := setup(t)
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(cfg, logger.New(logger.LevelError, io.Discard))
	assert.Error(t, err)
}
