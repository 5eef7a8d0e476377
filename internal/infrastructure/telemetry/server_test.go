package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/usecase"
)

func newTestServer() *Server {
	return NewServer(":0", logger.New(logger.LevelError, io.Discard))
}

func sampleReport(iteration int64) usecase.IterationReport {
	return usecase.IterationReport{
		RunID:     "run-1",
		Iteration: iteration,
		Positions: []usecase.PositionView{{
			Symbol:        "AAPL",
			Side:          entity.SideBuy,
			EntryPrice:    decimal.NewFromInt(150),
			Quantity:      10,
			MarkPrice:     decimal.NewNullDecimal(decimal.NewFromInt(152)),
			UnrealizedPnL: decimal.NewNullDecimal(decimal.NewFromInt(20)),
		}},
		RealizedPnL:   decimal.NewFromInt(50),
		UnrealizedPnL: decimal.NewFromInt(20),
	}
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestServer_Health(t *testing.T) {
	s := newTestServer()
	code, body := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ReportBeforeAndAfterPublish(t *testing.T) {
	s := newTestServer()

	code, _ := get(t, s.Handler(), "/api/report")
	assert.Equal(t, http.StatusNotFound, code)

	s.Publish(sampleReport(3))

	code, body := get(t, s.Handler(), "/api/report")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["iteration"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "50", body["realized_pnl"])
}

func TestServer_Positions(t *testing.T) {
	s := newTestServer()

	code, body := get(t, s.Handler(), "/api/positions")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["positions"])

	s.Publish(sampleReport(1))
	_, body = get(t, s.Handler(), "/api/positions")
	positions, ok := body["positions"].([]any)
	require.True(t, ok)
	require.Len(t, positions, 1)
	p := positions[0].(map[string]any)
	assert.Equal(t, "AAPL", p["symbol"])
	assert.Equal(t, "20", p["unrealized_pnl"])
	assert.Equal(t, "20", body["unrealized_pnl"])
}

func TestServer_WebsocketBroadcast(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Publish(sampleReport(7))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal(msg, &rep))
	assert.Equal(t, float64(7), rep["iteration"])
}

func TestHub_DropsDisconnectedClient(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// publishing with no clients is a no-op
	s.Publish(sampleReport(1))
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := NewHub()
	c := &client{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.Broadcast([]byte("a"))
	assert.Equal(t, 1, h.Len())
	h.Broadcast([]byte("b"))
	assert.Equal(t, 0, h.Len())

	_, open := <-c.send
	assert.True(t, open, "queued message still delivered")
	_, open = <-c.send
	assert.False(t, open)
}
