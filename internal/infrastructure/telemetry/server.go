// Package telemetry exposes a read-only HTTP and websocket view of the
// trading loop for dashboards.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/usecase"
)

// Server serves the latest iteration report. It never touches trading state.
type Server struct {
	addr    string
	router  *gin.Engine
	hub     *Hub
	log     *logger.Logger
	started time.Time

	mu   sync.RWMutex
	last *usecase.IterationReport
}

// NewServer builds the router
func NewServer(addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:    addr,
		router:  gin.New(),
		hub:     NewHub(),
		log:     log,
		started: time.Now(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/positions", s.handlePositions)
	api.GET("/report", s.handleReport)
	s.router.GET("/ws", s.handleWS)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Publish stores rep as the latest report and broadcasts it
func (s *Server) Publish(rep usecase.IterationReport) {
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()

	msg, err := json.Marshal(rep)
	if err != nil {
		s.log.Error("Failed to encode iteration report: %v", err)
		return
	}
	s.hub.Broadcast(msg)
}

func (s *Server) lastReport() (usecase.IterationReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return usecase.IterationReport{}, false
	}
	return *s.last, true
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.Len(),
	}
	if rep, ok := s.lastReport(); ok {
		body["iteration"] = rep.Iteration
		body["last_pass"] = rep.FinishedAt
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handlePositions(c *gin.Context) {
	rep, ok := s.lastReport()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"positions":      []usecase.PositionView{},
			"realized_pnl":   decimal.Zero,
			"unrealized_pnl": decimal.Zero,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"iteration":      rep.Iteration,
		"positions":      rep.Positions,
		"realized_pnl":   rep.RealizedPnL,
		"unrealized_pnl": rep.UnrealizedPnL,
		"missing_marks":  rep.MissingMarks,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	rep, ok := s.lastReport()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pass completed yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleWS(c *gin.Context) {
	if err := s.hub.ServeWS(c.Writer, c.Request); err != nil {
		s.log.Warn("Websocket upgrade failed: %v", err)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("Telemetry listening on %s", ln.Addr())

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
