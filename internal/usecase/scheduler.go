package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zono819/signal-trader/internal/domain/repository"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
)

// ReportPublisher receives every completed pass
type ReportPublisher interface {
	Publish(report IterationReport)
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithPublisher sends iteration reports to p
func WithPublisher(p ReportPublisher) SchedulerOption {
	return func(s *Scheduler) { s.publisher = p }
}

// WithRunID tags reports with id
func WithRunID(id string) SchedulerOption {
	return func(s *Scheduler) { s.runID = id }
}

// Scheduler owns the loop state and drives passes on a fixed interval
type Scheduler struct {
	trader    *Trader
	snapshots repository.SnapshotRepository
	publisher ReportPublisher
	interval  time.Duration
	runID     string
	log       *logger.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// NewScheduler creates a scheduler starting from a cold state
func NewScheduler(trader *Trader, snapshots repository.SnapshotRepository, interval time.Duration, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	s := &Scheduler{
		trader:    trader,
		snapshots: snapshots,
		interval:  interval,
		log:       log,
		now:       time.Now,
		state:     NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current loop state
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Restore loads the persisted ledger. A corrupt snapshot is quarantined
// and the scheduler cold-starts with a warning.
func (s *Scheduler) Restore(ctx context.Context) (State, error) {
	snap, err := s.snapshots.Load(ctx)
	switch {
	case err == nil:
		st := StateFromSnapshot(snap)
		s.setState(st)
		if st.Ledger.IsEmpty() {
			s.log.Info("No open positions to restore")
		} else {
			s.log.Info("Restored %d open position(s), realized PnL %s", st.Ledger.Len(), st.RealizedPnL.StringFixed(2))
		}
		return st.Clone(), nil

	case errors.Is(err, repository.ErrCorruptSnapshot):
		s.log.Warn("Position snapshot is unreadable, starting with an empty ledger: %v", err)
		if moved, qerr := s.snapshots.Quarantine(ctx); qerr != nil {
			s.log.Error("Failed to quarantine snapshot: %v", qerr)
		} else {
			s.log.Warn("Unreadable snapshot moved to %s", moved)
		}
		st := NewState()
		s.setState(st)
		return st.Clone(), nil

	default:
		return State{}, fmt.Errorf("restore positions: %w", err)
	}
}

// RunOnce executes a single pass, persists the ledger and publishes the report
func (s *Scheduler) RunOnce(ctx context.Context) (IterationReport, error) {
	started := s.now()
	next, results, err := s.trader.Step(ctx, s.State())
	if err != nil {
		return IterationReport{}, err
	}
	s.setState(next)

	saveCtx := context.WithoutCancel(ctx)
	snap := repository.Snapshot{Ledger: next.Ledger, RealizedPnL: next.RealizedPnL, SavedAt: s.now()}
	if err := s.snapshots.Save(saveCtx, snap); err != nil {
		s.log.Error("Failed to save position snapshot: %v", err)
	}

	rep := NewIterationReport(s.runID, next, results, started, s.now())
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	s.log.WithFields(map[string]interface{}{
		"iteration": rep.Iteration,
		"open":      next.Ledger.Len(),
		"failed":    failed,
	}).Info("Pass complete: realized PnL %s, unrealized PnL %s",
		rep.RealizedPnL.StringFixed(2), rep.UnrealizedPnL.StringFixed(2))

	if s.publisher != nil {
		s.publisher.Publish(rep)
	}
	return rep, nil
}

// Run executes a pass immediately and then every interval until ctx is
// cancelled. Cancellation is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started: %d symbol(s), every %s", len(s.trader.Symbols()), s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("Pass abandoned, scheduler stopped")
				return nil
			}
			s.log.Error("Pass failed: %v", err)
		}
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
