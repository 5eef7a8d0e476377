// Package app wires configuration into a runnable trading loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/domain/service"
	"github.com/zono819/signal-trader/internal/domain/service/decision"
	"github.com/zono819/signal-trader/internal/infrastructure/config"
	"github.com/zono819/signal-trader/internal/infrastructure/featurefile"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/infrastructure/model"
	"github.com/zono819/signal-trader/internal/infrastructure/snapshot"
	"github.com/zono819/signal-trader/internal/infrastructure/telemetry"
	"github.com/zono819/signal-trader/internal/infrastructure/tradelog"
	"github.com/zono819/signal-trader/internal/usecase"
	"github.com/zono819/signal-trader/internal/usecase/risk"
)

// App is a fully wired trading loop
type App struct {
	RunID string

	cfg       *config.Config
	log       *logger.Logger
	predictor service.Predictor
	scheduler *usecase.Scheduler
	telemetry *telemetry.Server
}

// ModelOptions maps configuration onto model.Options
func ModelOptions(cfg *config.Config) model.Options {
	return model.Options{
		Path:        cfg.ModelPath,
		Features:    cfg.Model.Features,
		InputName:   cfg.Model.InputName,
		LabelOutput: cfg.Model.LabelOutput,
		ProbaOutput: cfg.Model.ProbaOutput,
		ORTLibrary:  cfg.Model.ORTLibrary,
	}
}

// New builds every component. A model that cannot be loaded is fatal.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	predictor, err := model.Open(ModelOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	a, err := NewWithPredictor(cfg, log, predictor)
	if err != nil {
		predictor.Close()
		return nil, err
	}
	return a, nil
}

// NewWithPredictor builds the loop around an already loaded predictor
func NewWithPredictor(cfg *config.Config, log *logger.Logger, predictor service.Predictor) (*App, error) {
	runID := uuid.NewString()
	log = log.WithField("run_id", runID)

	engine, err := decision.NewEngine(decision.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StopLossPct:         cfg.StopLossPct,
	})
	if err != nil {
		return nil, fmt.Errorf("decision engine: %w", err)
	}

	policy, err := risk.ParsePolicy(cfg.SizingPolicy)
	if err != nil {
		return nil, err
	}
	sizer, err := risk.NewSizer(&risk.Config{
		Policy:        policy,
		Capital:       cfg.Capital,
		RiskPerTrade:  cfg.RiskPerTrade,
		StopLossPct:   cfg.StopLossPct,
		FixedQuantity: cfg.FixedQuantity,
	})
	if err != nil {
		return nil, fmt.Errorf("position sizing: %w", err)
	}

	reentry, err := entity.ParseReentryPolicy(cfg.ReentryPolicy)
	if err != nil {
		return nil, err
	}

	reader := featurefile.NewReader(cfg.DataPathTemplate,
		featurefile.WithDerivedFeatures(cfg.DeriveFeatures),
		featurefile.WithFeatureNames(predictor.FeatureNames()),
	)

	trader, err := usecase.NewTrader(usecase.TraderConfig{
		Symbols:     cfg.Symbols,
		Reentry:     reentry,
		LogHold:     cfg.LogHoldDecisions(),
		Parallelism: cfg.Parallelism,
	}, reader, predictor, engine, sizer, tradelog.New(cfg.LogFolder), log)
	if err != nil {
		return nil, err
	}

	a := &App{RunID: runID, cfg: cfg, log: log, predictor: predictor}

	opts := []usecase.SchedulerOption{usecase.WithRunID(runID)}
	if cfg.Telemetry.ListenAddr != "" {
		a.telemetry = telemetry.NewServer(cfg.Telemetry.ListenAddr, log.WithField("component", "telemetry"))
		opts = append(opts, usecase.WithPublisher(a.telemetry))
	}
	store := snapshot.NewStore(cfg.SnapshotPath)
	a.scheduler = usecase.NewScheduler(trader, store, cfg.PollInterval(), log, opts...)

	log.Info("Model %s, decision %s (threshold %.2f, stop %.4f), sizing %s, symbols %v",
		predictor.Name(), engine.Name(), engine.Config().ConfidenceThreshold, engine.Config().StopLossPct, sizer.Name(), cfg.Symbols)
	if rb, ok := sizer.(*risk.RiskBased); ok {
		log.Info("Risking %s per trade", rb.DollarRisk().StringFixed(2))
	}
	log.Info("Snapshot at %s, trade logs in %s", store.Path(), cfg.LogFolder)
	return a, nil
}

// Scheduler exposes the loop driver
func (a *App) Scheduler() *usecase.Scheduler {
	return a.scheduler
}

// Run restores state and drives the loop, plus telemetry when enabled,
// until ctx is cancelled. A telemetry failure is logged and the loop keeps
// running.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.scheduler.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if a.telemetry != nil {
		g.Go(func() error {
			// Telemetry is optional; losing it must not stop trading.
			if err := a.telemetry.Start(gctx); err != nil {
				a.log.Error("Telemetry stopped, trading continues: %v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the model
func (a *App) Close() error {
	return a.predictor.Close()
}

// PositionsReport is the offline view printed by the positions command
type PositionsReport struct {
	Positions     []usecase.PositionView
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	SavedAt       time.Time
}

// LoadPositions reads the snapshot and values it at the latest prices in
// the feature tables. Symbols whose table cannot be read stay unpriced.
func LoadPositions(ctx context.Context, cfg *config.Config) (PositionsReport, error) {
	snap, err := snapshot.NewStore(cfg.SnapshotPath).Load(ctx)
	if err != nil {
		return PositionsReport{}, err
	}

	reader := featurefile.NewReader(cfg.DataPathTemplate)
	marks := make(map[string]decimal.Decimal)
	for _, p := range snap.Ledger.Positions() {
		obs, err := reader.Latest(ctx, p.Symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return PositionsReport{}, err
			}
			continue
		}
		marks[p.Symbol] = obs.Close
	}

	unrealized, _ := snap.Ledger.Unrealized(marks)
	return PositionsReport{
		Positions:     usecase.PositionViews(snap.Ledger, marks),
		RealizedPnL:   snap.RealizedPnL,
		UnrealizedPnL: unrealized,
		SavedAt:       snap.SavedAt,
	}, nil
}
