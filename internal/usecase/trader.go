package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zono819/signal-trader/internal/adapter/gateway"
	"github.com/zono819/signal-trader/internal/domain/entity"
	"github.com/zono819/signal-trader/internal/domain/repository"
	"github.com/zono819/signal-trader/internal/domain/service"
	"github.com/zono819/signal-trader/internal/domain/service/decision"
	"github.com/zono819/signal-trader/internal/infrastructure/logger"
	"github.com/zono819/signal-trader/internal/usecase/risk"
)

// TraderConfig holds per-pass behaviour
type TraderConfig struct {
	Symbols     []string
	Reentry     entity.ReentryPolicy
	LogHold     bool
	Parallelism int
}

// Trader runs one decision pass over the configured symbols
type Trader struct {
	cfg       TraderConfig
	market    gateway.MarketDataGateway
	predictor service.Predictor
	features  []string
	engine    *decision.Engine
	sizer     risk.Sizer
	trades    repository.TradeLogRepository
	log       *logger.Logger
	now       func() time.Time
}

// NewTrader creates a trader
func NewTrader(
	cfg TraderConfig,
	market gateway.MarketDataGateway,
	predictor service.Predictor,
	engine *decision.Engine,
	sizer risk.Sizer,
	trades repository.TradeLogRepository,
	log *logger.Logger,
) (*Trader, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	if market == nil || predictor == nil || engine == nil || sizer == nil || trades == nil {
		return nil, fmt.Errorf("trader dependencies must not be nil")
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.Reentry == "" {
		cfg.Reentry = entity.ReentryReplace
	}
	if log == nil {
		log = logger.Default()
	}
	return &Trader{
		cfg:       cfg,
		market:    market,
		predictor: predictor,
		features:  predictor.FeatureNames(),
		engine:    engine,
		sizer:     sizer,
		trades:    trades,
		log:       log,
		now:       time.Now,
	}, nil
}

// Symbols returns the evaluation order
func (t *Trader) Symbols() []string {
	return append([]string(nil), t.cfg.Symbols...)
}

// Step evaluates every symbol and applies the resulting decisions to a copy
// of state. Evaluation may run concurrently; ledger mutation and trade
// logging happen in symbol order. Cancellation during evaluation abandons
// the pass and returns the input state unchanged; once applying has started
// the pass runs to completion.
func (t *Trader) Step(ctx context.Context, state State) (State, []SymbolResult, error) {
	results := make([]SymbolResult, len(t.cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)
	for i, symbol := range t.cfg.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			results[i] = t.evaluate(gctx, state.Ledger, symbol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return state, nil, err
	}
	if err := ctx.Err(); err != nil {
		return state, nil, err
	}

	applyCtx := context.WithoutCancel(ctx)
	next := state.Clone()
	next.Iteration++
	at := t.now()

	for i := range results {
		r := &results[i]
		log := t.log.WithField("symbol", r.Symbol)
		if r.Err != nil {
			log.Warn("Skipping symbol: %v", r.Err)
			continue
		}

		if side, ok := r.Decision.Action.Side(); ok {
			tr, err := next.Ledger.Apply(r.Symbol, side, r.Observation.Close, r.Quantity, at, t.cfg.Reentry)
			if err != nil {
				r.Err = fmt.Errorf("apply %s: %w", r.Decision.Action, err)
				log.Warn("Skipping symbol: %v", r.Err)
				continue
			}
			r.Transition = &tr
			if tr.Kind == entity.TransitionClosed {
				next.RealizedPnL = next.RealizedPnL.Add(tr.RealizedPnL)
			}
		}
		if pos, open := next.Ledger.Get(r.Symbol); open {
			r.UnrealizedPnL = pos.UnrealizedPnL(r.Observation.Close)
		}

		t.report(log, r)

		if r.Decision.Action == entity.ActionHold && !t.cfg.LogHold {
			continue
		}
		if err := t.trades.Append(applyCtx, r.TradeLogEntry(at)); err != nil {
			log.Error("Failed to append trade log: %v", err)
		}
	}

	return next, results, nil
}

// evaluate reads, predicts, decides and sizes one symbol. It only reads
// ledger, so several evaluations can share it.
func (t *Trader) evaluate(ctx context.Context, ledger entity.Ledger, symbol string) (res SymbolResult) {
	res.Symbol = symbol
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrEvaluationPanic, p)
		}
	}()

	obs, err := t.market.Latest(ctx, symbol)
	if err != nil {
		res.Err = fmt.Errorf("read market snapshot: %w", err)
		return res
	}
	res.Observation = obs

	x, err := obs.Vector(t.features)
	if err != nil {
		res.Err = fmt.Errorf("build feature vector: %w", err)
		return res
	}
	pred, err := t.predictor.Predict(x)
	if err != nil {
		res.Err = fmt.Errorf("predict: %w", err)
		return res
	}
	res.Prediction = pred

	dec, err := t.engine.Decide(pred, obs.Close)
	if err != nil {
		res.Err = fmt.Errorf("decide: %w", err)
		return res
	}
	res.Decision = dec

	side, actionable := dec.Action.Side()
	if !actionable {
		return res
	}
	if pos, open := ledger.Get(symbol); open && pos.Side.Opposite() == side {
		res.Quantity = pos.Quantity
		return res
	}
	qty, err := t.sizer.Size(obs.Close)
	if err != nil {
		res.Err = fmt.Errorf("size position: %w", err)
		return res
	}
	res.Quantity = qty
	return res
}

func (t *Trader) report(log *logger.Logger, r *SymbolResult) {
	price := r.Observation.Close.StringFixed(2)
	switch {
	case r.Transition == nil:
		log.Debug("HOLD @ %s (p_up=%.4f)", price, r.Prediction.UpProbability())
	case r.Transition.Kind == entity.TransitionClosed:
		log.Info("%s closes %s x%d @ %s, realized PnL %s",
			r.Decision.Action, r.Transition.Previous.Side, r.Quantity, price, r.Transition.RealizedPnL.StringFixed(2))
	default:
		log.Info("%s x%d @ %s (%s, stop %s, confidence %.4f)",
			r.Decision.Action, r.Quantity, price, r.Transition.Kind, r.Decision.StopPrice.Decimal.StringFixed(2), r.Decision.Confidence)
	}
}
