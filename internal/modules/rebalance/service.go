// Package rebalance drives the allocation pipeline: tracker update, view
// aggregation, equilibrium estimation, Bayesian blending, and constrained
// optimization, one synchronous cycle per trigger.
package rebalance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/blending"
	"github.com/aristath/allocator/internal/modules/equilibrium"
	"github.com/aristath/allocator/internal/modules/history"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/views"
)

// Service owns the tracker arena and the last-emitted targets. Callers must
// serialize rebalance cycles; the pipeline has no internal concurrency.
type Service struct {
	cfg        config.EngineConfig
	tracker    *history.Tracker
	aggregator *views.Aggregator
	estimator  *equilibrium.Estimator
	blender    blending.Blender
	optimizer  *optimization.Optimizer
	runs       *RunRepository // optional

	lastTargets map[string]float64
	flattened   map[string]bool // removed since the last emitted cycle
	log         zerolog.Logger
}

// New creates a rebalance service. runs may be nil (no persistence).
func New(
	cfg config.EngineConfig,
	tracker *history.Tracker,
	blender blending.Blender,
	runs *RunRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		tracker:     tracker,
		aggregator:  views.NewAggregator(log),
		estimator:   equilibrium.NewEstimator(cfg.PeriodsPerYear, cfg.RiskFreeRate, log),
		blender:     blender,
		optimizer:   optimization.NewOptimizer(cfg.RiskFreeRate, log),
		runs:        runs,
		lastTargets: make(map[string]float64),
		flattened:   make(map[string]bool),
		log:         log.With().Str("component", "rebalance").Logger(),
	}
}

// Tracker exposes the tracker for snapshot persistence at shutdown.
func (s *Service) Tracker() *history.Tracker {
	return s.tracker
}

// AddAsset brings an asset into the universe, warming its return window from
// a caller-supplied historical batch of period returns (oldest-first).
func (s *Service) AddAsset(symbol string, warmupReturns []float64) {
	s.tracker.Warmup(symbol, warmupReturns)
	delete(s.flattened, symbol)

	s.log.Info().
		Str("symbol", symbol).
		Int("warmup_returns", len(warmupReturns)).
		Bool("ready", s.tracker.Ready(symbol)).
		Msg("Asset added to universe")
}

// RemoveAsset drops an asset from the universe. The next cycle emits an
// explicit flatten target (weight 0) for it.
func (s *Service) RemoveAsset(symbol string) {
	if !s.tracker.Has(symbol) {
		return
	}
	s.tracker.Remove(symbol)
	delete(s.lastTargets, symbol)
	s.flattened[symbol] = true

	s.log.Info().Str("symbol", symbol).Msg("Asset removed from universe")
}

// Observe records one live period-return observation for an asset.
func (s *Service) Observe(symbol string, at time.Time, periodReturn float64) {
	if !s.tracker.Has(symbol) {
		s.log.Debug().Str("symbol", symbol).Msg("Observation for untracked asset, ignoring")
		return
	}
	s.tracker.Add(symbol, at, periodReturn)
}

// Targets returns the last emitted targets, sorted by symbol.
func (s *Service) Targets() []domain.Target {
	targets := make([]domain.Target, 0, len(s.lastTargets))
	for symbol, weight := range s.lastTargets {
		targets = append(targets, domain.Target{Symbol: symbol, Weight: weight})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Symbol < targets[j].Symbol })
	return targets
}

// Rebalance runs one full pipeline cycle over the given forecast batch and
// returns the resulting targets, including flatten targets for assets removed
// since the previous cycle.
//
// Failure policy follows the engine's error taxonomy: a degenerate
// equilibrium skips the cycle and retains the previous targets; degenerate
// view uncertainty and optimizer non-convergence degrade inside the blender
// and optimizer respectively; an invalid forecast batch (missing magnitude)
// is the one condition surfaced as an error.
func (s *Service) Rebalance(forecasts []domain.Forecast) ([]domain.Target, error) {
	started := time.Now()
	symbols := s.tracker.ReadySymbols()

	if len(symbols) == 0 {
		s.log.Warn().Msg("No assets with full return windows, skipping rebalance")
		return s.emit(nil, started)
	}

	// Views first: a malformed batch must fail before any numeric work
	viewSet, err := s.aggregator.Build(forecasts, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate views: %w", err)
	}

	series := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		series[symbol] = s.tracker.Series(symbol)
	}

	prior, err := s.estimator.Estimate(series, symbols)
	if err != nil {
		if errors.Is(err, equilibrium.ErrDegenerateVariance) {
			s.log.Warn().Err(err).Msg("Degenerate equilibrium, retaining previous targets")
			return s.emit(s.lastTargets, started)
		}
		return nil, fmt.Errorf("failed to estimate equilibrium: %w", err)
	}

	posterior := s.blender.Blend(prior, viewSet)

	bounds := optimization.UniformBounds(len(symbols), s.cfg.LowerBound, s.cfg.UpperBound)
	var targetReturn *float64
	if s.cfg.Strategy == config.StrategyMinVolatility && s.cfg.TargetReturn > 0 {
		targetReturn = &s.cfg.TargetReturn
	}

	weights, err := s.optimizer.Optimize(
		posterior.ReturnsBySymbol(),
		posterior.Cov,
		symbols,
		bounds,
		s.cfg.Strategy,
		targetReturn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to optimize weights: %w", err)
	}

	weights = s.applyCutoff(weights)

	numViews := 0
	if viewSet != nil {
		numViews = viewSet.Len()
	}
	s.log.Info().
		Int("assets", len(symbols)).
		Int("views", numViews).
		Str("policy", s.blender.Name()).
		Str("strategy", s.cfg.Strategy).
		Dur("elapsed", time.Since(started)).
		Msg("Rebalance cycle complete")

	return s.emit(weights, started)
}

// applyCutoff zeroes weights below the configured magnitude and renormalizes
// the survivors so the budget invariant holds.
func (s *Service) applyCutoff(weights map[string]float64) map[string]float64 {
	if s.cfg.WeightCutoff <= 0 {
		return weights
	}

	kept := make(map[string]float64, len(weights))
	sum := 0.0
	for symbol, w := range weights {
		if math.Abs(w) < s.cfg.WeightCutoff {
			continue
		}
		kept[symbol] = w
		sum += w
	}

	// Degenerate cutoff (everything tiny, or survivors cancelling out):
	// keep the uncut vector rather than divide by ~0
	if len(kept) == 0 || math.Abs(sum) < 0.5 {
		return weights
	}

	for symbol := range kept {
		kept[symbol] /= sum
	}
	return kept
}

// emit assembles the target list (weights plus pending flattens), updates the
// cycle state, and records the run.
func (s *Service) emit(weights map[string]float64, started time.Time) ([]domain.Target, error) {
	targets := make([]domain.Target, 0, len(weights)+len(s.flattened))
	for symbol, weight := range weights {
		if weight == 0 {
			continue
		}
		targets = append(targets, domain.Target{Symbol: symbol, Weight: weight})
	}
	for symbol := range s.flattened {
		targets = append(targets, domain.Target{Symbol: symbol, Weight: 0})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Symbol < targets[j].Symbol })

	if weights != nil {
		last := make(map[string]float64, len(weights))
		for symbol, weight := range weights {
			last[symbol] = weight
		}
		s.lastTargets = last
	}
	s.flattened = make(map[string]bool)

	if s.runs != nil && len(targets) > 0 {
		if err := s.runs.SaveRun(Run{
			Policy:    s.blender.Name(),
			Strategy:  s.cfg.Strategy,
			StartedAt: started,
			Targets:   targets,
		}); err != nil {
			// Persistence is advisory; the cycle result stands
			s.log.Error().Err(err).Msg("Failed to record rebalance run")
		}
	}

	return targets, nil
}
