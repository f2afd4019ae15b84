package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/rebalance"
)

// RebalanceJob runs one full allocation cycle: pull the latest observations
// into the tracker, pull the active forecast batch, rebalance, and publish
// the resulting targets. Cycles are serialized by the cron scheduler; the
// engine itself has no concurrency contract.
type RebalanceJob struct {
	log          zerolog.Logger
	service      *rebalance.Service
	forecasts    domain.ForecastProvider
	observations domain.ObservationProvider
	publisher    domain.TargetPublisher
}

// NewRebalanceJob creates a new rebalance job. forecasts, observations, and
// publisher are external collaborators and may each be nil (the corresponding
// step is skipped).
func NewRebalanceJob(
	service *rebalance.Service,
	forecasts domain.ForecastProvider,
	observations domain.ObservationProvider,
	publisher domain.TargetPublisher,
	log zerolog.Logger,
) *RebalanceJob {
	return &RebalanceJob{
		log:          log.With().Str("component", "rebalance_job").Logger(),
		service:      service,
		forecasts:    forecasts,
		observations: observations,
		publisher:    publisher,
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes one rebalance cycle
func (j *RebalanceJob) Run() error {
	now := time.Now()

	if j.observations != nil {
		returns, err := j.observations.LatestReturns()
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to fetch observations")
			return fmt.Errorf("failed to fetch observations: %w", err)
		}
		for symbol, r := range returns {
			j.service.Observe(symbol, now, r)
		}
	}

	var batch []domain.Forecast
	if j.forecasts != nil {
		var err error
		batch, err = j.forecasts.ActiveForecasts()
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to fetch forecasts")
			return fmt.Errorf("failed to fetch forecasts: %w", err)
		}
	}

	targets, err := j.service.Rebalance(batch)
	if err != nil {
		return fmt.Errorf("rebalance cycle failed: %w", err)
	}

	if j.publisher != nil && len(targets) > 0 {
		j.publisher.PublishTargets(targets)
	}

	j.log.Info().
		Int("forecasts", len(batch)).
		Int("targets", len(targets)).
		Msg("Rebalance job complete")

	return nil
}
