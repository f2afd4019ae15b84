package domain

// ForecastProvider supplies the current batch of active forecasts.
// Expiry filtering and per-(source, symbol) deduplication happen upstream.
type ForecastProvider interface {
	ActiveForecasts() ([]Forecast, error)
}

// ObservationProvider supplies one new period-return observation per asset
// per rebalance cycle.
type ObservationProvider interface {
	LatestReturns() (map[string]float64, error)
}

// TargetPublisher receives the computed target weights at the end of a cycle.
type TargetPublisher interface {
	PublishTargets(targets []Target)
}
