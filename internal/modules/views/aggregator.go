// Package views converts batches of directional forecasts into a
// Black-Litterman view specification: a link matrix P and a view vector Q.
package views

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
)

// ErrMissingMagnitude is returned when a forecast arrives without a numeric
// magnitude. That is a configuration error in the upstream forecaster and must
// be surfaced, not coerced to zero.
var ErrMissingMagnitude = errors.New("forecast magnitude missing")

// ViewSet is the structured view specification built from a forecast batch.
// P is K×N (one row per surviving source), Q is K×1. Sources records which
// forecast source produced each row, in row order.
type ViewSet struct {
	P       *mat.Dense
	Q       *mat.VecDense
	Sources []string
}

// Len returns the number of views K.
func (v *ViewSet) Len() int {
	return len(v.Sources)
}

// Aggregator builds view sets from forecast batches.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates a new view aggregator.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "view_aggregator").Logger(),
	}
}

// Build turns the current forecast batch into a ViewSet over the given asset
// universe. The outcome is explicit: (nil, nil) means "no usable views" (the
// caller must use the equilibrium estimate unmodified), a non-nil error means
// the batch itself is invalid.
//
// One view per distinct source: within a source, the absolute magnitudes of
// up and down forecasts are summed separately and the view return Q_i is the
// larger of the two. A source whose forecasts carry only zero magnitude is
// dropped entirely, not emitted as a zero row.
func (a *Aggregator) Build(forecasts []domain.Forecast, symbols []string) (*ViewSet, error) {
	if len(forecasts) == 0 || len(symbols) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		index[s] = i
	}

	// Group forecasts by source. Forecasts for assets outside the universe
	// cannot appear in a link row and are skipped.
	groups := make(map[string][]domain.Forecast)
	for _, f := range forecasts {
		if f.Magnitude == nil {
			return nil, fmt.Errorf("%w: source=%s symbol=%s", ErrMissingMagnitude, f.Source, f.Symbol)
		}
		if _, ok := index[f.Symbol]; !ok {
			a.log.Debug().
				Str("symbol", f.Symbol).
				Str("source", f.Source).
				Msg("Forecast for asset outside universe, skipping")
			continue
		}
		groups[f.Source] = append(groups[f.Source], f)
	}

	// Stable row order regardless of map iteration
	sources := make([]string, 0, len(groups))
	for source := range groups {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	n := len(symbols)
	rows := make([][]float64, 0, len(sources))
	targets := make([]float64, 0, len(sources))
	kept := make([]string, 0, len(sources))

	for _, source := range sources {
		group := groups[source]

		var upSum, downSum float64
		for _, f := range group {
			m := math.Abs(*f.Magnitude)
			switch f.Direction {
			case domain.DirectionUp:
				upSum += m
			case domain.DirectionDown:
				downSum += m
			}
		}

		q := math.Max(upSum, downSum)
		if q == 0 {
			// All forecasts from this source have zero conviction
			a.log.Debug().
				Str("source", source).
				Int("forecasts", len(group)).
				Msg("Source contributed only zero-magnitude forecasts, dropping")
			continue
		}

		row := make([]float64, n)
		for _, f := range group {
			row[index[f.Symbol]] = f.Direction.Sign() * math.Abs(*f.Magnitude) / q
		}

		rows = append(rows, row)
		targets = append(targets, q)
		kept = append(kept, source)
	}

	if len(kept) == 0 {
		a.log.Debug().Msg("No usable views in forecast batch")
		return nil, nil
	}

	p := mat.NewDense(len(kept), n, nil)
	for i, row := range rows {
		p.SetRow(i, row)
	}

	a.log.Info().
		Int("views", len(kept)).
		Int("assets", n).
		Int("forecasts", len(forecasts)).
		Msg("Built view set")

	return &ViewSet{
		P:       p,
		Q:       mat.NewVecDense(len(targets), targets),
		Sources: kept,
	}, nil
}
