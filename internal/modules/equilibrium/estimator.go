// Package equilibrium reverse-engineers market-implied expected returns from
// historical return windows, assuming an equal-weighted reference portfolio.
package equilibrium

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rs/zerolog"
)

// ErrDegenerateVariance is returned when the reference portfolio has zero
// annualized variance (too little history, or all-constant returns). No
// risk-aversion coefficient can be derived; the caller must skip the cycle.
var ErrDegenerateVariance = errors.New("reference portfolio variance is zero")

// Estimate is the market-implied prior: annualized expected excess returns Π
// and annualized covariance Σ over a fixed asset ordering.
type Estimate struct {
	Symbols []string
	Returns *mat.VecDense // Π, N×1
	Cov     *mat.SymDense // Σ, N×N
}

// ReturnAt returns Π for one asset by symbol.
func (e *Estimate) ReturnAt(symbol string) (float64, bool) {
	for i, s := range e.Symbols {
		if s == symbol {
			return e.Returns.AtVec(i), true
		}
	}
	return 0, false
}

// ReturnsBySymbol converts Π into a symbol-keyed map.
func (e *Estimate) ReturnsBySymbol() map[string]float64 {
	out := make(map[string]float64, len(e.Symbols))
	for i, s := range e.Symbols {
		out[s] = e.Returns.AtVec(i)
	}
	return out
}

// Estimator computes equilibrium estimates from tracked return series.
type Estimator struct {
	periodsPerYear float64
	riskFreeRate   float64
	log            zerolog.Logger
}

// NewEstimator creates a new equilibrium return estimator.
func NewEstimator(periodsPerYear, riskFreeRate float64, log zerolog.Logger) *Estimator {
	return &Estimator{
		periodsPerYear: periodsPerYear,
		riskFreeRate:   riskFreeRate,
		log:            log.With().Str("component", "equilibrium").Logger(),
	}
}

// Estimate computes (Π, Σ) from per-asset return series. All series must have
// the same length (the tracker guarantees this for ready assets).
//
// Steps: Σ = cov(R)·periodsPerYear; the reference portfolio is equal-weighted;
// its annualized return and variance imply a risk-aversion coefficient
// λ = (r − rf)/σ²; Π = λ·Σ·w.
func (e *Estimator) Estimate(series map[string][]float64, symbols []string) (*Estimate, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	periods := -1
	for _, symbol := range symbols {
		s, ok := series[symbol]
		if !ok {
			return nil, fmt.Errorf("missing return series for symbol %s", symbol)
		}
		if periods == -1 {
			periods = len(s)
		} else if len(s) != periods {
			return nil, fmt.Errorf("return series length mismatch for symbol %s: %d != %d", symbol, len(s), periods)
		}
	}
	if periods < 2 {
		return nil, fmt.Errorf("%w: only %d periods of history", ErrDegenerateVariance, periods)
	}

	// Return matrix R, one column per asset in symbol order
	r := mat.NewDense(periods, n, nil)
	for j, symbol := range symbols {
		r.SetCol(j, series[symbol])
	}

	// Σ = annualized sample covariance
	sigma := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sigma, r, nil)
	sigma.ScaleSym(e.periodsPerYear, sigma)

	// Equal-weighted reference portfolio
	wData := make([]float64, n)
	for i := range wData {
		wData[i] = 1.0 / float64(n)
	}
	w := mat.NewVecDense(n, wData)

	// Annualized return of the reference portfolio: per-asset compounded
	// mean return, weighted
	var annualReturn float64
	col := make([]float64, periods)
	for j := range symbols {
		mat.Col(col, j, r)
		annualReturn += (math.Pow(1.0+stat.Mean(col, nil), e.periodsPerYear) - 1.0) * wData[j]
	}

	annualVariance := mat.Inner(w, sigma, w)
	if annualVariance < 1e-12 {
		return nil, fmt.Errorf("%w: variance=%g", ErrDegenerateVariance, annualVariance)
	}

	riskAversion := (annualReturn - e.riskFreeRate) / annualVariance

	// Π = λ·Σ·w
	pi := mat.NewVecDense(n, nil)
	pi.MulVec(sigma, w)
	pi.ScaleVec(riskAversion, pi)

	e.log.Debug().
		Int("assets", n).
		Int("periods", periods).
		Float64("annual_return", annualReturn).
		Float64("annual_variance", annualVariance).
		Float64("risk_aversion", riskAversion).
		Msg("Computed equilibrium estimate")

	return &Estimate{
		Symbols: append([]string{}, symbols...),
		Returns: pi,
		Cov:     sigma,
	}, nil
}
