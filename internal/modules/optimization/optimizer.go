// Package optimization solves the constrained portfolio-weight problem over a
// blended (or equilibrium) return/covariance estimate.
package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
)

const (
	// penaltyWeight enforces the budget constraint sum(w)=1 (and the
	// target-return constraint for min_volatility).
	penaltyWeight = 1000.0

	// volFloor keeps the Sharpe denominator above zero when the portfolio
	// is perfectly hedged.
	volFloor = 1e-10

	// budgetTolerance: a converged solution whose weights sum this far from
	// 1 is treated as non-convergence.
	budgetTolerance = 0.05
)

// Optimizer solves for target weights under box and budget constraints.
type Optimizer struct {
	riskFreeRate float64
	log          zerolog.Logger
}

// NewOptimizer creates a new portfolio optimizer.
func NewOptimizer(riskFreeRate float64, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize produces final weights for the given estimate.
//
// Strategies:
//   - max_sharpe: maximize (wᵀμ − rf) / sqrt(wᵀΣw)
//   - min_volatility: minimize wᵀΣw, optionally subject to wᵀμ = targetReturn
//
// Constraints: sum(w) = 1 and bounds[i][0] ≤ w_i ≤ bounds[i][1]. Weights may
// be negative when the lower bound permits shorts.
//
// The solve is seeded from equal weights. Non-convergence, a NaN solution, or
// a blown budget constraint falls back to the equal-weight seed rather than
// emitting an invalid weight vector.
func (o *Optimizer) Optimize(
	expectedReturns map[string]float64,
	cov *mat.SymDense,
	symbols []string,
	bounds [][2]float64,
	strategy string,
	targetReturn *float64,
) (map[string]float64, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}
	if r, _ := cov.Dims(); r != n {
		return nil, fmt.Errorf("covariance matrix size %d doesn't match symbols count %d", r, n)
	}
	if len(bounds) != n {
		return nil, fmt.Errorf("bounds count %d doesn't match symbols count %d", len(bounds), n)
	}

	mu := make([]float64, n)
	for i, symbol := range symbols {
		ret, ok := expectedReturns[symbol]
		if !ok {
			return nil, fmt.Errorf("missing expected return for symbol %s", symbol)
		}
		mu[i] = ret
	}

	var objective func(x []float64) float64
	switch strategy {
	case config.StrategyMaxSharpe:
		objective = o.sharpeObjective(mu, cov, bounds)
	case config.StrategyMinVolatility:
		objective = o.minVolObjective(mu, cov, bounds, targetReturn)
	default:
		return nil, fmt.Errorf("unknown strategy: %s", strategy)
	}

	seed := equalWeights(n)

	x, ok := o.solve(objective, seed)
	if !ok {
		o.log.Warn().
			Str("strategy", strategy).
			Int("assets", n).
			Msg("Optimizer did not converge, falling back to equal weights")
		x = seed
	}

	final := projectToBounds(x, bounds)
	if !o.acceptable(final) {
		o.log.Warn().
			Str("strategy", strategy).
			Msg("Optimizer produced invalid weights, falling back to equal weights")
		final = seed
	}

	// Normalize the residual budget drift left by the penalty method
	sum := 0.0
	for _, w := range final {
		sum += w
	}
	weights := make(map[string]float64, n)
	for i, symbol := range symbols {
		weights[symbol] = final[i] / sum
	}

	return weights, nil
}

// solve runs Nelder-Mead first and retries with BFGS, accepting the usual
// convergence statuses.
func (o *Optimizer) solve(objective func(x []float64) float64, seed []float64) ([]float64, bool) {
	problem := optimize.Problem{Func: objective}

	ok := func(status optimize.Status) bool {
		switch status {
		case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.FunctionThreshold:
			return true
		}
		return false
	}

	initial := append([]float64{}, seed...)
	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err == nil && ok(result.Status) {
		return result.X, true
	}

	result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err == nil && ok(result.Status) {
		return result.X, true
	}

	return nil, false
}

// sharpeObjective builds the negated, penalized Sharpe-ratio objective.
func (o *Optimizer) sharpeObjective(mu []float64, cov *mat.SymDense, bounds [][2]float64) func(x []float64) float64 {
	n := len(mu)
	return func(x []float64) float64 {
		w := projectToBounds(x, bounds)

		var ret, variance float64
		for i := 0; i < n; i++ {
			ret += mu[i] * w[i]
			for j := 0; j < n; j++ {
				variance += w[i] * w[j] * cov.At(i, j)
			}
		}
		vol := math.Sqrt(math.Max(variance, volFloor))

		sum := 0.0
		for i := 0; i < n; i++ {
			sum += w[i]
		}

		obj := -(ret - o.riskFreeRate) / vol
		obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		return obj
	}
}

// minVolObjective builds the penalized minimum-variance objective.
func (o *Optimizer) minVolObjective(mu []float64, cov *mat.SymDense, bounds [][2]float64, targetReturn *float64) func(x []float64) float64 {
	n := len(mu)
	return func(x []float64) float64 {
		w := projectToBounds(x, bounds)

		var ret, variance float64
		for i := 0; i < n; i++ {
			ret += mu[i] * w[i]
			for j := 0; j < n; j++ {
				variance += w[i] * w[j] * cov.At(i, j)
			}
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			sum += w[i]
		}

		obj := variance
		obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)
		if targetReturn != nil {
			obj += penaltyWeight * (ret - *targetReturn) * (ret - *targetReturn)
		}
		return obj
	}
}

// acceptable rejects NaN/Inf solutions and budget violations beyond tolerance.
func (o *Optimizer) acceptable(w []float64) bool {
	sum := 0.0
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1.0) <= budgetTolerance
}

// UniformBounds expands a single [lower, upper] pair to all assets.
func UniformBounds(n int, lower, upper float64) [][2]float64 {
	bounds := make([][2]float64, n)
	for i := range bounds {
		bounds[i] = [2]float64{lower, upper}
	}
	return bounds
}

// equalWeights is the optimizer seed and the least aggressive fallback.
func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// projectToBounds projects weights to their bounds.
func projectToBounds(x []float64, bounds [][2]float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}
