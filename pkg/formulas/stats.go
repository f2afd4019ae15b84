// Package formulas provides small reusable financial math helpers.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// PeriodReturns converts a price series to single-period rate-of-change
// returns. Returns[i] = Price[i+1]/Price[i] - 1.
func PeriodReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	// talib.Roc reports percentage change; the first element is a
	// lookback placeholder and is dropped.
	roc := talib.Roc(prices, 1)
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(roc); i++ {
		returns[i-1] = roc[i] / 100.0
	}

	return returns
}

// AnnualizedReturn compounds the mean period return over a year.
// Formula: (1 + mean(returns))^periodsPerYear - 1
func AnnualizedReturn(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return math.Pow(1.0+Mean(returns), periodsPerYear) - 1.0
}

// AnnualizedVolatility scales period-return volatility to a yearly horizon.
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(periodsPerYear)
}

// Covariance calculates the covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Clamp restricts a value to a given range.
func Clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}
