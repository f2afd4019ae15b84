package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodReturns(t *testing.T) {
	returns := PeriodReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestPeriodReturns_TooShort(t *testing.T) {
	assert.Empty(t, PeriodReturns(nil))
	assert.Empty(t, PeriodReturns([]float64{100}))
}

func TestAnnualizedReturn(t *testing.T) {
	// 1% per period, 2 periods per year: (1.01)^2 - 1
	returns := []float64{0.01, 0.01, 0.01}
	assert.InDelta(t, math.Pow(1.01, 2)-1, AnnualizedReturn(returns, 2), 1e-12)
	assert.Zero(t, AnnualizedReturn(nil, 252))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns, 252), 1e-12)
	assert.Zero(t, AnnualizedVolatility(nil, 252))
}

func TestMeanStdDevVariance(t *testing.T) {
	data := []float64{1, 2, 3, 4}

	assert.InDelta(t, 2.5, Mean(data), 1e-12)
	assert.InDelta(t, Variance(data), StdDev(data)*StdDev(data), 1e-12)

	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev(nil))
	assert.Zero(t, Variance(nil))
}

func TestCovariance(t *testing.T) {
	x := []float64{0.01, 0.02, 0.03}
	y := []float64{0.03, 0.02, 0.01}

	assert.Negative(t, Covariance(x, y))
	assert.Positive(t, Covariance(x, x))
	assert.Zero(t, Covariance(x, []float64{0.01}), "mismatched lengths")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(-2, 0, 1))
	assert.Equal(t, 1.0, Clamp(7, 0, 1))
}
