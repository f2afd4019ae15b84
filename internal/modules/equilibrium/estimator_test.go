package equilibrium

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate_TwoAssetHandComputedCase(t *testing.T) {
	// With periodsPerYear=1 and two periods per asset the whole computation is
	// hand-checkable:
	//   Σ = [[0.0002, 0.0002], [0.0002, 0.0002]]  (sample covariance)
	//   w = [0.5, 0.5], annual return = 0.025, annual variance = 0.0002
	//   λ = 0.025 / 0.0002 = 125
	//   Π = λΣw = [0.025, 0.025]
	est := NewEstimator(1, 0, zerolog.Nop())

	series := map[string][]float64{
		"AAA": {0.02, 0.04},
		"BBB": {0.01, 0.03},
	}

	result, err := est.Estimate(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, result.Symbols)
	assert.InDelta(t, 0.0002, result.Cov.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0002, result.Cov.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0002, result.Cov.At(1, 1), 1e-12)
	assert.InDelta(t, 0.025, result.Returns.AtVec(0), 1e-12)
	assert.InDelta(t, 0.025, result.Returns.AtVec(1), 1e-12)
}

func TestEstimate_CovarianceIsAnnualized(t *testing.T) {
	periodsPerYear := 252.0
	est := NewEstimator(periodsPerYear, 0, zerolog.Nop())

	series := map[string][]float64{
		"AAA": {0.01, -0.01, 0.02, -0.02},
		"BBB": {-0.01, 0.02, -0.02, 0.03},
	}

	base, err := NewEstimator(1, 0, zerolog.Nop()).Estimate(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	annualized, err := est.Estimate(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.InDelta(t, base.Cov.At(0, 0)*periodsPerYear, annualized.Cov.At(0, 0), 1e-12)
	assert.InDelta(t, base.Cov.At(0, 1)*periodsPerYear, annualized.Cov.At(0, 1), 1e-12)
}

func TestEstimate_DegenerateVariance(t *testing.T) {
	est := NewEstimator(252, 0, zerolog.Nop())

	tests := []struct {
		name   string
		series map[string][]float64
	}{
		{
			name: "constant returns",
			series: map[string][]float64{
				"AAA": {0.01, 0.01, 0.01},
				"BBB": {0.01, 0.01, 0.01},
			},
		},
		{
			name: "single period of history",
			series: map[string][]float64{
				"AAA": {0.01},
				"BBB": {0.02},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := est.Estimate(tt.series, []string{"AAA", "BBB"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDegenerateVariance)
		})
	}
}

func TestEstimate_InputValidation(t *testing.T) {
	est := NewEstimator(252, 0, zerolog.Nop())

	_, err := est.Estimate(map[string][]float64{}, nil)
	assert.Error(t, err, "empty universe")

	_, err = est.Estimate(map[string][]float64{"AAA": {0.01, 0.02}}, []string{"AAA", "BBB"})
	assert.Error(t, err, "missing series")

	_, err = est.Estimate(map[string][]float64{
		"AAA": {0.01, 0.02, 0.03},
		"BBB": {0.01, 0.02},
	}, []string{"AAA", "BBB"})
	assert.Error(t, err, "length mismatch")
}

func TestEstimate_ReturnsBySymbol(t *testing.T) {
	est := NewEstimator(1, 0, zerolog.Nop())

	series := map[string][]float64{
		"AAA": {0.02, 0.04},
		"BBB": {0.01, 0.03},
	}

	result, err := est.Estimate(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	bySymbol := result.ReturnsBySymbol()
	require.Len(t, bySymbol, 2)
	assert.InDelta(t, result.Returns.AtVec(0), bySymbol["AAA"], 1e-15)
	assert.InDelta(t, result.Returns.AtVec(1), bySymbol["BBB"], 1e-15)

	got, ok := result.ReturnAt("BBB")
	require.True(t, ok)
	assert.InDelta(t, bySymbol["BBB"], got, 1e-15)

	_, ok = result.ReturnAt("ZZZ")
	assert.False(t, ok)
}
