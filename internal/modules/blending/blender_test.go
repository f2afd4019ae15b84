package blending

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/internal/modules/equilibrium"
	"github.com/aristath/allocator/internal/modules/views"
)

func identityEstimate() *equilibrium.Estimate {
	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, 0.01)
	}
	return &equilibrium.Estimate{
		Symbols: []string{"AAA", "BBB", "CCC"},
		Returns: mat.NewVecDense(3, []float64{0.05, 0.04, 0.06}),
		Cov:     cov,
	}
}

func singleView(q float64) *views.ViewSet {
	p := mat.NewDense(1, 3, []float64{1, 0, 0})
	return &views.ViewSet{
		P:       p,
		Q:       mat.NewVecDense(1, []float64{q}),
		Sources: []string{"alpha"},
	}
}

func TestDiagonalBlender_NoViewsReturnsPriorUnchanged(t *testing.T) {
	blender, err := New("diagonal", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()

	assert.Same(t, prior, blender.Blend(prior, nil), "nil view set must return the identical estimate")

	empty := &views.ViewSet{Sources: []string{}}
	assert.Same(t, prior, blender.Blend(prior, empty), "empty view set must return the identical estimate")
}

func TestDiagonalBlender_AgreementIsNoOp(t *testing.T) {
	blender, err := New("diagonal", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()

	// View return equals P·Π exactly: blending must not shift returns
	view := singleView(prior.Returns.AtVec(0))
	posterior := blender.Blend(prior, view)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, prior.Returns.AtVec(i), posterior.Returns.AtVec(i), 1e-12,
			"return %d shifted despite view agreeing with equilibrium", i)
	}
}

func TestDiagonalBlender_SingleViewClosedForm(t *testing.T) {
	// With Σ = 0.01·I, τ = 0.05, P = [1,0,0]:
	//   ts = 0.0005·I, ω = p·ts·pᵀ = 0.0005
	//   A = ts·pᵀ/(ω + ω) = [0.5, 0, 0]
	//   Π′[0] = 0.05 + 0.5·(0.10 − 0.05) = 0.075
	blender, err := New("diagonal", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	posterior := blender.Blend(prior, singleView(0.10))

	assert.InDelta(t, 0.075, posterior.Returns.AtVec(0), 1e-12)
	assert.InDelta(t, 0.04, posterior.Returns.AtVec(1), 1e-12)
	assert.InDelta(t, 0.06, posterior.Returns.AtVec(2), 1e-12)
}

func TestDiagonalBlender_PartialUpdateStaysBetweenPriorAndView(t *testing.T) {
	blender, err := New("diagonal", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	posterior := blender.Blend(prior, singleView(0.10))

	// Bayesian update moves toward the view but never all the way
	assert.Greater(t, posterior.Returns.AtVec(0), 0.05)
	assert.Less(t, posterior.Returns.AtVec(0), 0.10)
}

func TestDiagonalBlender_SingularOmegaFallsBackToEquilibrium(t *testing.T) {
	blender, err := New("diagonal", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()

	// A zero link row makes the corresponding Ω diagonal entry zero
	degenerate := &views.ViewSet{
		P:       mat.NewDense(1, 3, []float64{0, 0, 0}),
		Q:       mat.NewVecDense(1, []float64{0.10}),
		Sources: []string{"alpha"},
	}

	assert.Same(t, prior, blender.Blend(prior, degenerate),
		"singular view uncertainty must fall back to the unmodified equilibrium")
}

func TestDiagonalBlender_PosteriorCovarianceRescaledByDelta(t *testing.T) {
	delta := 2.5
	blender, err := New("diagonal", 0.05, delta, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	posterior := blender.Blend(prior, singleView(0.10))

	// Assets untouched by the view keep Σ′_ii = (Σ_ii + τΣ_ii)·δ
	expected := (0.01 + 0.05*0.01) * delta
	assert.InDelta(t, expected, posterior.Cov.At(1, 1), 1e-12)
	assert.InDelta(t, expected, posterior.Cov.At(2, 2), 1e-12)
}

func TestPrecisionBlender_AgreementIsNoOp(t *testing.T) {
	blender, err := New("precision", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	posterior := blender.Blend(prior, singleView(prior.Returns.AtVec(0)))

	for i := 0; i < 3; i++ {
		assert.InDelta(t, prior.Returns.AtVec(i), posterior.Returns.AtVec(i), 1e-9)
	}
}

func TestPrecisionBlender_ShiftsTowardView(t *testing.T) {
	blender, err := New("precision", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	posterior := blender.Blend(prior, singleView(0.10))

	assert.Greater(t, posterior.Returns.AtVec(0), 0.05)
	assert.Less(t, posterior.Returns.AtVec(0), 0.10)

	// Policy B leaves the covariance untouched
	assert.Same(t, prior.Cov, posterior.Cov)
}

func TestPrecisionBlender_DuplicateViewsFallBackToEquilibrium(t *testing.T) {
	blender, err := New("precision", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()

	// Two identical rows make Ω = τPΣPᵀ rank-deficient
	p := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		1, 0, 0,
	})
	degenerate := &views.ViewSet{
		P:       p,
		Q:       mat.NewVecDense(2, []float64{0.10, 0.10}),
		Sources: []string{"alpha", "beta"},
	}

	assert.Same(t, prior, blender.Blend(prior, degenerate))
}

func TestNopBlender_AlwaysReturnsPrior(t *testing.T) {
	blender, err := New("none", 0.05, 2.5, zerolog.Nop())
	require.NoError(t, err)

	prior := identityEstimate()
	assert.Same(t, prior, blender.Blend(prior, singleView(0.10)))
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New("bogus", 0.05, 2.5, zerolog.Nop())
	assert.Error(t, err)
}
