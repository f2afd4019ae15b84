// Package blending combines the equilibrium prior with aggregated views using
// the Black-Litterman master formula.
//
// Two blending policies are supported, mirroring the two Ω constructions in
// use: a diagonal view-uncertainty matrix with a covariance-adjusted posterior,
// and a full precision-weighted combination that leaves Σ unchanged. A third
// variant skips blending entirely (equilibrium-only model). The variant is
// selected by configuration, not subclassing.
package blending

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/equilibrium"
	"github.com/aristath/allocator/internal/modules/views"
)

// detFloor is the singularity threshold for view-uncertainty matrices.
const detFloor = 1e-12

// Blender produces a posterior estimate from a prior and a view set.
//
// Blend never fails: a degenerate view-uncertainty matrix (det(Ω)=0) or any
// non-invertible intermediate is an expected, recoverable condition and
// degrades to the unmodified equilibrium estimate. A nil view set (no usable
// views) returns the prior as-is, by identity.
type Blender interface {
	Name() string
	Blend(prior *equilibrium.Estimate, viewSet *views.ViewSet) *equilibrium.Estimate
}

// New selects a blender variant by policy name.
func New(policy string, tau, delta float64, log zerolog.Logger) (Blender, error) {
	switch policy {
	case config.BlendNone:
		return &NopBlender{}, nil
	case config.BlendDiagonal:
		return &DiagonalBlender{
			tau:   tau,
			delta: delta,
			log:   log.With().Str("component", "blender").Str("policy", policy).Logger(),
		}, nil
	case config.BlendPrecision:
		return &PrecisionBlender{
			tau: tau,
			log: log.With().Str("component", "blender").Str("policy", policy).Logger(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown blend policy: %s", policy)
	}
}

// NopBlender ignores views entirely (equilibrium-only model).
type NopBlender struct{}

// Name returns the policy name.
func (b *NopBlender) Name() string { return config.BlendNone }

// Blend returns the prior unchanged.
func (b *NopBlender) Blend(prior *equilibrium.Estimate, _ *views.ViewSet) *equilibrium.Estimate {
	return prior
}

// DiagonalBlender implements the diagonal-uncertainty, covariance-adjusted
// policy:
//
//	Ω  = diag(diag(P·τΣ·Pᵀ))
//	A  = τΣ·Pᵀ·(P·τΣ·Pᵀ + Ω)⁻¹
//	Π′ = Π + A·(Q − P·Π)
//	Σ′ = (Σ + τΣ − A·P·τΣ)·δ
type DiagonalBlender struct {
	tau   float64
	delta float64
	log   zerolog.Logger
}

// Name returns the policy name.
func (b *DiagonalBlender) Name() string { return config.BlendDiagonal }

// Blend combines the prior with the view set.
func (b *DiagonalBlender) Blend(prior *equilibrium.Estimate, viewSet *views.ViewSet) *equilibrium.Estimate {
	if viewSet == nil || viewSet.Len() == 0 {
		return prior
	}

	n := len(prior.Symbols)
	k := viewSet.Len()

	// ts = τΣ
	ts := mat.NewDense(n, n, nil)
	ts.Scale(b.tau, denseOf(prior.Cov))

	// P·ts and P·ts·Pᵀ
	var pts mat.Dense // K×N
	pts.Mul(viewSet.P, ts)
	var ptsPT mat.Dense // K×K
	ptsPT.Mul(&pts, viewSet.P.T())

	// Ω keeps only the diagonal of P·ts·Pᵀ. Views are assumed uncorrelated
	// with each other.
	omega := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		omega.Set(i, i, ptsPT.At(i, i))
	}

	if math.Abs(mat.Det(omega)) < detFloor {
		b.log.Warn().
			Int("views", k).
			Msg("View uncertainty matrix is singular, using equilibrium unchanged")
		return prior
	}

	// S = P·ts·Pᵀ + Ω
	var s mat.Dense
	s.Add(&ptsPT, omega)
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		b.log.Warn().Err(err).Msg("Failed to invert blended uncertainty, using equilibrium unchanged")
		return prior
	}

	// A = ts·Pᵀ·S⁻¹ (N×K)
	var tsPT mat.Dense
	tsPT.Mul(ts, viewSet.P.T())
	var a mat.Dense
	a.Mul(&tsPT, &sInv)

	// Π′ = Π + A·(Q − P·Π)
	var pPi mat.VecDense
	pPi.MulVec(viewSet.P, prior.Returns)
	var resid mat.VecDense
	resid.SubVec(viewSet.Q, &pPi)
	var shift mat.VecDense
	shift.MulVec(&a, &resid)
	posterior := mat.NewVecDense(n, nil)
	posterior.AddVec(prior.Returns, &shift)

	// Σ′ = (Σ + ts − A·P·ts)·δ
	var apts mat.Dense // N×N
	apts.Mul(&a, &pts)
	var m mat.Dense
	m.Sub(ts, &apts)
	var covOut mat.Dense
	covOut.Add(denseOf(prior.Cov), &m)
	covOut.Scale(b.delta, &covOut)

	b.log.Debug().
		Int("views", k).
		Int("assets", n).
		Msg("Blended views into posterior estimate")

	return &equilibrium.Estimate{
		Symbols: prior.Symbols,
		Returns: posterior,
		Cov:     symmetrize(&covOut),
	}
}

// PrecisionBlender implements the full precision-weighted policy:
//
//	Ω  = τ·P·Σ·Pᵀ
//	Π′ = [(τΣ)⁻¹ + PᵀΩ⁻¹P]⁻¹ · [(τΣ)⁻¹Π + PᵀΩ⁻¹Q]
//
// The posterior covariance is the prior covariance, unchanged.
type PrecisionBlender struct {
	tau float64
	log zerolog.Logger
}

// Name returns the policy name.
func (b *PrecisionBlender) Name() string { return config.BlendPrecision }

// Blend combines the prior with the view set.
func (b *PrecisionBlender) Blend(prior *equilibrium.Estimate, viewSet *views.ViewSet) *equilibrium.Estimate {
	if viewSet == nil || viewSet.Len() == 0 {
		return prior
	}

	n := len(prior.Symbols)
	k := viewSet.Len()

	// Ω = τ·P·Σ·Pᵀ
	var pSigma mat.Dense
	pSigma.Mul(viewSet.P, denseOf(prior.Cov))
	var omega mat.Dense
	omega.Mul(&pSigma, viewSet.P.T())
	omega.Scale(b.tau, &omega)

	if math.Abs(mat.Det(&omega)) < detFloor {
		b.log.Warn().
			Int("views", k).
			Msg("View uncertainty matrix is singular, using equilibrium unchanged")
		return prior
	}

	var omegaInv mat.Dense
	if err := omegaInv.Inverse(&omega); err != nil {
		b.log.Warn().Err(err).Msg("Failed to invert view uncertainty, using equilibrium unchanged")
		return prior
	}

	// (τΣ)⁻¹
	ts := mat.NewDense(n, n, nil)
	ts.Scale(b.tau, denseOf(prior.Cov))
	var tsInv mat.Dense
	if err := tsInv.Inverse(ts); err != nil {
		b.log.Warn().Err(err).Msg("Failed to invert scaled prior covariance, using equilibrium unchanged")
		return prior
	}

	// PᵀΩ⁻¹
	var ptOmegaInv mat.Dense
	ptOmegaInv.Mul(viewSet.P.T(), &omegaInv)

	// A = (τΣ)⁻¹ + PᵀΩ⁻¹P
	var ptOmegaInvP mat.Dense
	ptOmegaInvP.Mul(&ptOmegaInv, viewSet.P)
	var a mat.Dense
	a.Add(&tsInv, &ptOmegaInvP)
	var aInv mat.Dense
	if err := aInv.Inverse(&a); err != nil {
		b.log.Warn().Err(err).Msg("Failed to invert posterior precision, using equilibrium unchanged")
		return prior
	}

	// rhs = (τΣ)⁻¹Π + PᵀΩ⁻¹Q
	var tsInvPi mat.VecDense
	tsInvPi.MulVec(&tsInv, prior.Returns)
	var ptOmegaInvQ mat.VecDense
	ptOmegaInvQ.MulVec(&ptOmegaInv, viewSet.Q)
	var rhs mat.VecDense
	rhs.AddVec(&tsInvPi, &ptOmegaInvQ)

	posterior := mat.NewVecDense(n, nil)
	posterior.MulVec(&aInv, &rhs)

	b.log.Debug().
		Int("views", k).
		Int("assets", n).
		Msg("Blended views into posterior estimate")

	return &equilibrium.Estimate{
		Symbols: prior.Symbols,
		Returns: posterior,
		Cov:     prior.Cov,
	}
}

// denseOf views a symmetric matrix as a Dense for general multiplication.
func denseOf(s *mat.SymDense) *mat.Dense {
	var d mat.Dense
	d.CloneFrom(s)
	return &d
}

// symmetrize converts a numerically near-symmetric Dense into a SymDense by
// averaging mirrored entries.
func symmetrize(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (d.At(i, j)+d.At(j, i))/2.0)
		}
	}
	return out
}
