package analytics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrRankDeficient is returned by FitOLS when the design matrix does not have
// full column rank (e.g. a constant regressor next to an intercept).
var ErrRankDeficient = errors.New("design matrix is rank deficient")

// rankTol is the relative threshold on |R_jj| / ||X_j|| below which column j
// is treated as linearly dependent on the preceding columns.
const rankTol = 1e-9

// OLSFit is an ordinary-least-squares fit y = X·β + ε.
type OLSFit struct {
	Params  []float64 // β, one per column of X
	StdErr  []float64 // NaN when there are no residual degrees of freedom
	SSR     float64   // sum of squared residuals
	NObs    int
	DFResid int
}

// TValue returns β_i / se(β_i).
func (f *OLSFit) TValue(i int) float64 {
	return f.Params[i] / f.StdErr[i]
}

// LogLikelihood is the Gaussian log-likelihood at the fitted parameters.
func (f *OLSFit) LogLikelihood() float64 {
	n := float64(f.NObs)
	return -n / 2 * (math.Log(2*math.Pi) + math.Log(f.SSR/n) + 1)
}

// AIC is -2·llf + 2·k with k the number of parameters.
func (f *OLSFit) AIC() float64 {
	return -2*f.LogLikelihood() + 2*float64(len(f.Params))
}

// FitOLS solves min ||y − Xβ||² through a QR decomposition of X.
// Rank deficiency is detected from the diagonal of R and reported as
// ErrRankDeficient instead of producing NaN coefficients.
func FitOLS(y []float64, x *mat.Dense) (*OLSFit, error) {
	n, k := x.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("ols: %d observations for %d design rows", len(y), n)
	}
	if n < k || k == 0 {
		return nil, fmt.Errorf("ols: %d observations, %d regressors: %w", n, k, ErrRankDeficient)
	}

	var qr mat.QR
	qr.Factorize(x)

	var r mat.Dense
	qr.RTo(&r)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, x)
		norm := floats.Norm(col, 2)
		if norm == 0 || math.Abs(r.At(j, j)) <= rankTol*norm {
			return nil, fmt.Errorf("ols: column %d: %w", j, ErrRankDeficient)
		}
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		return nil, fmt.Errorf("ols: solve: %w", ErrRankDeficient)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	ssr := 0.0
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		ssr += e * e
	}

	fit := &OLSFit{
		Params:  make([]float64, k),
		StdErr:  make([]float64, k),
		SSR:     ssr,
		NObs:    n,
		DFResid: n - k,
	}
	for j := 0; j < k; j++ {
		fit.Params[j] = beta.AtVec(j)
	}

	if fit.DFResid == 0 {
		for j := range fit.StdErr {
			fit.StdErr[j] = math.NaN()
		}
		return fit, nil
	}

	// (XᵀX)⁻¹ = R⁻¹R⁻ᵀ, so var(β_j) = σ²·Σ_l (R⁻¹)_jl².
	var rinv mat.Dense
	if err := rinv.Inverse(r.Slice(0, k, 0, k)); err != nil {
		return nil, fmt.Errorf("ols: invert R: %w", ErrRankDeficient)
	}
	sigma2 := ssr / float64(fit.DFResid)
	for j := 0; j < k; j++ {
		v := 0.0
		for l := 0; l < k; l++ {
			e := rinv.At(j, l)
			v += e * e
		}
		fit.StdErr[j] = math.Sqrt(sigma2 * v)
	}
	return fit, nil
}
