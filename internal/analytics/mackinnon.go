package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// MacKinnon (1994) response-surface coefficients for the ADF τ statistic with
// a constant-only regression and a single series (N = 1).
const (
	tauMaxC  = 2.74
	tauMinC  = -18.83
	tauStarC = -1.61
)

var (
	tauSmallPC = [3]float64{2.1659, 1.4412, 0.038269}
	tauLargePC = [4]float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// MacKinnon (2010) critical-value surfaces, constant-only regression, N = 1:
// crit(n) = b0 + b1/n + b2/n² + b3/n³.
var tauCritC = []struct {
	Level string
	B     [4]float64
}{
	{"1%", [4]float64{-3.43035, -6.5393, -16.786, -79.433}},
	{"5%", [4]float64{-2.86154, -2.8903, -4.234, -40.040}},
	{"10%", [4]float64{-2.56677, -1.5384, -2.809, 0}},
}

// MacKinnonP returns the approximate asymptotic p-value of an ADF statistic
// for a constant-only regression.
func MacKinnonP(tau float64) float64 {
	switch {
	case math.IsNaN(tau):
		return math.NaN()
	case tau > tauMaxC:
		return 1
	case tau < tauMinC:
		return 0
	}
	var z float64
	if tau <= tauStarC {
		z = polyval(tauSmallPC[:], tau)
	} else {
		z = polyval(tauLargePC[:], tau)
	}
	return distuv.UnitNormal.CDF(z)
}

// MacKinnonCrit returns the 1%, 5% and 10% critical values for nobs observations.
func MacKinnonCrit(nobs int) map[string]float64 {
	n := float64(nobs)
	out := make(map[string]float64, len(tauCritC))
	for _, c := range tauCritC {
		out[c.Level] = c.B[0] + c.B[1]/n + c.B[2]/(n*n) + c.B[3]/(n*n*n)
	}
	return out
}

// polyval evaluates c[0] + c[1]·x + c[2]·x² + … by Horner's rule.
func polyval(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}
