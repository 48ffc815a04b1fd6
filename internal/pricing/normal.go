package pricing

import "math"

// Abramowitz & Stegun 7.1.26 coefficients for erf
const (
	asP  = 0.3275911
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
)

// NormCDF is the standard normal cumulative distribution function.
// It uses the A&S 7.1.26 polynomial for erf, absolute error below 1e-7.
func NormCDF(x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	return 0.5 * (1 + erf(x/math.Sqrt2))
}

func erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	t := 1 / (1 + asP*x)
	poly := ((((asA5*t+asA4)*t+asA3)*t+asA2)*t + asA1) * t
	return sign * (1 - poly*math.Exp(-x*x))
}

// NormPDF is the standard normal density
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
