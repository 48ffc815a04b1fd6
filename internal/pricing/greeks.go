package pricing

import (
	"math"

	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// Greeks returns Black-76 sensitivities with respect to the forward.
// Theta is per calendar day, vega per volatility point and rho per 1% rate move.
func Greeks(in Input) models.Greeks {
	t := in.Years
	if !(t >= MinTimeToExpiry) {
		t = MinTimeToExpiry
	}
	df := math.Exp(-in.Rate * t)
	sqrtT := math.Sqrt(t)
	totalVol := in.Volatility * sqrtT

	if totalVol <= minTotalVol || in.Forward <= 0 || in.Strike <= 0 {
		return intrinsicGreeks(in, df)
	}

	d1, d2 := d1d2(in.Forward, in.Strike, totalVol)
	pdf := NormPDF(d1)
	price := Black76(in)

	g := models.Greeks{
		Gamma: df * pdf / (in.Forward * totalVol),
		Vega:  in.Forward * df * pdf * sqrtT / 100,
		Rho:   -t * price / 100,
	}

	decay := -in.Forward * df * pdf * in.Volatility / (2 * sqrtT)
	if in.Type.IsCall() {
		g.Delta = df * NormCDF(d1)
		g.Theta = (decay - in.Rate*in.Strike*df*NormCDF(d2) + in.Rate*in.Forward*df*NormCDF(d1)) / daysPerYear
	} else {
		g.Delta = -df * NormCDF(-d1)
		g.Theta = (decay + in.Rate*in.Strike*df*NormCDF(-d2) - in.Rate*in.Forward*df*NormCDF(-d1)) / daysPerYear
	}
	return g
}

func intrinsicGreeks(in Input, df float64) models.Greeks {
	var g models.Greeks
	switch {
	case in.Type.IsCall() && in.Forward > in.Strike:
		g.Delta = df
	case !in.Type.IsCall() && in.Forward < in.Strike:
		g.Delta = -df
	}
	return g
}
