// Package pricing implements the Black-76 option pricing model on forward prices.
//
// Every entry point is a pure function of its inputs. Callers that stress a
// portfolio use TryPrice, which never returns a non-finite value: when the
// closed form breaks down the intrinsic value on the forward is returned and
// the result is flagged as a fallback.
package pricing

import (
	"math"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// volatility*sqrt(T) below this is treated as zero volatility
const minTotalVol = 1e-12

// Input is one Black-76 pricing request
type Input struct {
	Type       models.OptionType
	Forward    float64
	Strike     float64
	Years      float64
	Rate       float64
	Volatility float64
}

// Result is the outcome of TryPrice
type Result struct {
	Value float64
	// Fallback is set when Value is the intrinsic value instead of the model price
	Fallback bool
}

// Pricer prices options; implementations must be safe for concurrent use
type Pricer interface {
	TryPrice(in Input) Result
}

// Black76Pricer is the stateless Pricer backed by Black76
type Black76Pricer struct{}

// TryPrice implements Pricer
func (Black76Pricer) TryPrice(in Input) Result {
	return TryPrice(in)
}

// Black76 returns the discounted Black-76 price. The result may be NaN or
// infinite for degenerate inputs; use TryPrice in risk loops.
func Black76(in Input) float64 {
	t := in.Years
	if !(t >= MinTimeToExpiry) {
		t = MinTimeToExpiry
	}
	df := math.Exp(-in.Rate * t)

	totalVol := in.Volatility * math.Sqrt(t)
	if totalVol <= minTotalVol {
		return df * Intrinsic(in)
	}

	d1, d2 := d1d2(in.Forward, in.Strike, totalVol)

	var price float64
	if in.Type.IsCall() {
		price = df * (in.Forward*NormCDF(d1) - in.Strike*NormCDF(d2))
	} else {
		price = df * (in.Strike*NormCDF(-d2) - in.Forward*NormCDF(-d1))
	}

	// the CDF approximation can leave deep out-of-the-money prices a hair below zero
	if price < 0 {
		return 0
	}
	return price
}

func d1d2(forward, strike, totalVol float64) (float64, float64) {
	d1 := (math.Log(forward/strike) + 0.5*totalVol*totalVol) / totalVol
	return d1, d1 - totalVol
}

// Intrinsic returns the undiscounted intrinsic value on the forward
func Intrinsic(in Input) float64 {
	if in.Type.IsCall() {
		return math.Max(in.Forward-in.Strike, 0)
	}
	return math.Max(in.Strike-in.Forward, 0)
}

// TryPrice prices with Black76 and falls back to the intrinsic value
// whenever the model output is not finite
func TryPrice(in Input) Result {
	price := Black76(in)
	if numeric.IsFinite(price) {
		return Result{Value: price}
	}

	intrinsic := Intrinsic(in)
	if !numeric.IsFinite(intrinsic) {
		intrinsic = 0
	}
	return Result{Value: intrinsic, Fallback: true}
}
