package pricing

import (
	"math"
	"time"
)

const (
	daysPerYear = 365.0
	// MinTimeToExpiry is one day expressed in years
	MinTimeToExpiry = 1 / daysPerYear
)

// TimeToExpiry returns the year fraction from now until expiry,
// floored at one day so expiring and expired legs keep some time value
func TimeToExpiry(expiry, now time.Time) float64 {
	years := expiry.Sub(now).Hours() / 24 / daysPerYear
	if math.IsNaN(years) || years < MinTimeToExpiry {
		return MinTimeToExpiry
	}
	return years
}

// Forward returns the forward price of spot carried at rate net of dividend yield
func Forward(spot, rate, dividendYield, years float64) float64 {
	return spot * math.Exp((rate-dividendYield)*years)
}
