// Package scenario builds the spot and volatility stress grid used by the margin engine.
package scenario

// Default grid values
var (
	DefaultSpotMoves = []float64{-0.3, -0.2, -0.1, -0.05, 0, 0.05, 0.1, 0.2, 0.3}
	DefaultVolShifts = []float64{-0.2, 0, 0.2}
)

// DefaultExposurePercent is the share of gross short premium charged as exposure margin
const DefaultExposurePercent = 0.03

// Grid is the stress-test parameter space
type Grid struct {
	SpotMoves       []float64 `json:"spotMoves,omitempty" mapstructure:"spot_moves"`
	VolShifts       []float64 `json:"volShifts,omitempty" mapstructure:"vol_shifts"`
	ExposurePercent float64   `json:"exposurePercent,omitempty" mapstructure:"exposure_percent"`
}

// DefaultGrid returns a fresh copy of the default grid
func DefaultGrid() Grid {
	return Grid{
		SpotMoves:       append([]float64(nil), DefaultSpotMoves...),
		VolShifts:       append([]float64(nil), DefaultVolShifts...),
		ExposurePercent: DefaultExposurePercent,
	}
}

// WithDefaults fills empty fields from the default grid
func (g Grid) WithDefaults() Grid {
	if len(g.SpotMoves) == 0 {
		g.SpotMoves = append([]float64(nil), DefaultSpotMoves...)
	}
	if len(g.VolShifts) == 0 {
		g.VolShifts = append([]float64(nil), DefaultVolShifts...)
	}
	if g.ExposurePercent <= 0 {
		g.ExposurePercent = DefaultExposurePercent
	}
	return g
}

// Size is the number of scenarios in the grid
func (g Grid) Size() int {
	return len(g.SpotMoves) * len(g.VolShifts)
}

// Scenario is a single grid point applied to a spot price
type Scenario struct {
	Index    int
	SpotMove float64
	VolShift float64
	Spot     float64
}

// Vol applies the scenario's volatility shift to a leg's base IV
func (s Scenario) Vol(baseIV float64) float64 {
	return baseIV * (1 + s.VolShift)
}

// Each visits the grid in spot-major order until fn returns false
func (g Grid) Each(spot float64, fn func(Scenario) bool) {
	idx := 0
	for _, move := range g.SpotMoves {
		for _, shift := range g.VolShifts {
			s := Scenario{
				Index:    idx,
				SpotMove: move,
				VolShift: shift,
				Spot:     spot * (1 + move),
			}
			if !fn(s) {
				return
			}
			idx++
		}
	}
}

// Scenarios materializes the grid for spot
func (g Grid) Scenarios(spot float64) []Scenario {
	out := make([]Scenario, 0, g.Size())
	g.Each(spot, func(s Scenario) bool {
		out = append(out, s)
		return true
	})
	return out
}
