package models

import "time"

// Quote is the market data for one option contract
type Quote struct {
	LastPrice         float64 `json:"lastPrice"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	OpenInterest      float64 `json:"openInterest"`
	ChangeInOI        float64 `json:"changeInOpenInterest"`
	Volume            float64 `json:"totalTradedVolume"`
}

// ChainRow holds the call and put quotes for one strike and expiry
type ChainRow struct {
	Strike float64   `json:"strike"`
	Expiry time.Time `json:"expiry"`
	Call   *Quote    `json:"call,omitempty"`
	Put    *Quote    `json:"put,omitempty"`
}

// ChainSnapshot is one option chain fetch for an underlying
type ChainSnapshot struct {
	Underlying string      `json:"underlying"`
	Spot       float64     `json:"spot"`
	Timestamp  time.Time   `json:"timestamp"`
	Expiries   []time.Time `json:"expiries"`
	Rows       []ChainRow  `json:"rows"`
}

// Quote returns the quote for one contract, or nil when the chain lacks it.
// Expiries match by calendar date; a zero expiry matches the nearest one.
func (s *ChainSnapshot) Quote(optionType OptionType, strike float64, expiry time.Time) *Quote {
	if expiry.IsZero() && len(s.Expiries) > 0 {
		expiry = s.Expiries[0]
	}
	for i := range s.Rows {
		row := &s.Rows[i]
		if row.Strike != strike || !sameDay(row.Expiry, expiry) {
			continue
		}
		if optionType.IsCall() {
			return row.Call
		}
		return row.Put
	}
	return nil
}

// Enrich returns a copy of legs with unknown premiums and IVs filled from the chain
func (s *ChainSnapshot) Enrich(legs []OptionLeg) []OptionLeg {
	out := make([]OptionLeg, len(legs))
	copy(out, legs)
	for i := range out {
		q := s.Quote(out[i].OptionType, out[i].Strike, out[i].Expiry)
		if q == nil {
			continue
		}
		if out[i].Premium == nil && q.LastPrice > 0 {
			out[i].Premium = Float64(q.LastPrice)
		}
		if out[i].ImpliedVolatility <= 0 && q.ImpliedVolatility > 0 {
			out[i].ImpliedVolatility = q.ImpliedVolatility
		}
		if out[i].Expiry.IsZero() && len(s.Expiries) > 0 {
			out[i].Expiry = s.Expiries[0]
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
