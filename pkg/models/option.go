package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultImpliedVolatility is used for legs whose IV is unknown
const DefaultImpliedVolatility = 0.20

// Action is the side of an option leg
type Action string

const (
	ActionBuy  Action = "B"
	ActionSell Action = "S"
)

// Sign returns +1 for Buy and -1 for Sell
func (a Action) Sign() float64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// Verb returns the gateway spelling, BUY or SELL
func (a Action) Verb() string {
	if a == ActionSell {
		return "SELL"
	}
	return "BUY"
}

// UnmarshalText accepts B, S, BUY and SELL in any case
func (a *Action) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "B", "BUY":
		*a = ActionBuy
	case "S", "SELL":
		*a = ActionSell
	default:
		return fmt.Errorf("unknown action %q", string(text))
	}
	return nil
}

// OptionType is Call (CE) or Put (PE)
type OptionType string

const (
	OptionTypeCall OptionType = "CE"
	OptionTypePut  OptionType = "PE"
)

// IsCall reports whether the option is a call
func (t OptionType) IsCall() bool {
	return t == OptionTypeCall
}

// UnmarshalText accepts CE/PE as well as call/put spellings
func (t *OptionType) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "CE", "C", "CALL":
		*t = OptionTypeCall
	case "PE", "P", "PUT":
		*t = OptionTypePut
	default:
		return fmt.Errorf("unknown option type %q", string(text))
	}
	return nil
}

// OptionLeg is one contract position within a strategy
type OptionLeg struct {
	Action     Action     `json:"action"`
	OptionType OptionType `json:"optionType"`
	Strike     float64    `json:"strike"`
	Lots       int        `json:"lots"`
	// Premium is the entry reference price per unit; nil when unknown
	Premium           *float64  `json:"premium"`
	ImpliedVolatility float64   `json:"impliedVolatility,omitempty"`
	Expiry            time.Time `json:"expiry"`
}

// PremiumOrZero returns the premium, treating unknown as zero
func (l OptionLeg) PremiumOrZero() float64 {
	if l.Premium == nil {
		return 0
	}
	return *l.Premium
}

// Volatility returns the leg IV, or the default when unknown
func (l OptionLeg) Volatility() float64 {
	if l.ImpliedVolatility <= 0 || math.IsNaN(l.ImpliedVolatility) || math.IsInf(l.ImpliedVolatility, 0) {
		return DefaultImpliedVolatility
	}
	return l.ImpliedVolatility
}

// EffectiveLots returns the lot count, reading a missing or non-positive value as one lot
func (l OptionLeg) EffectiveLots() int {
	if l.Lots < 1 {
		return 1
	}
	return l.Lots
}

// Units returns the number of underlying units, lots times lot size
func (l OptionLeg) Units(lotSize int) float64 {
	return float64(l.EffectiveLots()) * float64(lotSize)
}

// Intrinsic returns the expiry value of one unit at spot
func (l OptionLeg) Intrinsic(spot float64) float64 {
	if l.OptionType.IsCall() {
		return math.Max(spot-l.Strike, 0)
	}
	return math.Max(l.Strike-spot, 0)
}

// Float64 returns a pointer to v, handy for optional premiums
func Float64(v float64) *float64 {
	return &v
}

// MarketContext holds pricing inputs shared by every leg of one evaluation
type MarketContext struct {
	Spot         float64 `json:"spot"`
	RiskFreeRate float64 `json:"riskFreeRate"`
	LotSize      int     `json:"lotSize"`
	// AsOf is the valuation instant; the zero value means now
	AsOf time.Time `json:"asOf,omitempty"`
}

// PayoffPoint is the net P&L of a leg set at one spot level
type PayoffPoint struct {
	At     float64 `json:"at"`
	Payoff float64 `json:"payoff"`
}
