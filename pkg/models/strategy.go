package models

import (
	"math"
	"time"
)

// NoteMaxLength caps strategy and position notes, in characters
const NoteMaxLength = 1000

// StrategyType separates user strategies from shipped defaults
type StrategyType string

const (
	StrategyTypeUser    StrategyType = "user"
	StrategyTypeDefault StrategyType = "default"
)

// Strategy is a saved leg template for an underlying
type Strategy struct {
	Underlying string       `json:"underlying"`
	Name       string       `json:"name"`
	Type       StrategyType `json:"type"`
	Creator    string       `json:"creator,omitempty"`
	Legs       []OptionLeg  `json:"legs"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Protected strategies cannot be deleted
func (s *Strategy) Protected() bool {
	return s.Type == StrategyTypeDefault || s.Creator == "admin"
}

// StrategyMeta is the backend-editable part of a strategy
type StrategyMeta struct {
	Type    *StrategyType `json:"type,omitempty"`
	Creator *string       `json:"creator,omitempty"`
}

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusClosed    PositionStatus = "closed"
	PositionStatusScheduled PositionStatus = "scheduled"
)

// Normalize maps unknown statuses to open
func (s PositionStatus) Normalize() PositionStatus {
	switch s {
	case PositionStatusClosed, PositionStatusScheduled:
		return s
	default:
		return PositionStatusOpen
	}
}

// ExitMode selects how a position is meant to be closed
type ExitMode string

const (
	ExitModeOnExpiry    ExitMode = "onExpiry"
	ExitModeStopLossPct ExitMode = "stopLossPct"
	ExitModeStopLossAbs ExitMode = "stopLossAbs"
)

// ExitPlan describes the exit rules attached to a position
type ExitPlan struct {
	Mode            ExitMode `json:"mode"`
	StopLossPct     float64  `json:"stopLossPct"`
	StopLossAbs     float64  `json:"stopLossAbs"`
	ProfitTargetPct float64  `json:"profitTargetPct"`
	TrailingEnabled bool     `json:"trailingEnabled"`
}

// Normalize keeps only the fields that apply to the selected mode
func (e ExitPlan) Normalize() ExitPlan {
	out := ExitPlan{
		Mode:            e.Mode,
		ProfitTargetPct: positiveOrZero(e.ProfitTargetPct),
	}

	switch e.Mode {
	case ExitModeStopLossPct:
		out.StopLossPct = positiveOrZero(e.StopLossPct)
		out.TrailingEnabled = e.TrailingEnabled
	case ExitModeStopLossAbs:
		out.StopLossAbs = positiveOrZero(e.StopLossAbs)
		out.TrailingEnabled = e.TrailingEnabled
	default:
		out.Mode = ExitModeOnExpiry
	}
	return out
}

func positiveOrZero(v float64) float64 {
	if v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return 0
}

// PositionLeg is an option leg plus its fill details
type PositionLeg struct {
	OptionLeg
	TradedPrice    *float64   `json:"tradedPrice"`
	TradedAt       *time.Time `json:"tradedAt"`
	PremiumAtEntry *float64   `json:"premiumAtEntry"`
}

// Position is a traded (or scheduled) strategy instance
type Position struct {
	ID         string         `json:"id"`
	Underlying string         `json:"underlying"`
	Name       string         `json:"name,omitempty"`
	Expiry     time.Time      `json:"expiry"`
	Status     PositionStatus `json:"status"`
	Legs       []PositionLeg  `json:"legs"`
	Exit       ExitPlan       `json:"exit"`
	CreatedAt  time.Time      `json:"createdAt"`
	EntryAt    time.Time      `json:"entryAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	ExitAt     *time.Time     `json:"exitAt,omitempty"`
}

// OptionLegs returns the legs priced at their traded price when one is known
func (p *Position) OptionLegs() []OptionLeg {
	legs := make([]OptionLeg, len(p.Legs))
	for i, leg := range p.Legs {
		legs[i] = leg.OptionLeg
		if leg.TradedPrice != nil {
			legs[i].Premium = Float64(*leg.TradedPrice)
		}
	}
	return legs
}

// PositionPatch carries the fields of a partial position update
type PositionPatch struct {
	Name    *string         `json:"name,omitempty"`
	Expiry  *time.Time      `json:"expiry,omitempty"`
	Status  *PositionStatus `json:"status,omitempty"`
	Legs    []PositionLeg   `json:"legs,omitempty"`
	Exit    *ExitPlan       `json:"exit,omitempty"`
	EntryAt *time.Time      `json:"entryAt,omitempty"`
	ExitAt  *time.Time      `json:"exitAt,omitempty"`
}

// Note is a free-text note attached to a strategy or position
type Note struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Length    int    `json:"length"`
}

// GatewaySettings are the persisted broker gateway credentials
type GatewaySettings struct {
	APIKey string `json:"apiKey"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// GatewayPatch carries a partial update of the gateway settings
type GatewayPatch struct {
	APIKey *string `json:"apiKey,omitempty"`
	Host   *string `json:"host,omitempty"`
	Port   *int    `json:"port,omitempty"`
}
