package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/options-risk-engine/internal/margin"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/internal/scenario"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

// legsRequest is the body shared by the margin, metrics and builder endpoints.
// Without a spot the current chain of the underlying supplies the spot and
// fills unknown premiums and IVs.
type legsRequest struct {
	Underlying   string             `json:"underlying"`
	Legs         []models.OptionLeg `json:"legs"`
	Spot         float64            `json:"spot"`
	RiskFreeRate *float64           `json:"riskFreeRate"`
	LotSize      int                `json:"lotSize"`
	AsOf         time.Time          `json:"asOf"`
	Grid         *scenario.Grid     `json:"grid"`
	TargetDate   time.Time          `json:"targetDate"`
}

func validateLegs(legs []models.OptionLeg) error {
	for i, leg := range legs {
		if leg.Action == "" || leg.OptionType == "" {
			return errors.InvalidArgumentf("leg %d: action and optionType required", i)
		}
		if leg.Strike <= 0 || math.IsNaN(leg.Strike) || math.IsInf(leg.Strike, 0) {
			return errors.InvalidArgumentf("leg %d: strike must be positive", i)
		}
		if leg.Lots < 0 {
			return errors.InvalidArgumentf("leg %d: lots must not be negative", i)
		}
	}
	return nil
}

// resolve turns a request into legs and a market context
func (h *Handlers) resolve(ctx context.Context, req *legsRequest) ([]models.OptionLeg, models.MarketContext, error) {
	if err := validateLegs(req.Legs); err != nil {
		return nil, models.MarketContext{}, err
	}

	legs := req.Legs
	spot := req.Spot
	if spot <= 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
		if req.Underlying == "" || h.deps.Chain == nil {
			return nil, models.MarketContext{}, errors.InvalidArgument("spot must be positive when no underlying chain is available")
		}
		snap, err := h.deps.Chain.Fetch(ctx, req.Underlying, false)
		if err != nil {
			return nil, models.MarketContext{}, err
		}
		spot = snap.Spot
		legs = snap.Enrich(legs)
	}

	market := models.MarketContext{
		Spot:         spot,
		RiskFreeRate: h.deps.Calculator.RiskFreeRate(),
		LotSize:      req.LotSize,
		AsOf:         req.AsOf,
	}
	if req.RiskFreeRate != nil {
		market.RiskFreeRate = *req.RiskFreeRate
	}
	if market.LotSize <= 0 {
		market.LotSize = h.deps.Calculator.LotSize(req.Underlying)
	}
	if market.AsOf.IsZero() {
		market.AsOf = h.deps.Calculator.Now()
	}
	return legs, market, nil
}

func marginModel(c *gin.Context) (string, error) {
	switch model := c.Query("model"); model {
	case "", margin.ModelScenario, margin.ModelApprox:
		return model, nil
	default:
		return "", errors.InvalidArgumentf("unknown margin model %q", model)
	}
}

// MarginHandler computes the margin requirement of a leg set
func (h *Handlers) MarginHandler(c *gin.Context) {
	model, err := marginModel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req legsRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	legs, market, err := h.resolve(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, h.deps.Calculator.Margin(legs, market, req.Grid, model))
}

// MetricsHandler computes strategy metrics of a leg set
func (h *Handlers) MetricsHandler(c *gin.Context) {
	var req legsRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	legs, market, err := h.resolve(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, h.deps.Calculator.Metrics(legs, market))
}

// BuilderHandler returns payoff curves, metrics and margin for a leg set
func (h *Handlers) BuilderHandler(c *gin.Context) {
	model, err := marginModel(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req legsRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	legs, market, err := h.resolve(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	report := h.deps.Calculator.Evaluate(risk.Request{
		Underlying:  req.Underlying,
		Legs:        legs,
		Market:      market,
		Target:      req.TargetDate,
		Grid:        req.Grid,
		MarginModel: model,
	})
	c.JSON(http.StatusOK, report)
}

// optionRequest prices a single option. Either forward or spot is given,
// and either years or expiry.
type optionRequest struct {
	OptionType    models.OptionType `json:"optionType"`
	Spot          float64           `json:"spot"`
	Forward       float64           `json:"forward"`
	Strike        float64           `json:"strike"`
	Expiry        time.Time         `json:"expiry"`
	Years         float64           `json:"years"`
	Volatility    float64           `json:"volatility"`
	RiskFreeRate  float64           `json:"riskFreeRate"`
	DividendYield float64           `json:"dividendYield"`
	Price         float64           `json:"price"`
	AsOf          time.Time         `json:"asOf"`
}

func (r optionRequest) input(now time.Time) (pricing.Input, error) {
	if r.OptionType == "" {
		return pricing.Input{}, errors.InvalidArgument("optionType must be CE or PE")
	}
	if r.Strike <= 0 {
		return pricing.Input{}, errors.InvalidArgument("strike must be positive")
	}
	if r.Volatility < 0 {
		return pricing.Input{}, errors.InvalidArgument("volatility must not be negative")
	}

	var years float64
	switch {
	case r.Years > 0:
		years = math.Max(r.Years, pricing.MinTimeToExpiry)
	case !r.Expiry.IsZero():
		asOf := r.AsOf
		if asOf.IsZero() {
			asOf = now
		}
		years = pricing.TimeToExpiry(r.Expiry, asOf)
	default:
		return pricing.Input{}, errors.InvalidArgument("expiry or years required")
	}

	forward := r.Forward
	if forward <= 0 {
		if r.Spot <= 0 {
			return pricing.Input{}, errors.InvalidArgument("spot or forward must be positive")
		}
		forward = pricing.Forward(r.Spot, r.RiskFreeRate, r.DividendYield, years)
	}

	return pricing.Input{
		Type:       r.OptionType,
		Forward:    forward,
		Strike:     r.Strike,
		Years:      years,
		Rate:       r.RiskFreeRate,
		Volatility: r.Volatility,
	}, nil
}

func (h *Handlers) optionInput(c *gin.Context) (optionRequest, pricing.Input, bool) {
	var req optionRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return req, pricing.Input{}, false
	}
	in, err := req.input(h.deps.Calculator.Now())
	if err != nil {
		h.fail(c, err)
		return req, pricing.Input{}, false
	}
	return req, in, true
}

// PriceOptionHandler prices one option with Black-76
func (h *Handlers) PriceOptionHandler(c *gin.Context) {
	_, in, ok := h.optionInput(c)
	if !ok {
		return
	}

	res := h.deps.Pricer.TryPrice(in)
	c.JSON(http.StatusOK, gin.H{
		"price":    res.Value,
		"fallback": res.Fallback,
		"forward":  in.Forward,
		"years":    in.Years,
	})
}

// GreeksHandler returns the sensitivities of one option
func (h *Handlers) GreeksHandler(c *gin.Context) {
	_, in, ok := h.optionInput(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"price":  h.deps.Pricer.TryPrice(in).Value,
		"greeks": pricing.Greeks(in),
	})
}

// ImpliedVolHandler solves for the volatility matching a market price
func (h *Handlers) ImpliedVolHandler(c *gin.Context) {
	req, in, ok := h.optionInput(c)
	if !ok {
		return
	}
	if req.Price <= 0 {
		h.fail(c, errors.InvalidArgument("price must be positive"))
		return
	}

	vol, solved := pricing.ImpliedVolatility(in.Type, req.Price, in.Forward, in.Strike, in.Years, in.Rate)
	if !solved {
		h.fail(c, errors.InvalidArgument("price is outside the no-arbitrage bounds"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"impliedVolatility": vol,
		"forward":           in.Forward,
		"years":             in.Years,
	})
}

// ChainHandler returns the option chain of an underlying
func (h *Handlers) ChainHandler(c *gin.Context) {
	bypass := c.Query("nocache") == "1" || c.Query("nocache") == "true"

	snap, err := h.deps.Chain.Fetch(c.Request.Context(), c.Param("underlying"), bypass)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// InvalidateChainHandler drops the cached chain of an underlying
func (h *Handlers) InvalidateChainHandler(c *gin.Context) {
	if err := h.deps.Chain.Invalidate(c.Request.Context(), c.Param("underlying")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PositionRiskHandler evaluates a stored position against the current chain
func (h *Handlers) PositionRiskHandler(c *gin.Context) {
	if h.deps.Chain == nil {
		h.fail(c, errors.Unavailable("option chain provider not configured"))
		return
	}
	ctx := c.Request.Context()

	position, err := h.deps.Store.Position(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	report, err := h.deps.Calculator.EvaluatePosition(ctx, position, h.deps.Chain)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
