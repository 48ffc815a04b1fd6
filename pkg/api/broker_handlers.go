package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/options-risk-engine/internal/broker"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// gatewayOverride lets a single call use other credentials than the stored ones
type gatewayOverride struct {
	APIKey string `json:"apiKey,omitempty"`
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
}

type basketOrderRequest struct {
	models.BasketRequest
	gatewayOverride
}

// GetGatewayConfigHandler returns the stored gateway settings with the key masked
func (h *Handlers) GetGatewayConfigHandler(c *gin.Context) {
	settings, err := h.deps.Store.GatewaySettings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apiKey":    broker.MaskKey(settings.APIKey),
		"hasApiKey": settings.APIKey != "",
		"host":      settings.Host,
		"port":      settings.Port,
	})
}

// UpdateGatewayConfigHandler stores new gateway settings
func (h *Handlers) UpdateGatewayConfigHandler(c *gin.Context) {
	var patch models.GatewayPatch
	if err := bind(c, &patch); err != nil {
		h.fail(c, err)
		return
	}

	if _, err := h.deps.Store.UpdateGatewaySettings(c.Request.Context(), patch); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// settings merges per-call overrides into the stored gateway settings
func (h *Handlers) settings(c *gin.Context, override gatewayOverride) (models.GatewaySettings, error) {
	gw, err := h.deps.Store.GatewaySettings(c.Request.Context())
	if err != nil {
		return gw, err
	}
	if override.APIKey != "" {
		gw.APIKey = override.APIKey
	}
	if host := strings.TrimSpace(override.Host); host != "" {
		gw.Host = host
	}
	if override.Port > 0 {
		gw.Port = override.Port
	}
	return gw, nil
}

func (h *Handlers) respondGateway(c *gin.Context, resp *models.GatewayResponse, err error) {
	if err != nil {
		body := gin.H{"ok": false, "error": err.Error()}
		if resp != nil {
			body["debug"] = resp.Debug
		}
		h.log.Warnf("Gateway call from %s failed: %v", c.Request.URL.Path, err)
		c.JSON(StatusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FundsHandler fetches account funds from the gateway
func (h *Handlers) FundsHandler(c *gin.Context) {
	var override gatewayOverride
	if c.Request.ContentLength != 0 {
		if err := bind(c, &override); err != nil {
			h.fail(c, err)
			return
		}
	}
	gw, err := h.settings(c, override)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp, err := h.deps.Gateway.Funds(c.Request.Context(), gw)
	h.respondGateway(c, resp, err)
}

// BasketOrderHandler places a basket order built from orders or legs
func (h *Handlers) BasketOrderHandler(c *gin.Context) {
	var req basketOrderRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := validateLegs(req.Legs); err != nil {
		h.fail(c, err)
		return
	}
	gw, err := h.settings(c, req.gatewayOverride)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.LotSize <= 0 && req.Underlying != "" {
		req.LotSize = h.deps.Calculator.LotSize(req.Underlying)
	}

	resp, err := h.deps.Gateway.PlaceBasket(c.Request.Context(), gw, req.BasketRequest)
	h.respondGateway(c, resp, err)
}
