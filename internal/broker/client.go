// Package broker talks to the order gateway: account funds and basket orders.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/circuit"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

const (
	fundsPath  = "/api/v1/funds"
	basketPath = "/api/v1/basketorder"

	// maxRawResponse bounds the response body kept in the debug block
	maxRawResponse = 10000
)

// Config holds basket defaults and the HTTP timeout
type Config struct {
	Strategy  string
	Exchange  string
	Product   string
	PriceType string
	Timeout   time.Duration
}

// DefaultConfig returns the NFO/NRML/MARKET defaults
func DefaultConfig() Config {
	return Config{
		Strategy:  "optrisk",
		Exchange:  "NFO",
		Product:   "NRML",
		PriceType: "MARKET",
		Timeout:   15 * time.Second,
	}
}

// MetricsRecorder observes gateway calls. status is 0 when no response arrived.
type MetricsRecorder interface {
	RecordGatewayCall(endpoint string, status int, latency time.Duration)
}

// Client calls the gateway REST API
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuit.Breaker
	metrics MetricsRecorder
	log     *logger.Logger
}

// NewClient creates a gateway client. breaker may be nil.
func NewClient(config Config, breaker *circuit.Breaker) *Client {
	def := DefaultConfig()
	config.Strategy = firstNonEmpty(config.Strategy, def.Strategy)
	config.Exchange = firstNonEmpty(config.Exchange, def.Exchange)
	config.Product = firstNonEmpty(config.Product, def.Product)
	config.PriceType = firstNonEmpty(config.PriceType, def.PriceType)
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		breaker: breaker,
		log:     logger.GetLogger("broker.gateway"),
	}
}

// WithMetrics attaches a metrics recorder
func (c *Client) WithMetrics(m MetricsRecorder) *Client {
	c.metrics = m
	return c
}

// BaseURL returns host unchanged (minus a trailing slash) when it already
// carries a scheme, otherwise http://host:port
func BaseURL(host string, port int) string {
	lower := strings.ToLower(host)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// MaskKey hides an API key for logs: abc***yz, fully starred up to 5 characters
func MaskKey(key string) string {
	r := []rune(key)
	if len(r) <= 5 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:3]) + "***" + string(r[len(r)-2:])
}

type fundsPayload struct {
	APIKey string `json:"apikey"`
}

type basketPayload struct {
	APIKey   string                  `json:"apikey"`
	Strategy string                  `json:"strategy"`
	Orders   []models.BasketOrderLeg `json:"orders"`
}

// Funds fetches the account funds summary
func (c *Client) Funds(ctx context.Context, gw models.GatewaySettings) (*models.GatewayResponse, error) {
	if gw.APIKey == "" {
		return nil, errors.InvalidArgument("apiKey required")
	}
	masked := fundsPayload{APIKey: MaskKey(gw.APIKey)}
	return c.call(ctx, "funds", BaseURL(gw.Host, gw.Port)+fundsPath, gw.APIKey, fundsPayload{APIKey: gw.APIKey}, masked)
}

// PlaceBasket submits a basket order. Orders are built from legs when the
// request carries none.
func (c *Client) PlaceBasket(ctx context.Context, gw models.GatewaySettings, req models.BasketRequest) (*models.GatewayResponse, error) {
	if gw.APIKey == "" {
		return nil, errors.InvalidArgument("apiKey required")
	}
	orders := req.Orders
	if len(orders) == 0 && len(req.Legs) > 0 && req.Underlying != "" {
		orders = c.BuildOrders(req)
	}
	if len(orders) == 0 {
		return nil, errors.InvalidArgument("orders or legs required")
	}

	payload := basketPayload{
		APIKey:   gw.APIKey,
		Strategy: firstNonEmpty(req.Strategy, c.config.Strategy),
		Orders:   orders,
	}
	masked := payload
	masked.APIKey = MaskKey(gw.APIKey)

	c.log.Infof("Placing basket of %d orders for strategy %s", len(orders), payload.Strategy)
	resp, err := c.call(ctx, "basketorder", BaseURL(gw.Host, gw.Port)+basketPath, gw.APIKey, payload, masked)
	if resp != nil {
		resp.OrderIDs = CollectOrderIDs(resp.Data)
	}
	return resp, err
}

type exchange struct {
	status int
	header http.Header
	body   []byte
}

// call posts payload and returns the decoded response with a debug block.
// The debug block is also returned alongside transport errors.
func (c *Client) call(ctx context.Context, endpoint, target, key string, payload, masked interface{}) (*models.GatewayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Internal(err, "failed to encode gateway request")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.InvalidArgumentf("invalid gateway address %q", target)
	}

	c.log.Infof("Calling gateway %s at %s with key %s", endpoint, target, MaskKey(key))
	start := time.Now()

	send := func(ctx context.Context) (*exchange, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, errors.InvalidArgument(err.Error())
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Network(err, "gateway request failed")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Network(err, "failed to read gateway response")
		}
		return &exchange{status: resp.StatusCode, header: resp.Header, body: data}, nil
	}

	var ex *exchange
	if c.breaker != nil {
		ex, err = circuit.Do(ctx, c.breaker, send)
	} else {
		ex, err = send(ctx)
	}

	out := &models.GatewayResponse{
		Debug: models.GatewayDebug{
			DurationMs: time.Since(start).Milliseconds(),
			RequestRaw: requestRaw(u, masked),
		},
	}
	if err != nil {
		c.record(endpoint, 0, start)
		c.log.Warnf("Gateway %s call failed: %v", endpoint, err)
		out.Debug.ResponseRaw = "HTTP/1.1 0 Network Error\n\n" + err.Error()
		return out, errors.Wrap(err, "failed to reach gateway "+endpoint)
	}

	c.record(endpoint, ex.status, start)
	out.OK = true
	out.Debug.Status = ex.status
	out.Debug.ResponseRaw = responseRaw(ex)

	var decoded interface{}
	if err := json.Unmarshal(ex.body, &decoded); err == nil {
		out.Data = decoded
	} else {
		out.Data = string(ex.body)
	}
	c.log.Debugf("Gateway %s answered HTTP %d in %dms", endpoint, ex.status, out.Debug.DurationMs)
	return out, nil
}

func (c *Client) record(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordGatewayCall(endpoint, status, time.Since(start))
	}
}

func requestRaw(u *url.URL, masked interface{}) string {
	payload, _ := json.MarshalIndent(masked, "", "  ")
	return strings.Join([]string{
		"POST " + u.RequestURI() + " HTTP/1.1",
		"Host: " + u.Host,
		"Content-Type: application/json",
		"",
		string(payload),
	}, "\n")
}

func responseRaw(ex *exchange) string {
	lines := []string{"HTTP/1.1 " + strconv.Itoa(ex.status)}

	names := make([]string, 0, len(ex.header))
	for name := range ex.header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, strings.ToLower(name)+": "+strings.Join(ex.header[name], ", "))
	}

	body := string(ex.body)
	if len(body) > maxRawResponse {
		body = fmt.Sprintf("%s\n…(%d more bytes)", body[:maxRawResponse], len(body)-maxRawResponse)
	}
	return strings.Join(append(lines, "", body), "\n")
}
