package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/circuit"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

var march28 = time.Date(2024, 3, 28, 15, 30, 0, 0, time.FixedZone("IST", 19800))

func TestFormatOptionSymbol(t *testing.T) {
	assert.Equal(t, "NIFTY28MAR2417500CE", FormatOptionSymbol("nifty", march28, 17500, models.OptionTypeCall))
	assert.Equal(t, "BANKNIFTY28MAR2446001PE", FormatOptionSymbol("BANKNIFTY", march28, 46000.5, models.OptionTypePut))
	assert.Equal(t, "05JAN25", FormatExpiryCode(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)))
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcde", "*****"},
		{"abcdef", "abc***ef"},
		{"abcdefghijklmnop", "abc***op"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskKey(tt.key), tt.key)
	}
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:5000", BaseURL("127.0.0.1", 5000))
	assert.Equal(t, "https://gw.example.com", BaseURL("https://gw.example.com/", 5000))
	assert.Equal(t, "HTTP://gw:1", BaseURL("HTTP://gw:1", 5000))
}

func TestCollectOrderIDs(t *testing.T) {
	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"status": "success",
		"results": [
			{"symbol": "NIFTY28MAR2417500CE", "orderid": "240328000001"},
			{"symbol": "NIFTY28MAR2417000PE", "data": {"nOrdNo": 240328000002}},
			{"orderid": "240328000001"}
		]
	}`), &payload))

	assert.Equal(t, []string{"240328000001", "240328000002"}, CollectOrderIDs(payload))
	assert.Empty(t, CollectOrderIDs("plain text"))
}

func TestBuildOrders(t *testing.T) {
	c := NewClient(Config{}, nil)
	orders := c.BuildOrders(models.BasketRequest{
		Underlying: "NIFTY",
		LotSize:    75,
		Product:    "MIS",
		Legs: []models.OptionLeg{
			{Action: models.ActionSell, OptionType: models.OptionTypeCall, Strike: 17500, Lots: 2, Expiry: march28},
			{Action: models.ActionBuy, OptionType: models.OptionTypePut, Strike: 17000, Lots: 0, Expiry: march28},
		},
	})

	require.Len(t, orders, 2)
	assert.Equal(t, models.BasketOrderLeg{
		Symbol:    "NIFTY28MAR2417500CE",
		Exchange:  "NFO",
		Action:    "SELL",
		Expiry:    "28MAR24",
		Quantity:  150,
		PriceType: "MARKET",
		Product:   "MIS",
	}, orders[0])
	assert.Equal(t, "BUY", orders[1].Action)
	assert.Equal(t, 75, orders[1].Quantity)
}

type gatewayCall struct {
	path string
	body map[string]interface{}
}

func newGateway(t *testing.T, status int, reply string) (*httptest.Server, chan gatewayCall) {
	calls := make(chan gatewayCall, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls <- gatewayCall{path: r.URL.Path, body: body}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

type gatewayMetrics struct {
	endpoint string
	status   int
}

func (m *gatewayMetrics) RecordGatewayCall(endpoint string, status int, _ time.Duration) {
	m.endpoint, m.status = endpoint, status
}

func TestFunds(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK, `{"status":"success","data":{"availablecash":"100000.00"}}`)
	m := &gatewayMetrics{}
	c := NewClient(Config{}, nil).WithMetrics(m)

	resp, err := c.Funds(context.Background(), models.GatewaySettings{APIKey: "secretkey123", Host: srv.URL})
	require.NoError(t, err)

	call := <-calls
	assert.Equal(t, "/api/v1/funds", call.path)
	assert.Equal(t, "secretkey123", call.body["apikey"])

	assert.True(t, resp.OK)
	assert.Equal(t, 200, resp.Debug.Status)
	assert.Contains(t, resp.Debug.RequestRaw, "POST /api/v1/funds HTTP/1.1")
	assert.Contains(t, resp.Debug.RequestRaw, `"apikey": "sec***23"`)
	assert.NotContains(t, resp.Debug.RequestRaw, "secretkey123")
	assert.True(t, strings.HasPrefix(resp.Debug.ResponseRaw, "HTTP/1.1 200\n"))
	assert.Equal(t, "success", resp.Data.(map[string]interface{})["status"])
	assert.Equal(t, gatewayMetrics{"funds", 200}, *m)

	_, err = c.Funds(context.Background(), models.GatewaySettings{Host: srv.URL})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestPlaceBasket(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK, `{"status":"success","results":[{"orderid":"A1"},{"orderid":"A2"}]}`)
	c := NewClient(Config{Strategy: "desk"}, nil)

	resp, err := c.PlaceBasket(context.Background(), models.GatewaySettings{APIKey: "secretkey123", Host: srv.URL}, models.BasketRequest{
		Underlying: "NIFTY",
		LotSize:    75,
		Legs: []models.OptionLeg{
			{Action: models.ActionSell, OptionType: models.OptionTypeCall, Strike: 17500, Lots: 1, Expiry: march28},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, resp.OrderIDs)

	call := <-calls
	assert.Equal(t, "/api/v1/basketorder", call.path)
	assert.Equal(t, "desk", call.body["strategy"])
	orders := call.body["orders"].([]interface{})
	require.Len(t, orders, 1)
	assert.Equal(t, "NIFTY28MAR2417500CE", orders[0].(map[string]interface{})["symbol"])
	assert.Equal(t, 75.0, orders[0].(map[string]interface{})["quantity"])

	_, err = c.PlaceBasket(context.Background(), models.GatewaySettings{APIKey: "k", Host: srv.URL}, models.BasketRequest{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	breaker := circuit.NewBreaker("gateway", circuit.Config{MaxFailures: 2, Timeout: time.Minute})
	c := NewClient(Config{Timeout: time.Second}, breaker)
	gw := models.GatewaySettings{APIKey: "secretkey123", Host: addr}

	for i := 0; i < 2; i++ {
		resp, err := c.Funds(context.Background(), gw)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
		require.NotNil(t, resp)
		assert.False(t, resp.OK)
		assert.Contains(t, resp.Debug.ResponseRaw, "Network Error")
	}

	_, err := c.Funds(context.Background(), gw)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
	assert.Equal(t, circuit.StateOpen, breaker.State())
}

func TestResponseClipped(t *testing.T) {
	raw := responseRaw(&exchange{status: 200, header: http.Header{}, body: []byte(strings.Repeat("x", maxRawResponse+5))})
	assert.True(t, strings.HasSuffix(raw, "…(5 more bytes)"))
}
