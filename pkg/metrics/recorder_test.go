package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RecordAPIRequest("POST", "/api/v1/risk/margin", 200, 3*time.Millisecond)
	r.RecordAPIRequest("POST", "/api/v1/risk/margin", 200, 5*time.Millisecond)
	r.RecordMarginCalculation("scenario", 2, time.Millisecond)
	r.RecordChainFetch("NIFTY", "upstream", errors.New("timeout"), time.Second)
	r.RecordGatewayCall("funds", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.apiRequestCounter.WithLabelValues("POST", "/api/v1/risk/margin", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.pricingFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chainFetchCounter.WithLabelValues("NIFTY", "upstream", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gatewayCounter.WithLabelValues("funds", "0")))

	// a second recorder on its own registry does not collide
	assert.NotPanics(t, func() { NewRecorder(prometheus.NewRegistry()) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.SetWebsocketClients(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "optrisk_websocket_clients 3"))
}
