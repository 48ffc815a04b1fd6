package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

const niftyChain = `{
  "records": {
    "expiryDates": ["25-Apr-2024", "28-Mar-2024"],
    "timestamp": "20-Mar-2024 15:30:00",
    "underlyingValue": 22000,
    "data": [
      {
        "strikePrice": 22000,
        "expiryDate": "28-Mar-2024",
        "CE": {"lastPrice": 180, "impliedVolatility": 14.5, "openInterest": 1000, "changeinOpenInterest": 50, "totalTradedVolume": 20000, "underlyingValue": 22000},
        "PE": {"lastPrice": 160, "impliedVolatility": 0, "openInterest": 900, "changeinOpenInterest": -20, "totalTradedVolume": 15000, "underlyingValue": 22000}
      },
      {
        "strikePrice": 22100,
        "expiryDate": "28-Mar-2024",
        "CE": {"lastPrice": 130, "impliedVolatility": 14.1, "openInterest": 700, "changeinOpenInterest": 10, "totalTradedVolume": 9000, "underlyingValue": 22000}
      }
    ]
  }
}`

type fakeExchange struct {
	server    *httptest.Server
	apiCalls  atomic.Int32
	failFirst int32
	body      string
	lastPath  string
	mu        sync.Mutex
}

func newFakeExchange(t *testing.T, body string, failFirst int32) *fakeExchange {
	f := &fakeExchange{body: body, failFirst: failFirst}
	mux := http.NewServeMux()
	mux.HandleFunc("/option-chain", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	api := func(w http.ResponseWriter, r *http.Request) {
		n := f.apiCalls.Add(1)
		f.mu.Lock()
		f.lastPath = r.URL.Path + "?" + r.URL.RawQuery
		f.mu.Unlock()
		if _, err := r.Cookie("nsit"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n <= f.failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.body))
	}
	mux.HandleFunc("/api/option-chain-indices", api)
	mux.HandleFunc("/api/option-chain-equities", api)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeExchange) client(retries int) *NSEClient {
	return NewNSEClient(Config{
		BaseURL:      f.server.URL,
		MaxRetries:   retries,
		RateLimit:    1000,
		RateBurst:    10,
		RiskFreeRate: 0.07,
	}, nil)
}

func (f *fakeExchange) path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath
}

func TestNSEClientSnapshot(t *testing.T) {
	f := newFakeExchange(t, niftyChain, 0)
	snap, err := f.client(0).Snapshot(context.Background(), " nifty ")
	require.NoError(t, err)

	assert.Equal(t, "/api/option-chain-indices?symbol=NIFTY", f.path())
	assert.Equal(t, "NIFTY", snap.Underlying)
	assert.Equal(t, 22000.0, snap.Spot)
	require.Len(t, snap.Rows, 2)
	require.Len(t, snap.Expiries, 2)

	// sorted, and expiring at the 15:30 close
	near := snap.Expiries[0]
	assert.Equal(t, time.Date(2024, 3, 28, 10, 0, 0, 0, time.UTC), near.UTC())
	assert.True(t, near.Before(snap.Expiries[1]))

	call := snap.Quote(models.OptionTypeCall, 22000, near)
	require.NotNil(t, call)
	assert.InDelta(t, 0.145, call.ImpliedVolatility, 1e-12)
	assert.Equal(t, 50.0, call.ChangeInOI)

	put := snap.Quote(models.OptionTypePut, 22000, near)
	require.NotNil(t, put)
	assert.Greater(t, put.ImpliedVolatility, 0.05)
	assert.Less(t, put.ImpliedVolatility, 0.5)

	assert.Nil(t, snap.Quote(models.OptionTypePut, 22100, near))
}

func TestNSEClientEquities(t *testing.T) {
	f := newFakeExchange(t, niftyChain, 0)
	_, err := f.client(0).Snapshot(context.Background(), "reliance")
	require.NoError(t, err)
	assert.Equal(t, "/api/option-chain-equities?symbol=RELIANCE", f.path())
}

func TestNSEClientRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		f := newFakeExchange(t, niftyChain, 2)
		snap, err := f.client(3).Snapshot(context.Background(), "NIFTY")
		require.NoError(t, err)
		assert.Len(t, snap.Rows, 2)
		assert.Equal(t, int32(3), f.apiCalls.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		f := newFakeExchange(t, niftyChain, 10)
		_, err := f.client(2).Snapshot(context.Background(), "NIFTY")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
		assert.Equal(t, int32(3), f.apiCalls.Load())
	})

	t.Run("empty chain", func(t *testing.T) {
		f := newFakeExchange(t, `{"records":{"data":[]}}`, 0)
		_, err := f.client(1).Snapshot(context.Background(), "NIFTY")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
	})

	t.Run("blank underlying", func(t *testing.T) {
		f := newFakeExchange(t, niftyChain, 0)
		_, err := f.client(0).Snapshot(context.Background(), "  ")
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
		assert.Equal(t, int32(0), f.apiCalls.Load())
	})
}

func TestParseExpiry(t *testing.T) {
	e, err := ParseExpiry("28-Mar-2024")
	require.NoError(t, err)
	assert.Equal(t, 15, e.Hour())
	assert.Equal(t, 30, e.Minute())

	_, err = ParseExpiry("2024-03-28")
	assert.Error(t, err)
}

type countingProvider struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (p *countingProvider) Snapshot(_ context.Context, underlying string) (*models.ChainSnapshot, error) {
	p.calls.Add(1)
	time.Sleep(p.delay)
	if p.err != nil {
		return nil, p.err
	}
	return &models.ChainSnapshot{Underlying: underlying, Spot: 100}, nil
}

type fetchObservation struct {
	source string
	failed bool
}

type recordingMetrics struct {
	mu   sync.Mutex
	seen []fetchObservation
}

func (m *recordingMetrics) RecordChainFetch(_, source string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, fetchObservation{source: source, failed: err != nil})
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("serves from cache", func(t *testing.T) {
		up := &countingProvider{}
		m := &recordingMetrics{}
		p := NewCachedProvider(up, NewMemoryCache(), time.Minute).WithMetrics(m)

		a, err := p.Snapshot(ctx, "nifty")
		require.NoError(t, err)
		b, err := p.Snapshot(ctx, "NIFTY")
		require.NoError(t, err)

		assert.Same(t, a, b)
		assert.Equal(t, int32(1), up.calls.Load())
		assert.Equal(t, []fetchObservation{{"upstream", false}, {"cache", false}}, m.seen)
	})

	t.Run("bypass and invalidate", func(t *testing.T) {
		up := &countingProvider{}
		p := NewCachedProvider(up, NewMemoryCache(), time.Minute)

		_, err := p.Snapshot(ctx, "NIFTY")
		require.NoError(t, err)
		_, err = p.Fetch(ctx, "NIFTY", true)
		require.NoError(t, err)
		assert.Equal(t, int32(2), up.calls.Load())

		require.NoError(t, p.Invalidate(ctx, "nifty"))
		_, err = p.Snapshot(ctx, "NIFTY")
		require.NoError(t, err)
		assert.Equal(t, int32(3), up.calls.Load())
	})

	t.Run("expiry", func(t *testing.T) {
		up := &countingProvider{}
		cache := NewMemoryCache()
		now := time.Now()
		cache.now = func() time.Time { return now }
		p := NewCachedProvider(up, cache, time.Second)

		_, _ = p.Snapshot(ctx, "NIFTY")
		now = now.Add(2 * time.Second)
		_, _ = p.Snapshot(ctx, "NIFTY")
		assert.Equal(t, int32(2), up.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		up := &countingProvider{err: errors.Unavailable("circuit open")}
		m := &recordingMetrics{}
		p := NewCachedProvider(up, NewMemoryCache(), 0).WithMetrics(m)

		_, err := p.Snapshot(ctx, "NIFTY")
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
		_, err = p.Snapshot(ctx, "NIFTY")
		assert.Error(t, err)
		assert.Equal(t, int32(2), up.calls.Load())
		assert.Equal(t, fetchObservation{"upstream", true}, m.seen[0])
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		up := &countingProvider{delay: 50 * time.Millisecond}
		p := NewCachedProvider(up, NewMemoryCache(), time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := p.Snapshot(ctx, "BANKNIFTY")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), up.calls.Load())
	})
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("OPTRISK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPTRISK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache, err := NewRedisCache(ctx, RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer cache.Close()

	snap := &models.ChainSnapshot{Underlying: "TESTCHAIN", Spot: 101.5}
	require.NoError(t, cache.Set(ctx, "TESTCHAIN", snap, time.Minute))

	got, ok, err := cache.Get(ctx, "TESTCHAIN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101.5, got.Spot)

	require.NoError(t, cache.Delete(ctx, "TESTCHAIN"))
	_, ok, err = cache.Get(ctx, "TESTCHAIN")
	require.NoError(t, err)
	assert.False(t, ok)
}
