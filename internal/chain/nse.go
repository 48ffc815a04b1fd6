package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/circuit"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

const (
	DefaultBaseURL = "https://www.nseindia.com/"

	expiryLayout    = "02-Jan-2006"
	timestampLayout = "02-Jan-2006 15:04:05"
	browserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Contracts expire at the 15:30 close, exchange time
var exchangeZone = time.FixedZone("IST", 5*3600+1800)

var indices = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
}

// Config configures an NSEClient
type Config struct {
	BaseURL        string
	MaxRetries     int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	// RateLimit is the sustained upstream request rate per second
	RateLimit    float64
	RateBurst    int
	RiskFreeRate float64
	UserAgent    string
}

// NSEClient fetches option chains from the NSE website API
type NSEClient struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	log     *logger.Logger
}

// NewNSEClient creates a client. breaker may be nil.
func NewNSEClient(config Config, breaker *circuit.Breaker) *NSEClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	if config.RateBurst <= 0 {
		config.RateBurst = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = browserAgent
	}

	jar, _ := cookiejar.New(nil)
	return &NSEClient{
		config:  config,
		http:    &http.Client{Jar: jar, Timeout: config.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		breaker: breaker,
		log:     logger.GetLogger("chain.nse"),
	}
}

// Snapshot primes session cookies and fetches the chain, retrying up to MaxRetries times
func (c *NSEClient) Snapshot(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	u, err := normalize(underlying)
	if err != nil {
		return nil, err
	}
	if c.breaker == nil {
		return c.fetch(ctx, u)
	}
	return circuit.Do(ctx, c.breaker, func(ctx context.Context) (*models.ChainSnapshot, error) {
		return c.fetch(ctx, u)
	})
}

func (c *NSEClient) fetch(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	if _, err := c.get(ctx, c.config.BaseURL+"option-chain"); err != nil {
		return nil, errors.Wrap(err, "Failed to fetch cookies")
	}

	endpoint := "api/option-chain-equities"
	if indices[underlying] {
		endpoint = "api/option-chain-indices"
	}
	target := c.config.BaseURL + endpoint + "?symbol=" + url.QueryEscape(underlying)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("Error fetching option chain for %s. Retry count: %d: %v", underlying, attempt, lastErr)
			if err := sleep(ctx, c.config.RetryBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}

		body, err := c.get(ctx, target)
		if err != nil {
			lastErr = err
			continue
		}
		snap, err := parseSnapshot(underlying, body, c.config.RiskFreeRate)
		if err != nil {
			lastErr = err
			continue
		}
		c.log.Debugf("Fetched %s chain: %d rows, spot %.2f", underlying, len(snap.Rows), snap.Spot)
		return snap, nil
	}
	return nil, errors.Wrap(lastErr, "Failed to fetch option chain after multiple retries")
}

func (c *NSEClient) get(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter nse")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Internal(err, "failed to build request")
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Referer", c.config.BaseURL+"option-chain")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Network(err, "request to "+req.URL.Host+" failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Network(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Network(nil, fmt.Sprintf("%s returned HTTP %d", req.URL.Path, resp.StatusCode))
	}
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nseResponse struct {
	Records struct {
		ExpiryDates     []string `json:"expiryDates"`
		Data            []nseRow `json:"data"`
		Timestamp       string   `json:"timestamp"`
		UnderlyingValue float64  `json:"underlyingValue"`
	} `json:"records"`
}

type nseRow struct {
	StrikePrice float64   `json:"strikePrice"`
	ExpiryDate  string    `json:"expiryDate"`
	CE          *nseQuote `json:"CE"`
	PE          *nseQuote `json:"PE"`
}

type nseQuote struct {
	LastPrice            float64 `json:"lastPrice"`
	ImpliedVolatility    float64 `json:"impliedVolatility"`
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeinOpenInterest"`
	TotalTradedVolume    float64 `json:"totalTradedVolume"`
	UnderlyingValue      float64 `json:"underlyingValue"`
}

// ParseExpiry reads an exchange expiry date as the 15:30 close in exchange time
func ParseExpiry(s string) (time.Time, error) {
	d, err := time.ParseInLocation(expiryLayout, strings.TrimSpace(s), exchangeZone)
	if err != nil {
		return time.Time{}, errors.InvalidArgumentf("invalid expiry %q", s)
	}
	return d.Add(15*time.Hour + 30*time.Minute), nil
}

// parseSnapshot normalizes an exchange response: IV from percent to a
// fraction, and IV implied from the last price where the exchange reports 0
func parseSnapshot(underlying string, body []byte, riskFreeRate float64) (*models.ChainSnapshot, error) {
	var raw nseResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Network(err, "malformed option chain response")
	}
	if len(raw.Records.Data) == 0 {
		return nil, errors.Unavailable("empty option chain for " + underlying)
	}

	snap := &models.ChainSnapshot{
		Underlying: underlying,
		Spot:       raw.Records.UnderlyingValue,
		Timestamp:  time.Now(),
	}
	if ts, err := time.ParseInLocation(timestampLayout, raw.Records.Timestamp, exchangeZone); err == nil {
		snap.Timestamp = ts
	}
	for _, s := range raw.Records.ExpiryDates {
		if e, err := ParseExpiry(s); err == nil {
			snap.Expiries = append(snap.Expiries, e)
		}
	}

	for _, r := range raw.Records.Data {
		expiry, err := ParseExpiry(r.ExpiryDate)
		if err != nil {
			continue
		}
		if snap.Spot == 0 {
			for _, q := range []*nseQuote{r.CE, r.PE} {
				if q != nil && q.UnderlyingValue > 0 {
					snap.Spot = q.UnderlyingValue
				}
			}
		}
		snap.Rows = append(snap.Rows, models.ChainRow{Strike: r.StrikePrice, Expiry: expiry})
		row := &snap.Rows[len(snap.Rows)-1]
		row.Call = toQuote(r.CE)
		row.Put = toQuote(r.PE)
	}

	for i := range snap.Rows {
		row := &snap.Rows[i]
		fillImplied(row.Call, models.OptionTypeCall, row, snap, riskFreeRate)
		fillImplied(row.Put, models.OptionTypePut, row, snap, riskFreeRate)
	}

	if len(snap.Expiries) == 0 {
		seen := make(map[time.Time]bool)
		for _, row := range snap.Rows {
			if !seen[row.Expiry] {
				seen[row.Expiry] = true
				snap.Expiries = append(snap.Expiries, row.Expiry)
			}
		}
	}
	sort.Slice(snap.Expiries, func(i, j int) bool { return snap.Expiries[i].Before(snap.Expiries[j]) })
	return snap, nil
}

func toQuote(q *nseQuote) *models.Quote {
	if q == nil {
		return nil
	}
	return &models.Quote{
		LastPrice:         q.LastPrice,
		ImpliedVolatility: q.ImpliedVolatility / 100,
		OpenInterest:      q.OpenInterest,
		ChangeInOI:        q.ChangeInOpenInterest,
		Volume:            q.TotalTradedVolume,
	}
}

func fillImplied(q *models.Quote, optionType models.OptionType, row *models.ChainRow, snap *models.ChainSnapshot, r float64) {
	if q == nil || q.ImpliedVolatility > 0 || q.LastPrice <= 0 || snap.Spot <= 0 {
		return
	}
	years := pricing.TimeToExpiry(row.Expiry, snap.Timestamp)
	forward := pricing.Forward(snap.Spot, r, 0, years)
	if vol, ok := pricing.ImpliedVolatility(optionType, q.LastPrice, forward, row.Strike, years, r); ok {
		q.ImpliedVolatility = vol
	}
}
