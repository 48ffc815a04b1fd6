// Package chain fetches option chain snapshots from the exchange and caches
// them for a short TTL.
package chain

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// DefaultTTL is how long a snapshot is served from cache
const DefaultTTL = 60 * time.Second

// Provider returns the current option chain of an underlying
type Provider interface {
	Snapshot(ctx context.Context, underlying string) (*models.ChainSnapshot, error)
}

// Cache stores snapshots by underlying. Get reports a miss with ok false.
type Cache interface {
	Get(ctx context.Context, underlying string) (snapshot *models.ChainSnapshot, ok bool, err error)
	Set(ctx context.Context, underlying string, snapshot *models.ChainSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, underlying string) error
}

// MetricsRecorder receives one observation per lookup
type MetricsRecorder interface {
	RecordChainFetch(underlying, source string, err error, latency time.Duration)
}

// CachedProvider serves snapshots from a Cache and falls through to the
// upstream provider on a miss. Concurrent misses for one underlying share a
// single upstream fetch.
type CachedProvider struct {
	next    Provider
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	metrics MetricsRecorder
	log     *logger.Logger
}

// NewCachedProvider wraps next. A non-positive ttl selects DefaultTTL.
func NewCachedProvider(next Provider, cache Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedProvider{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logger.GetLogger("chain.cache"),
	}
}

// WithMetrics attaches a metrics recorder
func (p *CachedProvider) WithMetrics(m MetricsRecorder) *CachedProvider {
	p.metrics = m
	return p
}

func normalize(underlying string) (string, error) {
	u := strings.ToUpper(strings.TrimSpace(underlying))
	if u == "" {
		return "", errors.InvalidArgument("Invalid request. No identifier was given.")
	}
	return u, nil
}

// Snapshot returns a cached snapshot when fresh
func (p *CachedProvider) Snapshot(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	return p.Fetch(ctx, underlying, false)
}

// Fetch returns a snapshot, skipping the cache read when bypass is set. The
// fetched snapshot is cached either way.
func (p *CachedProvider) Fetch(ctx context.Context, underlying string, bypass bool) (*models.ChainSnapshot, error) {
	u, err := normalize(underlying)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	if !bypass {
		snap, ok, err := p.cache.Get(ctx, u)
		if err != nil {
			p.log.Warnf("Chain cache read failed for %s: %v", u, err)
		} else if ok {
			p.record(u, "cache", nil, start)
			return snap, nil
		}
	}

	v, err, _ := p.group.Do(u, func() (interface{}, error) {
		snap, err := p.next.Snapshot(ctx, u)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Set(ctx, u, snap, p.ttl); err != nil {
			p.log.Warnf("Chain cache write failed for %s: %v", u, err)
		}
		return snap, nil
	})
	p.record(u, "upstream", err, start)
	if err != nil {
		return nil, err
	}
	return v.(*models.ChainSnapshot), nil
}

// Invalidate drops the cached snapshot of an underlying
func (p *CachedProvider) Invalidate(ctx context.Context, underlying string) error {
	u, err := normalize(underlying)
	if err != nil {
		return err
	}
	return p.cache.Delete(ctx, u)
}

func (p *CachedProvider) record(underlying, source string, err error, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordChainFetch(underlying, source, err, time.Since(start))
	}
}
