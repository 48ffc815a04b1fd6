// Package circuit guards calls to flaky upstreams (the exchange option chain and
// the broker gateway) with a closed / open / half-open circuit breaker.
package circuit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // how long the breaker stays open
	MaxRequests int           // trial requests allowed while half-open
	// IsFailure decides which errors count against the upstream. Caller
	// mistakes (bad arguments, cancelled contexts) should not trip it.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxFailures <= 0 {
		c.MaxFailures = def.MaxFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.IsFailure == nil {
		c.IsFailure = UpstreamFailure
	}
	if c.OnStateChange == nil {
		c.OnStateChange = func(string, State, State) {}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// UpstreamFailure counts every error except invalid arguments and
// cancellations by the caller
func UpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.IsType(err, errors.ErrorTypeInvalidArgument)
}

type Breaker struct {
	name        string
	config      Config
	state       State
	failures    int
	requests    int
	openedAt    time.Time
	totalCalls  uint64
	totalFailed uint64
	mutex       sync.Mutex
	log         *logger.Logger
}

func NewBreaker(name string, config Config) *Breaker {
	b := &Breaker{
		name:   name,
		config: config.withDefaults(),
		state:  StateClosed,
		log:    logger.GetLogger(fmt.Sprintf("circuit.%s", name)),
	}
	b.log.Debugf("Circuit breaker '%s' initialized in CLOSED state", name)
	return b
}

// Do runs fn through the breaker. While open it fails fast with an
// Unavailable error without calling fn.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.beforeRequest(); err != nil {
		return zero, err
	}

	failed := true
	defer func() {
		b.afterRequest(failed)
	}()

	result, err := fn(ctx)
	failed = b.config.IsFailure(err)
	return result, err
}

func (b *Breaker) beforeRequest() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if b.config.Now().Sub(b.openedAt) < b.config.Timeout {
			return errors.Unavailable(fmt.Sprintf("%s is unavailable: circuit breaker is open", b.name))
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.requests >= b.config.MaxRequests {
			return errors.ResourceExhausted(fmt.Sprintf("%s is recovering: too many requests", b.name))
		}
		b.requests++
	}
	b.totalCalls++
	return nil
}

func (b *Breaker) afterRequest(failed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !failed {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.totalFailed++
	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// transition must be called with the mutex held
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.requests = 0
	switch to {
	case StateOpen:
		b.openedAt = b.config.Now()
		b.log.Warnf("Circuit breaker '%s' transitioned from %s to OPEN after %d failures", b.name, from, b.failures)
	case StateClosed:
		b.failures = 0
		b.log.Infof("Circuit breaker '%s' transitioned from %s to CLOSED", b.name, from)
	default:
		b.log.Infof("Circuit breaker '%s' transitioned from %s to %s", b.name, from, to)
	}
	b.config.OnStateChange(b.name, from, to)
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failures = 0
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) Stats() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return Stats{
		Name:     b.name,
		State:    b.state.String(),
		Calls:    b.totalCalls,
		Failures: b.totalFailed,
	}
}

type Stats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Calls    uint64 `json:"calls"`
	Failures uint64 `json:"failures"`
}

// Registry hands out named breakers so the health endpoint can report them
type Registry struct {
	breakers map[string]*Breaker
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

func (r *Registry) Get(name string, config Config) *Breaker {
	r.mutex.RLock()
	b, exists := r.breakers[name]
	r.mutex.RUnlock()
	if exists {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if b, exists := r.breakers[name]; exists {
		return b
	}
	b = NewBreaker(name, config)
	r.breakers[name] = b
	return b
}

func (r *Registry) Stats() []Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
