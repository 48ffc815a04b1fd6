package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 3, 21, 9, 15, 0, 0, time.UTC)
	var transitions []State
	b := NewBreaker("gateway", Config{
		MaxFailures:   2,
		Timeout:       time.Minute,
		Now:           func() time.Time { return now },
		OnStateChange: func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	calls := 0
	fail := func(context.Context) (int, error) {
		calls++
		return 0, errors.Network(nil, "connection refused")
	}
	succeed := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	ctx := context.Background()
	_, err := Do(ctx, b, fail)
	require.Error(t, err)
	_, err = Do(ctx, b, fail)
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())

	_, err = Do(ctx, b, succeed)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
	assert.Equal(t, 2, calls)

	now = now.Add(time.Minute)
	v, err := Do(ctx, b, succeed)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)

	stats := b.Stats()
	assert.Equal(t, uint64(3), stats.Calls)
	assert.Equal(t, uint64(2), stats.Failures)
}

func TestInvalidArgumentsDoNotTrip(t *testing.T) {
	b := NewBreaker("chain", Config{MaxFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), b, func(context.Context) (struct{}, error) {
			return struct{}{}, errors.InvalidArgument("unknown symbol")
		})
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Get("chain", DefaultConfig())
	assert.Same(t, a, r.Get("chain", DefaultConfig()))
	r.Get("broker", DefaultConfig())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "broker", stats[0].Name)
	assert.Equal(t, "CLOSED", stats[1].State)
}
