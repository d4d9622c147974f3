package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWrite = errors.New("write failed")

func failing() error { return errWrite }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after 3 failures
	cb := NewCircuitBreaker("index", WithMaxFailures(3), WithResetTimeout(time.Second))

	// When: three calls fail
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errWrite)
	}

	// Then: the circuit is open and calls are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("index", WithMaxFailures(3))

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	require.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	// Given: an open breaker on a fake clock
	clk := clockwork.NewFakeClock()
	cb := NewCircuitBreaker("index",
		WithMaxFailures(2),
		WithResetTimeout(time.Minute),
		WithBreakerClock(clk),
	)
	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout passes
	clk.Advance(time.Minute + time.Second)

	// Then: one probe is allowed; success closes the circuit
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cb := NewCircuitBreaker("index",
		WithMaxFailures(5),
		WithResetTimeout(time.Minute),
		WithBreakerClock(clk),
	)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(failing)
	}
	clk.Advance(2 * time.Minute)
	require.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(failing), errWrite)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "index", NewCircuitBreaker("index").Name())
}
