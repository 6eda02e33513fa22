package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(cb *CircuitBreaker, fn func() error) error {
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func succeed() error { return nil }

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = execute(cb, func() error { return errors.New("fail") })
	}
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := execute(cb, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 3)
	assert.Equal(t, CircuitOpen, cb.State())

	err := execute(cb, func() error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2)
	assert.Equal(t, 2, cb.failures)
	assert.Equal(t, CircuitClosed, cb.State())

	require.NoError(t, execute(cb, succeed))
	assert.Equal(t, 0, cb.failures)

	// Two more failures stay under the threshold again.
	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrialCloses(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 2)
	require.Equal(t, CircuitOpen, cb.State())

	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, execute(cb, succeed))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrialCall(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }
	failN(cb, 1)
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- execute(cb, func() error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial

	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := execute(cb, func() error {
				mu.Lock()
				admitted++
				mu.Unlock()
				return nil
			})
			assert.True(t, errors.Is(err, ErrCircuitOpen))
		}()
	}
	wg.Wait()
	assert.Zero(t, admitted)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, execute(cb, succeed))
}

func TestCircuitBreaker_HalfOpenSlotLimit(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxProbes: 2})
	cb.nowFunc = func() time.Time { return now }
	failN(cb, 1)
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Second) }

	p1, err := cb.allow()
	require.NoError(t, err)
	p2, err := cb.allow()
	require.NoError(t, err)
	assert.True(t, p1 && p2)

	_, err = cb.allow()
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	cb.record(nil, true)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.record(nil, true)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_StaleCallDoesNotDecideTrial(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	stale, err := cb.allow()
	require.NoError(t, err)
	assert.False(t, stale)

	failN(cb, 1)
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Second) }
	trial, err := cb.allow()
	require.NoError(t, err)
	require.True(t, trial)

	// The call admitted while closed finishes during the trial call.
	cb.record(nil, stale)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.record(nil, trial)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 2)
	cb.nowFunc = func() time.Time { return now.Add(200 * time.Millisecond) }
	failN(cb, 1)

	// Reopened at +200ms, so it stays open until another reset timeout passes.
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	schemaErr := errors.New("schema mismatch")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return IsTransient(err) },
	})

	_ = execute(cb, func() error { return schemaErr })
	assert.Equal(t, CircuitClosed, cb.State())

	_ = execute(cb, func() error {
		return NewTransientError(errors.New("overloaded"), 529)
	})
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 1)
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Hour) }
	require.NoError(t, execute(cb, succeed))
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = execute(cb, func() error {
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	failN(cb, 1)
	v, err = ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "never", nil })
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Empty(t, v)
}

func TestServiceBreakers(t *testing.T) {
	var changed []string
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour},
		func(service string, _, to CircuitState) { changed = append(changed, service+":"+to.String()) })

	assert.Same(t, sb.Get("openai"), sb.Get("openai"))
	assert.NotSame(t, sb.Get("openai"), sb.Get("anthropic"))

	failN(sb.Get("anthropic"), 1)

	assert.Equal(t, CircuitOpen, sb.Get("anthropic").State())
	assert.Equal(t, CircuitClosed, sb.Get("openai").State())
	assert.Equal(t, []string{"anthropic:open"}, changed)
	assert.Equal(t, []string{"anthropic", "openai"}, sb.Names())
}

func TestCall_RetriesInsideBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 10})
	retry := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	var calls int
	v, err := Call(context.Background(), cb, retry, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransientError(errors.New("busy"), 503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestCall_OpenCircuitStopsRetries(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	retry := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	var calls int
	_, err := Call(context.Background(), cb, retry, func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, 1, calls)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
