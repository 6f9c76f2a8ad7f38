package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFailed   = errors.New("failed")
	errNotFound = errors.New("not found")
)

func fail() error    { return errFailed }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "a success resets the failure streak",
			settings: Settings{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     time.Minute,
				ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
			},
			requests:      []bool{false, true, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)
			for _, success := range tt.requests {
				if success {
					_ = breaker.Execute(succeed)
				} else {
					_ = breaker.Execute(fail)
				}
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute})

	require.NoError(t, breaker.Execute(succeed))
	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	assert.ErrorIs(t, breaker.Execute(fail), errFailed)
	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestOpenBreakerRejectsWithoutCalling(t *testing.T) {
	breaker := New("test", Settings{
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})
	_ = breaker.Execute(fail)
	_ = breaker.Execute(fail)
	require.Equal(t, StateOpen, breaker.State())

	called := false
	out, err := Call(breaker, func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, out)
	assert.False(t, called)
}

func TestBreakerHalfOpenState(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})
	_ = breaker.Execute(fail)
	_ = breaker.Execute(fail)
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.Execute(succeed))
	}
	assert.Equal(t, StateClosed, breaker.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		MaxRequests: 1,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	_ = breaker.Execute(fail)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = breaker.Execute(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestIsSuccessfulExcludesClientErrors(t *testing.T) {
	breaker := New("assets", Settings{
		ReadyToTrip:  func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errNotFound) },
	})

	for i := 0; i < 5; i++ {
		_, err := Call(breaker, func() ([]byte, error) { return nil, errNotFound })
		assert.ErrorIs(t, err, errNotFound)
	}
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(5), breaker.Counts().TotalSuccesses)
}

func TestPanicCountsAsFailure(t *testing.T) {
	breaker := New("test", Settings{})
	assert.Panics(t, func() {
		_ = breaker.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), breaker.Counts().TotalFailures)
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker := New("test", Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = breaker.Execute(fail)
	_ = breaker.Execute(fail)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Execute(succeed))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestIntervalClearsCountsWhileClosed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	breaker := New("test", Settings{
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
		Now:         func() time.Time { return now },
	})

	_ = breaker.Execute(fail)
	_ = breaker.Execute(fail)
	now = now.Add(2 * time.Minute)
	_ = breaker.Execute(fail)

	assert.Equal(t, StateClosed, breaker.State(), "failures from an earlier interval do not count")
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}

func TestStaleResultsAreIgnored(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	breaker := New("test", Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Now:         func() time.Time { return now },
	})

	_, err := Call(breaker, func() (int, error) {
		// the breaker trips and recovers while this call is in flight
		_ = breaker.Execute(fail)
		now = now.Add(2 * time.Second)
		require.Equal(t, StateHalfOpen, breaker.State())
		return 0, errFailed
	})
	assert.ErrorIs(t, err, errFailed)
	assert.Equal(t, StateHalfOpen, breaker.State())
	assert.Zero(t, breaker.Counts().TotalFailures)
}
