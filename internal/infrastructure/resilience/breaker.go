package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State of a Breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero values get defaults in New.
type Settings struct {
	// MaxRequests is both the number of trial calls let through while half-open
	// and the number of trial successes needed to close again
	MaxRequests uint32
	// Interval clears the counts periodically while closed
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// ReadyToTrip is consulted after every failure while closed
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful classifies a call's error; defaults to err == nil
	IsSuccessful func(err error) bool
	// OnStateChange runs with the breaker's lock held
	OnStateChange func(name string, from State, to State)
	// Now replaces time.Now
	Now func() time.Time
}

// Counts are reset on every state change and every closed Interval
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) record(success bool) {
	if success {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		return
	}
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker is a three-state circuit breaker
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time // end of the closed interval or of the open timeout
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures > 5 }
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool { return err == nil }
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		expiry:   settings.Now().Add(settings.Interval),
	}
}

func (b *Breaker) Name() string { return b.name }

// State reports the state as of now, applying any due transition
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.settings.Now())
	return b.state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs req through the breaker
func (b *Breaker) Execute(req func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, req()
	})
	return err
}

// Call runs fn through b. A rejected call returns ErrCircuitOpen or
// ErrTooManyRequests without running fn. A panic in fn counts as a failure
// and is re-raised.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	generation, err := b.admit()
	if err != nil {
		return zero, err
	}

	defer func() {
		if e := recover(); e != nil {
			b.done(generation, false)
			panic(e)
		}
	}()

	result, err := fn()
	b.done(generation, b.settings.IsSuccessful(err))
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

// done records a result. Results from an earlier generation are ignored.
func (b *Breaker) done(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.advance(now)
	if generation != b.generation || b.state == StateOpen {
		return
	}

	b.counts.record(success)
	switch b.state {
	case StateClosed:
		if !success && b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if !success {
			b.transition(StateOpen, now)
		} else if b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
	}
}

// advance applies time-driven transitions: a new closed interval, or the
// end of the open timeout
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.newGeneration()
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.newGeneration()

	switch to {
	case StateClosed:
		b.expiry = now.Add(b.settings.Interval)
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) newGeneration() {
	b.generation++
	b.counts = Counts{}
}
