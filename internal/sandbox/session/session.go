// Package session tracks the execution session of one preview: which mode
// it runs, how many times it was run, and the cosmetic running flag.
//
// A session ID is process-wide and strictly increasing. Switching mode or
// resetting starts a new session, which is the signal to remount the
// isolated context.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

// DefaultFlashDuration is how long the running flag stays set after a run
const DefaultFlashDuration = 600 * time.Millisecond

var lastID atomic.Uint64

func nextID() uint64 { return lastID.Add(1) }

// State is derived from a session's counters
type State int

const (
	Idle State = iota
	Armed
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Settled:
		return "settled"
	}
	return "unknown"
}

// Session is an immutable view of the current session
type Session struct {
	ID        uint64    `json:"id"`
	Mode      mode.Mode `json:"mode"`
	RunCount  int       `json:"run_count"`
	IsRunning bool      `json:"is_running"`
}

// State derives Idle, Armed or Settled
func (s Session) State() State {
	switch {
	case s.RunCount == 0:
		return Idle
	case s.IsRunning:
		return Armed
	default:
		return Settled
	}
}

// Observer is notified after every change, in change order
type Observer func(Session)

// Option configures a Machine
type Option func(*Machine)

// WithFlashDuration overrides how long the running flag stays set
func WithFlashDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.flash = d
		}
	}
}

// Machine is the execution session state machine
type Machine struct {
	mu        sync.Mutex
	cur       Session
	flash     time.Duration
	timer     *time.Timer
	observers map[int]Observer
	nextObs   int
	closed    bool

	// notify keeps observer calls in the order changes were made
	notify sync.Mutex
}

// New starts an idle session for m
func New(m mode.Mode, opts ...Option) *Machine {
	sm := &Machine{
		cur:       Session{ID: nextID(), Mode: m},
		flash:     DefaultFlashDuration,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Current returns the current session
func (m *Machine) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Subscribe registers obs and returns a function that removes it.
// Observers must not call back into the machine.
func (m *Machine) Subscribe(obs Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.nextObs
	m.nextObs++
	m.observers[key] = obs
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, key)
	}
}

// Run counts a run and arms the running flag. The flag clears after the
// flash duration unless another run or a new session supersedes it.
func (m *Machine) Run() Session {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.cur
	}
	m.cur.RunCount++
	m.cur.IsRunning = true
	id, run := m.cur.ID, m.cur.RunCount
	m.stopTimer()
	m.timer = time.AfterFunc(m.flash, func() { m.settle(id, run) })
	return m.publish()
}

// SwitchMode starts a new idle session for mode
func (m *Machine) SwitchMode(md mode.Mode) Session {
	m.mu.Lock()
	m.stopTimer()
	m.cur = Session{ID: nextID(), Mode: md}
	return m.publish()
}

// Reset starts a new idle session in the current mode
func (m *Machine) Reset() Session {
	m.mu.Lock()
	m.stopTimer()
	m.cur = Session{ID: nextID(), Mode: m.cur.Mode}
	return m.publish()
}

// Close stops the pending timer; later runs are ignored
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimer()
}

func (m *Machine) settle(id uint64, run int) {
	m.mu.Lock()
	if m.cur.ID != id || m.cur.RunCount != run || !m.cur.IsRunning {
		m.mu.Unlock()
		return
	}
	m.cur.IsRunning = false
	m.publish()
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// publish is called with mu held and releases it
func (m *Machine) publish() Session {
	snap := m.cur
	observers := make([]Observer, 0, len(m.observers))
	for key := 0; key < m.nextObs; key++ {
		if obs, ok := m.observers[key]; ok {
			observers = append(observers, obs)
		}
	}
	m.notify.Lock()
	m.mu.Unlock()
	defer m.notify.Unlock()

	for _, obs := range observers {
		obs(snap)
	}
	return snap
}
