package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

func TestNewSessionIsIdle(t *testing.T) {
	m := New(mode.DOM)
	defer m.Close()

	s := m.Current()
	assert.Equal(t, mode.DOM, s.Mode)
	assert.Zero(t, s.RunCount)
	assert.False(t, s.IsRunning)
	assert.Equal(t, Idle, s.State())
}

func TestRunArmsThenSettles(t *testing.T) {
	m := New(mode.P5, WithFlashDuration(20*time.Millisecond))
	defer m.Close()

	s := m.Run()
	assert.Equal(t, 1, s.RunCount)
	assert.True(t, s.IsRunning)
	assert.Equal(t, Armed, s.State())

	require.Eventually(t, func() bool { return m.Current().State() == Settled }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Current().RunCount)
}

func TestRepeatedRunsExtendTheFlash(t *testing.T) {
	m := New(mode.React, WithFlashDuration(150*time.Millisecond))
	defer m.Close()

	m.Run()
	time.Sleep(100 * time.Millisecond)
	s := m.Run()
	assert.Equal(t, 2, s.RunCount)

	time.Sleep(80 * time.Millisecond)
	assert.True(t, m.Current().IsRunning, "first timer must not clear the second run")
	require.Eventually(t, func() bool { return !m.Current().IsRunning }, time.Second, 5*time.Millisecond)
}

func TestSwitchModeAndResetStartNewSessions(t *testing.T) {
	m := New(mode.DOM, WithFlashDuration(10*time.Millisecond))
	defer m.Close()

	first := m.Current()
	m.Run()
	m.Run()

	switched := m.SwitchMode(mode.Express)
	assert.Greater(t, switched.ID, first.ID)
	assert.Equal(t, mode.Express, switched.Mode)
	assert.Zero(t, switched.RunCount)
	assert.False(t, switched.IsRunning)

	m.Run()
	reset := m.Reset()
	assert.Greater(t, reset.ID, switched.ID)
	assert.Equal(t, mode.Express, reset.Mode)
	assert.Equal(t, Idle, reset.State())

	// the timer armed before the reset must not touch the new session
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, reset, m.Current())
}

func TestIDsIncreaseAcrossMachines(t *testing.T) {
	a := New(mode.DOM)
	b := New(mode.DOM)
	defer a.Close()
	defer b.Close()

	assert.Greater(t, b.Current().ID, a.Current().ID)
	assert.Greater(t, a.Reset().ID, b.Current().ID)
}

func TestObserversSeeEveryChangeInOrder(t *testing.T) {
	m := New(mode.Hono, WithFlashDuration(10*time.Millisecond))
	defer m.Close()

	var (
		mu   sync.Mutex
		seen []State
	)
	cancel := m.Subscribe(func(s Session) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.State())
	})

	m.Run()
	require.Eventually(t, func() bool { return !m.Current().IsRunning }, time.Second, 5*time.Millisecond)
	m.Reset()
	cancel()
	m.Run()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Armed, Settled, Idle}, seen)
}

func TestRunAfterCloseIsIgnored(t *testing.T) {
	m := New(mode.DOM)
	m.Close()
	assert.Zero(t, m.Run().RunCount)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "settled", Settled.String())
}
