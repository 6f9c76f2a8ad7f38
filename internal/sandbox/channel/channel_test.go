package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i))
	}

	select {
	case <-q.Ready():
	default:
		t.Fatal("queue should signal readiness")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, q.Drain())
	assert.Empty(t, q.Drain())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Push("b"))
	assert.Empty(t, q.Drain())
}

func TestPortDelivery(t *testing.T) {
	host, ctx := NewPair()
	assert.NotEqual(t, host.ID(), ctx.ID())

	require.NoError(t, host.Post(protocol.NewExecute("1+1")))
	require.NoError(t, ctx.Post(protocol.NewReady()))

	select {
	case <-ctx.Ready():
	case <-time.After(time.Second):
		t.Fatal("no message for context end")
	}
	msgs := ctx.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.Execute, msgs[0].Type)

	msgs = host.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ReadySignal, msgs[0].Type)
}

func TestClosingEitherEndClosesPairAndDiscards(t *testing.T) {
	host, ctx := NewPair()
	require.NoError(t, ctx.Post(protocol.NewText(protocol.ConsoleLog, "late")))

	require.NoError(t, host.Close())
	require.NoError(t, ctx.Close())

	assert.True(t, ctx.Closed())
	assert.Empty(t, host.Drain())
	assert.ErrorIs(t, ctx.Post(protocol.NewServerReady()), ErrPortClosed)
	assert.ErrorIs(t, host.Post(protocol.NewExecute("")), ErrPortClosed)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("done should be closed")
	}
}

func TestBusFiltersBySource(t *testing.T) {
	bus := NewBus()
	mine := bus.Subscribe("ctx_a")
	all := bus.Subscribe("")

	bus.Publish("ctx_a", protocol.NewText(protocol.ConsoleLog, "a"))
	bus.Publish("ctx_b", protocol.NewText(protocol.ConsoleLog, "b"))

	assert.Len(t, mine.Drain(), 1)
	assert.Len(t, all.Drain(), 2)

	mine.Close()
	assert.Equal(t, 1, bus.Len())
	bus.Publish("ctx_a", protocol.NewServerReady())
	assert.Empty(t, mine.Drain())
}
