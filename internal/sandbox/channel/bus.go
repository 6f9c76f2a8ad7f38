package channel

import (
	"sync"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// Publisher accepts events broadcast by a context before its port is ready
type Publisher interface {
	Publish(source string, msg protocol.Message)
}

// Bus is the in-process analogue of posting to the parent window: every
// subscriber whose source filter matches receives a copy.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
	next uint64
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription receives broadcast messages from one source ("" for all)
type Subscription struct {
	bus    *Bus
	id     uint64
	source string
	queue  *Queue[protocol.Message]
}

// Subscribe registers a new subscription
func (b *Bus) Subscribe(source string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	sub := &Subscription{bus: b, id: b.next, source: source, queue: NewQueue[protocol.Message]()}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers msg to every matching subscription
func (b *Bus) Publish(source string, msg protocol.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.source == "" || sub.source == source {
			sub.queue.Push(msg)
		}
	}
}

// Len returns the number of live subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Ready fires when messages are waiting
func (s *Subscription) Ready() <-chan struct{} { return s.queue.Ready() }

// Drain returns the messages received so far
func (s *Subscription) Drain() []protocol.Message { return s.queue.Drain() }

// Close cancels the subscription and discards pending messages
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.queue.Close()
}
