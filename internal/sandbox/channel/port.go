package channel

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// ErrPortClosed is returned when posting through a closed pair
var ErrPortClosed = errors.New("channel: port closed")

// Port is one end of a private bidirectional channel. A message posted on
// one end is queued at the other. Closing either end closes the pair and
// discards undelivered messages.
type Port struct {
	id    uuid.UUID
	inbox *Queue[protocol.Message]
	peer  *Port
	pair  *pairState
}

type pairState struct {
	once sync.Once
	done chan struct{}
}

// NewPair creates two connected ports
func NewPair() (*Port, *Port) {
	state := &pairState{done: make(chan struct{})}
	a := &Port{id: uuid.New(), inbox: NewQueue[protocol.Message](), pair: state}
	b := &Port{id: uuid.New(), inbox: NewQueue[protocol.Message](), pair: state}
	a.peer, b.peer = b, a
	return a, b
}

// ID identifies this end
func (p *Port) ID() uuid.UUID { return p.id }

// Post queues msg at the peer without blocking
func (p *Port) Post(msg protocol.Message) error {
	if p.Closed() {
		return ErrPortClosed
	}
	if !p.peer.inbox.Push(msg) {
		return ErrPortClosed
	}
	return nil
}

// Ready fires when messages are waiting on this end
func (p *Port) Ready() <-chan struct{} { return p.inbox.Ready() }

// Drain returns the messages received on this end
func (p *Port) Drain() []protocol.Message { return p.inbox.Drain() }

// Done is closed when the pair is closed
func (p *Port) Done() <-chan struct{} { return p.pair.done }

// Closed reports whether the pair is closed
func (p *Port) Closed() bool {
	select {
	case <-p.pair.done:
		return true
	default:
		return false
	}
}

// Close closes both ends. It is safe to call more than once.
func (p *Port) Close() error {
	p.pair.once.Do(func() {
		p.inbox.Close()
		p.peer.inbox.Close()
		close(p.pair.done)
	})
	return nil
}
