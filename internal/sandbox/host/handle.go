package host

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// Sink receives every event a handle's context emits while the handle is
// live
type Sink func(h *Handle, msg protocol.Message)

// Handle is one mounted isolated context
type Handle struct {
	slot      string
	mode      mode.Mode
	doc       Document
	iso       Isolate
	sink      Sink
	recorder  Recorder
	log       *zap.Logger
	mountedAt time.Time

	// dmu serialises delivery with teardown; mu guards the fields below
	dmu       sync.Mutex
	mu        sync.Mutex
	closed    bool
	port      *channel.Port
	sub       *channel.Subscription
	theme     protocol.ThemeMode
	connected bool

	runs      atomic.Int64
	handshake chan struct{}
	wake      chan struct{}
	stop      chan struct{}
	exited    chan struct{}
}

// Slot returns the logical slot the handle was mounted into
func (h *Handle) Slot() string { return h.slot }

// Mode returns the environment mode
func (h *Handle) Mode() mode.Mode { return h.mode }

// ContextID identifies the isolated context
func (h *Handle) ContextID() string { return h.iso.ID() }

// Document returns the generated document backing the context
func (h *Handle) Document() Document { return h.doc }

// Runs returns how many EXECUTE commands were sent
func (h *Handle) Runs() int64 { return h.runs.Load() }

// Connected is closed once READY_SIGNAL arrives on the private port
func (h *Handle) Connected() <-chan struct{} { return h.handshake }

// Closed reports whether the handle was torn down
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// post sends through the private port once it exists, otherwise directly
// to the context
func (h *Handle) post(msg protocol.Message) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	port := h.port
	h.mu.Unlock()

	h.recorder.Sent(h.mode, msg.Type)
	if port != nil {
		return port.Post(msg)
	}
	return h.iso.PostMessage(msg)
}

func (h *Handle) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) endpoints() (*channel.Port, *channel.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port, h.sub
}

// pump routes the context's events to the sink until the handle is torn
// down or the context stops
func (h *Handle) pump() {
	defer close(h.exited)
	loaded := h.iso.Loaded()

	for {
		port, sub := h.endpoints()
		var portReady, subReady <-chan struct{}
		if port != nil {
			portReady = port.Ready()
		}
		if sub != nil {
			subReady = sub.Ready()
		}

		select {
		case <-h.stop:
			return
		case <-h.iso.Done():
			h.log.Debug("Isolated context stopped")
			return
		case <-h.wake:
		case <-loaded:
			loaded = nil
			h.resendTheme()
		case <-subReady:
			for _, msg := range sub.Drain() {
				h.deliver(msg)
			}
		case <-portReady:
			for _, msg := range port.Drain() {
				if msg.Type == protocol.ReadySignal {
					h.completeHandshake()
				}
				h.deliver(msg)
			}
		}
	}
}

// completeHandshake makes the private port authoritative. Anything already
// broadcast was published before READY_SIGNAL, so it is delivered first.
func (h *Handle) completeHandshake() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	first := !h.connected
	h.connected = true
	h.mu.Unlock()

	if sub != nil {
		for _, msg := range sub.Drain() {
			h.deliver(msg)
		}
		sub.Close()
	}
	if first {
		close(h.handshake)
		h.log.Debug("Private channel established")
	}
}

func (h *Handle) resendTheme() {
	h.mu.Lock()
	theme := h.theme
	h.mu.Unlock()
	if theme == "" {
		return
	}
	if err := h.post(protocol.NewTheme(theme)); err != nil {
		h.log.Debug("Theme resend failed", zap.Error(err))
	}
}

func (h *Handle) deliver(msg protocol.Message) {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	if h.Closed() {
		return
	}
	h.recorder.Received(h.mode, msg.Type)
	if h.sink != nil {
		h.sink(h, msg)
	}
}
