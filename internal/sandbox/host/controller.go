package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
	"github.com/GriffinCanCode/playground/internal/shared/id"
)

// ErrHandleClosed is returned for operations on a torn-down handle
var ErrHandleClosed = errors.New("sandbox handle closed")

// Recorder observes controller activity
type Recorder interface {
	Mounted(m mode.Mode)
	Released(m mode.Mode, lifetime time.Duration)
	Sent(m mode.Mode, kind protocol.Kind)
	Received(m mode.Mode, kind protocol.Kind)
}

type nopRecorder struct{}

func (nopRecorder) Mounted(mode.Mode)                 {}
func (nopRecorder) Released(mode.Mode, time.Duration) {}
func (nopRecorder) Sent(mode.Mode, protocol.Kind)     {}
func (nopRecorder) Received(mode.Mode, protocol.Kind) {}

// Options configures a controller
type Options struct {
	Generator *template.Generator
	Factory   Factory
	Documents *DocumentStore
	Bus       *channel.Bus
	Sink      Sink
	Recorder  Recorder
	Logger    *zap.Logger
}

// Controller mounts, drives and tears down isolated contexts
type Controller struct {
	gen      *template.Generator
	factory  Factory
	docs     *DocumentStore
	bus      *channel.Bus
	sink     Sink
	recorder Recorder
	log      *zap.Logger

	mu    sync.Mutex
	slots map[string]*Handle
}

// New creates a controller. Missing collaborators get in-process defaults.
func New(opts Options) *Controller {
	if opts.Generator == nil {
		opts.Generator = template.New()
	}
	if opts.Factory == nil {
		opts.Factory = RuntimeFactory{Logger: opts.Logger}
	}
	if opts.Documents == nil {
		opts.Documents = NewDocumentStore()
	}
	if opts.Bus == nil {
		opts.Bus = channel.NewBus()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		gen:      opts.Generator,
		factory:  opts.Factory,
		docs:     opts.Documents,
		bus:      opts.Bus,
		sink:     opts.Sink,
		recorder: opts.Recorder,
		log:      opts.Logger,
		slots:    make(map[string]*Handle),
	}
}

// Documents returns the store mounted documents are registered in
func (c *Controller) Documents() *DocumentStore { return c.docs }

// Mount tears down the slot's current handle, then loads a fresh context
// for m. The context finishes loading asynchronously.
func (c *Controller) Mount(ctx context.Context, slot string, m mode.Mode) (*Handle, error) {
	spec, err := mode.Lookup(m)
	if err != nil {
		return nil, err
	}
	if prior := c.release(slot); prior != nil {
		c.Teardown(prior)
	}

	html, err := c.gen.Generate(spec.Mode, true)
	if err != nil {
		return nil, fmt.Errorf("generate %s document: %w", m, err)
	}
	doc := c.docs.Put(spec.Mode, html)
	contextID := id.NewContextID().String()

	// Subscribe before the context exists so no early broadcast is missed
	sub := c.bus.Subscribe(contextID)
	iso, err := c.factory.Create(ctx, Request{ContextID: contextID, Document: doc, Broadcast: c.bus})
	if err != nil {
		sub.Close()
		c.docs.Revoke(doc.ID)
		return nil, fmt.Errorf("create context: %w", err)
	}

	h := &Handle{
		slot:      slot,
		mode:      spec.Mode,
		doc:       doc,
		iso:       iso,
		sink:      c.sink,
		recorder:  c.recorder,
		mountedAt: time.Now(),
		sub:       sub,
		handshake: make(chan struct{}),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		exited:    make(chan struct{}),
		log: c.log.With(
			zap.String("slot", slot),
			zap.String("mode", spec.Mode.String()),
			zap.String("context_id", iso.ID()),
		),
	}
	go h.pump()

	c.mu.Lock()
	raced := c.slots[slot]
	c.slots[slot] = h
	c.mu.Unlock()
	if raced != nil {
		c.Teardown(raced)
	}

	c.recorder.Mounted(spec.Mode)
	h.log.Info("Sandbox mounted", zap.String("document_id", doc.ID.String()))
	return h, nil
}

// Current returns the live handle for slot
func (c *Controller) Current(slot string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.slots[slot]
	return h, ok
}

// EstablishChannel hands a fresh private port to the context. The broadcast
// subscription stays live until the context answers on the port.
func (c *Controller) EstablishChannel(h *Handle) error {
	local, remote := channel.NewPair()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	prior := h.port
	h.port = local
	h.mu.Unlock()

	if prior != nil {
		_ = prior.Close()
	}
	if err := h.iso.PostMessage(protocol.NewInitPort(remote)); err != nil {
		return fmt.Errorf("transfer port: %w", err)
	}
	h.recorder.Sent(h.mode, protocol.InitPort)
	h.signal()
	return nil
}

// Run sends the current source text. The text is not validated here.
func (c *Controller) Run(h *Handle, code string) error {
	if err := h.post(protocol.NewExecute(code)); err != nil {
		return err
	}
	n := h.runs.Add(1)
	h.log.Debug("Execute sent", zap.Int64("run", n), zap.Int("bytes", len(code)))
	return nil
}

// SetTheme forwards THEME and remembers it so it can be re-sent when the
// context finishes loading
func (c *Controller) SetTheme(h *Handle, theme protocol.ThemeMode) error {
	h.mu.Lock()
	h.theme = theme
	h.mu.Unlock()
	return h.post(protocol.NewTheme(theme))
}

// SimulateRequest sends a request to the context's mock server and returns
// the correlation ID the response will echo. Gating on server readiness is
// the caller's concern.
func (c *Controller) SimulateRequest(h *Handle, method, path string) (string, error) {
	req := protocol.RequestPayload{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Path:   strings.TrimSpace(path),
		ID:     id.NewRequestID().String(),
	}
	if req.Method == "" {
		req.Method = "GET"
	}
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}
	if err := h.post(protocol.NewSimulateRequest(req)); err != nil {
		return "", err
	}
	return req.ID, nil
}

// Teardown closes the port, cancels the broadcast subscription, stops the
// context and revokes its document. No event of h is delivered afterwards.
// It is safe to call more than once.
func (c *Controller) Teardown(h *Handle) {
	h.dmu.Lock()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.dmu.Unlock()
		return
	}
	h.closed = true
	port, sub := h.port, h.sub
	h.port, h.sub = nil, nil
	h.mu.Unlock()
	h.dmu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	if sub != nil {
		sub.Close()
	}
	close(h.stop)
	if err := h.iso.Close(); err != nil {
		h.log.Warn("Failed to close context", zap.Error(err))
	}
	<-h.exited
	c.docs.Revoke(h.doc.ID)

	c.mu.Lock()
	if c.slots[h.slot] == h {
		delete(c.slots, h.slot)
	}
	c.mu.Unlock()

	c.recorder.Released(h.mode, time.Since(h.mountedAt))
	h.log.Info("Sandbox torn down", zap.Int64("runs", h.Runs()))
}

// Close tears down every slot
func (c *Controller) Close() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.slots))
	for _, h := range c.slots {
		handles = append(handles, h)
	}
	c.slots = make(map[string]*Handle)
	c.mu.Unlock()

	for _, h := range handles {
		c.Teardown(h)
	}
}

func (c *Controller) release(slot string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.slots[slot]
	delete(c.slots, slot)
	return h
}
