// Package runtime hosts isolated contexts: one goja VM per context, owned by
// a single goroutine that drains one FIFO mailbox. A context is loaded from
// a generated sandbox document and speaks the sandbox protocol, first over
// the broadcast bus and then over the private port handed to it by
// INIT_PORT.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/dom"
	"github.com/GriffinCanCode/playground/internal/sandbox/mockserver"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/shared/id"
)

// ErrClosed is returned when posting to a closed context
var ErrClosed = errors.New("isolated context closed")

// Options configures a new context
type Options struct {
	ID        string
	Source    string
	Broadcast channel.Publisher
	Config    Config
	Logger    *zap.Logger
}

type task struct {
	msg protocol.Message
	fn  func()
}

// Context is one isolated context. All fields below the mailbox are owned by
// the loop goroutine.
type Context struct {
	id        string
	manifest  *Manifest
	spec      mode.Spec
	cfg       Config
	log       *zap.Logger
	broadcast channel.Publisher

	mailbox   *channel.Queue[task]
	done      chan struct{}
	exited    chan struct{}
	loaded    chan struct{}
	closeOnce sync.Once
	vm        *goja.Runtime
	guard     *guard
	started   time.Time

	port      *channel.Port
	doc       *dom.Document
	root      *dom.Element
	server    *mockserver.Server
	helpers   map[string]goja.Callable
	modules   map[string]goja.Value
	transpile bool
	runner    runner
	runs      int

	nodes     map[*dom.Element]*goja.Object
	elemProto *goja.Object
	document  *goja.Object
	listeners map[any]map[string][]listener
	handlers  map[*dom.Element]map[string]goja.Value
	contexts  map[*dom.Element]goja.Value

	timers    map[int64]*timer
	nextTimer int64

	rejections []*goja.Promise
	rejected   map[*goja.Promise]bool

	snapshot string
	version  uint64

	canvasObserver *dom.Observer
	reactRoot      goja.Value
	express        *expressApp
	hono           *goja.Object
}

// New validates the document and starts the context goroutine. The context
// finishes loading asynchronously; Loaded reports when it has.
func New(ctx context.Context, opts Options) (*Context, error) {
	manifest, err := ParseManifest(opts.Source)
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = id.NewContextID().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config.withDefaults()

	c := &Context{
		id:        opts.ID,
		manifest:  manifest,
		spec:      manifest.Spec,
		cfg:       cfg,
		log:       logger.With(zap.String("context_id", opts.ID), zap.String("mode", manifest.Spec.Mode.String())),
		broadcast: opts.Broadcast,
		mailbox:   channel.NewQueue[task](),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		loaded:    make(chan struct{}),
		vm:        goja.New(),
		started:   time.Now(),
		server:    mockserver.NewServer(),
		helpers:   make(map[string]goja.Callable),
		modules:   make(map[string]goja.Value),
		nodes:     make(map[*dom.Element]*goja.Object),
		listeners: make(map[any]map[string][]listener),
		handlers:  make(map[*dom.Element]map[string]goja.Value),
		contexts:  make(map[*dom.Element]goja.Value),
		timers:    make(map[int64]*timer),
		rejected:  make(map[*goja.Promise]bool),
	}
	c.guard = newGuard(c.vm, cfg.ExecTimeout)
	c.vm.SetMaxCallStackSize(cfg.MaxCallStackSize)

	go c.loop()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.exited:
		}
	}()
	return c, nil
}

// ID identifies the context on the broadcast bus
func (c *Context) ID() string { return c.id }

// Mode returns the environment mode the document was generated for
func (c *Context) Mode() mode.Mode { return c.spec.Mode }

// Loaded is closed once the document has been loaded
func (c *Context) Loaded() <-chan struct{} { return c.loaded }

// Done is closed when the context has stopped
func (c *Context) Done() <-chan struct{} { return c.exited }

// PostMessage delivers msg as if posted to the context's window. INIT_PORT
// carries the *channel.Port end the context should use.
func (c *Context) PostMessage(msg protocol.Message) error {
	if !c.mailbox.Push(task{msg: msg}) {
		return ErrClosed
	}
	return nil
}

// Close stops the context, its timers and any running evaluation, then
// waits for the goroutine to exit. It must not be called from Inspect.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mailbox.Close()
		c.guard.abort(ErrClosed)
	})
	<-c.exited
	return nil
}

func (c *Context) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Context) loop() {
	defer close(c.exited)
	defer c.stopTimers()

	if err := c.load(); err != nil {
		if !c.closed() {
			c.log.Error("Failed to load sandbox document", zap.Error(err))
			c.emit(protocol.NewText(protocol.RuntimeError, fmt.Sprintf("Sandbox failed to load: %v", err)))
		}
		<-c.done
		return
	}
	close(c.loaded)
	c.log.Debug("Sandbox document loaded", zap.Strings("capabilities", c.manifest.Capabilities))

	for {
		var portReady, portDone <-chan struct{}
		if c.port != nil && !c.port.Closed() {
			portReady, portDone = c.port.Ready(), c.port.Done()
		}

		select {
		case <-c.done:
			return
		case <-c.mailbox.Ready():
			for _, t := range c.mailbox.Drain() {
				if c.closed() {
					return
				}
				c.process(t)
			}
		case <-portReady:
			port := c.port
			for _, msg := range port.Drain() {
				if c.closed() {
					return
				}
				if msg.Type == protocol.InitPort {
					continue
				}
				c.process(task{msg: msg})
			}
		case <-portDone:
			c.log.Debug("Private port closed")
		}
	}
}

func (c *Context) process(t task) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Sandbox task panicked", zap.Any("panic", r))
			c.emit(protocol.NewText(protocol.RuntimeError, fmt.Sprintf("internal error: %v", r)))
		}
	}()

	if t.fn != nil {
		t.fn()
	} else {
		c.dispatch(t.msg)
	}
	c.settle()
}

func (c *Context) dispatch(msg protocol.Message) {
	switch msg.Type {
	case protocol.InitPort:
		port, ok := msg.Payload.(*channel.Port)
		if !ok || port == nil {
			c.log.Warn("INIT_PORT without a port")
			return
		}
		if c.port != nil && c.port != port {
			_ = c.port.Close()
		}
		c.port = port
		c.emit(protocol.NewReady())

	case protocol.Execute:
		p, _ := msg.Execute()
		c.execute(p.Code)

	case protocol.Theme:
		p, _ := msg.Theme()
		c.applyTheme(p.Mode)

	case protocol.SimulateRequest:
		p, _ := msg.Request()
		c.simulate(p)

	default:
		c.log.Debug("Ignoring message", zap.String("type", string(msg.Type)))
	}
}

// emit prefers the private port and falls back to the broadcast bus. A
// closed port swallows the event.
func (c *Context) emit(msg protocol.Message) {
	if c.closed() {
		return
	}
	if c.port != nil {
		if err := c.port.Post(msg); err != nil {
			c.log.Debug("Dropped event on closed port", zap.String("type", string(msg.Type)))
		}
		return
	}
	if c.broadcast != nil {
		c.broadcast.Publish(c.id, msg)
	}
}

func (c *Context) applyTheme(theme protocol.ThemeMode) {
	if theme != protocol.Dark {
		theme = protocol.Light
	}
	c.doc.Root.SetAttribute("data-theme", string(theme))
}

// settle runs after every task: observer delivery, unhandled rejections,
// then the output snapshot.
func (c *Context) settle() {
	if c.doc.Pending() {
		_ = c.guard.run(func() error {
			c.doc.FlushMutations(c.cfg.MaxMutationRounds)
			return nil
		})
	}
	c.reportRejections()
	c.emitSnapshot()
}

func (c *Context) emitSnapshot() {
	if !c.cfg.Snapshots || c.spec.IsServer() || c.doc.Version() == c.version {
		return
	}
	c.version = c.doc.Version()
	html := dom.Snapshot(c.root)
	if html == c.snapshot {
		return
	}
	c.snapshot = html
	c.emit(protocol.NewText(protocol.DOMSnapshot, html))
}

// Inspect runs fn on the context goroutine and waits for it to return
func (c *Context) Inspect(ctx context.Context, fn func(*State)) error {
	done := make(chan struct{})
	if !c.mailbox.Push(task{fn: func() {
		defer close(done)
		fn(&State{c: c})
	}}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.exited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State is a view of a context from inside its goroutine
type State struct {
	c *Context
}

// Document returns the context's document
func (s *State) Document() *dom.Document { return s.c.doc }

// Root returns the output root
func (s *State) Root() *dom.Element { return s.c.root }

// Server returns the mock server lifecycle state
func (s *State) Server() mockserver.State { return s.c.server.State() }

// Runs returns how many EXECUTE commands were processed
func (s *State) Runs() int { return s.c.runs }

// Timers returns the number of pending timers
func (s *State) Timers() int { return len(s.c.timers) }

// Eval evaluates src in global scope and exports the result
func (s *State) Eval(src string) (any, error) {
	var out any
	err := s.c.guard.run(func() error {
		v, err := s.c.vm.RunScript("inspect.js", src)
		if err != nil {
			return err
		}
		out = v.Export()
		return nil
	})
	return out, err
}
