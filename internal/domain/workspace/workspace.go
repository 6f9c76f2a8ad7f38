// Package workspace is the UI-facing coordinator of one connected editor:
// it owns an execution session, the host controller slot its preview lives
// in, the log panel and the controller-side mirror of the mock server.
//
// Commands come from the UI through the exported methods. Events from the
// isolated context are queued and applied on the workspace goroutine, which
// is also the only caller of the Listener.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/sandbox/channel"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/session"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
	"github.com/GriffinCanCode/playground/internal/shared/id"
	"github.com/GriffinCanCode/playground/internal/storage"
	"github.com/GriffinCanCode/playground/internal/storage/memory"
)

// Deps are shared by every workspace of a server
type Deps struct {
	Generator *template.Generator
	Factory   host.Factory
	Documents *host.DocumentStore
	Bus       *channel.Bus
	Store     storage.CodeStore
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

type inbound struct {
	h   *host.Handle
	msg protocol.Message
}

// Workspace coordinates one editor, its preview and its logs
type Workspace struct {
	id       id.WorkspaceID
	cfg      Config
	log      *zap.Logger
	store    storage.CodeStore
	metrics  *monitoring.Metrics
	ctrl     *host.Controller
	machine  *session.Machine
	listener Listener

	inbox  *channel.Queue[inbound]
	outbox *channel.Queue[Notification]
	done   chan struct{}
	exited chan struct{}

	// op serialises commands so remounts never interleave
	op     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	opened    bool
	closed    bool
	handle    *host.Handle
	code      string
	theme     protocol.ThemeMode
	locked    bool
	logs      []LogEntry
	seq       uint64
	server    ServerStatus
	dom       string
	pendingID string
	pending   *time.Timer
}

// New creates a closed workspace; call Open to mount its preview
func New(deps Deps, cfg Config, listener Listener) *Workspace {
	cfg = cfg.withDefaults()
	if deps.Store == nil {
		deps.Store = memory.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	wsID := id.NewWorkspaceID()
	w := &Workspace{
		id:       wsID,
		cfg:      cfg,
		log:      deps.Logger.With(zap.String("workspace_id", wsID.String())),
		store:    deps.Store,
		metrics:  deps.Metrics,
		machine:  session.New(cfg.InitialMode, session.WithFlashDuration(cfg.FlashDuration)),
		listener: listener,
		inbox:    channel.NewQueue[inbound](),
		outbox:   channel.NewQueue[Notification](),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		theme:    protocol.Light,
	}

	opts := host.Options{
		Generator: deps.Generator,
		Factory:   deps.Factory,
		Documents: deps.Documents,
		Bus:       deps.Bus,
		Sink:      w.sink,
		Logger:    w.log,
	}
	if deps.Metrics != nil {
		opts.Recorder = deps.Metrics
	}
	w.ctrl = host.New(opts)

	w.machine.Subscribe(func(session.Session) {
		w.outbox.Push(Notification{Type: NotifyState})
	})
	go w.loop()
	return w
}

// ID identifies the workspace
func (w *Workspace) ID() id.WorkspaceID { return w.id }

// Open loads the initial mode's code and mounts the preview
func (w *Workspace) Open(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.opened {
		w.mu.Unlock()
		return nil
	}
	w.opened = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	sess := w.machine.Current()
	code := w.loadCode(sess.Mode)
	w.mu.Lock()
	w.code = code
	w.mu.Unlock()

	w.log.Info("Workspace opened", zap.String("mode", sess.Mode.String()))
	return w.remount(sess)
}

// SelectMode switches the environment: a new session, the mode's saved or
// starter code, and a fresh context
func (w *Workspace) SelectMode(m mode.Mode) error {
	spec, err := mode.Lookup(m)
	if err != nil {
		return err
	}

	w.op.Lock()
	defer w.op.Unlock()
	if err := w.ready(); err != nil {
		return err
	}

	code := w.loadCode(spec.Mode)
	w.mu.Lock()
	w.code = code
	w.mu.Unlock()

	sess := w.machine.SwitchMode(spec.Mode)
	w.log.Info("Mode selected", zap.String("mode", spec.Mode.String()), zap.Uint64("session_id", sess.ID))
	return w.remount(sess)
}

// Reset restores the starter code and starts over with a new session
func (w *Workspace) Reset() error {
	w.op.Lock()
	defer w.op.Unlock()
	if err := w.ready(); err != nil {
		return err
	}

	m := w.machine.Current().Mode
	if err := w.store.Delete(w.ctx, m); err != nil && !errors.Is(err, storage.ErrSnippetNotFound) {
		w.log.Warn("Failed to forget saved code", zap.Error(err))
	}
	w.mu.Lock()
	w.code = starter.Code(m)
	w.mu.Unlock()

	return w.remount(w.machine.Reset())
}

// CodeChanged records the editor text and persists it
func (w *Workspace) CodeChanged(text string) error {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.locked {
		w.mu.Unlock()
		return ErrLocked
	}
	w.code = text
	ctx := w.ctx
	w.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	m := w.machine.Current().Mode
	if err := w.store.Save(ctx, m, text); err != nil {
		w.log.Warn("Failed to save code", zap.String("mode", m.String()), zap.Error(err))
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

// Run clears the log panel and the server mirror, then sends the current
// code to the preview
func (w *Workspace) Run() error {
	w.op.Lock()
	defer w.op.Unlock()
	if err := w.ready(); err != nil {
		return err
	}

	w.mu.Lock()
	h, code := w.handle, w.code
	if h == nil {
		w.mu.Unlock()
		return ErrNotOpen
	}
	w.logs = nil
	w.stopPending()
	w.server = ServerStatus{}
	w.mu.Unlock()

	w.machine.Run()
	return w.ctrl.Run(h, code)
}

// SetTheme forwards the theme to the preview
func (w *Workspace) SetTheme(theme protocol.ThemeMode) error {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.theme = theme
	h := w.handle
	w.mu.Unlock()

	w.outbox.Push(Notification{Type: NotifyState})
	if h == nil {
		return nil
	}
	return w.ctrl.SetTheme(h, theme)
}

// SimulateRequest sends a request to the preview's mock server. It is
// rejected without sending unless the server is listening and idle.
func (w *Workspace) SimulateRequest(method, path string) (string, error) {
	w.op.Lock()
	defer w.op.Unlock()
	if err := w.ready(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	spec, _ := mode.Lookup(w.machine.Current().Mode)
	switch {
	case !spec.IsServer():
		return "", ErrNotServerMode
	case w.server.Faulted(), !w.server.Ready:
		return "", ErrServerNotReady
	case w.server.Pending:
		return "", ErrRequestPending
	}

	// Sent under mu so the response cannot be applied before it is pending
	reqID, err := w.ctrl.SimulateRequest(w.handle, method, path)
	if err != nil {
		return "", err
	}
	w.server.Pending = true
	w.pendingID = reqID
	w.pending = time.AfterFunc(w.cfg.RequestTimeout, func() { w.expire(reqID) })
	w.outbox.Push(Notification{Type: NotifyServer, Data: w.server})
	return reqID, nil
}

// SetLocked toggles the editor's read-only hint
func (w *Workspace) SetLocked(locked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locked == locked {
		return
	}
	w.locked = locked
	w.outbox.Push(Notification{Type: NotifyReadOnly, Data: locked})
}

// Snapshot returns the current state
func (w *Workspace) Snapshot() Snapshot {
	sess := w.machine.Current()
	spec, _ := mode.Lookup(sess.Mode)

	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		ID:      w.id,
		Session: sess,
		State:   sess.State().String(),
		Mode:    sess.Mode,
		Kind:    spec.Kind,
		Code:    w.code,
		Theme:   w.theme,
		Locked:  w.locked,
		Logs:    append([]LogEntry{}, w.logs...),
		Server:  w.server,
		DOM:     w.dom,
	}
	if w.handle != nil {
		snap.DocumentID = w.handle.Document().ID.String()
	}
	if s, err := starter.For(sess.Mode); err == nil {
		snap.Requests = s.SuggestedRequests()
	}
	return snap
}

// Close tears down the preview and stops the workspace goroutine
func (w *Workspace) Close() {
	w.op.Lock()
	defer w.op.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.handle = nil
	w.stopPending()
	w.mu.Unlock()

	w.machine.Close()
	w.ctrl.Close()
	close(w.done)
	<-w.exited
	if w.cancel != nil {
		w.cancel()
	}
	w.log.Info("Workspace closed")
}

func (w *Workspace) ready() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrClosed
	case !w.opened:
		return ErrNotOpen
	}
	return nil
}

// remount replaces the preview for sess. The old handle is torn down first
// so none of its queued events can be applied to the new session.
func (w *Workspace) remount(sess session.Session) error {
	w.mu.Lock()
	old := w.handle
	w.handle = nil
	w.logs = nil
	w.dom = ""
	w.stopPending()
	w.server = ServerStatus{}
	theme := w.theme
	w.mu.Unlock()

	if old != nil {
		w.ctrl.Teardown(old)
	}
	h, err := w.ctrl.Mount(w.ctx, w.cfg.Slot, sess.Mode)
	if err != nil {
		w.outbox.Push(Notification{Type: NotifyState})
		return fmt.Errorf("mount %s: %w", sess.Mode, err)
	}

	w.mu.Lock()
	w.handle = h
	w.mu.Unlock()

	if err := w.ctrl.EstablishChannel(h); err != nil {
		return err
	}
	if err := w.ctrl.SetTheme(h, theme); err != nil {
		return err
	}
	w.outbox.Push(Notification{Type: NotifyState})
	return nil
}

func (w *Workspace) loadCode(m mode.Mode) string {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	code, ok, err := w.store.Load(ctx, m)
	if err != nil {
		w.log.Warn("Failed to load saved code", zap.String("mode", m.String()), zap.Error(err))
	}
	if ok {
		return code
	}
	return starter.Code(m)
}

func (w *Workspace) sink(h *host.Handle, msg protocol.Message) {
	w.inbox.Push(inbound{h: h, msg: msg})
}

func (w *Workspace) loop() {
	defer close(w.exited)
	for {
		select {
		case <-w.done:
			return
		case <-w.inbox.Ready():
			for _, ev := range w.inbox.Drain() {
				w.apply(ev)
			}
			w.flush()
		case <-w.outbox.Ready():
			w.flush()
		}
	}
}

func (w *Workspace) flush() {
	for _, n := range w.outbox.Drain() {
		if n.Type == NotifyState && n.Data == nil {
			n.Data = w.Snapshot()
		}
		if w.listener != nil {
			w.listener.Notify(n)
		}
	}
}

// apply mirrors one context event. Events of a handle that is no longer
// current are dropped.
func (w *Workspace) apply(ev inbound) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.h.Closed() || (w.handle != nil && ev.h != w.handle) {
		return
	}
	msg := ev.msg
	switch msg.Type {
	case protocol.ReadySignal:
		w.log.Debug("Preview connected", zap.String("context_id", ev.h.ContextID()))

	case protocol.ServerReady:
		w.server.Ready = true
		w.server.LastError = ""
		w.outbox.Push(Notification{Type: NotifyServer, Data: w.server})

	case protocol.RequestComplete:
		resp, ok := msg.Response()
		if !ok {
			return
		}
		if !w.server.Pending || (resp.ID != "" && resp.ID != w.pendingID) {
			w.log.Debug("Dropped late response", zap.String("request_id", resp.ID))
			return
		}
		w.stopPending()
		w.server.LastResponse = &resp
		if w.metrics != nil {
			w.metrics.RecordSimulatedResponse(ev.h.Mode(), resp.Status)
		}
		w.outbox.Push(Notification{Type: NotifyResponse, Data: resp})
		w.outbox.Push(Notification{Type: NotifyServer, Data: w.server})

	case protocol.RuntimeError:
		w.appendLog(LogError, msg.Text())
		if spec, _ := mode.Lookup(ev.h.Mode()); spec.IsServer() {
			w.stopPending()
			w.server.Ready = false
			w.server.LastError = msg.Text()
			w.outbox.Push(Notification{Type: NotifyServer, Data: w.server})
		}

	case protocol.ConsoleLog:
		w.appendLog(LogInfo, msg.Text())
	case protocol.ConsoleWarn:
		w.appendLog(LogWarn, msg.Text())
	case protocol.ConsoleError:
		w.appendLog(LogError, msg.Text())

	case protocol.DOMSnapshot:
		w.dom = msg.Text()
		w.outbox.Push(Notification{Type: NotifyDOM, Data: w.dom})
	}
}

// expire gives up on a request that never completed
func (w *Workspace) expire(reqID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.server.Pending || w.pendingID != reqID {
		return
	}
	w.pending = nil
	w.server.Pending = false
	w.pendingID = ""
	w.appendLog(LogWarn, fmt.Sprintf("Request timed out after %s", w.cfg.RequestTimeout))
	w.outbox.Push(Notification{Type: NotifyServer, Data: w.server})
}

// stopPending is called with mu held
func (w *Workspace) stopPending() {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.server.Pending = false
	w.pendingID = ""
}

// appendLog is called with mu held
func (w *Workspace) appendLog(kind LogKind, text string) {
	w.seq++
	entry := LogEntry{Kind: kind, Text: text, Sequence: w.seq}
	w.logs = append(w.logs, entry)
	if over := len(w.logs) - w.cfg.MaxLogEntries; over > 0 {
		w.logs = append([]LogEntry(nil), w.logs[over:]...)
	}
	w.outbox.Push(Notification{Type: NotifyLog, Data: entry})
}
