package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// ErrRequestTimeout is recorded on an exchange the mock server never answered
var ErrRequestTimeout = errors.New("request timed out")

// Script is a one-shot headless run: execute Code in Mode, send Requests to
// the mock server in order, then wait Settle for timers to drain.
type Script struct {
	Mode     mode.Mode
	Code     string
	Requests []starter.Request
	Settle   time.Duration
}

// Exchange is one scripted request and its outcome
type Exchange struct {
	Request  starter.Request           `json:"request"`
	Response *protocol.ResponsePayload `json:"response,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// Result is the state a script leaves behind
type Result struct {
	Mode      mode.Mode    `json:"mode"`
	Logs      []LogEntry   `json:"logs"`
	DOM       string       `json:"dom,omitempty"`
	Server    ServerStatus `json:"server"`
	Exchanges []Exchange   `json:"exchanges,omitempty"`
}

// Execute runs s in a private workspace and reports what it produced. The
// code is not persisted unless deps.Store is shared.
func Execute(ctx context.Context, deps Deps, cfg Config, s Script) (Result, error) {
	spec, err := mode.Lookup(s.Mode)
	if err != nil {
		return Result{}, err
	}
	cfg.InitialMode = spec.Mode

	changed := make(chan struct{}, 1)
	w := New(deps, cfg, ListenerFunc(func(Notification) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	defer w.Close()

	if err := w.Open(ctx); err != nil {
		return Result{}, err
	}
	if s.Code != "" {
		if err := w.CodeChanged(s.Code); err != nil {
			return Result{}, err
		}
	}
	if err := w.Run(); err != nil {
		return Result{}, err
	}

	var exchanges []Exchange
	if spec.IsServer() {
		w.await(ctx, changed, w.cfg.RequestTimeout, func(snap Snapshot) bool {
			return snap.Server.Ready || snap.Server.Faulted()
		})
		for _, req := range s.Requests {
			exchanges = append(exchanges, w.exchange(ctx, changed, req))
		}
	}

	if s.Settle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.Settle):
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	snap := w.Snapshot()
	return Result{
		Mode:      snap.Mode,
		Logs:      snap.Logs,
		DOM:       snap.DOM,
		Server:    snap.Server,
		Exchanges: exchanges,
	}, nil
}

func (w *Workspace) exchange(ctx context.Context, changed <-chan struct{}, req starter.Request) Exchange {
	ex := Exchange{Request: req}
	reqID, err := w.SimulateRequest(req.Method, req.Path)
	if err != nil {
		ex.Error = err.Error()
		return ex
	}

	snap := w.await(ctx, changed, w.cfg.RequestTimeout+time.Second, func(snap Snapshot) bool {
		return !snap.Server.Pending
	})
	if resp := snap.Server.LastResponse; resp != nil && resp.ID == reqID {
		ex.Response = resp
		return ex
	}
	if snap.Server.Faulted() {
		ex.Error = snap.Server.LastError
		return ex
	}
	ex.Error = ErrRequestTimeout.Error()
	return ex
}

// await blocks until cond holds for a snapshot, timeout elapses or ctx ends,
// and returns the last snapshot seen
func (w *Workspace) await(ctx context.Context, changed <-chan struct{}, timeout time.Duration, cond func(Snapshot) bool) Snapshot {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		snap := w.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-ctx.Done():
			return snap
		case <-deadline.C:
			return w.Snapshot()
		case <-changed:
		}
	}
}
