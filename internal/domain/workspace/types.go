package workspace

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/session"
	"github.com/GriffinCanCode/playground/internal/shared/id"
)

var (
	ErrClosed         = errors.New("workspace closed")
	ErrNotOpen        = errors.New("workspace not open")
	ErrLocked         = errors.New("editor is read-only")
	ErrNotServerMode  = errors.New("current mode has no mock server")
	ErrServerNotReady = errors.New("mock server is not listening")
	ErrRequestPending = errors.New("a request is already in flight")
)

// LogKind classifies a log entry
type LogKind string

const (
	LogInfo  LogKind = "log"
	LogWarn  LogKind = "warn"
	LogError LogKind = "error"
)

// LogEntry is one line of the log panel. Entries never change once
// appended.
type LogEntry struct {
	Kind     LogKind `json:"kind"`
	Text     string  `json:"text"`
	Sequence uint64  `json:"sequence"`
}

// ServerStatus mirrors the context's mock server. Ready and LastError are
// never both set.
type ServerStatus struct {
	Ready        bool                      `json:"ready"`
	Pending      bool                      `json:"pending"`
	LastResponse *protocol.ResponsePayload `json:"last_response,omitempty"`
	LastError    string                    `json:"last_error,omitempty"`
}

// Faulted reports whether the last execution failed
func (s ServerStatus) Faulted() bool { return s.LastError != "" }

// Snapshot is everything a freshly connected UI needs to render
type Snapshot struct {
	ID         id.WorkspaceID     `json:"id"`
	Session    session.Session    `json:"session"`
	State      string             `json:"state"`
	Mode       mode.Mode          `json:"mode"`
	Kind       mode.Kind          `json:"kind"`
	Code       string             `json:"code"`
	Theme      protocol.ThemeMode `json:"theme"`
	Locked     bool               `json:"locked"`
	Logs       []LogEntry         `json:"logs"`
	Server     ServerStatus       `json:"server"`
	DOM        string             `json:"dom,omitempty"`
	DocumentID string             `json:"document_id,omitempty"`
	Requests   []starter.Request  `json:"requests,omitempty"`
}

// Notification types sent to a Listener
const (
	NotifyState    = "state"
	NotifyLog      = "log"
	NotifyServer   = "server"
	NotifyResponse = "response"
	NotifyDOM      = "dom"
	NotifyReadOnly = "readonly"
)

// Notification is a UI update. Data is a Snapshot, LogEntry, ServerStatus,
// protocol.ResponsePayload, string (dom) or bool (readonly).
type Notification struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Listener receives notifications on the workspace's event goroutine
type Listener interface {
	Notify(n Notification)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(n Notification)

// Notify calls f
func (f ListenerFunc) Notify(n Notification) { f(n) }

// Config bounds one workspace
type Config struct {
	Slot           string
	InitialMode    mode.Mode
	FlashDuration  time.Duration
	RequestTimeout time.Duration
	MaxLogEntries  int
}

// DefaultConfig returns the defaults
func DefaultConfig() Config {
	return Config{
		Slot:           "preview",
		InitialMode:    mode.DOM,
		FlashDuration:  session.DefaultFlashDuration,
		RequestTimeout: 5 * time.Second,
		MaxLogEntries:  1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Slot == "" {
		c.Slot = d.Slot
	}
	if c.InitialMode == "" {
		c.InitialMode = d.InitialMode
	}
	if c.FlashDuration <= 0 {
		c.FlashDuration = d.FlashDuration
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxLogEntries <= 0 {
		c.MaxLogEntries = d.MaxLogEntries
	}
	return c
}
