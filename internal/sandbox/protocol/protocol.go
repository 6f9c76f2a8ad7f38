// Package protocol defines the messages exchanged between the host and an
// isolated context. Every message is a {type, payload} envelope.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the message discriminator
type Kind string

// Host to context
const (
	InitPort        Kind = "INIT_PORT"
	Execute         Kind = "EXECUTE"
	Theme           Kind = "THEME"
	SimulateRequest Kind = "SIMULATE_REQUEST"
)

// Context to host
const (
	ReadySignal     Kind = "READY_SIGNAL"
	ServerReady     Kind = "SERVER_READY"
	RequestComplete Kind = "REQUEST_COMPLETE"
	RuntimeError    Kind = "RUNTIME_ERROR"
	ConsoleLog      Kind = "CONSOLE_LOG"
	ConsoleWarn     Kind = "CONSOLE_WARN"
	ConsoleError    Kind = "CONSOLE_ERROR"
	DOMSnapshot     Kind = "DOM_SNAPSHOT"
)

var (
	ErrUnknownKind    = errors.New("unknown message kind")
	ErrBadPayload     = errors.New("malformed message payload")
	ErrNotTransferred = errors.New("message carries a transferable endpoint and cannot be serialized")
)

// Message is one protocol envelope. Payload holds one of the payload structs
// below, a string for text events, or the transferred endpoint for INIT_PORT.
type Message struct {
	Type    Kind `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// ExecutePayload carries user code
type ExecutePayload struct {
	Code string `json:"code"`
}

// ThemeMode is the light/dark flag
type ThemeMode string

const (
	Light ThemeMode = "light"
	Dark  ThemeMode = "dark"
)

// ParseTheme accepts "light" or "dark" in any case
func ParseTheme(s string) (ThemeMode, error) {
	switch ThemeMode(strings.ToLower(strings.TrimSpace(s))) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	}
	return "", fmt.Errorf("%w: theme %q", ErrBadPayload, s)
}

// ThemePayload carries the theme flag
type ThemePayload struct {
	Mode ThemeMode `json:"mode"`
}

// RequestPayload asks the mock server to handle one request. ID is optional;
// when present it is echoed on the matching REQUEST_COMPLETE.
type RequestPayload struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	ID     string `json:"id,omitempty"`
}

// ResponsePayload is the mock server's answer
type ResponsePayload struct {
	Status  int               `json:"status"`
	Data    any               `json:"data"`
	Headers map[string]string `json:"headers,omitempty"`
	ID      string            `json:"id,omitempty"`
}

// IsEvent reports whether k flows from context to host
func (k Kind) IsEvent() bool {
	switch k {
	case ReadySignal, ServerReady, RequestComplete, RuntimeError, ConsoleLog, ConsoleWarn, ConsoleError, DOMSnapshot:
		return true
	}
	return false
}

// IsCommand reports whether k flows from host to context
func (k Kind) IsCommand() bool {
	switch k {
	case InitPort, Execute, Theme, SimulateRequest:
		return true
	}
	return false
}

func (k Kind) valid() bool { return k.IsEvent() || k.IsCommand() }

// NewInitPort wraps the endpoint handed to a context
func NewInitPort(endpoint any) Message { return Message{Type: InitPort, Payload: endpoint} }

// NewExecute asks the context to run code
func NewExecute(code string) Message {
	return Message{Type: Execute, Payload: ExecutePayload{Code: code}}
}

// NewTheme propagates the theme flag
func NewTheme(mode ThemeMode) Message {
	return Message{Type: Theme, Payload: ThemePayload{Mode: mode}}
}

// NewSimulateRequest asks the mock server to handle method/path
func NewSimulateRequest(req RequestPayload) Message {
	return Message{Type: SimulateRequest, Payload: req}
}

// NewReady is the handshake acknowledgement
func NewReady() Message { return Message{Type: ReadySignal} }

// NewServerReady announces that the mock server listens
func NewServerReady() Message { return Message{Type: ServerReady} }

// NewRequestComplete reports a resolved response
func NewRequestComplete(resp ResponsePayload) Message {
	return Message{Type: RequestComplete, Payload: resp}
}

// NewText builds one of the text events (errors, console output, snapshots)
func NewText(kind Kind, text string) Message { return Message{Type: kind, Payload: text} }

// Text returns the string payload of text events
func (m Message) Text() string {
	if s, ok := m.Payload.(string); ok {
		return s
	}
	return ""
}

// Execute returns the EXECUTE payload
func (m Message) Execute() (ExecutePayload, bool) {
	p, ok := m.Payload.(ExecutePayload)
	return p, ok
}

// Theme returns the THEME payload
func (m Message) Theme() (ThemePayload, bool) {
	p, ok := m.Payload.(ThemePayload)
	return p, ok
}

// Request returns the SIMULATE_REQUEST payload
func (m Message) Request() (RequestPayload, bool) {
	p, ok := m.Payload.(RequestPayload)
	return p, ok
}

// Response returns the REQUEST_COMPLETE payload
func (m Message) Response() (ResponsePayload, bool) {
	p, ok := m.Payload.(ResponsePayload)
	return p, ok
}

func (m Message) String() string {
	if text := m.Text(); text != "" {
		if len(text) > 60 {
			text = text[:60] + "..."
		}
		return fmt.Sprintf("%s(%q)", m.Type, text)
	}
	return string(m.Type)
}
