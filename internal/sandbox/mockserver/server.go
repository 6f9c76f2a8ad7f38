package mockserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// ErrNotReady is returned when a request arrives before listen
var ErrNotReady = errors.New("mock server is not listening")

// State is the server lifecycle
type State int

const (
	Unstarted State = iota
	Ready
	Handling
	Faulted
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Ready:
		return "ready"
	case Handling:
		return "handling"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Server tracks lifecycle for one context. It is reset at the start of every
// execution. Handler exceptions are answered with 500 and do not fault it;
// only an exception escaping code evaluation does.
type Server struct {
	mu        sync.Mutex
	listening bool
	faulted   bool
	inflight  int
	lastResp  *protocol.ResponsePayload
	lastError string
}

// NewServer creates an unstarted server
func NewServer() *Server {
	return &Server{}
}

// Reset returns to Unstarted and forgets the last outcome
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = false
	s.faulted = false
	s.inflight = 0
	s.lastResp = nil
	s.lastError = ""
}

// Listen marks the server ready. It reports whether this call made the
// transition, so SERVER_READY is announced once per execution.
func (s *Server) Listen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening || s.faulted {
		return false
	}
	s.listening = true
	return true
}

// Fault records an evaluation failure and clears readiness
func (s *Server) Fault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faulted = true
	s.listening = false
	if err != nil {
		s.lastError = err.Error()
	}
}

// Begin enters Handling for one request
func (s *Server) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening {
		return ErrNotReady
	}
	s.inflight++
	return nil
}

// Complete leaves Handling and records resp
func (s *Server) Complete(resp protocol.ResponsePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight > 0 {
		s.inflight--
	}
	s.lastResp = &resp
}

// State returns the current lifecycle state
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.faulted:
		return Faulted
	case !s.listening:
		return Unstarted
	case s.inflight > 0:
		return Handling
	default:
		return Ready
	}
}

// Ready reports whether requests are accepted
func (s *Server) Ready() bool {
	st := s.State()
	return st == Ready || st == Handling
}

// LastResponse returns the most recent response, if any
func (s *Server) LastResponse() (protocol.ResponsePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastResp == nil {
		return protocol.ResponsePayload{}, false
	}
	return *s.lastResp, true
}

// LastError returns the evaluation error that faulted the server
func (s *Server) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// NotFoundBody is the body of the synthesized 404
func NotFoundBody(method, path string) map[string]any {
	return map[string]any{"error": fmt.Sprintf("Cannot %s %s", strings.ToUpper(method), path)}
}

// ErrorBody is the body of a 500 caused by a handler exception
func ErrorBody(message string) map[string]any {
	return map[string]any{"error": message}
}
