package mockserver

import (
	"net/http"
	"strings"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// Exchange is one simulated request and its response under construction.
// The response resolves at most once; later resolutions are ignored.
type Exchange struct {
	Method string
	Path   string
	Query  map[string]string
	ID     string

	status    int
	headers   map[string]string
	resolved  bool
	onResolve func(protocol.ResponsePayload)
}

// NewExchange prepares a request. The raw target may carry a query string.
func NewExchange(req protocol.RequestPayload, onResolve func(protocol.ResponsePayload)) *Exchange {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path, query := SplitURL(req.Path)
	return &Exchange{
		Method:    method,
		Path:      path,
		Query:     query,
		ID:        req.ID,
		status:    http.StatusOK,
		headers:   make(map[string]string),
		onResolve: onResolve,
	}
}

// SetStatus sets the pending status code
func (e *Exchange) SetStatus(code int) {
	if code > 0 {
		e.status = code
	}
}

// StatusCode returns the pending status code
func (e *Exchange) StatusCode() int { return e.status }

// SetHeader sets a response header, lower-cased
func (e *Exchange) SetHeader(name, value string) {
	e.headers[strings.ToLower(name)] = value
}

// Header returns a pending response header
func (e *Exchange) Header(name string) string {
	return e.headers[strings.ToLower(name)]
}

// Resolved reports whether a response was already sent
func (e *Exchange) Resolved() bool { return e.resolved }

// Resolve sends data with the pending status. It returns false if the
// exchange was already resolved.
func (e *Exchange) Resolve(data any) bool {
	if e.resolved {
		return false
	}
	e.resolved = true

	resp := protocol.ResponsePayload{Status: e.status, Data: data, ID: e.ID}
	if len(e.headers) > 0 {
		resp.Headers = e.headers
	}
	if e.onResolve != nil {
		e.onResolve(resp)
	}
	return true
}

// NotFound resolves with the synthesized 404
func (e *Exchange) NotFound() bool {
	if e.resolved {
		return false
	}
	e.status = http.StatusNotFound
	e.SetHeader("content-type", "application/json")
	return e.Resolve(NotFoundBody(e.Method, e.Path))
}

// Fail resolves with a 500 carrying the handler's error message
func (e *Exchange) Fail(message string) bool {
	if e.resolved {
		return false
	}
	e.status = http.StatusInternalServerError
	e.SetHeader("content-type", "application/json")
	return e.Resolve(ErrorBody(message))
}
