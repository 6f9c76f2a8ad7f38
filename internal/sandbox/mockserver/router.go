// Package mockserver implements the in-context web server that Express and
// Hono modes expose to user code: a path router, a lifecycle state machine,
// and single-resolution request exchanges.
package mockserver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MethodAll matches any HTTP method
const MethodAll = "ALL"

var paramPattern = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Route is one registered pattern. Prefix routes (middleware mounted with
// use) match the pattern and anything below it.
type Route[H any] struct {
	Method   string
	Pattern  string
	Handlers []H
	Prefix   bool

	re   *regexp.Regexp
	keys []string
}

// Match is a route that matched a request, with captured parameters
type Match[H any] struct {
	Route  *Route[H]
	Params map[string]string
}

// Router keeps routes in registration order
type Router[H any] struct {
	routes []*Route[H]
}

// NewRouter creates an empty router
func NewRouter[H any]() *Router[H] {
	return &Router[H]{}
}

// Compile turns "/users/:id" into an anchored regexp plus parameter names.
// "*" matches any run of characters. Prefix patterns also match sub-paths.
func Compile(pattern string, prefix bool) (*regexp.Regexp, []string, error) {
	if pattern == "" {
		pattern = "/"
	}
	if !strings.HasPrefix(pattern, "/") && pattern != "*" {
		pattern = "/" + pattern
	}
	trimmed := strings.TrimRight(pattern, "/")

	var keys []string
	var sb strings.Builder
	sb.WriteString("^")
	last := 0
	for _, loc := range paramPattern.FindAllStringSubmatchIndex(trimmed, -1) {
		sb.WriteString(literal(trimmed[last:loc[0]]))
		keys = append(keys, trimmed[loc[2]:loc[3]])
		sb.WriteString("([^/]+)")
		last = loc[1]
	}
	sb.WriteString(literal(trimmed[last:]))
	if prefix {
		sb.WriteString("(?:/.*)?$")
	} else {
		sb.WriteString("/?$")
	}

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, nil, fmt.Errorf("compile route %q: %w", pattern, err)
	}
	return re, keys, nil
}

func literal(s string) string {
	parts := strings.Split(s, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, ".*")
}

// Add registers handlers for method and pattern
func (r *Router[H]) Add(method, pattern string, handlers ...H) error {
	return r.add(strings.ToUpper(method), pattern, false, handlers)
}

// Use registers middleware for every method under pattern
func (r *Router[H]) Use(pattern string, handlers ...H) error {
	return r.add(MethodAll, pattern, true, handlers)
}

func (r *Router[H]) add(method, pattern string, prefix bool, handlers []H) error {
	re, keys, err := Compile(pattern, prefix)
	if err != nil {
		return err
	}
	r.routes = append(r.routes, &Route[H]{
		Method:   method,
		Pattern:  pattern,
		Handlers: handlers,
		Prefix:   prefix,
		re:       re,
		keys:     keys,
	})
	return nil
}

// Routes returns the registered routes in order
func (r *Router[H]) Routes() []*Route[H] {
	return append([]*Route[H](nil), r.routes...)
}

// Len returns the number of routes
func (r *Router[H]) Len() int { return len(r.routes) }

// Reset empties the route table
func (r *Router[H]) Reset() { r.routes = nil }

// Match returns every route matching method and path in registration order.
// The first non-prefix entry is the handler that wins.
func (r *Router[H]) Match(method, path string) []Match[H] {
	method = strings.ToUpper(method)
	var out []Match[H]
	for _, route := range r.routes {
		if route.Method != MethodAll && route.Method != method {
			continue
		}
		if params, ok := route.match(path); ok {
			out = append(out, Match[H]{Route: route, Params: params})
		}
	}
	return out
}

// First returns the first matching non-prefix route
func (r *Router[H]) First(method, path string) (Match[H], bool) {
	for _, m := range r.Match(method, path) {
		if !m.Route.Prefix {
			return m, true
		}
	}
	return Match[H]{}, false
}

func (route *Route[H]) match(path string) (map[string]string, bool) {
	sub := route.re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false
	}
	params := make(map[string]string, len(route.keys))
	for i, key := range route.keys {
		value := sub[i+1]
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		params[key] = value
	}
	return params, true
}

// SplitURL separates path and query. Repeated query keys keep the last value.
func SplitURL(raw string) (string, map[string]string) {
	path, rawQuery, _ := strings.Cut(raw, "?")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	query := make(map[string]string)
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path, query
	}
	for k, v := range values {
		if len(v) > 0 {
			query[k] = v[len(v)-1]
		}
	}
	return path, query
}
