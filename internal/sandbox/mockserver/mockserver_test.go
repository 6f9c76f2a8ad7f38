package mockserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		pattern string
		prefix  bool
		path    string
		match   bool
		params  map[string]string
	}{
		{"/users/:id", false, "/users/42", true, map[string]string{"id": "42"}},
		{"/users/:id", false, "/users/42/", true, map[string]string{"id": "42"}},
		{"/users/:id", false, "/users", false, nil},
		{"/users/:id", false, "/users/42/posts", false, nil},
		{"/a/:x/b/:y", false, "/a/1/b/two", true, map[string]string{"x": "1", "y": "two"}},
		{"/files/*", false, "/files/a/b.txt", true, map[string]string{}},
		{"/api.v1", false, "/apixv1", false, nil},
		{"/", false, "/", true, map[string]string{}},
		{"/api", true, "/api/users", true, map[string]string{}},
		{"/api", true, "/apix", false, nil},
		{"/", true, "/anything", true, map[string]string{}},
		{"/hello/:name", false, "/hello/Ada%20L", true, map[string]string{"name": "Ada L"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			route := &Route[int]{}
			var err error
			route.re, route.keys, err = Compile(tt.pattern, tt.prefix)
			require.NoError(t, err)

			params, ok := route.match(tt.path)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := NewRouter[string]()
	require.NoError(t, r.Use("/", "logger"))
	require.NoError(t, r.Add("get", "/users/me", "me"))
	require.NoError(t, r.Add("GET", "/users/:id", "byID"))
	require.NoError(t, r.Add(MethodAll, "/users/:id", "any"))
	require.NoError(t, r.Add("POST", "/users", "create"))

	matches := r.Match("GET", "/users/me")
	require.Len(t, matches, 4)
	assert.Equal(t, "logger", matches[0].Route.Handlers[0])

	first, ok := r.First("GET", "/users/me")
	require.True(t, ok)
	assert.Equal(t, "me", first.Route.Handlers[0])

	first, ok = r.First("DELETE", "/users/7")
	require.True(t, ok)
	assert.Equal(t, "any", first.Route.Handlers[0])
	assert.Equal(t, "7", first.Params["id"])

	_, ok = r.First("GET", "/nope")
	assert.False(t, ok)

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestSplitURL(t *testing.T) {
	path, query := SplitURL("/search?q=go&page=2&q=rust")
	assert.Equal(t, "/search", path)
	assert.Equal(t, map[string]string{"q": "rust", "page": "2"}, query)

	path, query = SplitURL("")
	assert.Equal(t, "/", path)
	assert.Empty(t, query)

	path, _ = SplitURL("users")
	assert.Equal(t, "/users", path)
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer()
	assert.Equal(t, Unstarted, s.State())
	assert.ErrorIs(t, s.Begin(), ErrNotReady)

	assert.True(t, s.Listen())
	assert.False(t, s.Listen(), "second listen is not a transition")
	assert.Equal(t, Ready, s.State())

	require.NoError(t, s.Begin())
	assert.Equal(t, Handling, s.State())
	assert.True(t, s.Ready())

	s.Complete(protocol.ResponsePayload{Status: 200, Data: "ok"})
	assert.Equal(t, Ready, s.State())
	resp, ok := s.LastResponse()
	require.True(t, ok)
	assert.Equal(t, "ok", resp.Data)

	s.Fault(errors.New("boom"))
	assert.Equal(t, Faulted, s.State())
	assert.False(t, s.Ready())
	assert.False(t, s.Listen())
	assert.Equal(t, "boom", s.LastError())

	s.Reset()
	assert.Equal(t, Unstarted, s.State())
	assert.Empty(t, s.LastError())
	_, ok = s.LastResponse()
	assert.False(t, ok)
}

func TestExchangeResolvesOnce(t *testing.T) {
	var got []protocol.ResponsePayload
	ex := NewExchange(protocol.RequestPayload{Method: "post", Path: "/items?x=1", ID: "r9"}, func(r protocol.ResponsePayload) {
		got = append(got, r)
	})
	assert.Equal(t, "POST", ex.Method)
	assert.Equal(t, "/items", ex.Path)
	assert.Equal(t, "1", ex.Query["x"])

	ex.SetStatus(201)
	ex.SetHeader("X-Trace", "abc")
	assert.True(t, ex.Resolve(map[string]any{"ok": true}))
	assert.False(t, ex.Resolve("again"))
	assert.False(t, ex.Fail("late"))

	require.Len(t, got, 1)
	assert.Equal(t, 201, got[0].Status)
	assert.Equal(t, "r9", got[0].ID)
	assert.Equal(t, "abc", got[0].Headers["x-trace"])
}

func TestExchangeDefaults(t *testing.T) {
	var got protocol.ResponsePayload
	ex := NewExchange(protocol.RequestPayload{Path: "/nonexistent"}, func(r protocol.ResponsePayload) { got = r })
	assert.Equal(t, 200, ex.StatusCode())
	assert.True(t, ex.NotFound())
	assert.Equal(t, 404, got.Status)
	assert.Equal(t, map[string]any{"error": "Cannot GET /nonexistent"}, got.Data)

	ex = NewExchange(protocol.RequestPayload{Method: "GET", Path: "/"}, func(r protocol.ResponsePayload) { got = r })
	assert.True(t, ex.Fail("kaput"))
	assert.Equal(t, 500, got.Status)
	assert.Equal(t, map[string]any{"error": "kaput"}, got.Data)
}
