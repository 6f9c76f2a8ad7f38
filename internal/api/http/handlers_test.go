package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/providers/assets"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
	"github.com/GriffinCanCode/playground/internal/storage/memory"
)

const p5Script = `window.p5 = function p5() {};`

type fixture struct {
	router     *gin.Engine
	documents  *host.DocumentStore
	workspaces *workspace.Manager
	metrics    *monitoring.Metrics
	origin     *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p5.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Header().Set("ETag", `"p5-v1"`)
			_, _ = io.WriteString(w, p5Script)
		case "/down.js":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(origin.Close)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)
	documents := host.NewDocumentStore()
	store := memory.New()
	gen := template.New(template.WithAssetBase("/assets"))
	provider := assets.New(assets.Config{Retries: 0, RetryWait: time.Millisecond, CacheTTL: time.Minute},
		assets.WithCatalog(map[string]mode.Capability{
			"p5":   {Name: "p5", URL: origin.URL + "/p5.js", Proxy: true},
			"down": {Name: "down", URL: origin.URL + "/down.js", Proxy: true},
		}),
		assets.WithMetrics(metrics))
	manager := workspace.NewManager(workspace.Deps{
		Generator: gen,
		Documents: documents,
		Store:     store,
		Metrics:   metrics,
		Logger:    zap.NewNop(),
	}, workspace.Config{})
	t.Cleanup(manager.CloseAll)

	h := NewHandlers(Deps{
		Generator:  gen,
		Documents:  documents,
		Store:      store,
		Assets:     provider,
		Workspaces: manager,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	})
	router := gin.New()
	h.Register(router)
	h.RegisterMetrics(router, reg)

	return &fixture{router: router, documents: documents, workspaces: manager, metrics: metrics, origin: origin}
}

func (f *fixture) do(method, path string, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", decode(t, w)["status"])

	w = f.do("GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["workspaces"])
	assert.Equal(t, map[string]any{"breaker": "closed"}, body["assets"])
}

func TestListModes(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/modes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Modes []struct {
			Mode  string `json:"mode"`
			Kind  string `json:"kind"`
			Title string `json:"title"`
		} `json:"modes"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Modes, len(mode.All()))
	for _, m := range body.Modes {
		assert.NotEmpty(t, m.Title, m.Mode)
	}
}

func TestModeDocument(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/modes/p5/document", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, w.Body.String(), `data-mode="p5"`)
	assert.Contains(t, w.Body.String(), "/assets/p5")

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, http.StatusNotModified, f.do("GET", "/modes/p5/document", "", "If-None-Match", etag).Code)
	assert.NotEqual(t, etag, f.do("GET", "/modes/p5/document?placeholder=true", "").Header().Get("ETag"))

	assert.Equal(t, http.StatusOK, f.do("GET", "/modes/headless-js/document?placeholder=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/modes/dom/document?placeholder=maybe", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/modes/cobol/document", "").Code)
}

func TestModeStarter(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/modes/express/starter", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, starter.Code(mode.Express), body["code"])
	assert.NotEmpty(t, body["requests"])
}

func TestDocumentIsRevocable(t *testing.T) {
	f := setup(t)
	doc := f.documents.Put(mode.DOM, "<html><body>mounted</body></html>")

	w := f.do("GET", "/documents/"+doc.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "dom", w.Header().Get("X-Sandbox-Mode"))
	assert.Contains(t, w.Body.String(), "mounted")

	require.True(t, f.documents.Revoke(doc.ID))
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/documents/"+doc.ID.String(), "").Code)
}

func TestAssetProxy(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/assets/p5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, p5Script, w.Body.String())
	assert.Equal(t, `"p5-v1"`, w.Header().Get("ETag"))
	assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	w = f.do("GET", "/assets/p5", "", "Accept-Encoding", "br, gzip;q=0.8")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, p5Script, string(plain))

	w = f.do("GET", "/assets/p5", "", "If-None-Match", `"p5-v1"`)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestAssetErrors(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusNotFound, f.do("GET", "/assets/left-pad", "").Code)
	assert.Equal(t, http.StatusBadGateway, f.do("GET", "/assets/down", "").Code)
	for i := 0; i < 5; i++ {
		f.do("GET", "/assets/down", "")
	}
	assert.Equal(t, http.StatusServiceUnavailable, f.do("GET", "/assets/down", "").Code)

	w := f.do("GET", "/health", "")
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestAssetStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, assetStatus(&assets.UpstreamError{Status: 404}))
	assert.Equal(t, http.StatusBadGateway, assetStatus(&assets.UpstreamError{Status: 500}))
	assert.Equal(t, http.StatusBadGateway, assetStatus(assets.ErrTooLarge))
}

func TestSnippetLifecycle(t *testing.T) {
	f := setup(t)

	w := f.do("GET", "/snippets/dom", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["saved"])
	assert.Equal(t, starter.Code(mode.DOM), body["code"])

	w = f.do("PUT", "/snippets/dom", `{"code":"document.body.textContent = 'x'"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/snippets/dom", "")
	body = decode(t, w)
	assert.Equal(t, true, body["saved"])
	assert.Equal(t, "document.body.textContent = 'x'", body["code"])

	w = f.do("GET", "/snippets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["snippets"], 1)

	assert.Equal(t, http.StatusOK, f.do("DELETE", "/snippets/dom", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("DELETE", "/snippets/dom", "").Code)
}

func TestPutSnippetValidation(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusBadRequest, f.do("PUT", "/snippets/dom", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("PUT", "/snippets/dom", `not json`).Code)
	assert.Equal(t, http.StatusNotFound, f.do("PUT", "/snippets/cobol", `{"code":""}`).Code)
	assert.Equal(t, http.StatusOK, f.do("PUT", "/snippets/dom", `{"code":""}`).Code, "empty code is valid")

	huge := `{"code":"` + strings.Repeat("a", MaxSnippetBytes+10) + `"}`
	assert.Equal(t, http.StatusRequestEntityTooLarge, f.do("PUT", "/snippets/dom", huge).Code)
}

func TestWorkspaces(t *testing.T) {
	f := setup(t)

	w, err := f.workspaces.Open(context.Background(), workspace.ListenerFunc(func(workspace.Notification) {}))
	require.NoError(t, err)

	rec := f.do("GET", "/workspaces", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = f.do("GET", "/workspaces/"+w.ID().String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, w.ID().String(), decode(t, rec)["id"])

	assert.Equal(t, http.StatusNotFound, f.do("GET", "/workspaces/ws_missing", "").Code)
}

func TestInspectWorkspace(t *testing.T) {
	f := setup(t)

	w, err := f.workspaces.Open(context.Background(), workspace.ListenerFunc(func(workspace.Notification) {}))
	require.NoError(t, err)
	path := "/workspaces/" + w.ID().String() + "/dom"

	assert.Equal(t, http.StatusNotFound, f.do("GET", path+"?xpath=//p", "").Code, "nothing rendered yet")

	require.NoError(t, w.CodeChanged(`document.getElementById('root').innerHTML = '<p>one</p><p>two</p>';`))
	require.NoError(t, w.Run())
	require.Eventually(t, func() bool { return w.Snapshot().DOM != "" }, 3*time.Second, 5*time.Millisecond)

	rec := f.do("GET", path+"?xpath=//p", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	assert.Equal(t, http.StatusBadRequest, f.do("GET", path+"?xpath=//p[", "").Code)
	assert.Contains(t, decode(t, f.do("GET", path, ""))["dom"], "<p>two</p>")
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/workspaces/ws_missing/dom", "").Code)
}

func TestSandboxEvents(t *testing.T) {
	f := setup(t)

	batch := `{"mode":"dom","context_id":"ctx_1","events":[
		{"type":"CONSOLE_LOG","payload":"hello"},
		{"type":"RUNTIME_ERROR","payload":"ReferenceError: x is not defined"},
		{"type":"EXECUTE","payload":"nope"}
	]}`
	w := f.do("POST", "/sandbox-events", batch)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 3, body["events_received"])
	assert.EqualValues(t, 2, body["events_processed"])
	assert.EqualValues(t, 1, f.metrics.GetSnapshot().RuntimeErrors)

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/sandbox-events", `{"mode":"dom","events":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/sandbox-events", `{"mode":"cobol","events":[{"type":"CONSOLE_LOG"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/sandbox-events", `{"events":[]}`).Code)
}

func TestRelayable(t *testing.T) {
	assert.True(t, relayable(protocol.ConsoleWarn))
	assert.False(t, relayable(protocol.DOMSnapshot))
	assert.False(t, relayable(protocol.Execute))
}

func TestMetricsEndpoints(t *testing.T) {
	f := setup(t)
	f.metrics.RecordProviderError("assets", "p5", "network")

	w := f.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "assets")

	w = f.do("GET", "/metrics/json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "summary")
}

func TestAcceptsGzip(t *testing.T) {
	assert.True(t, acceptsGzip("gzip"))
	assert.True(t, acceptsGzip("deflate, gzip;q=1.0"))
	assert.True(t, acceptsGzip("*"))
	assert.False(t, acceptsGzip("br"))
	assert.False(t, acceptsGzip(""))
}
