package assets

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/playground/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

const script = `window.p5 = function p5() {};`

type origin struct {
	*httptest.Server
	hits        atomic.Int32
	conditional atomic.Int32
	status      atomic.Int32

	mu      sync.Mutex
	traceID string
}

func newOrigin(t *testing.T) *origin {
	o := &origin{}
	o.status.Store(http.StatusOK)
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		o.mu.Lock()
		o.traceID = r.Header.Get(tracing.TraceHeader)
		o.mu.Unlock()

		if status := int(o.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			o.conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		switch r.URL.Path {
		case "/p5.min.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Header().Set("ETag", `"v1"`)
			_, _ = io.WriteString(w, script)
		case "/plain.js":
			_, _ = w.Write([]byte(script))
		case "/huge.js":
			_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) catalog() map[string]mode.Capability {
	return map[string]mode.Capability{
		"p5":    {Name: "p5", URL: o.URL + "/p5.min.js", Proxy: true},
		"plain": {Name: "plain", URL: o.URL + "/plain.js", Proxy: true},
		"huge":  {Name: "huge", URL: o.URL + "/huge.js", Proxy: true},
		"gone":  {Name: "gone", URL: o.URL + "/gone.js", Proxy: true},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{Retries: 0, RetryWait: time.Millisecond, CacheTTL: time.Minute, MaxBytes: 1024}
}

func TestDefaultCatalogHoldsProxyableCapabilities(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, []string{"babel", "p5", "react", "react-dom"}, p.Names())
}

func TestGetCachesAndCompresses(t *testing.T) {
	o := newOrigin(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	p := New(testConfig(), WithCatalog(o.catalog()), WithClock(clk.Now))

	asset, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)
	assert.Equal(t, script, string(asset.Body))
	assert.Equal(t, "application/javascript; charset=utf-8", asset.ContentType)
	assert.Equal(t, `"v1"`, asset.ETag)

	zr, err := gzip.NewReader(bytes.NewReader(asset.Gzip))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, script, string(plain))

	_, err = p.Get(context.Background(), "p5")
	require.NoError(t, err)
	assert.Equal(t, int32(1), o.hits.Load(), "fresh entries are served from cache")
}

func TestStaleEntriesAreRevalidated(t *testing.T) {
	o := newOrigin(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	p := New(testConfig(), WithCatalog(o.catalog()), WithClock(clk.Now))

	first, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	second, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)

	assert.Equal(t, int32(1), o.conditional.Load())
	assert.Equal(t, first.Body, second.Body)
	assert.True(t, second.FetchedAt.After(first.FetchedAt))
}

func TestStaleEntryServedWhenOriginFails(t *testing.T) {
	o := newOrigin(t)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	p := New(testConfig(), WithCatalog(o.catalog()), WithClock(clk.Now))

	_, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)

	o.status.Store(http.StatusBadGateway)
	clk.Advance(2 * time.Minute)
	asset, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)
	assert.Equal(t, script, string(asset.Body))
}

func TestSniffedContentType(t *testing.T) {
	o := newOrigin(t)
	p := New(testConfig(), WithCatalog(o.catalog()))

	asset, err := p.Get(context.Background(), "plain")
	require.NoError(t, err)
	assert.Equal(t, "application/javascript; charset=utf-8", asset.ContentType)
}

func TestContentTypeKeepsExplicitCharset(t *testing.T) {
	assert.Equal(t, "text/javascript; charset=latin1", contentType("text/javascript; charset=latin1", []byte("x")))
	assert.Equal(t, "image/png", contentType("image/png", []byte("x")))
}

func TestErrors(t *testing.T) {
	o := newOrigin(t)
	p := New(testConfig(), WithCatalog(o.catalog()))

	_, err := p.Get(context.Background(), "left-pad")
	assert.ErrorIs(t, err, ErrUnknownAsset)

	_, err = p.Get(context.Background(), "huge")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = p.Get(context.Background(), "gone")
	var up *UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, http.StatusNotFound, up.Status)
	assert.Equal(t, resilience.StateClosed, p.BreakerState(), "client errors do not trip the breaker")
}

func TestServerErrorsOpenTheBreaker(t *testing.T) {
	o := newOrigin(t)
	o.status.Store(http.StatusServiceUnavailable)
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)
	p := New(testConfig(), WithCatalog(o.catalog()), WithMetrics(metrics))

	for i := 0; i < 5; i++ {
		_, err := p.Get(context.Background(), "p5")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, p.BreakerState())

	before := o.hits.Load()
	_, err := p.Get(context.Background(), "p5")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, o.hits.Load(), "open breaker does not reach the origin")

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("assets", "p5", "status_503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderErrors.WithLabelValues("assets", "p5", "circuit_open")))
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, script)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retries = 2
	p := New(cfg, WithCatalog(map[string]mode.Capability{"p5": {Name: "p5", URL: srv.URL, Proxy: true}}))

	asset, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)
	assert.Equal(t, script, string(asset.Body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTraceIsForwardedUpstream(t *testing.T) {
	o := newOrigin(t)
	tracer := tracing.New("test", nil)
	defer tracer.Close()
	p := New(testConfig(), WithCatalog(o.catalog()), WithTracer(tracer))

	span, ctx := tracer.StartSpan(context.Background(), "GET /assets/:name")
	_, err := p.Get(ctx, "p5")
	require.NoError(t, err)
	tracer.Submit(span)

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, string(span.TraceID), o.traceID)
}

func TestInvalidate(t *testing.T) {
	o := newOrigin(t)
	p := New(testConfig(), WithCatalog(o.catalog()))

	_, err := p.Get(context.Background(), "p5")
	require.NoError(t, err)
	p.Invalidate()
	_, err = p.Get(context.Background(), "p5")
	require.NoError(t, err)
	assert.Equal(t, int32(2), o.hits.Load())
	assert.Zero(t, o.conditional.Load(), "invalidated entries are fetched unconditionally")
}
