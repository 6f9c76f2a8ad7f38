package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/playground/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

const providerName = "assets"

var (
	ErrUnknownAsset = errors.New("unknown asset")
	ErrTooLarge     = errors.New("asset exceeds size limit")
)

// UpstreamError is a non-2xx answer from the asset origin
type UpstreamError struct {
	Status int
	URL    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.Status)
}

// Asset is a mirrored capability script
type Asset struct {
	Name        string
	URL         string
	ContentType string
	ETag        string
	Body        []byte
	Gzip        []byte
	FetchedAt   time.Time
}

// Config tunes the upstream client and the cache
type Config struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	CacheTTL  time.Duration
	MaxBytes  int64
	UserAgent string
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		Retries:   3,
		RetryWait: 500 * time.Millisecond,
		CacheTTL:  time.Hour,
		MaxBytes:  8 << 20,
		UserAgent: "playground-assets/1.0",
	}
}

// Option configures a Provider
type Option func(*Provider)

// WithCatalog replaces the proxyable capabilities, keyed by name
func WithCatalog(catalog map[string]mode.Capability) Option {
	return func(p *Provider) { p.catalog = catalog }
}

// WithMetrics records upstream calls
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithTracer wraps fetches in spans and forwards the trace upstream
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Provider) { p.tracer = t }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// WithClock overrides time.Now for cache expiry
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// Provider mirrors capability scripts so sandbox documents can load them
// from the backend. Entries are cached for CacheTTL and revalidated with
// If-None-Match once stale.
type Provider struct {
	cfg     Config
	client  *resty.Client
	breaker *resilience.Breaker
	catalog map[string]mode.Capability
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	log     *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*Asset
}

// New creates a provider for the proxyable capabilities of the mode table
func New(cfg Config, opts ...Option) *Provider {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = d.RetryWait
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = d.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = d.UserAgent
	}

	p := &Provider{
		cfg:   cfg,
		log:   zap.NewNop(),
		now:   time.Now,
		cache: make(map[string]*Asset),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.catalog == nil {
		p.catalog = make(map[string]mode.Capability)
		for name, c := range mode.Capabilities() {
			if c.Proxy {
				p.catalog[name] = c
			}
		}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 4 * cfg.RetryWait
	retryClient.Logger = nil
	// Hand the last response to resty once retries run out so the status
	// reaches the breaker as an UpstreamError.
	retryClient.ErrorHandler = func(resp *http.Response, err error, _ int) (*http.Response, error) {
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}

	p.client = resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	p.breaker = resilience.New("assets-upstream", resilience.Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var up *UpstreamError
			if errors.As(err, &up) {
				return up.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			p.log.Warn("Asset breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return p
}

// Names lists the assets the provider serves
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.catalog))
	for name := range p.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerState reports the upstream circuit
func (p *Provider) BreakerState() resilience.State {
	return p.breaker.State()
}

// Get returns the named asset from the cache or the origin. A stale entry
// is served when revalidation fails.
func (p *Provider) Get(ctx context.Context, name string) (*Asset, error) {
	capability, ok := p.catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, name)
	}

	p.mu.RLock()
	cached := p.cache[name]
	p.mu.RUnlock()
	if cached != nil && p.now().Sub(cached.FetchedAt) < p.cfg.CacheTTL {
		return cached, nil
	}

	timer := monitoring.NewTimer(p.metrics, providerName, name)
	asset, err := resilience.Call(p.breaker, func() (*Asset, error) {
		return p.fetch(ctx, capability, cached)
	})
	if err != nil {
		timer.Stop("error")
		p.recordError(name, err)
		if cached != nil {
			p.log.Warn("Serving stale asset", zap.String("asset", name), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}
	timer.Stop("success")

	p.mu.Lock()
	p.cache[name] = asset
	p.mu.Unlock()
	return asset, nil
}

// Invalidate drops every cached asset
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*Asset)
}

func (p *Provider) fetch(ctx context.Context, c mode.Capability, cached *Asset) (*Asset, error) {
	var span *tracing.Span
	if p.tracer != nil {
		span, ctx = p.tracer.StartSpan(ctx, "assets.fetch")
		span.SetTag("asset", c.Name)
		defer p.tracer.Submit(span)
	}

	req := p.client.R().SetContext(ctx)
	tracing.Inject(ctx, req.Header)
	if cached != nil && cached.ETag != "" {
		req.SetHeader("If-None-Match", cached.ETag)
	}

	resp, err := req.Get(c.URL)
	if err != nil {
		if span != nil {
			span.SetError(err)
		}
		return nil, fmt.Errorf("fetch %s: %w", c.Name, err)
	}
	if span != nil {
		span.SetStatus(resp.StatusCode())
	}

	switch {
	case resp.StatusCode() == http.StatusNotModified && cached != nil:
		refreshed := *cached
		refreshed.FetchedAt = p.now()
		return &refreshed, nil
	case resp.StatusCode() >= http.StatusBadRequest:
		return nil, &UpstreamError{Status: resp.StatusCode(), URL: c.URL}
	}

	body := resp.Body()
	if int64(len(body)) > p.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, c.Name, len(body))
	}
	compressed, err := compress(body)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", c.Name, err)
	}

	p.log.Info("Asset fetched",
		zap.String("asset", c.Name),
		zap.Int("bytes", len(body)),
		zap.Int("gzip_bytes", len(compressed)))

	return &Asset{
		Name:        c.Name,
		URL:         c.URL,
		ContentType: contentType(resp.Header().Get("Content-Type"), body),
		ETag:        resp.Header().Get("ETag"),
		Body:        body,
		Gzip:        compressed,
		FetchedAt:   p.now(),
	}, nil
}

func (p *Provider) recordError(name string, err error) {
	if p.metrics == nil {
		return
	}
	kind := "network"
	var up *UpstreamError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		kind = "circuit_open"
	case errors.As(err, &up):
		kind = fmt.Sprintf("status_%d", up.Status)
	case errors.Is(err, ErrTooLarge):
		kind = "too_large"
	}
	p.metrics.RecordProviderError(providerName, name, kind)
}

// contentType prefers the origin's header and falls back to sniffing.
// Capabilities are scripts, so sniffed plain text is served as JavaScript.
func contentType(header string, body []byte) string {
	ct := header
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = mimetype.Detect(body).String()
		if strings.HasPrefix(ct, "text/plain") {
			ct = "application/javascript"
		}
	}
	if strings.Contains(ct, "charset=") {
		return ct
	}
	base := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	if !strings.HasPrefix(base, "text/") && base != "application/javascript" && base != "application/json" {
		return ct
	}
	return base + "; charset=" + detectCharset(body)
}

func detectCharset(body []byte) string {
	if isASCII(body) {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
