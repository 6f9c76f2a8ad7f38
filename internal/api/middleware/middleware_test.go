package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORSWildcard(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig()))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantHeader string
	}{
		{"simple GET with origin", "GET", "http://localhost:3000", http.StatusOK, "*"},
		{"preflight", "OPTIONS", "http://localhost:3000", http.StatusNoContent, "*"},
		{"no origin header", "GET", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.origin != "" {
				headers["Origin"] = tt.origin
			}
			if tt.method == "OPTIONS" {
				headers["Access-Control-Request-Method"] = "PUT"
			}
			w := serve(router, tt.method, "/test", headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSExplicitOrigins(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig("https://editor.example.com")))

	w := serve(router, "GET", "/test", map[string]string{"Origin": "https://editor.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://editor.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(router, "GET", "/test", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(router, "GET", "/test", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitIsPerClient(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	req := func(ip string) int {
		r := httptest.NewRequest("GET", "/test", nil)
		r.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, req("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, req("10.0.0.1"))
	assert.Equal(t, http.StatusOK, req("10.0.0.2"))
}

func TestRateLimitExemptPaths(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Exempt: []string{"/health"}}
	router := setupTestRouter(RateLimit(cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, "GET", "/health", nil).Code)
	}
}

func TestIdleClientsAreEvicted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(RateLimitConfig{RequestsPerSecond: 10, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	require.True(t, l.Allow("10.0.0.3"))
	assert.Equal(t, 1, l.Len())
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, serve(router, "GET", "/test", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "/test", nil).Code)
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := setupTestRouter(Logger(zap.New(core)))
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	serve(router, "GET", "/test", nil)
	serve(router, "GET", "/missing", nil)
	serve(router, "GET", "/boom", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := setupTestRouter(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(router, "GET", "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Handler panicked").Len())
}
