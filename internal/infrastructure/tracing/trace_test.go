package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("playground", zap.New(core)), logs
}

func TestChildSpanContinuesTrace(t *testing.T) {
	tracer, _ := observed()
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, ctx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(ctx))
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestInjectExtractRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), "trace-1", "span-1")
	h := http.Header{}
	Inject(ctx, h)

	traceID, spanID := Extract(h)
	assert.Equal(t, TraceID("trace-1"), traceID)
	assert.Equal(t, SpanID("span-1"), spanID)

	empty := http.Header{}
	Inject(context.Background(), empty)
	assert.Empty(t, empty)
}

func TestCloseFlushesSpans(t *testing.T) {
	tracer, logs := observed()

	span, _ := tracer.StartSpan(context.Background(), "ok")
	tracer.Submit(span)
	failed, _ := tracer.StartSpan(context.Background(), "failed")
	failed.SetError(errors.New("upstream down"))
	tracer.Submit(failed)
	tracer.Close()
	tracer.Close()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "span completed", logs.All()[0].Message)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), logs.All()[1].ContextMap()["status"])

	// submitting after close is dropped
	late, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Submit(late)
	assert.Equal(t, 2, logs.Len())
}

func TestCommandRecordsErrors(t *testing.T) {
	tracer, logs := observed()

	err := tracer.Command(context.Background(), "run", func(ctx context.Context) error {
		assert.NotEmpty(t, GetTraceID(ctx))
		return errors.New("workspace closed")
	})
	assert.EqualError(t, err, "workspace closed")
	tracer.Close()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ws run", logs.All()[0].ContextMap()["operation"])
}

func TestHTTPMiddlewareEchoesTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := observed()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/modes/:mode", func(c *gin.Context) {
		assert.Equal(t, TraceID("abc"), GetTraceID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/modes/dom", nil)
	req.Header.Set(TraceHeader, "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	tracer.Close()

	assert.Equal(t, "abc", rec.Header().Get(TraceHeader))
	assert.NotEmpty(t, rec.Header().Get(SpanHeader))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET /modes/:mode", fields["operation"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}
