package tracing

import (
	"context"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := Extract(c.Request.Header)
		ctx := WithTrace(c.Request.Context(), traceID, parentID)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Submit(span)
	}
}

// Command traces one WebSocket command under the connection's trace
func (t *Tracer) Command(ctx context.Context, kind string, fn func(context.Context) error) error {
	span, ctx := t.StartSpan(ctx, "ws "+kind)
	err := fn(ctx)
	if err != nil {
		span.SetError(err)
	}
	t.Submit(span)
	return err
}
