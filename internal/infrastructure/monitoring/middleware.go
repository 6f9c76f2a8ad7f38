package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Get request size
		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		// Process request
		c.Next()

		// Label by route template; unmatched paths share one label
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		// Get response data
		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())

		// Record metrics
		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures a provider call. A nil metrics collector makes it a no-op.
type Timer struct {
	start    time.Time
	metrics  *Metrics
	provider string
	method   string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, provider, method string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		provider: provider,
		method:   method,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordProviderCall(t.provider, t.method, status, time.Since(t.start))
}
