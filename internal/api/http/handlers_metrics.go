package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ActiveConnections int64   `json:"active_connections"`
	ActiveWorkspaces  int64   `json:"active_workspaces"`
	ActiveContexts    int64   `json:"active_contexts"`
	Runs              int64   `json:"runs"`
	RuntimeErrors     int64   `json:"runtime_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// RegisterMetrics mounts the Prometheus scrape endpoint and its JSON summary
func (h *Handlers) RegisterMetrics(r gin.IRouter, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/metrics/json", h.MetricsJSON)
}

// MetricsJSON returns the current metric values
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}
	snap := h.metrics.GetSnapshot()

	summary := MetricsSummary{
		TotalRequests:     snap.TotalRequests,
		ActiveConnections: snap.ActiveConnections,
		ActiveWorkspaces:  snap.ActiveWorkspaces,
		ActiveContexts:    snap.ActiveContexts,
		Runs:              snap.Runs,
		RuntimeErrors:     snap.RuntimeErrors,
		UptimeSeconds:     snap.UptimeSeconds,
	}
	if snap.RequestCount > 0 {
		summary.AverageLatencyMs = snap.TotalDuration / float64(snap.RequestCount) * 1000
	}
	if snap.TotalRequests > 0 {
		summary.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"summary":   summary,
	})
}
