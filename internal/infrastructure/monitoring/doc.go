/*
Package monitoring provides Prometheus metrics for the playground server.

# Overview

Metrics cover HTTP requests, isolated context lifecycle, commands and
events per mode, simulated mock server responses, provider calls (the asset
proxy), workspaces and WebSocket connections.

Metrics implements host.Recorder, so a controller built with it records
mounts, teardowns and every message crossing the sandbox boundary.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	ctrl := host.New(host.Options{Recorder: metrics})

	timer := monitoring.NewTimer(metrics, "assets", "fetch")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
