// Package middleware provides the HTTP middleware stack of the playground
// server.
//
//   - CORS: cross-origin access for editor front ends, "*" allows any origin
//   - RateLimit: per-IP token buckets whose idle entries are evicted
//   - Logger: one zap line per request, tagged with the trace ID
//   - Recovery: panics become 500 responses
//
// Example Usage:
//
//	router.Use(middleware.Recovery(log), middleware.Logger(log))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins...)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
