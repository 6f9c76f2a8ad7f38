// Package server wires the playground backend together.
//
// NewServer builds, in order:
//  1. Logger from the logging config
//  2. Prometheus metrics and the span tracer
//  3. Snippet store (memory or sqlite)
//  4. Template generator, optionally pointing capabilities at /assets
//  5. Asset proxy provider
//  6. Workspace manager over goja-backed contexts
//  7. Gin router with recovery, tracing, logging, metrics, CORS and rate limiting
//  8. HTTP and WebSocket routes
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
