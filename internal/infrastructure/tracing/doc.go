/*
Package tracing provides lightweight request tracing for the playground server.

# Overview

Every HTTP request, WebSocket command and outbound asset fetch runs inside a
span. Spans of one request share a trace ID, which is echoed to the client
and forwarded upstream so a slow capability script can be followed from the
browser to the CDN.

# Usage

	tracer := tracing.New("playground", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "assets.fetch")
	tracing.Inject(ctx, req.Header)
	defer tracer.Submit(span)

# Trace Format

- X-Trace-ID: identifier for the entire request flow
- X-Span-ID: identifier for the current operation

Finished spans are buffered (1000) and written to the log at debug level, or
at warn level when they carry an error.
*/
package tracing
