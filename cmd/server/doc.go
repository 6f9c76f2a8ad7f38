// Package main is the entry point for the code playground backend.
//
// The server hosts isolated contexts for the editor: it renders sandbox
// documents, runs user code in goja-backed contexts, mirrors their mock
// servers and streams everything to the UI over a WebSocket.
//
// The server provides:
//   - REST API for modes, documents, snippets and workspaces
//   - WebSocket streaming of workspace state at /stream
//   - A caching proxy for capability scripts at /assets
//   - Prometheus metrics
//
// Configuration:
//   - Defaults, then the TOML file named by -config or PLAYGROUND_CONFIG
//   - Environment variables (12-factor) override the file
//   - CLI flags override both
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -config playground.toml
//
// Graceful Shutdown:
//
// SIGINT and SIGTERM stop accepting requests, close every workspace and the
// snippet store.
package main
