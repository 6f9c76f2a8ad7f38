// Package ws streams a playground workspace over a WebSocket.
//
// Each connection opens one workspace. Commands from the editor are applied
// in order and answered with an ack or an error carrying the command's id;
// workspace notifications are pushed as they happen.
//
// Message Types (Client → Server):
//   - select_mode {mode}: switch environment
//   - code_changed {code}: record and persist editor text
//   - run: execute the current code
//   - reset: restore the starter code
//   - theme {theme}: light or dark
//   - request {method, path}: call the mock server
//   - lock {locked}: toggle the read-only hint
//   - snapshot: fetch the full state
//   - ping: keep-alive
//
// Message Types (Server → Client):
//   - welcome: workspace and trace IDs
//   - state, log, server, response, dom, readonly: workspace notifications
//   - ack, error: command results
//   - pong
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, tracer, logger, cfg.Server.AllowOrigins...)
//	router.GET("/stream", handler.HandleConnection)
package ws
