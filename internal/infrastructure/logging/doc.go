// Package logging builds the zap loggers used across the playground.
//
// Production loggers write JSON; development loggers write coloured console
// lines. The level comes from config and can be changed at runtime with
// SetLevel, which the server does when -dev is passed.
//
// Sandbox code is noisy, so per-context loggers are derived with Sandbox and
// user console output is logged at debug level:
//
//	logger := logging.NewDefault()
//	ctxLog := logger.Sandbox("express", contextID)
//	ctxLog.Debug("console.log", zap.String("text", line))
package logging
