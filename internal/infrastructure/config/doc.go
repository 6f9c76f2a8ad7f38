// Package config provides 12-factor configuration for the playground server.
//
// Values are layered: built-in defaults, then an optional TOML file named by
// PLAYGROUND_CONFIG, then environment variables. Every layer only overrides
// the fields it sets.
//
// Configuration Sections:
//   - Server: listen address, allowed CORS origins, shutdown grace period
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - Sandbox: isolated context budgets and workspace limits
//   - Storage: snippet store driver ("memory" or "sqlite") and path
//   - Assets: the proxy for capability scripts (babel, p5, react)
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, ALLOW_ORIGINS, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - SANDBOX_EXEC_TIMEOUT, SANDBOX_REQUEST_TIMEOUT, SANDBOX_FLASH_DURATION, ...
//   - STORAGE_DRIVER, STORAGE_PATH
//   - ASSETS_PROXY, ASSETS_TIMEOUT, ASSETS_RETRIES, ASSETS_CACHE_TTL
package config
