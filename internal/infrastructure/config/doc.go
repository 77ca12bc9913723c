// Package config provides 12-factor configuration management for microhost.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Page: Host page URL, script timeout and timer tick
//   - Sandbox: Plugin file, element tag name and per-app defaults
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - PAGE_URL, SCRIPT_TIMEOUT, PAGE_TIMER_INTERVAL
//   - SANDBOX_PLUGINS_FILE, SANDBOX_TAG_NAME, SANDBOX_DISABLED,
//     SANDBOX_DISABLE_MEMORY_ROUTER, SANDBOX_DISABLE_PATCH_REQUEST,
//     SANDBOX_KEEP_ROUTER_STATE.
package config
