// Package main is the entry point for the microhost server.
//
// microhost keeps one simulated browser page and runs sub-applications
// inside it, each behind its own window and document proxies. An HTTP API
// registers, mounts and unmounts apps, runs scripts in their sandboxes and
// exchanges data with them.
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -plugins plugins.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown.
package main
