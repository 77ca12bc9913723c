// Package http provides HTTP handlers and routing for the microhost control API.
//
// This package exposes the host over Gin: app registration and lifecycle,
// script execution inside app sandboxes, data exchange with apps, and
// navigation of the real page history.
//
// Endpoints:
//   - Health: / and /health
//   - Apps: /apps, /apps/:name, /apps/:name/mount, /apps/:name/unmount
//   - Scripts: /apps/:name/exec, /apps/:name/eval, /apps/:name/globals/:key
//   - Data: /apps/:name/data, /global-data
//   - Page: /page/navigate, /page/back, /page/globals/:key, /page/console
//   - Metrics: /metrics/json
//
// Host errors map to status codes: unknown apps 404, duplicate apps and
// invalid lifecycle transitions 409, script exceptions 422, script timeouts 408.
//
// Example Usage:
//
//	handlers := http.NewHandlers(h, metrics, tracer, logger)
//	handlers.Register(router)
package http
