// Package ws streams host events to WebSocket clients.
//
// Each connection subscribes to the host event broadcaster and receives app
// lifecycle events (created, beforemount, mounted, unmount, destroyed, error)
// and data events as JSON frames.
//
// Message Types (Client → Server):
//   - subscribe: Replace the app filter with {"apps": [...]}; empty means all
//   - ping: Application-level keep-alive
//
// Message Types (Server → Client):
//   - system: Connection established
//   - subscribed: Filter changed
//   - pong: Reply to ping
//   - <event type>: A host event in "payload"
//   - error: Unknown message
//
// Example Usage:
//
//	handler := ws.NewHandler(h, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
