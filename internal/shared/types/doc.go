// Package types provides shared data structures for microhost.
//
// Core Types:
//   - Instance: one registered sub-application and its lifecycle state
//   - State, KeepAliveState: lifecycle enums
//   - Stats: registry statistics
//   - Event: host notification for stream subscribers
//
// Request Types:
//   - CreateAppRequest, UnmountRequest: app lifecycle
//   - ScriptRequest, ScriptResult: script execution
//   - NavigateRequest: real history navigation
//   - WSMessage: stream client messages.
package types
