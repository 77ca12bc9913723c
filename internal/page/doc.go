// Package page models the single host page every sub-application shares.
//
// A Page owns one goja runtime. Its global object is the real window; the
// package adds a document backed by golang.org/x/net/html nodes, an
// EventTarget implementation, location and a history stack, timers driven
// by RunPending, and a console that is captured and mirrored to zap.
//
// goja runtimes are not safe for concurrent use. Every access from outside
// JavaScript callbacks must go through Do, which serializes callers.
package page
