// Package interact implements data communication between the base
// application and its sub-applications.
//
// Each app has two channels: data the base sends to the app and data the
// app sends to the base. A third, global channel is shared by everyone.
// Payloads are JSON objects and are deep-copied on the way in and out, so
// two apps never hold the same mutable map.
//
// A Hub is owned by the page goroutine and is not safe for concurrent use.
package interact
