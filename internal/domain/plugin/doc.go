// Package plugin loads sandbox plugin declarations.
//
// A declaration file lists plugins applied to every app (global) and plugins
// applied per app (modules). Module keys are app names or doublestar glob
// patterns. Plugins contribute scope and escape property names to the
// sandbox key classifier.
package plugin
