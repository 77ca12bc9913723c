// Package globals holds the process-wide global name tables and the key
// classifier that routes each property of a sandboxed window.
package globals

import "strings"

// ReservedPrefix marks sandbox bookkeeping keys. Keys with this prefix are
// always resolved against the app's own store.
const ReservedPrefix = "__MICRO_APP_"

// cachedGlobalKeys are read once at startup and never looked up again through
// a sandbox, so the app cannot observe a later rewrite of them.
var cachedGlobalKeys = []string{
	"window", "self", "globalThis",
	"Array", "Object", "String", "Boolean", "Math", "Number", "Symbol", "Date",
	"Function", "Proxy", "WeakMap", "WeakSet", "Set", "Map", "Reflect",
	"Element", "Node", "Document", "RegExp", "Error", "TypeError", "JSON",
	"isNaN", "parseFloat", "parseInt", "performance", "console",
	"decodeURI", "encodeURI", "decodeURIComponent", "encodeURIComponent",
	"navigator", "undefined", "location", "history",
}

// StaticScopeProperties never leave the app store, whatever plugins declare.
var StaticScopeProperties = []string{
	"webpackJsonp",
	"webpackHotUpdate",
	"Vue",
}

// DevScopeProperties are added to the static scope list in development mode.
var DevScopeProperties = []string{
	"__REACT_ERROR_OVERLAY_GLOBAL_HOOK__",
	"__reactRefreshInjected",
}

// StaticEscapeProperties escape to the real window only when it does not
// already define them.
var StaticEscapeProperties = []string{
	"System",
	"__cjsWrapper",
}

// EscapeSetterKeys are written straight to the real window and never stored.
var EscapeSetterKeys = []string{
	"location",
}

// CachedGlobalKeys returns a copy of the names cached at startup.
func CachedGlobalKeys() []string {
	return append([]string(nil), cachedGlobalKeys...)
}

// IsReserved reports whether name uses the bookkeeping prefix.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
