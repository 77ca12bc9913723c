// Package host orchestrates sub-applications on the shared page.
//
// A Host owns the page coordinator, the data hub and the instance registry.
// It validates start options, registers apps from their markup, mounts and
// unmounts them through their sandboxes and fans lifecycle events out to
// subscribers.
//
// Every method locks the host and then holds the page through page.Do, so
// callers may use a Host from any goroutine.
package host
