// Package source splits the markup of a sub-application into the pieces the
// host renders and the scripts it runs.
//
// The markup head and body are renamed to micro-app-head and micro-app-body
// so they survive being rendered inside the host document. Inline scripts are
// pulled out in document order; external scripts, stylesheet links and image
// sources are completed against the app URL. Nothing is fetched.
package source
