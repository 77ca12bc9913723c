// Package router gives each sub-application a virtual location and history.
//
// The app's path lives in the query of the real page URL, keyed by app name
// (?app-a=%2Fchild%2Fpage), and its history state lives under
// history.state.__MICRO_APP_STATE__[app]. Native popstate events on the real
// window are translated into popstate-<app> and hashchange-<app> events for
// the apps that are mounted and visible.
//
// Every function here touches the page runtime and must run inside page.Do.
package router
