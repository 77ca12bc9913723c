// Package sandbox isolates the globals of sub-applications sharing one page.
//
// Each SandBox owns a store object and a proxy over it that scripts see as
// their window. Reads fall through to the real window; writes land in the
// store unless a key is declared to escape. A Coordinator shared by every
// sandbox of a page counts active instances and installs the page-wide
// patches once for the first active sandbox, removing them with the last.
//
// All methods must be called while holding the page through page.Do.
package sandbox
