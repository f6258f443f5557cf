// Package control's New picks the Service Controller Adapter appropriate
// for the host OS; the three OS-specific constructors live in
// factory_linux.go, factory_darwin.go, and factory_windows.go, gated by
// build tags so each platform links only its own adapter.
package control
