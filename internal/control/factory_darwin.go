//go:build darwin

package control

// New returns the Controller appropriate for the host operating system.
func New() Controller { return NewLaunchdController() }
