// File: api/shutdown.go
// Package api defines the contracts shared across the server's components.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by any component that owns background
// goroutines or file descriptors and must release them on teardown.
type GracefulShutdown interface {
	// Shutdown performs an orderly stop and releases held resources.
	// Returns an error only if teardown could not complete cleanly.
	Shutdown() error
}
