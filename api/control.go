// File: api/control.go
// Package api defines the Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes runtime statistics and debug probes to the /api/stats
// endpoint and to operators, without coupling callers to the server's
// internal packages.
type Control interface {
	// Stats returns a snapshot of counters such as total requests,
	// active connections, worker count, and queue depth.
	Stats() map[string]any

	// RegisterDebugProbe registers a named callback whose result is
	// included in DumpDebug output.
	RegisterDebugProbe(name string, fn func() any)

	// DumpDebug evaluates every registered probe and returns the
	// combined snapshot.
	DumpDebug() map[string]any

	// ConfigSnapshot returns the effective startup configuration, as
	// resolved from CLI flags and defaults.
	ConfigSnapshot() map[string]any
}
