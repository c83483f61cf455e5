// File: server/types.go
// Package server wires the acceptor, worker pool, protocol handlers,
// reaper, websocket hub, and metrics registry into the running process
// described by SPEC_FULL.md.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on server.Config / server.DefaultConfig, generalized from the
// teacher's zero-copy I/O knobs to the flag surface spec.md §6 names.

package server

import "time"

// Config holds every server-side tunable named by spec.md §6's CLI
// contract, plus TLS/HTTP2/push toggles the ambient expansion adds.
type Config struct {
	ListenAddr      string
	DocRoot         string
	Threads         int
	KeepAlive       bool
	Timeout         time.Duration
	ShutdownTimeout time.Duration

	EnableTLS   bool
	TLSCertFile string
	TLSKeyFile  string
	EnableH2C   bool
	EnablePush  bool
}

// DefaultConfig returns the server's defaults absent any CLI flags.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9000",
		DocRoot:         ".",
		Threads:         4,
		KeepAlive:       true,
		Timeout:         30 * time.Second,
		ShutdownTimeout: 3 * time.Second,
		EnableTLS:       false,
		TLSCertFile:     "",
		TLSKeyFile:      "",
		EnableH2C:       true,
		EnablePush:      true,
	}
}
