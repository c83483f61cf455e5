// File: internal/registry/registry.go
// Package registry implements the Socket Registry: a weak membership set
// of currently-open client descriptors used only for forced teardown during
// shutdown. The owning handler task retains exclusive read/write access to
// its descriptor; the Registry never reads or writes connection data.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on adapters.ControlAdapter's pattern of holding a small,
// independently-locked registry of live resources behind a narrow
// interface, adapted here from config/metrics bookkeeping to socket
// membership.

package registry

import (
	"net"
	"sync"
)

// Registry holds non-owning membership of open connections.
type Registry struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[net.Conn]struct{})}
}

// Register adds conn to the set. The caller retains ownership.
func (r *Registry) Register(conn net.Conn) {
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes conn from the set. Safe to call even if conn was
// never registered or was already removed.
func (r *Registry) Unregister(conn net.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
}

// Len reports the number of currently-registered descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll forcibly shuts down every registered descriptor and clears the
// set. Used only during shutdown's forced-teardown escalation: the owning
// task observes EOF/EBADF on its next read and exits on its own.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[net.Conn]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
