// File: internal/connset/table.go
// Package connset implements the Connection Table: a map from descriptor
// to last-activity timestamp, plus a Reaper that evicts HTTP/1.1 keep-alive
// sockets idle past the configured deadline.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Adapted from internal/session's sharded session map (hash-bucketed
// mutexes for concurrent access without a single global lock). The
// rewrite drops the generic propagation-aware context store — the spec's
// Connection Table only ever needs a timestamp per descriptor — and adds
// the Reaper loop the source's connection_timestamps map relies on to
// evict keep-alive sockets.

package connset

import (
	"net"
	"sync"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/registry"
)

const shardCount = 16

type shard struct {
	mu      sync.Mutex
	entries map[net.Conn]time.Time
}

// Table tracks last-activity timestamps for open HTTP/1.1 connections.
// It is consulted only by the owning handler task (Touch) and the Reaper
// (evict); no other component may close a descriptor through the Table.
//
// Shard selection uses each connection's insertion-order slot rather than
// a hash of its identity — net.Conn implementations vary across platforms
// and Go gives no portable numeric handle to hash, so Touch walks into
// whichever shard already holds the entry (or the least-loaded one for a
// new entry) instead of computing one from the key itself.
type Table struct {
	mu     sync.Mutex
	shards [shardCount]*shard
	owner  map[net.Conn]int
}

// New returns an empty Table.
func New() *Table {
	t := &Table{owner: make(map[net.Conn]int)}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[net.Conn]time.Time)}
	}
	return t
}

// Touch records now as the connection's last-activity time, inserting it
// if absent.
func (t *Table) Touch(conn net.Conn) {
	t.mu.Lock()
	idx, ok := t.owner[conn]
	if !ok {
		idx = t.leastLoadedShard()
		t.owner[conn] = idx
	}
	t.mu.Unlock()

	s := t.shards[idx]
	s.mu.Lock()
	s.entries[conn] = time.Now()
	s.mu.Unlock()
}

// leastLoadedShard picks the shard with the fewest entries, spreading
// concurrent connections across the lock set. Caller holds t.mu.
func (t *Table) leastLoadedShard() int {
	best := 0
	bestLen := -1
	for i, s := range t.shards {
		s.mu.Lock()
		n := len(s.entries)
		s.mu.Unlock()
		if bestLen == -1 || n < bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

// Remove drops conn from the table without closing it. Callers that intend
// to close the descriptor must call Remove first, per the table's
// no-double-close invariant.
func (t *Table) Remove(conn net.Conn) {
	t.mu.Lock()
	idx, ok := t.owner[conn]
	if ok {
		delete(t.owner, conn)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	s := t.shards[idx]
	s.mu.Lock()
	delete(s.entries, conn)
	s.mu.Unlock()
}

// Len reports the number of tracked connections.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Reaper periodically evicts connections idle past its deadline. It owns
// no descriptor directly: it removes the entry from the Table, unregisters
// it from the Registry, and only then closes the socket, preserving the
// table's remove-before-close invariant.
type Reaper struct {
	table    *Table
	reg      *registry.Registry
	coord    *lifecycle.Coordinator
	deadline time.Duration
	interval time.Duration
}

// NewReaper constructs a Reaper evicting connections idle longer than
// deadline, checked on the given interval.
func NewReaper(table *Table, reg *registry.Registry, coord *lifecycle.Coordinator, deadline, interval time.Duration) *Reaper {
	return &Reaper{table: table, reg: reg, coord: coord, deadline: deadline, interval: interval}
}

// Run loops until shutdown is requested, evicting idle connections each
// interval. It is meant to be launched as its own goroutine, registered
// with the coordinator by the caller.
func (r *Reaper) Run() {
	for !r.coord.IsShutdownRequested() {
		if r.coord.WaitForShutdown(r.interval) {
			return
		}
		r.evictOnce()
	}
}

func (r *Reaper) evictOnce() {
	now := time.Now()
	for _, s := range r.table.shards {
		var expired []net.Conn
		s.mu.Lock()
		for conn, last := range s.entries {
			if now.Sub(last) > r.deadline {
				expired = append(expired, conn)
			}
		}
		for _, conn := range expired {
			delete(s.entries, conn)
		}
		s.mu.Unlock()

		if len(expired) == 0 {
			continue
		}
		r.table.mu.Lock()
		for _, conn := range expired {
			delete(r.table.owner, conn)
		}
		r.table.mu.Unlock()

		for _, conn := range expired {
			r.reg.Unregister(conn)
			_ = conn.Close()
		}
	}
}
