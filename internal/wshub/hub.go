// File: internal/wshub/hub.go
// Package wshub implements the WebSocket connection map, broadcast and ping
// loops, and the per-connection command dispatch described by the spec's
// WebSocket subsystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/websocket.Connection's ticker-driven keepAlive loop
// and messageLoop dispatch, generalized from a single connection to a
// shared map with broadcast fan-out. The try-lock-with-timeout discipline
// follows the lock-hierarchy guidance in the teacher's adapters.ControlAdapter,
// which favors a bounded attempt over an unbounded Lock() on background loops.

package wshub

import (
	"net"
	"sync"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/metrics"
	"github.com/momentics/multiproto/internal/wsproto"
)

// clientConn is one tracked WebSocket peer.
type clientConn struct {
	id       string
	conn     net.Conn
	lastPing time.Time
}

// Hub owns the map of active WebSocket connections and the background
// broadcast/ping loops that fan out system metrics to all of them.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*clientConn

	metrics *metrics.Registry
	coord   *lifecycle.Coordinator

	tickCount int
}

// New returns an empty Hub bound to the given metrics registry and
// shutdown coordinator.
func New(m *metrics.Registry, coord *lifecycle.Coordinator) *Hub {
	return &Hub{conns: make(map[string]*clientConn), metrics: m, coord: coord}
}

// Register adds conn to the hub under id, replacing the reader's private
// view with the hub's shared send discipline.
func (h *Hub) Register(id string, conn net.Conn) {
	h.mu.Lock()
	h.conns[id] = &clientConn{id: id, conn: conn, lastPing: time.Now()}
	h.mu.Unlock()
}

// Remove drops id from the map without closing the descriptor; callers
// that intend to close must do so themselves after calling Remove.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Len reports the number of currently registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// tryLock attempts to acquire the hub's mutex within timeout, returning
// false if it could not. Background loops use this instead of a plain
// Lock() so a shutdown observer is never starved behind a long hold.
func (h *Hub) tryLock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if h.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// snapshot returns a copy of the current connection list, taken under a
// timed lock attempt. Returns nil if the lock could not be obtained within
// timeout, signaling the caller to skip this iteration.
func (h *Hub) snapshot(timeout time.Duration) []*clientConn {
	if !h.tryLock(timeout) {
		return nil
	}
	out := make([]*clientConn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	h.mu.Unlock()
	return out
}

// send writes an encoded frame to conn, suppressing broken-pipe style
// errors: a peer that has gone away concurrently is not a fatal condition
// for the caller, only a signal to evict it.
func send(conn net.Conn, opcode wsproto.Opcode, payload []byte) bool {
	frame, err := wsproto.Encode(opcode, payload, false)
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	_, err = conn.Write(frame)
	return err == nil
}

// BroadcastOnce sends one system-metrics snapshot to every connection, and
// additionally a request-rate snapshot every fifth call, evicting any
// connection whose send fails. It is meant to be invoked once per tick by
// BroadcastLoop, but is exposed standalone for testing.
func (h *Hub) BroadcastOnce() {
	conns := h.snapshot(200 * time.Millisecond)
	if conns == nil {
		return
	}
	h.tickCount++

	metricsPayload, err := h.metrics.SystemMetricsJSON()
	if err == nil {
		h.broadcastPayload(conns, metricsPayload)
	}
	if h.tickCount%5 == 0 {
		ratePayload, err := h.metrics.RequestRateJSON()
		if err == nil {
			h.broadcastPayload(conns, ratePayload)
		}
	}
}

func (h *Hub) broadcastPayload(conns []*clientConn, payload []byte) {
	var dead []string
	for _, c := range conns {
		if !send(c.conn, wsproto.OpText, payload) {
			dead = append(dead, c.id)
		}
	}
	for _, id := range dead {
		h.Remove(id)
	}
}

// BroadcastLoop runs BroadcastOnce every second until shutdown is
// requested.
func (h *Hub) BroadcastLoop() {
	for !h.coord.IsShutdownRequested() {
		if h.coord.WaitForShutdown(time.Second) {
			return
		}
		h.BroadcastOnce()
	}
}

// PingOnce sends a ping to every connection, evicting any whose send
// fails and updating lastPing on success.
func (h *Hub) PingOnce() {
	conns := h.snapshot(500 * time.Millisecond)
	if conns == nil {
		return
	}
	var dead []string
	now := time.Now()
	for _, c := range conns {
		if send(c.conn, wsproto.OpPing, nil) {
			c.lastPing = now
		} else {
			dead = append(dead, c.id)
		}
	}
	for _, id := range dead {
		h.Remove(id)
	}
}

// PingLoop runs PingOnce every 30 seconds until shutdown is requested.
func (h *Hub) PingLoop() {
	for !h.coord.IsShutdownRequested() {
		if h.coord.WaitForShutdown(30 * time.Second) {
			return
		}
		h.PingOnce()
	}
}

// Dispatch interprets a TEXT command payload and sends the matching JSON
// snapshot back to the originating connection. Unknown commands are
// ignored.
func (h *Hub) Dispatch(conn net.Conn, command string) {
	var payload []byte
	var err error
	switch command {
	case "request_metrics":
		payload, err = h.metrics.MetricsJSON()
	case "request_rate":
		payload, err = h.metrics.RequestRateJSON()
	case "system_metrics":
		payload, err = h.metrics.SystemMetricsJSON()
	default:
		return
	}
	if err != nil {
		return
	}
	send(conn, wsproto.OpText, payload)
}
