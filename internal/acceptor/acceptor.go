// File: internal/acceptor/acceptor.go
// Package acceptor implements the listen socket, readiness poll, and
// content-based protocol dispatch described by the spec's Acceptor
// component.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/transport.WebSocketListener's net.Listen-based
// accept loop, generalized from a WebSocket-only listener to one that
// detects and routes to all three protocols, and wired to
// golang.org/x/sys/unix for SO_REUSEADDR the way the teacher reaches for
// raw syscalls elsewhere in its transport layer.

package acceptor

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/multiproto/internal/connset"
	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/registry"
	"github.com/momentics/multiproto/internal/workerpool"
)

// detectBufSize is the number of bytes read before a protocol decision is
// made: enough to hold the full HTTP/2 preface.
const detectBufSize = 24

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Handlers bundles the per-protocol entry points the detector dispatches
// into. Each receives exclusive ownership of conn.
type Handlers struct {
	ServeHTTP1 func(conn net.Conn)
	ServeH2C   func(conn net.Conn, buffered []byte)
	ServeTLS   func(conn net.Conn)
}

// Acceptor binds a TCP listener and dispatches each accepted connection,
// through the worker pool, to one of the protocol handlers selected by
// content-based detection.
type Acceptor struct {
	Addr string

	Pool     *workerpool.Pool
	Coord    *lifecycle.Coordinator
	Registry *registry.Registry
	Table    *connset.Table

	Handlers Handlers

	// EnableH2C gates the HTTP/2 cleartext preface check; when false
	// every connection is treated as HTTP/1.1 after detection.
	EnableH2C bool
	// EnableTLS gates the TLS byte-0x16 check.
	EnableTLS bool
}

// Listen binds Addr with SO_REUSEADDR set via a raw syscall, matching the
// teacher's pattern of reaching for golang.org/x/sys/unix instead of
// accepting Go's un-configurable socket defaults.
func (a *Acceptor) Listen() (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(nil, "tcp", a.Addr)
}

// Run loops on ln.Accept with a 1-second readiness deadline so shutdown
// is observed promptly, dispatching each accepted connection as a worker
// pool task that owns exactly that descriptor.
func (a *Acceptor) Run(ln net.Listener) {
	tcpLn, hasDeadline := ln.(*net.TCPListener)

	for !a.Coord.IsShutdownRequested() {
		if hasDeadline {
			_ = tcpLn.SetDeadline(time.Now().Add(time.Second))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if a.Coord.IsShutdownRequested() {
				return
			}
			continue
		}

		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
		a.Registry.Register(conn)
		a.Table.Touch(conn)

		submitErr := a.Pool.Submit(func() {
			a.handleConnection(conn)
		})
		if submitErr != nil {
			a.Registry.Unregister(conn)
			a.Table.Remove(conn)
			_ = conn.Close()
		}
	}
}

func (a *Acceptor) handleConnection(conn net.Conn) {
	defer func() {
		a.Registry.Unregister(conn)
		a.Table.Remove(conn)
	}()

	buf := make([]byte, detectBufSize)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	n, err := readAtLeastAvailable(conn, buf)
	if err != nil && n == 0 {
		_ = conn.Close()
		return
	}
	head := buf[:n]

	if a.EnableTLS && len(head) > 0 && head[0] == 0x16 {
		if a.Handlers.ServeTLS != nil {
			a.Handlers.ServeTLS(withPrefetched(conn, head))
		} else {
			_ = conn.Close()
		}
		return
	}

	if a.EnableH2C && len(head) == detectBufSize && string(head) == http2Preface {
		if a.Handlers.ServeH2C != nil {
			a.Handlers.ServeH2C(conn, nil)
		} else {
			_ = conn.Close()
		}
		return
	}

	if a.Handlers.ServeHTTP1 != nil {
		a.Handlers.ServeHTTP1(withPrefetched(conn, head))
	} else {
		_ = conn.Close()
	}
}

// readAtLeastAvailable reads up to len(buf) bytes, returning as soon as at
// least one read succeeds rather than blocking for a full buffer: a short
// HTTP/1.1 request line may be shorter than detectBufSize.
func readAtLeastAvailable(conn net.Conn, buf []byte) (int, error) {
	n, err := conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	return n, err
}
