// File: internal/wshub/reader.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/websocket.Connection.messageLoop, rebuilt around a
// readiness-poll deadline instead of an unbounded blocking read so the
// shutdown coordinator can interrupt the loop promptly.

package wshub

import (
	"net"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/wsproto"
)

// ReadLoop owns conn exclusively for its lifetime: it registers with the
// hub, reads and dispatches frames until CLOSE or shutdown, then
// unregisters and closes the descriptor. id identifies the connection in
// the hub's map.
func ReadLoop(conn net.Conn, id string, hub *Hub, coord *lifecycle.Coordinator) {
	hub.Register(id, conn)
	defer func() {
		hub.Remove(id)
		_ = conn.Close()
	}()

	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	var pending []byte // buffered non-final TEXT fragments awaiting completion

	for !coord.IsShutdownRequested() {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(read)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		buf = append(buf, read[:n]...)

		for {
			frame, consumed, decodeErr := wsproto.Decode(buf)
			if decodeErr != nil {
				return
			}
			if frame == nil {
				break
			}
			buf = buf[consumed:]

			switch frame.Opcode {
			case wsproto.OpClose:
				return
			case wsproto.OpPing:
				send(conn, wsproto.OpPong, nil)
			case wsproto.OpPong:
				// no action required
			case wsproto.OpText:
				if !frame.Fin {
					pending = append(pending[:0], frame.Payload...)
					continue
				}
				hub.Dispatch(conn, string(frame.Payload))
			case wsproto.OpContinuation:
				if pending == nil {
					continue // no message in progress; drop per spec's minimum handling
				}
				pending = append(pending, frame.Payload...)
				if frame.Fin {
					hub.Dispatch(conn, string(pending))
					pending = nil
				}
			case wsproto.OpBinary:
				// parsed but not interpreted, per wire contract
			}
		}
	}
}
