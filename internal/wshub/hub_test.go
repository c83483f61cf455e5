// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package wshub

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/metrics"
	"github.com/momentics/multiproto/internal/wsproto"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientCh := make(chan net.Conn, 1)
	go func() {
		c, _ := net.Dial("tcp", ln.Addr().String())
		clientCh <- c
	}()
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return server, <-clientCh
}

func TestRegisterRemove(t *testing.T) {
	server, client := pipePair(t)
	defer server.Close()
	defer client.Close()

	h := New(metrics.New(), lifecycle.New())
	h.Register("c1", server)
	if h.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", h.Len())
	}
	h.Remove("c1")
	if h.Len() != 0 {
		t.Fatalf("expected 0 connections, got %d", h.Len())
	}
}

func TestDispatchSystemMetricsRespondsToClient(t *testing.T) {
	server, client := pipePair(t)
	defer server.Close()
	defer client.Close()

	h := New(metrics.New(), lifecycle.New())
	h.Dispatch(server, "system_metrics")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, consumed, err := wsproto.Decode(buf[:n])
	if err != nil || frame == nil {
		t.Fatalf("decode: %v frame=%v", err, frame)
	}
	if consumed != n {
		t.Fatalf("expected single complete frame, consumed=%d n=%d", consumed, n)
	}
	if frame.Opcode != wsproto.OpText {
		t.Fatalf("expected text opcode, got %v", frame.Opcode)
	}
}

func TestBroadcastOnceEvictsDeadConnections(t *testing.T) {
	server, client := pipePair(t)
	client.Close() // force writes on server to fail

	h := New(metrics.New(), lifecycle.New())
	h.Register("dead", server)
	h.BroadcastOnce()

	if h.Len() != 0 {
		t.Fatalf("expected dead connection to be evicted, Len=%d", h.Len())
	}
	server.Close()
}
