// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package connset

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/registry"
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
	client := <-clientCh
	return server, client
}

func TestTableTouchAndRemove(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()
	defer server.Close()

	tbl := New()
	tbl.Touch(server)
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 tracked connection, got %d", tbl.Len())
	}
	tbl.Remove(server)
	if tbl.Len() != 0 {
		t.Fatalf("expected 0 tracked connections after remove, got %d", tbl.Len())
	}
}

func TestReaperEvictsIdleConnections(t *testing.T) {
	server, client := pipePair(t)
	defer client.Close()

	tbl := New()
	reg := registry.New()
	reg.Register(server)
	tbl.Touch(server)

	coord := lifecycle.New()
	reaper := NewReaper(tbl, reg, coord, 10*time.Millisecond, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		reaper.Run()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tbl.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("reaper did not evict idle connection in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if reg.Len() != 0 {
		t.Fatal("expected reaper to unregister evicted connection")
	}
	coord.RequestShutdown()
	<-done
}
