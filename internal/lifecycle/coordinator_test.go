// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package lifecycle

import (
	"testing"
	"time"
)

func TestRequestShutdownIsOneWayAndIdempotent(t *testing.T) {
	c := New()
	if c.IsShutdownRequested() {
		t.Fatal("expected RUNNING at construction")
	}
	c.RequestShutdown()
	c.RequestShutdown() // must not panic on double-close
	if !c.IsShutdownRequested() {
		t.Fatal("expected DRAINING after RequestShutdown")
	}
}

func TestWaitForShutdownUnblocksImmediately(t *testing.T) {
	c := New()
	done := make(chan bool, 1)
	go func() {
		done <- c.WaitForShutdown(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	c.RequestShutdown()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected true once shutdown requested")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForShutdown did not unblock on signal")
	}
}

func TestWaitForShutdownTimesOutWithoutSignal(t *testing.T) {
	c := New()
	start := time.Now()
	ok := c.WaitForShutdown(20 * time.Millisecond)
	if ok {
		t.Fatal("expected false when no shutdown was signaled")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("returned earlier than the requested timeout")
	}
}

func TestWaitForAllThreadsBound(t *testing.T) {
	c := New()
	c.ThreadStarting()
	c.ThreadStarting()
	if c.ActiveThreads() != 2 {
		t.Fatalf("expected 2 active threads, got %d", c.ActiveThreads())
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.ThreadExiting()
		c.ThreadExiting()
	}()
	if !c.WaitForAllThreads(3 * time.Second) {
		t.Fatal("expected all threads to report exit within bound")
	}
	if c.ActiveThreads() != 0 {
		t.Fatal("expected zero active threads after exit")
	}
}

func TestWaitForAllThreadsExpiresWhenWorkerHangs(t *testing.T) {
	c := New()
	c.ThreadStarting()
	if c.WaitForAllThreads(20 * time.Millisecond) {
		t.Fatal("expected false when a thread never exits within the bound")
	}
}
