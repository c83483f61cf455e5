// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"sync"
)

// ConfigStore holds a single typed configuration snapshot of type T with
// atomic replacement and hot-reload listener support. T is whatever
// fixed-schema config struct the owning component uses — server.Config,
// for instance — rather than an untyped key/value map, so a caller asking
// for the current snapshot gets the same struct it started with.
type ConfigStore[T any] struct {
	mu        sync.RWMutex
	snapshot  T
	listeners []func(T)
}

// NewConfigStore initializes a new config store holding T's zero value
// until the first SetConfig.
func NewConfigStore[T any]() *ConfigStore[T] {
	return &ConfigStore[T]{}
}

// GetSnapshot returns the current configuration value.
func (cs *ConfigStore[T]) GetSnapshot() T {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.snapshot
}

// SetConfig replaces the stored snapshot and dispatches reload listeners
// with the new value.
func (cs *ConfigStore[T]) SetConfig(cfg T) {
	cs.mu.Lock()
	cs.snapshot = cfg
	listeners := append([]func(T){}, cs.listeners...)
	cs.mu.Unlock()
	cs.dispatchReload(cfg, listeners)
}

// OnReload registers a listener hook called with the new snapshot on
// every config change.
func (cs *ConfigStore[T]) OnReload(fn func(T)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes every listener with cfg in its own goroutine so
// a slow listener never blocks SetConfig's caller.
func (cs *ConfigStore[T]) dispatchReload(cfg T, listeners []func(T)) {
	for _, fn := range listeners {
		go fn(cfg)
	}
}
