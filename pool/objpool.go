// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/multiproto/api"
)

// SyncPool wraps sync.Pool for generic reuse of any api.ObjectPool element
// type, additionally tracking lifetime get/put counts so a caller can
// register a debug probe reporting how hard a given pool is being worked
// (see internal/h2proto's stream pool, wired into server.Control).
type SyncPool[T any] struct {
	pool *sync.Pool
	gets int64
	puts int64
}

var _ api.ObjectPool[int] = (*SyncPool[int])(nil)

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	return &SyncPool[T]{
		pool: &sync.Pool{New: func() any { return creator() }},
	}
}

func (sp *SyncPool[T]) Get() T {
	atomic.AddInt64(&sp.gets, 1)
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	atomic.AddInt64(&sp.puts, 1)
	sp.pool.Put(obj)
}

// Stats reports the lifetime Get/Put counts. gets-puts approximates the
// number of objects currently checked out, not leaked: sync.Pool may also
// drop entries under GC pressure without a matching Put.
func (sp *SyncPool[T]) Stats() (gets, puts int64) {
	return atomic.LoadInt64(&sp.gets), atomic.LoadInt64(&sp.puts)
}
