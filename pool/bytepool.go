// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Grounded on pool.BytePool's NUMA-or-sync.Pool fallback shape; the
// NUMA-aware branch is dropped (no NUMA affinity layer exists in this
// rewrite) leaving a plain sync.Pool-backed fixed-size buffer pool that
// implements api.BytePool.

package pool

import (
	"sync"

	"github.com/momentics/multiproto/api"
)

// BytePool recycles fixed-size byte slices through a sync.Pool so
// connection read loops avoid reallocating a buffer per request.
type BytePool struct {
	pool sync.Pool
	size int
}

var _ api.BytePool = (*BytePool)(nil)

// NewBytePool returns a BytePool whose buffers are at least size bytes.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.pool.New = func() any { return make([]byte, b.size) }
	return b
}

// Acquire returns a buffer of at least n bytes. If n exceeds the pool's
// fixed size it allocates a fresh buffer of n bytes; the pool's size is
// unchanged.
func (b *BytePool) Acquire(n int) []byte {
	buf := b.pool.Get().([]byte)
	if len(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// Release returns a buffer to the pool for reuse.
func (b *BytePool) Release(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	b.pool.Put(buf[:b.size])
}
