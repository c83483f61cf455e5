// File: internal/h2proto/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package h2proto

import "github.com/momentics/multiproto/pool"

// streamPool recycles Stream structs released on RST_STREAM or on
// response completion instead of allocating one per request.
var streamPool = pool.NewSyncPool[*Stream](func() *Stream { return &Stream{} })

// Priority records a stream's dependency, weight, and exclusivity as set
// by a PRIORITY frame or HEADERS frame priority fields. Defaults per
// RFC 7540: dependency=0, weight=16.
type Priority struct {
	Dependency uint32
	Weight     uint8
	Exclusive  bool
}

// DefaultPriority is the priority every stream starts with absent an
// explicit PRIORITY frame.
var DefaultPriority = Priority{Dependency: 0, Weight: 16}

// Stream is one HTTP/2 request/response exchange within a Session.
type Stream struct {
	ID uint32

	Method  string
	Path    string
	Headers map[string]string
	Body    []byte

	HeadersComplete bool
	RequestComplete bool

	ResponseStatus  int
	ResponseHeaders map[string]string
	ResponseBody    []byte
	sentBytes       int

	PendingPush []string

	Priority Priority

	sendWindow int32
}

func newStream(id uint32, initialWindow int32) *Stream {
	st := streamPool.Get()
	*st = Stream{
		ID:         id,
		Headers:    make(map[string]string),
		Priority:   DefaultPriority,
		sendWindow: initialWindow,
	}
	return st
}

// releaseStream returns st to the pool. Callers must not touch st after
// this call.
func releaseStream(st *Stream) {
	streamPool.Put(st)
}

// StreamPoolStats reports the stream pool's lifetime get/put counts, for
// a server.Control debug probe.
func StreamPoolStats() (gets, puts int64) {
	return streamPool.Stats()
}
