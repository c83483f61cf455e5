// File: internal/metrics/metrics.go
// Package metrics implements the bounded request/system-snapshot history
// and JSON export described by the spec's Metrics subsystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on control.MetricsRegistry's mutex-guarded map-of-values
// pattern, generalized here to two bounded FIFO histories. The FIFO
// itself is backed by github.com/eapache/queue (present but unused in the
// teacher's own go.mod) instead of a hand-rolled slice-trim, matching the
// original PerformanceMetrics's std::queue-backed ring in
// src/handlers/websocket_handler.cpp.

package metrics

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/eapache/queue"
)

const (
	maxRequestHistory = 1000
	maxSystemHistory  = 300
)

// RequestRecord captures one completed HTTP/WebSocket request.
type RequestRecord struct {
	Timestamp  time.Time
	Method     string
	Path       string
	Status     int
	DurationMs float64
}

// SystemSnapshot captures one periodic sample of process/server state.
type SystemSnapshot struct {
	Timestamp         time.Time
	MemoryMB          uint64
	CPUPercent        float64
	ActiveConnections int
	TotalRequests     int64
	RequestsPerSecond float64
	QueueSize         int
	ThreadCount       int
}

// Registry holds the bounded request and system-snapshot histories plus
// the rolling per-minute request counter.
type Registry struct {
	mu sync.Mutex

	requests *queue.Queue // FIFO of RequestRecord, capacity maxRequestHistory
	systems  *queue.Queue // FIFO of SystemSnapshot, capacity maxSystemHistory

	totalRequests      int64
	requestsLastMin    int64
	lastMinuteBoundary time.Time
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		requests:           queue.New(),
		systems:            queue.New(),
		lastMinuteBoundary: time.Now(),
	}
}

// RecordRequest appends a request record, trimming the head once the
// history exceeds its capacity so only the most recent records survive.
func (r *Registry) RecordRequest(method, path string, status int, durationMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests.Add(RequestRecord{
		Timestamp:  time.Now(),
		Method:     method,
		Path:       path,
		Status:     status,
		DurationMs: durationMs,
	})
	for r.requests.Length() > maxRequestHistory {
		r.requests.Remove()
	}

	r.totalRequests++
	r.rolloverMinuteLocked()
	r.requestsLastMin++
}

func (r *Registry) rolloverMinuteLocked() {
	if time.Since(r.lastMinuteBoundary) >= time.Minute {
		r.requestsLastMin = 0
		r.lastMinuteBoundary = time.Now()
	}
}

// RecordSystemSnapshot appends a system snapshot, trimming the head past
// capacity.
func (r *Registry) RecordSystemSnapshot(s SystemSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Timestamp = time.Now()
	s.TotalRequests = r.totalRequests
	r.systems.Add(s)
	for r.systems.Length() > maxSystemHistory {
		r.systems.Remove()
	}
}

// TotalRequests returns the lifetime request counter.
func (r *Registry) TotalRequests() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalRequests
}

// RequestHistoryLen reports the number of request records currently held,
// capped at maxRequestHistory.
func (r *Registry) RequestHistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests.Length()
}

func (r *Registry) requestHistorySnapshotLocked() []RequestRecord {
	out := make([]RequestRecord, r.requests.Length())
	for i := 0; i < r.requests.Length(); i++ {
		out[i] = r.requests.Get(i).(RequestRecord)
	}
	return out
}

func (r *Registry) systemHistorySnapshotLocked() []SystemSnapshot {
	out := make([]SystemSnapshot, r.systems.Length())
	for i := 0; i < r.systems.Length(); i++ {
		out[i] = r.systems.Get(i).(SystemSnapshot)
	}
	return out
}

// metricsEnvelope wraps a type discriminator and payload, matching the
// {type, data} JSON schema the WebSocket subsystem streams to clients.
type metricsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MetricsJSON renders the {type:"metrics", data:{...}} summary document.
func (r *Registry) MetricsJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverMinuteLocked()
	data := map[string]any{
		"total_requests":      r.totalRequests,
		"requests_per_minute": r.requestsLastMin,
		"timestamp":           time.Now().UnixMilli(),
	}
	return json.Marshal(metricsEnvelope{Type: "metrics", Data: data})
}

type rateBucket struct {
	Timestamp int64 `json:"timestamp"`
	Count     int   `json:"count"`
}

// RequestRateJSON renders the {type:"request_rate", data:[...]} document
// bucketing the last 60 seconds of recorded requests, one bucket per
// second, most recent last.
func (r *Registry) RequestRateJSON() ([]byte, error) {
	r.mu.Lock()
	records := r.requestHistorySnapshotLocked()
	r.mu.Unlock()

	now := time.Now()
	counts := make([]int, 60)
	for _, rec := range records {
		age := int(now.Sub(rec.Timestamp).Seconds())
		if age >= 0 && age < 60 {
			counts[age]++
		}
	}
	buckets := make([]rateBucket, 60)
	for i := 0; i < 60; i++ {
		secondsAgo := 59 - i
		buckets[i] = rateBucket{
			Timestamp: now.Add(-time.Duration(secondsAgo) * time.Second).UnixMilli(),
			Count:     counts[secondsAgo],
		}
	}
	return json.Marshal(metricsEnvelope{Type: "request_rate", Data: buckets})
}

type systemMetricOut struct {
	Timestamp         int64   `json:"timestamp"`
	MemoryMB          uint64  `json:"memory_mb"`
	CPUPercent        float64 `json:"cpu_percent"`
	ActiveConnections int     `json:"active_connections"`
	TotalRequests     int64   `json:"total_requests"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	QueueSize         int     `json:"queue_size"`
	ThreadCount       int     `json:"thread_count"`
}

// SystemMetricsJSON renders the {type:"system_metrics", data:[...]}
// document serializing the entire snapshot history.
func (r *Registry) SystemMetricsJSON() ([]byte, error) {
	r.mu.Lock()
	snaps := r.systemHistorySnapshotLocked()
	r.mu.Unlock()

	out := make([]systemMetricOut, len(snaps))
	for i, s := range snaps {
		out[i] = systemMetricOut{
			Timestamp:         s.Timestamp.UnixMilli(),
			MemoryMB:          s.MemoryMB,
			CPUPercent:        s.CPUPercent,
			ActiveConnections: s.ActiveConnections,
			TotalRequests:     s.TotalRequests,
			RequestsPerSecond: s.RequestsPerSecond,
			QueueSize:         s.QueueSize,
			ThreadCount:       s.ThreadCount,
		}
	}
	return json.Marshal(metricsEnvelope{Type: "system_metrics", Data: out})
}
