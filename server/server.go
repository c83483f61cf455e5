// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on server.Server's facade-holds-listener-pool-control shape;
// the pool field now holds the multi-protocol worker pool instead of a
// zero-copy buffer pool, and listener/control are replaced by the
// acceptor and runtime control surface SPEC_FULL.md names.

package server

import (
	"net"
	"sync"
	"time"

	"github.com/momentics/multiproto/api"
	"github.com/momentics/multiproto/control"
	"github.com/momentics/multiproto/internal/acceptor"
	"github.com/momentics/multiproto/internal/apirouter"
	"github.com/momentics/multiproto/internal/connset"
	"github.com/momentics/multiproto/internal/h2proto"
	"github.com/momentics/multiproto/internal/http1"
	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/metrics"
	"github.com/momentics/multiproto/internal/registry"
	"github.com/momentics/multiproto/internal/workerpool"
	"github.com/momentics/multiproto/internal/wshub"
	"github.com/momentics/multiproto/pool"
)

// Server is the high-level facade wiring every subsystem together:
// acceptor, worker pool, per-protocol handlers, reaper, websocket hub,
// and metrics registry.
type Server struct {
	cfg *Config

	coord    *lifecycle.Coordinator
	pool     *workerpool.Pool
	registry *registry.Registry
	table    *connset.Table
	metrics  *metrics.Registry
	hub      *wshub.Hub
	reaper   *connset.Reaper
	apiRt    *apirouter.Router
	acceptr  *acceptor.Acceptor

	listener net.Listener

	probesMu sync.Mutex
	probes   map[string]func() any
	debug    *control.MetricsRegistry
	config   *control.ConfigStore[Config]

	h2buf *pool.BytePool

	router        *http1.Router
	tlsHandshaker acceptor.TLSHandshaker
}

// New constructs a Server from cfg without starting any goroutines.
func New(cfg *Config) *Server {
	coord := lifecycle.New()
	wp := workerpool.New(coord, cfg.Threads, 1024)
	reg := registry.New()
	table := connset.New()
	m := metrics.New()
	hub := wshub.New(m, coord)

	s := &Server{
		cfg:      cfg,
		coord:    coord,
		pool:     wp,
		registry: reg,
		table:    table,
		metrics:  m,
		hub:      hub,
		probes:   make(map[string]func() any),
		debug:    control.NewMetricsRegistry(),
		config:   control.NewConfigStore[Config](),
		h2buf:    pool.NewBytePool(16384),
	}
	s.config.SetConfig(*cfg)

	s.apiRt = apirouter.New(s)
	if cfg.KeepAlive {
		s.reaper = connset.NewReaper(table, reg, coord, cfg.Timeout, 500*time.Millisecond)
	}

	router := &http1.Router{
		DocRoot:          cfg.DocRoot,
		API:              s.apiRt,
		KeepAliveEnabled: cfg.KeepAlive,
		ServerName:       "multiproto",
		Metrics:          m,
		Hub:              hub,
		Coordinator:      coord,
	}
	if cfg.EnableH2C {
		router.H2COnUpgrade = s.serveH2C
	}
	s.router = router

	s.Control().RegisterDebugProbe("goroutine_threads", func() any { return s.pool.NumWorkers() })
	s.Control().RegisterDebugProbe("connection_table_size", func() any { return s.table.Len() })
	s.Control().RegisterDebugProbe("h2_stream_pool", func() any {
		gets, puts := h2proto.StreamPoolStats()
		return map[string]int64{"gets": gets, "puts": puts}
	})

	s.acceptr = &acceptor.Acceptor{
		Addr:      cfg.ListenAddr,
		Pool:      wp,
		Coord:     coord,
		Registry:  reg,
		Table:     table,
		EnableH2C: cfg.EnableH2C,
		EnableTLS: cfg.EnableTLS,
		Handlers: acceptor.Handlers{
			ServeHTTP1: func(conn net.Conn) {
				router.ServeConnection(conn, func() { table.Touch(conn) })
			},
			ServeH2C: s.serveH2C,
		},
	}

	return s
}

// serveTLS performs the TLS handshake via s.tlsHandshaker and dispatches
// the decrypted connection to the HTTP/2 or HTTP/1.1 path by ALPN,
// exactly as the plaintext acceptor dispatches by preface byte. It is
// assigned to Handlers.ServeTLS only once Start has loaded a certificate.
func (s *Server) serveTLS(conn net.Conn) {
	tlsConn, alpn, err := s.tlsHandshaker.Handshake(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	if alpn == "h2" {
		s.serveH2C(tlsConn, nil)
		return
	}
	s.router.ServeConnection(tlsConn, func() { s.table.Touch(tlsConn) })
}

func (s *Server) serveH2C(conn net.Conn, buffered []byte) {
	h := &h2RequestHandler{server: s}
	sess := h2proto.NewSession(conn, h, h, buffered, s.cfg.EnablePush)
	buf := s.h2buf.Acquire(16384)
	defer s.h2buf.Release(buf)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if err := sess.Feed(buf[:n]); err != nil {
			return
		}
	}
}

// TotalRequests, ActiveConnections, ThreadCount, and QueueSize implement
// apirouter.StatsSource, letting /api/stats report the server's live
// counters.
func (s *Server) TotalRequests() int64   { return s.metrics.TotalRequests() }
func (s *Server) ActiveConnections() int { return s.table.Len() }
func (s *Server) ThreadCount() int       { return s.pool.NumWorkers() }
func (s *Server) QueueSize() int         { return s.pool.QueueLen() }

// controlView adapts Server to api.Control for runtime introspection.
type controlView struct{ s *Server }

func (c *controlView) Stats() map[string]any {
	return map[string]any{
		"total_requests":     c.s.TotalRequests(),
		"active_connections": c.s.ActiveConnections(),
		"thread_count":       c.s.ThreadCount(),
		"queue_size":         c.s.QueueSize(),
	}
}

// RegisterDebugProbe registers a named callback evaluated on DumpDebug.
func (c *controlView) RegisterDebugProbe(name string, fn func() any) {
	c.s.probesMu.Lock()
	defer c.s.probesMu.Unlock()
	c.s.probes[name] = fn
}

// DumpDebug evaluates every registered probe and returns the combined
// snapshot, caching each result in the server's debug metrics registry
// so operators can diff successive dumps.
func (c *controlView) DumpDebug() map[string]any {
	c.s.probesMu.Lock()
	probes := make(map[string]func() any, len(c.s.probes))
	for name, fn := range c.s.probes {
		probes[name] = fn
	}
	c.s.probesMu.Unlock()

	for name, fn := range probes {
		c.s.debug.Set(name, fn())
	}
	snap := c.s.debug.GetSnapshot()
	snap["debug_last_updated"] = c.s.debug.LastUpdated().UTC().Format(time.RFC3339Nano)
	return snap
}

// ConfigSnapshot returns the server's effective startup configuration.
// The store underneath holds a typed Config value; this is where it is
// flattened into the map shape api.Control promises operators.
func (c *controlView) ConfigSnapshot() map[string]any {
	cfg := c.s.config.GetSnapshot()
	return map[string]any{
		"listen_addr":      cfg.ListenAddr,
		"docroot":          cfg.DocRoot,
		"threads":          cfg.Threads,
		"keep_alive":       cfg.KeepAlive,
		"timeout":          cfg.Timeout.String(),
		"shutdown_timeout": cfg.ShutdownTimeout.String(),
		"enable_tls":       cfg.EnableTLS,
		"tls_cert_file":    cfg.TLSCertFile,
		"enable_h2c":       cfg.EnableH2C,
		"enable_push":      cfg.EnablePush,
	}
}

// Control returns the api.Control view over this server's live state.
func (s *Server) Control() api.Control { return &controlView{s: s} }

// Addr returns the listener's bound address; valid only after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
