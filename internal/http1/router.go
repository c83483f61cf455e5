// File: internal/http1/router.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on transport/tcp.handleConn's accept-then-dispatch shape,
// generalized to the full HTTP/1.1 method table, keep-alive negotiation,
// and Upgrade dispatch the teacher's minimal listener never implemented.

package http1

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/multiproto/internal/httpmsg"
	"github.com/momentics/multiproto/internal/lifecycle"
	"github.com/momentics/multiproto/internal/metrics"
	"github.com/momentics/multiproto/internal/wshub"
	"github.com/momentics/multiproto/internal/wsproto"
)

// APIHandler serves requests under the /api prefix.
type APIHandler interface {
	ServeAPI(req *httpmsg.Request) *httpmsg.Response
}

// KeepAliveTimeoutSeconds is advertised in the Keep-Alive response header.
// The Reaper's idle deadline is configured separately (server.Config.Timeout)
// and is not derived from this value.
const KeepAliveTimeoutSeconds = 15

// WebSocketPath is the single path on which an Upgrade: websocket request
// is honored.
const WebSocketPath = "/ws"

// Router dispatches parsed requests to static file serving, the API
// handler, or a WebSocket/h2c upgrade.
type Router struct {
	DocRoot          string
	API              APIHandler
	KeepAliveEnabled bool
	ServerName       string
	Metrics          *metrics.Registry
	Hub              *wshub.Hub
	Coordinator      *lifecycle.Coordinator

	// H2COnUpgrade, when non-nil, is invoked with the raw connection and
	// any bytes already buffered past the request that requested the
	// h2c upgrade, handing the socket to the HTTP/2 session.
	H2COnUpgrade func(conn net.Conn, buffered []byte)
}

// ServeConnection owns conn for its lifetime and closes it on return. touch
// is called after each request is read to refresh the connection's
// last-activity timestamp; it is a no-op if the caller does not track idle
// connections.
func (rt *Router) ServeConnection(conn net.Conn, touch func()) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

		req, err := ReadRequest(br)
		if err != nil {
			if err != io.EOF {
				rt.writeError(conn, 400)
			}
			return
		}
		touch()

		if isWebSocketUpgrade(req) {
			rt.handleWebSocketUpgrade(conn, req)
			return
		}
		if isH2CUpgrade(req) && rt.H2COnUpgrade != nil {
			rt.handleH2CUpgrade(conn, br)
			return
		}

		resp := rt.dispatch(req)
		keepAlive := rt.negotiateKeepAlive(req, resp)
		resp.KeepAlive = keepAlive

		if req.Method == "HEAD" {
			resp.Body = nil
		}
		if keepAlive {
			resp.SetHeader("Keep-Alive", fmt.Sprintf("timeout=%d", KeepAliveTimeoutSeconds))
		}

		if rt.Metrics != nil {
			rt.Metrics.RecordRequest(req.Method, req.Path, resp.Status, 0)
		}

		if _, err := conn.Write(resp.Serialize(rt.ServerName, time.Now())); err != nil {
			return
		}
		if !keepAlive {
			return
		}
	}
}

func (rt *Router) negotiateKeepAlive(req *httpmsg.Request, resp *httpmsg.Response) bool {
	if !rt.KeepAliveEnabled {
		return false
	}
	if resp.Status == 405 {
		return false
	}
	if req.Version != "HTTP/1.1" {
		return false
	}
	if strings.EqualFold(req.Header("connection"), "close") {
		return false
	}
	return true
}

func (rt *Router) dispatch(req *httpmsg.Request) *httpmsg.Response {
	switch req.Method {
	case "GET":
		if strings.HasPrefix(req.Path, "/api") {
			return rt.serveAPI(req)
		}
		return rt.serveStatic(req)
	case "POST":
		if strings.HasPrefix(req.Path, "/api") {
			return rt.serveAPI(req)
		}
		return httpmsg.NewResponse(405, nil)
	case "HEAD":
		if strings.HasPrefix(req.Path, "/api") {
			getReq := *req
			getReq.Method = "GET"
			return rt.serveAPI(&getReq)
		}
		return rt.serveStatic(req)
	case "OPTIONS":
		resp := httpmsg.NewResponse(204, nil)
		resp.SetHeader("Access-Control-Allow-Origin", "*")
		resp.SetHeader("Access-Control-Allow-Methods", "GET, POST, HEAD, OPTIONS")
		resp.SetHeader("Access-Control-Allow-Headers", "Content-Type")
		resp.SetHeader("Access-Control-Max-Age", "86400")
		return resp
	default:
		return httpmsg.NewResponse(405, nil)
	}
}

func (rt *Router) serveAPI(req *httpmsg.Request) *httpmsg.Response {
	if rt.API == nil {
		return httpmsg.NewResponse(404, nil)
	}
	return rt.API.ServeAPI(req)
}

// serveStatic resolves req.Path within DocRoot. A path ending in "/"
// resolves to index.html within that directory; ".." segments are
// rejected outright.
func (rt *Router) serveStatic(req *httpmsg.Request) *httpmsg.Response {
	if strings.Contains(req.Path, "..") {
		return httpmsg.NewResponse(404, nil)
	}
	rel := req.Path
	if strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	full := filepath.Join(rt.DocRoot, filepath.FromSlash(rel))

	data, err := os.ReadFile(full)
	if err != nil {
		return httpmsg.NewResponse(404, nil)
	}
	resp := httpmsg.NewResponse(200, data)
	resp.SetHeader("Content-Type", contentType(full))
	return resp
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func (rt *Router) writeError(conn net.Conn, status int) {
	resp := httpmsg.NewResponse(status, nil)
	resp.KeepAlive = false
	_, _ = conn.Write(resp.Serialize(rt.ServerName, time.Now()))
}

func isWebSocketUpgrade(req *httpmsg.Request) bool {
	if req.Path != WebSocketPath {
		return false
	}
	return wsproto.IsUpgradeRequest(req.Headers) && req.Header("sec-websocket-key") != ""
}

func isH2CUpgrade(req *httpmsg.Request) bool {
	return req.Method == "GET" && strings.EqualFold(req.Header("upgrade"), "h2c")
}

func (rt *Router) handleWebSocketUpgrade(conn net.Conn, req *httpmsg.Request) {
	key, err := wsproto.HandshakeKey(req.Headers)
	if err != nil {
		rt.writeError(conn, 400)
		return
	}
	accept := wsproto.AcceptKey(key)

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		return
	}

	_ = conn.SetDeadline(time.Time{})
	id := strconv.FormatInt(time.Now().UnixNano(), 36)
	wshub.ReadLoop(conn, id, rt.Hub, rt.Coordinator)
}

func (rt *Router) handleH2CUpgrade(conn net.Conn, br *bufio.Reader) {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: h2c\r\n" +
		"Connection: Upgrade\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		return
	}
	buffered := make([]byte, br.Buffered())
	_, _ = br.Read(buffered)
	rt.H2COnUpgrade(conn, buffered)
}
