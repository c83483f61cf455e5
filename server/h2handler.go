// File: server/h2handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Adapts the HTTP/1.1 Router's static/API dispatch to h2proto's
// RequestHandler/ResourceProbe interfaces so both protocols share one
// routing policy, per spec.md §4.3's push-resource rules.

package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/momentics/multiproto/internal/httpmsg"
)

// pushMap is the static path-to-companion-resource mapping spec.md §4.3
// describes for server push candidates.
var pushMap = map[string][]string{
	"/": {"/style.css"},
}

type h2RequestHandler struct {
	server *Server
}

func (h *h2RequestHandler) HandleH2(method, path string, headers map[string]string, body []byte) (int, map[string]string, []byte, []string) {
	var resp *httpmsg.Response
	if strings.HasPrefix(path, "/api") {
		req := &httpmsg.Request{Method: method, Path: path, Version: "HTTP/2", Headers: headers, Body: body}
		resp = h.server.apiRt.ServeAPI(req)
	} else {
		resp = h.serveStatic(path)
	}

	out := make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		out[k] = v
	}
	var pushPaths []string
	if h.server.cfg.EnablePush && (out["content-type"] == "text/html" || out["Content-Type"] == "text/html") {
		pushPaths = pushMap[path]
	}
	return resp.Status, out, resp.Body, pushPaths
}

func (h *h2RequestHandler) serveStatic(path string) *httpmsg.Response {
	if strings.Contains(path, "..") {
		return httpmsg.NewResponse(404, nil)
	}
	rel := path
	if strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	full := filepath.Join(h.server.cfg.DocRoot, filepath.FromSlash(rel))
	data, err := os.ReadFile(full)
	if err != nil {
		return httpmsg.NewResponse(404, nil)
	}
	resp := httpmsg.NewResponse(200, data)
	resp.SetHeader("content-type", contentTypeFor(full))
	return resp
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	default:
		return "application/octet-stream"
	}
}

// Exists implements h2proto.ResourceProbe: it reports whether path
// resolves to a file under the document root, suppressing PUSH_PROMISE
// for companion resources that do not exist.
func (h *h2RequestHandler) Exists(path string) bool {
	if strings.Contains(path, "..") {
		return false
	}
	full := filepath.Join(h.server.cfg.DocRoot, filepath.FromSlash(path))
	_, err := os.Stat(full)
	return err == nil
}
