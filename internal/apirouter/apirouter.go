// File: internal/apirouter/apirouter.go
// Package apirouter implements the /api surface: a small in-memory user
// collection, a stats endpoint backed by the metrics/workerpool/connset
// subsystems, and a static docs page.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on original_source/src/server.cpp's handle_users_api /
// handle_user_api / handle_server_stats_api / handle_api_docs dispatch,
// rebuilt around encoding/json instead of the original's hand-rolled
// JsonHandler parser (see DESIGN.md for why no pack dependency covers
// JSON encoding).

package apirouter

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/momentics/multiproto/internal/httpmsg"
)

// User is the record the in-memory store holds per spec.md's illustrative
// API contract.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StatsSource supplies the live counters handle_server_stats_api reports.
type StatsSource interface {
	TotalRequests() int64
	ActiveConnections() int
	ThreadCount() int
	QueueSize() int
}

// Router serves every request whose path starts with "/api". It starts
// with an empty user store; no sample users are seeded.
type Router struct {
	mu     sync.Mutex
	users  []User
	nextID int

	Stats StatsSource
}

// New returns a Router with an empty user collection.
func New(stats StatsSource) *Router {
	return &Router{nextID: 1, Stats: stats}
}

// ServeAPI implements http1.APIHandler.
func (rt *Router) ServeAPI(req *httpmsg.Request) *httpmsg.Response {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if len(parts) < 2 {
		return jsonError(400, "invalid API path")
	}
	switch parts[1] {
	case "docs":
		return rt.serveDocs()
	case "stats":
		return rt.serveStats(req)
	case "users":
		switch len(parts) {
		case 2:
			return rt.serveUsers(req)
		case 3:
			return rt.serveUser(req, parts[2])
		}
	}
	return jsonError(404, "API endpoint not found")
}

func (rt *Router) serveUsers(req *httpmsg.Request) *httpmsg.Response {
	switch req.Method {
	case "GET":
		rt.mu.Lock()
		users := append([]User(nil), rt.users...)
		rt.mu.Unlock()
		return jsonEnvelope(200, map[string]any{"users": users})
	case "POST":
		if !strings.Contains(strings.ToLower(req.Header("content-type")), "application/json") {
			return jsonError(400, "Content-Type must be application/json")
		}
		var payload struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			return jsonError(400, "invalid JSON data")
		}
		if payload.Name == "" || payload.Email == "" {
			return jsonError(400, "name and email are required")
		}
		rt.mu.Lock()
		user := User{ID: rt.nextID, Name: payload.Name, Email: payload.Email}
		rt.nextID++
		rt.users = append(rt.users, user)
		rt.mu.Unlock()
		return jsonEnvelope(201, map[string]any{"message": "user created successfully", "user": user})
	default:
		return jsonError(405, "method not allowed")
	}
}

func (rt *Router) serveUser(req *httpmsg.Request, idStr string) *httpmsg.Response {
	if req.Method != "GET" {
		return jsonError(405, "method not allowed")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return jsonError(404, "user not found")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, u := range rt.users {
		if u.ID == id {
			return jsonEnvelope(200, u)
		}
	}
	return jsonError(404, "user not found")
}

func (rt *Router) serveStats(req *httpmsg.Request) *httpmsg.Response {
	if req.Method != "GET" {
		return jsonError(405, "method not allowed")
	}
	data := map[string]any{
		"total_requests":     int64(0),
		"active_connections": 0,
		"thread_count":       0,
		"queue_size":         0,
	}
	if rt.Stats != nil {
		data["total_requests"] = rt.Stats.TotalRequests()
		data["active_connections"] = rt.Stats.ActiveConnections()
		data["thread_count"] = rt.Stats.ThreadCount()
		data["queue_size"] = rt.Stats.QueueSize()
	}
	return jsonEnvelope(200, data)
}

func (rt *Router) serveDocs() *httpmsg.Response {
	resp := httpmsg.NewResponse(200, []byte(docsHTML))
	resp.SetHeader("Content-Type", "text/html")
	withCORS(resp)
	return resp
}

func jsonEnvelope(status int, data any) *httpmsg.Response {
	body, _ := json.Marshal(map[string]any{"success": true, "data": data})
	resp := httpmsg.NewResponse(status, body)
	resp.SetHeader("Content-Type", "application/json")
	withCORS(resp)
	return resp
}

func jsonError(status int, message string) *httpmsg.Response {
	body, _ := json.Marshal(map[string]any{"success": false, "error": message, "status": status})
	resp := httpmsg.NewResponse(status, body)
	resp.SetHeader("Content-Type", "application/json")
	withCORS(resp)
	return resp
}

func withCORS(resp *httpmsg.Response) {
	resp.SetHeader("Access-Control-Allow-Origin", "*")
	resp.SetHeader("Access-Control-Allow-Credentials", "true")
}

const docsHTML = `<!DOCTYPE html>
<html>
<head><title>multiproto API documentation</title></head>
<body>
<h1>multiproto API</h1>
<ul>
<li>GET /api/stats</li>
<li>GET /api/users</li>
<li>POST /api/users</li>
<li>GET /api/users/{id}</li>
</ul>
</body>
</html>`
