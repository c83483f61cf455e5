// File: internal/httpmsg/request.go
// Package httpmsg implements the Request/Response data model shared by the
// HTTP/1.1 and API routing subsystems.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on adapters.ContextAdapter's plain-struct-plus-map approach to
// carrying request state across handler boundaries, simplified here to the
// fields the wire format actually needs.

package httpmsg

import (
	"net/url"
	"strings"
)

// Request is a parsed HTTP/1.1 request line plus headers, query parameters,
// and body. Header keys are lowercased; duplicate header lines overwrite
// rather than accumulate.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
}

// Header returns the lowercased header value, or "" if absent.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Valid reports whether the request satisfies the wire-level invariants:
// non-empty method, path starting with "/", and a recognized version token.
// Callers are expected to have already rejected unparseable header lines
// with ParseHeaderLine (as http1.ReadRequest does); Valid only re-checks
// the structural invariants on the resulting value.
func (r *Request) Valid() bool {
	if r.Method == "" {
		return false
	}
	if !strings.HasPrefix(r.Path, "/") {
		return false
	}
	switch r.Version {
	case "HTTP/1.0", "HTTP/1.1":
		return true
	default:
		return false
	}
}

// ParseRequestLine splits "METHOD /path?query HTTP/1.1" into its parts,
// uppercasing the method and percent-decoding the path and query values.
// Returns ok=false if the line does not have exactly three space-separated
// fields or the target fails to parse as a URL.
func ParseRequestLine(line string) (method, path string, query map[string]string, version string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", nil, "", false
	}
	method = strings.ToUpper(fields[0])
	version = fields[2]

	u, err := url.Parse(fields[1])
	if err != nil {
		return "", "", nil, "", false
	}
	decodedPath, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", "", nil, "", false
	}
	path = decodedPath

	query = make(map[string]string)
	for k, v := range u.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return method, path, query, version, true
}

// ParseHeaderLine splits "Name: value" into a lowercased name and trimmed
// value. A line lacking a colon or with an empty name is rejected, per the
// wire invariant that makes the whole request invalid.
func ParseHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = strings.ToLower(strings.TrimSpace(line[:idx]))
	if name == "" {
		return "", "", false
	}
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}
