// File: internal/acceptor/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// spec.md §1 Non-goals delegates record-layer framing to "a TLS library
// interface"; crypto/tls is the interface's sole implementation, matching
// the universal choice across the retrieval pack (no alternative TLS
// stack appears anywhere in it).

package acceptor

import (
	"crypto/tls"
	"net"
)

// TLSHandshaker performs the TLS handshake and reports the ALPN protocol
// the client selected, so the caller can route to HTTP/2 or HTTP/1.1.
type TLSHandshaker interface {
	Handshake(conn net.Conn) (tlsConn net.Conn, alpn string, err error)
}

// StdlibTLSHandshaker implements TLSHandshaker with crypto/tls, offering
// "h2" and "http/1.1" via ALPN as required by spec.md §6.
type StdlibTLSHandshaker struct {
	Config *tls.Config
}

// NewStdlibTLSHandshaker returns a handshaker configured to offer both
// HTTP/2 and HTTP/1.1 over ALPN, using cert/key loaded by the caller.
func NewStdlibTLSHandshaker(cert tls.Certificate) *StdlibTLSHandshaker {
	return &StdlibTLSHandshaker{
		Config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
		},
	}
}

func (h *StdlibTLSHandshaker) Handshake(conn net.Conn) (net.Conn, string, error) {
	tlsConn := tls.Server(conn, h.Config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, "", err
	}
	return tlsConn, tlsConn.ConnectionState().NegotiatedProtocol, nil
}
