// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0

package acceptor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func generateSelfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func tcpPairTLS(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	clientCh := make(chan net.Conn, 1)
	go func() {
		c, _ := net.Dial("tcp", ln.Addr().String())
		clientCh <- c
	}()
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return server, <-clientCh
}

func TestStdlibTLSHandshakerNegotiatesALPN(t *testing.T) {
	server, client := tcpPairTLS(t)
	defer server.Close()
	defer client.Close()

	cert := generateSelfSignedCert(t)
	handshaker := NewStdlibTLSHandshaker(cert)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		_, alpn, err := handshaker.Handshake(server)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- alpn
	}()

	clientConn := tls.Client(client, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"h2", "http/1.1"},
	})
	if err := clientConn.Handshake(); err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("server handshake: %v", err)
	case alpn := <-resultCh:
		if alpn != "h2" {
			t.Fatalf("expected ALPN negotiation to prefer h2, got %q", alpn)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake")
	}
}

func TestStdlibTLSHandshakerFallsBackToHTTP11(t *testing.T) {
	server, client := tcpPairTLS(t)
	defer server.Close()
	defer client.Close()

	cert := generateSelfSignedCert(t)
	handshaker := NewStdlibTLSHandshaker(cert)

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		_, alpn, err := handshaker.Handshake(server)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- alpn
	}()

	clientConn := tls.Client(client, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"http/1.1"},
	})
	if err := clientConn.Handshake(); err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("server handshake: %v", err)
	case alpn := <-resultCh:
		if alpn != "http/1.1" {
			t.Fatalf("expected ALPN fallback to http/1.1, got %q", alpn)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake")
	}
}
