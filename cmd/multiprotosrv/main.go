// Copyright momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on examples/highlevel/echo/main.go's flag-parse,
// start-in-goroutine, signal-wait, graceful-shutdown shape.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/multiproto/server"
)

func main() {
	port := flag.Int("port", 9000, "port to listen on")
	docroot := flag.String("docroot", ".", "document root for static file serving")
	threads := flag.Int("threads", 4, "number of worker pool threads")
	keepAlive := flag.Bool("keep-alive", true, "enable HTTP/1.1 keep-alive and idle connection reaping")
	noKeepAlive := flag.Bool("no-keep-alive", false, "disable HTTP/1.1 keep-alive (overrides -keep-alive)")
	timeout := flag.Duration("timeout", 30*time.Second, "idle connection timeout")
	shutdownTimeout := flag.Duration("shutdown-timeout", 3*time.Second, "bounded wait for graceful shutdown")
	enableH2C := flag.Bool("h2c", true, "enable cleartext HTTP/2 (h2c) preface detection")
	enablePush := flag.Bool("push", true, "enable HTTP/2 server push for companion resources")
	enableTLS := flag.Bool("tls", false, "enable TLS with ALPN dispatch to HTTP/2 or HTTP/1.1")
	tlsCert := flag.String("tls-cert", "", "PEM certificate file (required with -tls)")
	tlsKey := flag.String("tls-key", "", "PEM private key file (required with -tls)")
	flag.Parse()

	cfg := server.DefaultConfig()
	cfg.ListenAddr = fmt.Sprintf(":%d", *port)
	cfg.DocRoot = *docroot
	cfg.Threads = *threads
	cfg.KeepAlive = *keepAlive && !*noKeepAlive
	cfg.Timeout = *timeout
	cfg.ShutdownTimeout = *shutdownTimeout
	cfg.EnableH2C = *enableH2C
	cfg.EnablePush = *enablePush
	cfg.EnableTLS = *enableTLS
	cfg.TLSCertFile = *tlsCert
	cfg.TLSKeyFile = *tlsKey

	s := server.New(cfg)
	if err := s.Start(); err != nil {
		log.Printf("multiprotosrv: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("multiprotosrv: shutting down")
	s.Shutdown()
	log.Printf("multiprotosrv: stopped")
}
