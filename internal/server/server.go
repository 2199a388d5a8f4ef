package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Header and timeout limits for the hub-facing listener. Write timeouts stay
// short because every slow path (device dials, RPC waits) runs behind its own
// deadline already.
const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server owns the process's HTTP listener lifecycle.
type Server struct {
	httpServer *http.Server
}

// Run blocks serving HTTP on the given port until the listener fails or
// Shutdown is called. Both "8080" and ":8080" are accepted.
func (s *Server) Run(port string, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              listenAddr(port),
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// within the context's deadline. Safe to call before Run.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func listenAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" || strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
