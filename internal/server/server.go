// Package server owns the process's listeners: one TCP address plus an
// optional unix domain socket serving the same handler for local
// clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"
)

// Config describes where to listen. SocketPath is optional; when set,
// local callers can reach the same API without touching the network.
type Config struct {
	Addr       string
	SocketPath string
	Handler    http.Handler
}

type Server struct {
	cfg    Config
	http   *http.Server
	unix   *http.Server
	tcpLn  net.Listener
	unixLn net.Listener
}

func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	s := &Server{
		cfg: cfg,
		http: &http.Server{
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if cfg.SocketPath != "" {
		s.unix = &http.Server{Handler: cfg.Handler}
	}
	return s, nil
}

// Listen binds without serving. Addr may name port 0; the bound address
// is readable through Addr afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcp listen: %w", err)
	}
	s.tcpLn = ln

	if s.cfg.SocketPath != "" {
		// A previous run may have left its socket file behind.
		if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			ln.Close()
			return fmt.Errorf("remove stale socket: %w", err)
		}
		uln, err := net.Listen("unix", s.cfg.SocketPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("unix listen: %w", err)
		}
		if err := os.Chmod(s.cfg.SocketPath, 0o660); err != nil {
			uln.Close()
			ln.Close()
			return fmt.Errorf("chmod socket: %w", err)
		}
		s.unixLn = uln
	}
	return nil
}

// Addr returns the bound TCP address, empty before Listen.
func (s *Server) Addr() string {
	if s.tcpLn == nil {
		return ""
	}
	return s.tcpLn.Addr().String()
}

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	if s.tcpLn == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if s.unixLn != nil {
		log.Printf("server: unix socket on %s", s.cfg.SocketPath)
		go func() {
			if err := s.unix.Serve(s.unixLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("server: unix socket: %v", err)
			}
		}()
	}
	log.Printf("server: listening on %s", s.Addr())
	if err := s.http.Serve(s.tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains both listeners and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.unix != nil {
		if err := s.unix.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cfg.SocketPath != "" {
		os.Remove(s.cfg.SocketPath)
	}
	if err := s.http.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// SocketPath returns the configured unix socket path, empty when unset.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}
