// Package embedded runs a courier server inside a host process. Agent
// orchestrators get the full HTTP and WebSocket surface, plus direct
// access to the mail service, without managing a separate daemon.
package embedded

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mistakeknot/courier/internal/archive"
	"github.com/mistakeknot/courier/internal/auth"
	httpapi "github.com/mistakeknot/courier/internal/http"
	"github.com/mistakeknot/courier/internal/mail"
	"github.com/mistakeknot/courier/internal/server"
	"github.com/mistakeknot/courier/internal/storage/sqlite"
	"github.com/mistakeknot/courier/internal/ws"
)

// Config tunes the embedded server. Zero values pick local defaults.
type Config struct {
	// DBPath locates the SQLite database. Defaults to
	// ~/.courier/courier.db.
	DBPath string

	// ArchiveRoot holds the git-backed audit archive. Defaults to
	// courier-archive next to the database.
	ArchiveRoot string

	// Host to bind, 127.0.0.1 when empty.
	Host string

	// Port to listen on. 0 asks the kernel for a free port; read the
	// result from URL after Start.
	Port int

	// EnforcementMode is the cross-project name collision policy,
	// "coerce" when empty or "strict".
	EnforcementMode string

	// Keyring enables bearer auth when set. Nil serves localhost
	// callers without keys.
	Keyring *auth.Keyring
}

// Server is an in-process courier instance.
type Server struct {
	mu       sync.Mutex
	store    *sqlite.Store
	mail     *mail.Service
	hub      *ws.Hub
	srv      *server.Server
	notifier *mail.ExpiryNotifier
	cancel   context.CancelFunc
	started  bool
	stopped  bool
}

// New wires the full stack without binding anything. Call Start to
// begin serving.
func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".courier", "courier.db")
	}
	if cfg.ArchiveRoot == "" {
		cfg.ArchiveRoot = filepath.Join(filepath.Dir(cfg.DBPath), "courier-archive")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	hub := ws.NewHub()
	svc := mail.New(store, archive.New(cfg.ArchiveRoot), mail.Options{Enforcement: cfg.EnforcementMode}).WithBroadcaster(hub)

	var mw func(http.Handler) http.Handler
	if cfg.Keyring != nil {
		mw = auth.Middleware(cfg.Keyring)
	}
	router := httpapi.NewRouter(httpapi.NewService(svc), hub.Handler(), mw)

	srv, err := server.New(server.Config{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Server{store: store, mail: svc, hub: hub, srv: srv}, nil
}

// Start binds the listener and serves in the background. Calling Start
// twice is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("server already stopped")
	}
	if err := s.srv.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "courier embedded: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.notifier = mail.NewExpiryNotifier(s.store, s.hub, time.Minute)
	s.notifier.Start(ctx)

	s.started = true
	return nil
}

// Stop drains connections, stops background work and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if !s.started {
		return s.store.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)

	s.cancel()
	s.notifier.Stop()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// URL returns the base URL of the running server, empty before Start.
func (s *Server) URL() string {
	addr := s.srv.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Store exposes the underlying store for direct reads.
func (s *Server) Store() *sqlite.Store {
	return s.store
}

// Mail exposes the mail service for in-process calls that skip HTTP.
func (s *Server) Mail() *mail.Service {
	return s.mail
}
