package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/courier/internal/archive"
	"github.com/mistakeknot/courier/internal/auth"
	"github.com/mistakeknot/courier/internal/config"
	httpapi "github.com/mistakeknot/courier/internal/http"
	"github.com/mistakeknot/courier/internal/mail"
	"github.com/mistakeknot/courier/internal/server"
	"github.com/mistakeknot/courier/internal/storage/sqlite"
	"github.com/mistakeknot/courier/internal/ws"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the courier server",
		Long: `Run the courier server.

Configuration comes from defaults, an optional YAML file named by
COURIER_CONFIG, and COURIER_* environment variables, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	defer store.Close()

	keyring, err := auth.LoadKeyring(cfg.KeysFile)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	hub := ws.NewHub()
	svc := mail.New(store, archive.New(cfg.ArchiveRoot), mail.Options{Enforcement: cfg.Enforcement}).WithBroadcaster(hub)
	router := httpapi.NewRouter(httpapi.NewService(svc), hub.Handler(), auth.Middleware(keyring))

	srv, err := server.New(server.Config{Addr: cfg.Addr, SocketPath: cfg.SocketPath, Handler: router})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := mail.NewExpiryNotifier(store, hub, cfg.ExpiryInterval)
	notifier.Start(ctx)
	defer notifier.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("courier: signal received, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
