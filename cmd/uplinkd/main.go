// Package main implements the uplinkd daemon, which runs the durable
// upload queue for meeting recordings and serves its status API over
// HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	uplink "github.com/phrazzld/uplink"
	"github.com/phrazzld/uplink/auth"
	"github.com/phrazzld/uplink/config"
	"github.com/phrazzld/uplink/logger"
	"github.com/phrazzld/uplink/remote"
	"github.com/phrazzld/uplink/statusapi"
	"github.com/phrazzld/uplink/store"
	"github.com/phrazzld/uplink/store/filestore"
	"github.com/phrazzld/uplink/store/postgres"
)

// shutdownTimeout bounds how long an in-flight status API request may
// delay process exit.
const shutdownTimeout = 5 * time.Second

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(); err != nil {
		log.Fatalf("Application exited with error: %v", err)
	}
}

// app bundles the daemon's long-lived components.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	queue  *uplink.Queue
}

// initializeApp loads configuration and builds the queue with its
// persistence backend and remote bridge.
func initializeApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Log.Level)
	appLogger.Info("configuration loaded",
		"store_backend", cfg.Store.Backend,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Log.Level)

	ctx := context.Background()

	blob, err := openBlob(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	// Open performs crash recovery: jobs left running by a previous
	// process go back to pending, corrupt records are quarantined.
	jobs, err := store.Open(ctx, blob, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	var tokens auth.TokenSource
	if cfg.Auth.Token != "" {
		tokens = auth.NewStaticTokenSource(cfg.Auth.Token)
	}

	bridge := remote.NewHTTPBridge(cfg.Remote.BaseURL, cfg.Remote.TriggerURL, tokens, appLogger)
	opts, policy := uplink.OptionsFromConfig(cfg.Queue)

	queue, err := uplink.New(jobs, bridge, uplink.NewFileSource(), tokens, policy, opts, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to build queue: %w", err)
	}

	return &app{cfg: cfg, logger: appLogger, queue: queue}, nil
}

// openBlob builds the configured persistence backend.
func openBlob(ctx context.Context, cfg config.StoreConfig) (store.Blob, error) {
	switch cfg.Backend {
	case "file":
		blob, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return blob, nil

	case "postgres":
		db, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		return postgres.New(db), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// run starts the scheduler loop and the status API server, then blocks
// until the process receives an interrupt or termination signal.
func (a *app) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.queue.StartSchedulerLoop(); err != nil {
		return fmt.Errorf("failed to start scheduler loop: %w", err)
	}
	defer a.queue.StopSchedulerLoop()

	server := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: statusapi.NewHandler(a.queue, a.logger).Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("status API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("status API server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("status API shutdown failed", "error", err)
	}

	return nil
}
