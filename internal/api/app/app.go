package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpHandler "github.com/anthanhphan/go-blob-store/internal/api/adapter/inbound/http"
	storageApp "github.com/anthanhphan/go-blob-store/internal/storage/app"
	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/gosdk/logger"
)

type App struct {
	cfg    *config.Config
	store  *storageApp.Store
	server *httpHandler.Server
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Storage backends
	store, err := storageApp.Open(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// 4. HTTP Server
	httpServer := httpHandler.NewServer(cfg, store)

	return &App{
		cfg:    cfg,
		store:  store,
		server: httpServer,
	}, nil
}

func (a *App) Run() error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		RunReconciler(bgCtx, a.store, time.Duration(a.cfg.Store.ReconcileIntervalSec)*time.Second)
	}()

	logger.Infow("Blob API starting", "addr", a.cfg.Server.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("API server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down API services")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		logger.Errorw("API shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}

	stopBackground()
	<-reconcileDone

	if err := a.store.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// RunReconciler runs a reconciliation pass every interval until ctx ends.
// A non-positive interval disables it.
func RunReconciler(ctx context.Context, store port.BlobStore, interval time.Duration) {
	if interval <= 0 {
		logger.Info("Periodic reconciliation disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			report, err := store.Reconcile(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Errorw("Reconciliation pass failed", "error", err.Error())
				continue
			}
			if report.Removed > 0 || report.Failed > 0 {
				logger.Infow("Reconciliation pass finished", "scanned", report.Scanned, "removed", report.Removed, "failed", report.Failed)
			}
		}
	}
}
