package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/compudrive/drivebench/config"
)

// RunOptions groups everything Run needs.
type RunOptions struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Version  string
	Logger   *slog.Logger
}

// Run starts all enabled services and blocks until a shutdown signal
// arrives or one of them fails. The result recorder always runs alongside
// the HTTP service so terminal outcomes reach the database.
func Run(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	services := opts.Services
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.IsHTTPServerEnabled() {
		server := NewHTTPServer(cfg.HTTP, services, opts.Version, logger)

		group.Go(func() error {
			logger.Info("http server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			return services.Recorder.Run(groupCtx)
		})
	}

	if cfg.IsScannerEnabled() {
		group.Go(func() error {
			return services.Scanner.Run(groupCtx)
		})
	}

	if cfg.IsReaperEnabled() {
		group.Go(func() error {
			return services.Reaper.Run(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("all services stopped")
	return nil
}
