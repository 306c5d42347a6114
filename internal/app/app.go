// Package app wires the scanner's dependencies and runs its two operating
// modes: live monitoring and historical download.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyscan/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Listen runs the live monitor until the context is cancelled.
func (a *App) Listen(ctx context.Context, opts ListenOptions) error {
	deps, cleanup, err := Wire(ctx, a.cfg, opts.Wallets, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.runListen(ctx, deps)
}

// Download scans the configured historical block range and writes results to
// the output file.
func (a *App) Download(ctx context.Context, opts DownloadOptions) error {
	deps, cleanup, err := Wire(ctx, a.cfg, opts.Wallets, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.runDownload(ctx, deps, opts)
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
