// Command server serves fleet reports over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-reports/internal/config"
	"fleet-reports/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version and Commit are set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	showVersion := pflag.Bool("version", false, "Print version and exit")
	checkOnly := pflag.Bool("check-config", false, "Validate configuration and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *showVersion {
		fmt.Printf("fleet-reports %s (%s)\n", Version, Commit)
		return nil
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	if err := checkConfig(cfg, slog.Default()); err != nil {
		return err
	}
	if *checkOnly {
		slog.Info("configuration is valid", slog.String("driver", cfg.Database.Driver))
		return nil
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	return serve(app, cfg.Server.ShutdownTimeout)
}

// newApp builds the logger and an initialized App. The logger provider is
// released here when App construction fails; afterwards App owns it.
func newApp(cfg *config.Config) (*serverapp.App, error) {
	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return nil, err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(context.Background()); err != nil {
		return nil, err
	}
	return app, nil
}

// serve starts app and blocks until SIGINT, SIGTERM or a listener failure,
// then shuts down within timeout.
func serve(app *serverapp.App, timeout time.Duration) error {
	serverErrors, err := app.Start()
	if err != nil {
		return errors.Join(err, shutdownWithin(app, timeout))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reason, waitErr := app.WaitForStop(stop, serverErrors)
	slog.Info("shutting down server", slog.String("reason", string(reason)))

	if err := errors.Join(waitErr, shutdownWithin(app, timeout)); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

func shutdownWithin(app *serverapp.App, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return app.Shutdown(ctx)
}

// checkConfig logs every validation finding and fails when any is an error.
func checkConfig(cfg *config.Config, logger *slog.Logger) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", w.Field),
			slog.String("message", w.Message),
			slog.String("hint", w.Hint),
		)
	}
	for _, e := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", e.Field),
			slog.String("message", e.Message),
			slog.String("hint", e.Hint),
		)
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed: %d error(s)", len(result.Errors))
	}
	return nil
}
