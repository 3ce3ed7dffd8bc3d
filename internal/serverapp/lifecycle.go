package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"fleet-reports/internal/logging"
)

// StopReason says why WaitForStop returned.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopServerError StopReason = "server_error"
)

// Start runs the HTTP server in the background. Calling it again returns the
// same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, errors.New("app is not initialized")
	case a.started:
		return a.serverErrors, nil
	}

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server reports on
// serverErrors. A nil serverErrors falls back to the channel from Start; a nil
// channel is otherwise never selected.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (StopReason, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait for: stop and server error channels are both nil")
	}

	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("listener closed")
		}
		return StopServerError, fmt.Errorf("server stopped unexpectedly: %w", err)
	}
}

// Shutdown releases everything Init acquired, newest first. Only the first
// call does work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})
	return a.shutdownErr
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []cleanupStep

type cleanupStep struct {
	name    string
	release func(context.Context) error
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	*s = append(*s, cleanupStep{name: name, release: release})
}

// run releases every step even when earlier ones fail and joins the failures.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		step := s[i]
		if logger != nil {
			logger.Info("releasing " + step.name)
		}
		if err := step.release(ctx); err != nil {
			if logger != nil {
				logger.Warn("release failed",
					slog.String("component", step.name),
					slog.String("error", err.Error()),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return errors.Join(errs...)
}
