package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/config"
	"github.com/sandeepkv93/edu-session-service/internal/health"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

// CloseFunc releases an external handle (database pool, redis client).
type CloseFunc func() error

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Auth          *service.AuthService
	Readiness     *health.ProbeRunner

	ShutdownTimeout time.Duration
	closers         []CloseFunc
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, auth *service.AuthService, readiness *health.ProbeRunner, closers ...CloseFunc) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Auth:            auth,
		Readiness:       readiness,
		ShutdownTimeout: cfg.HTTPShutdownTimeout,
		closers:         closers,
	}
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", ln.Addr().String())
		serveErr <- a.Server.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown drains HTTP, releases the auth service and external handles, and
// flushes telemetry. Every step runs even if an earlier one fails.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Auth != nil {
		if err := a.Auth.Close(); err != nil {
			errs = append(errs, fmt.Errorf("auth service close: %w", err))
		}
	}
	for _, closeFn := range a.closers {
		if closeFn == nil {
			continue
		}
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.Logger.Error("shutdown completed with errors", "error", err.Error())
	} else {
		a.Logger.Info("shutdown complete")
	}
	return err
}
