package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/scheduler"
	"Farenheit/pkg/config"
	xhttp "Farenheit/pkg/http"
	applogger "Farenheit/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	sched       *scheduler.Scheduler
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	checks      map[string]xhttp.HealthCheck
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, sched *scheduler.Scheduler, handler xhttp.Handler) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:         cfg,
		l:           l,
		sched:       sched,
		httpHandler: handler,
		checks:      make(map[string]xhttp.HealthCheck),
	}
}

// AddHealthCheck exposes a dependency on /healthz.
func (a *App) AddHealthCheck(name string, check xhttp.HealthCheck) { a.checks[name] = check }

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
	}
	for name, check := range a.checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)

	if a.cfg.Scheduler.Enabled && a.sched != nil {
		a.sched.Start(ctx)
	} else {
		a.l.Warn("scheduler disabled; serving reads only")
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return errors.Join(err, a.shutdown())
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// RunStage runs one stage to completion outside the schedule.
func (a *App) RunStage(ctx context.Context, name string) (*models.StageSummary, error) {
	if a.sched == nil {
		return nil, fmt.Errorf("run %s: scheduler not configured", name)
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.sched.RunStage(ctx, name)
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")

	if a.sched != nil {
		a.sched.Stop()
	}

	var err error
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err = a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return err
}
