package server

import (
	"context"
	"time"

	"OilCast/internal/service/ratelimit"
	"OilCast/internal/usecase"
	xhttp "OilCast/pkg/http"
	applogger "OilCast/pkg/logger"
)

// Option configures App.
type Option func(*App)

// WithLimiter sweeps idle rate-limit buckets while the app runs.
func WithLimiter(lim *ratelimit.Limiter) Option {
	return func(a *App) { a.limiter = lim }
}

// WithSweepInterval overrides how often idle buckets are dropped.
func WithSweepInterval(every, idle time.Duration) Option {
	return func(a *App) {
		a.sweepEvery = every
		a.sweepIdle = idle
	}
}

// App encapsulates the dashboard API lifecycle.
type App struct {
	session    *usecase.Session
	httpServer *xhttp.Server
	limiter    *ratelimit.Limiter
	sweepEvery time.Duration
	sweepIdle  time.Duration
	l          *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(session *usecase.Session, srv *xhttp.Server, l *applogger.Logger, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		session:    session,
		httpServer: srv,
		sweepEvery: time.Minute,
		sweepIdle:  10 * time.Minute,
		l:          l,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run warms the session, serves HTTP and blocks until ctx is cancelled or
// the server fails. A price series that cannot be loaded aborts startup;
// models that fail to load are logged and reported per request.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.session.Series(ctx); err != nil {
		return err
	}
	if err := a.session.Init(ctx); err != nil {
		a.l.Warn("some models are unavailable", applogger.Error(err))
	}

	errCh := a.httpServer.Start()
	if a.limiter != nil {
		go a.sweep(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			runErr = err
		}
	}
	return a.shutdown(runErr)
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(a.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Sweep(a.sweepIdle); n > 0 {
				a.l.Debug("rate limit buckets swept", applogger.Int("removed", n))
			}
		}
	}
}

// shutdown stops the HTTP server within its configured timeout.
func (a *App) shutdown(runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	a.l.Info("shutdown complete")
	return runErr
}
