package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the service on SIGINT/SIGTERM: first the API
// server stops accepting requests, then the registered hooks run in
// order (health server, schedulers, telemetry), all within one
// deadline.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []shutdownHook
}

// NewShutdownManager creates a manager draining into timeout
// (30s when zero).
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds a named hook. Hooks run in registration
// order, after the API server has drained.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: fn})
}

// WaitForShutdown blocks until a termination signal arrives, then
// drains. The returned error collects every hook failure; a deadline
// overrun aborts the remaining hooks.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	return sm.drain(ctx)
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	var errs []error

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("API server did not drain cleanly")
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		} else {
			sm.logger.Info("API server drained")
		}
	}

	sm.mu.Lock()
	hooks := sm.hooks
	sm.mu.Unlock()

	for _, h := range hooks {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown deadline reached before %q", h.name))
			break
		}
		if err := h.fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("hook", h.name).Error("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		sm.logger.WithField("hook", h.name).Debug("shutdown hook complete")
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("shutdown complete")
	return nil
}
