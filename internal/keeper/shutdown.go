// internal/keeper/shutdown.go
package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CloseFunc allows using a function as an io.Closer
type CloseFunc func() error

func (f CloseFunc) Close() error {
	return f()
}

// ShutdownHandler closes registered services in reverse registration order.
type ShutdownHandler struct {
	logger   *zap.Logger
	services []namedService
	mu       sync.Mutex
	timeout  time.Duration
	done     bool
}

type namedService struct {
	name   string
	closer io.Closer
}

// NewShutdownHandler creates a handler; timeout bounds each service.
func NewShutdownHandler(logger *zap.Logger, timeout time.Duration) *ShutdownHandler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownHandler{
		logger:  logger,
		timeout: timeout,
	}
}

// Add registers a service for shutdown
func (sh *ShutdownHandler) Add(name string, closer io.Closer) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.services = append(sh.services, namedService{name: name, closer: closer})
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown function
func (sh *ShutdownHandler) AddFunc(name string, fn func() error) {
	sh.Add(name, CloseFunc(fn))
}

// Shutdown closes every service once, last registered first. A service that
// outlives its timeout is abandoned and reported. Later calls are no-ops.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	sh.mu.Lock()
	if sh.done {
		sh.mu.Unlock()
		return nil
	}
	sh.done = true
	services := make([]namedService, len(sh.services))
	copy(services, sh.services)
	sh.mu.Unlock()

	sh.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if err := sh.closeOne(ctx, services[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		sh.logger.Error("Shutdown completed with errors", zap.Int("errorCount", len(errs)))
		return errors.Join(errs...)
	}
	sh.logger.Info("Graceful shutdown completed successfully")
	return nil
}

func (sh *ShutdownHandler) closeOne(ctx context.Context, s namedService) error {
	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		sh.logger.Info("Shutting down service", zap.String("service", s.name))
		done <- s.closer.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			sh.logger.Error("Failed to shutdown service", zap.String("service", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
		sh.logger.Info("Service shutdown complete", zap.String("service", s.name))
		return nil
	case <-ctx.Done():
		sh.logger.Error("Shutdown timeout for service", zap.String("service", s.name))
		return fmt.Errorf("%s: shutdown timeout", s.name)
	}
}
