// Package util carries process lifecycle helpers: ordered graceful
// shutdown and panic recovery for background goroutines.
package util

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownResource is one resource participating in graceful shutdown.
// Lower priorities shut down first.
type ShutdownResource struct {
	Name     string
	Priority int
	Shutdown func(context.Context) error
}

// GracefulShutdown tears registered resources down in priority order with
// an overall deadline.
type GracefulShutdown struct {
	logger  *logrus.Entry
	timeout time.Duration

	mu        sync.Mutex
	resources []ShutdownResource
}

// NewGracefulShutdown creates a shutdown manager.
func NewGracefulShutdown(logger *logrus.Logger, timeout time.Duration) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{
		logger:  logger.WithField("component", "shutdown"),
		timeout: timeout,
	}
}

// Register adds a resource.
func (gs *GracefulShutdown) Register(resource ShutdownResource) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.resources = append(gs.resources, resource)
}

// RegisterCloser registers an io.Closer.
func (gs *GracefulShutdown) RegisterCloser(name string, closer io.Closer, priority int) {
	gs.Register(ShutdownResource{
		Name:     name,
		Priority: priority,
		Shutdown: func(context.Context) error { return closer.Close() },
	})
}

// Shutdown closes every resource in priority order. Each resource gets the
// remainder of the overall deadline; failures are collected rather than
// aborting the sequence.
func (gs *GracefulShutdown) Shutdown(ctx context.Context) error {
	gs.mu.Lock()
	resources := make([]ShutdownResource, len(gs.resources))
	copy(resources, gs.resources)
	gs.mu.Unlock()

	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Priority < resources[j].Priority
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	gs.logger.WithField("resource_count", len(resources)).Info("Starting graceful shutdown")

	var failures []error
	for _, resource := range resources {
		if err := gs.shutdownOne(shutdownCtx, resource); err != nil {
			gs.logger.WithError(err).WithField("resource", resource.Name).Error("Resource shutdown failed")
			failures = append(failures, err)
			continue
		}
		gs.logger.WithField("resource", resource.Name).Debug("Resource shut down")
	}

	if len(failures) > 0 {
		return fmt.Errorf("graceful shutdown finished with %d failure(s): %v", len(failures), failures)
	}

	gs.logger.Info("Graceful shutdown completed")
	return nil
}

func (gs *GracefulShutdown) shutdownOne(ctx context.Context, resource ShutdownResource) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during shutdown of %s: %v", resource.Name, r)
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- resource.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("shutdown of %s: %w", resource.Name, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown of %s timed out", resource.Name)
	}
}
