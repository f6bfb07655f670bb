// Package shutdown runs cleanup functions when the process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type logger interface {
	Info(message string, fields ...map[string]interface{})
	Error(message string, fields ...map[string]interface{})
}

type step struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	steps   []step
	mu      sync.Mutex
	timeout time.Duration
	log     logger
}

// New creates a new shutdown manager
func New(timeout time.Duration, log logger) *Manager {
	return &Manager{timeout: timeout, log: log}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// Shutdown executes all registered functions and returns the errors they
// reported. Each function runs even when an earlier one failed.
func (m *Manager) Shutdown() []error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(m.steps) - 1; i >= 0; i-- {
		s := m.steps[i]
		if err := s.fn(ctx); err != nil {
			m.log.Error("shutdown step failed", map[string]interface{}{"step": s.name, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		m.log.Info("shutdown step complete", map[string]interface{}{"step": s.name})
	}
	m.steps = nil
	return errs
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx is done, then runs
// Shutdown either way.
func (m *Manager) WaitWithContext(ctx context.Context) []error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("received signal, shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
		m.log.Info("context done, shutting down")
	}
	return m.Shutdown()
}

// StopHTTPServer creates a shutdown function for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return server.Shutdown
}

// CloseResource creates a shutdown function for an io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}

// WaitFor polls done until it reports true or ctx expires.
func WaitFor(done func() bool, pollInterval time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for !done() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		return nil
	}
}
