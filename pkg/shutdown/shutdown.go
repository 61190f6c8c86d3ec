// Package shutdown runs ordered stop hooks when the server receives a
// termination signal.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
)

var (
	ErrShutdownTimeout = errors.New("shutdown timed out")
	ErrAlreadyClosed   = errors.New("shutdown handler already closed")
)

// Hook priorities. Lower runs earlier.
const (
	// PriorityHTTP stops accepting requests.
	PriorityHTTP = 100
	// PrioritySessions terminates live sessions, which saves unsaved input.
	PrioritySessions = 200
	// PriorityScheduler stops timers once no session can receive ticks.
	PriorityScheduler = 300
	// PriorityStore closes durable storage last.
	PriorityStore = 400
)

// Hook is one named stop step.
type Hook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// Config configures the shutdown handler.
type Config struct {
	// Timeout bounds all hooks together.
	Timeout time.Duration
	Signals []os.Signal
	Logger  logging.Logger
}

// DefaultConfig returns a 30 second timeout on SIGINT and SIGTERM.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Handler collects hooks and runs them once.
type Handler struct {
	config *Config
	logger logging.Logger
	hooks  []Hook
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewHandler creates a handler. A nil config uses DefaultConfig.
func NewHandler(config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Handler{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a hook.
func (h *Handler) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// RegisterFunc registers fn as a hook.
func (h *Handler) RegisterFunc(name string, priority int, fn func(ctx context.Context) error) {
	h.Register(Hook{Name: name, Priority: priority, Fn: fn})
}

// RegisterCloser registers a hook closing c.
func (h *Handler) RegisterCloser(name string, priority int, c interface{ Close() error }) {
	h.RegisterFunc(name, priority, func(context.Context) error { return c.Close() })
}

// Wait blocks until a signal arrives or ctx ends, then runs the hooks.
// It returns nil without running hooks if Shutdown already ran.
func (h *Handler) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, h.config.Signals...)
	defer stop()

	select {
	case <-sigCtx.Done():
	case <-h.done:
		return nil
	}
	h.logger.Info("shutting down")
	return h.Shutdown()
}

// Shutdown runs the hooks by priority. Hooks of equal priority keep
// their registration order. Every hook runs even if an earlier one
// failed; the errors are joined.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrAlreadyClosed
	}
	h.closed = true
	close(h.done)
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var errs []error
	for _, hook := range hooks {
		start := time.Now()
		err := hook.Fn(ctx)
		log := h.logger.With(logging.String("hook", hook.Name), logging.Duration("took", time.Since(start)))
		if err != nil {
			log.Error("shutdown hook failed", logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
		} else {
			log.Debug("shutdown hook done")
		}

		if ctx.Err() != nil {
			return errors.Join(append(errs, ErrShutdownTimeout)...)
		}
	}
	return errors.Join(errs...)
}

// Done is closed once shutdown started.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
