package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Func is a cleanup step run during shutdown
type Func func(ctx context.Context) error

// Priorities for the serve command. Lower runs first.
const (
	PriorityHTTPServer = 10 // Stop accepting requests first
	PriorityMetrics    = 90 // Report final counters last
)

// Coordinator runs registered cleanup steps in priority order once a signal
// arrives or Trigger is called.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	steps []step

	once      sync.Once
	trigger   sync.Once
	triggered chan struct{}
}

type step struct {
	name     string
	fn       Func
	priority int
}

// New creates a coordinator that gives all steps together at most timeout
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:   timeout,
		logger:    logger.With().Str("component", "shutdown").Logger(),
		triggered: make(chan struct{}),
	}
}

// RegisterHook adds a cleanup function
func (c *Coordinator) RegisterHook(name string, fn Func, priority int) {
	c.mu.Lock()
	c.steps = append(c.steps, step{name: name, fn: fn, priority: priority})
	c.mu.Unlock()

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown step")
}

// Register adds a component closed during shutdown
func (c *Coordinator) Register(name string, closer io.Closer, priority int) {
	c.RegisterHook(name, func(context.Context) error { return closer.Close() }, priority)
}

// WaitForSignal blocks until SIGINT, SIGTERM or Trigger
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		c.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return sig
	case <-c.triggered:
		return syscall.SIGTERM
	}
}

// Trigger releases WaitForSignal. Safe for concurrent use.
func (c *Coordinator) Trigger() {
	c.trigger.Do(func() { close(c.triggered) })
}

// Shutdown runs every step once, lowest priority first. Steps with equal
// priority keep registration order. A failing step does not stop later
// ones; all failures are joined. Steps not started before the deadline
// are skipped.
func (c *Coordinator) Shutdown() error {
	var result error

	c.once.Do(func() {
		c.Trigger()

		c.mu.Lock()
		steps := slices.Clone(c.steps)
		c.mu.Unlock()
		slices.SortStableFunc(steps, func(a, b step) int { return a.priority - b.priority })

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("steps", len(steps)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		start := time.Now()

		var errs []error
		for _, s := range steps {
			if err := ctx.Err(); err != nil {
				c.logger.Warn().Str("step", s.name).Msg("Shutdown timeout reached, skipping remaining steps")
				errs = append(errs, err)
				break
			}
			if err := s.fn(ctx); err != nil {
				c.logger.Error().Err(err).Str("step", s.name).Msg("Shutdown step failed")
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			}
		}
		result = errors.Join(errs...)

		c.logger.Info().Dur("duration", time.Since(start)).Msg("Graceful shutdown complete")
	})

	return result
}
