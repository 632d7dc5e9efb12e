package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Component is a long-running listener. Start blocks until the component stops.
type Component interface {
	Name() string
	Start() error
	Shutdown(ctx context.Context) error
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Supervisor runs components together. The first component failure, a
// cancelled parent context or SIGINT/SIGTERM stops all of them.
type Supervisor struct {
	components      []Component
	tasks           []task
	gracefulTimeout time.Duration
	logger          *slog.Logger

	// StatusHook, when set, is told when a component starts and stops serving.
	StatusHook func(component string, serving bool)
}

// New constructs a Supervisor.
func New(logger *slog.Logger, gracefulTimeout time.Duration) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}
	return &Supervisor{gracefulTimeout: gracefulTimeout, logger: logger}
}

// Add registers components in start order. Shutdown runs in reverse order.
func (s *Supervisor) Add(components ...Component) {
	s.components = append(s.components, components...)
}

// Background registers a one-shot task started with the components. Its
// error is logged and does not stop the process.
func (s *Supervisor) Background(name string, fn func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, fn: fn})
}

// Run blocks until every component has stopped. It returns the first start
// failure, or the aggregated shutdown errors.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.components {
		c := c
		g.Go(func() error {
			s.logger.Info("component starting", "component", c.Name())
			s.setStatus(c.Name(), true)
			err := c.Start()
			s.setStatus(c.Name(), false)
			if err != nil {
				return fmt.Errorf("component %s: %w", c.Name(), err)
			}
			return nil
		})
	}
	for _, t := range s.tasks {
		t := t
		go func() {
			if err := t.fn(gctx); err != nil {
				s.logger.Error("background task failed", "task", t.name, "error", err)
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", "reason", context.Cause(gctx))
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Supervisor) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.gracefulTimeout)
	defer cancel()

	var result *multierror.Error
	for i := len(s.components) - 1; i >= 0; i-- {
		c := s.components[i]
		s.setStatus(c.Name(), false)
		if err := c.Shutdown(ctx); err != nil {
			s.logger.Error("component shutdown failed", "component", c.Name(), "error", err)
			result = multierror.Append(result, err)
			continue
		}
		s.logger.Info("component stopped", "component", c.Name())
	}
	return result.ErrorOrNil()
}

func (s *Supervisor) setStatus(name string, serving bool) {
	if s.StatusHook != nil {
		s.StatusHook(name, serving)
	}
}
