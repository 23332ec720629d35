package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// State machine for shutdown. Transitions only move forward; a second
// termination signal while already draining is a no-op.
type State int32

const (
	Running State = iota
	Draining
	ClosingConnections
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case ClosingConnections:
		return "closing-connections"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Server is the HTTP listener side of shutdown: stop accepting and wait
// for in-flight requests, bounded by the context.
type Server interface {
	Shutdown(ctx context.Context) error
}

// ConnectionCloser closes every pooled database connection, reporting but
// not aborting on per-pool failures.
type ConnectionCloser interface {
	CloseAll(ctx context.Context) []error
}

// Resource is an external collaborator handle released best-effort after
// the pools are gone (e.g. the shared Redis client).
type Resource struct {
	Name  string
	Close func() error
}

// Coordinator drives graceful shutdown: drain the listener, close every
// database pool exactly once, release collaborator resources, then signal
// completion. Safe against repeated termination signals.
type Coordinator struct {
	logger       *zap.Logger
	server       Server
	pools        ConnectionCloser
	resources    []Resource
	drainTimeout time.Duration
	hardTimeout  time.Duration

	state atomic.Int32
	done  chan struct{}
}

func NewCoordinator(logger *zap.Logger, server Server, pools ConnectionCloser, drainTimeout, hardTimeout time.Duration, resources ...Resource) *Coordinator {
	return &Coordinator{
		logger:       logger,
		server:       server,
		pools:        pools,
		resources:    resources,
		drainTimeout: drainTimeout,
		hardTimeout:  hardTimeout,
		done:         make(chan struct{}),
	}
}

// State reports the current shutdown phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once shutdown has fully completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Listen blocks consuming termination signals until shutdown completes.
// The first SIGINT or SIGTERM starts the shutdown sequence; any further
// signal is logged and ignored.
func (c *Coordinator) Listen() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if !c.Trigger() {
				c.logger.Info("shutdown already in progress, ignoring signal",
					zap.String("signal", sig.String()))
			}
		case <-c.done:
			return
		}
	}
}

// Trigger starts shutdown if it has not started yet. Returns false when a
// previous trigger already won.
func (c *Coordinator) Trigger() bool {
	if !c.state.CompareAndSwap(int32(Running), int32(Draining)) {
		return false
	}
	go c.run()
	return true
}

func (c *Coordinator) run() {
	defer close(c.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.hardTimeout)
	defer cancel()

	c.logger.Info("draining HTTP listener", zap.Duration("timeout", c.drainTimeout))
	drainCtx, drainCancel := context.WithTimeout(ctx, c.drainTimeout)
	if err := c.server.Shutdown(drainCtx); err != nil {
		c.logger.Warn("listener drain incomplete", zap.Error(err))
	}
	drainCancel()

	c.state.Store(int32(ClosingConnections))
	c.logger.Info("closing database pools")
	if errs := c.pools.CloseAll(ctx); len(errs) > 0 {
		c.logger.Warn("some pools failed to close cleanly", zap.Int("failures", len(errs)))
	}

	for _, res := range c.resources {
		if err := res.Close(); err != nil {
			c.logger.Warn("closing resource", zap.String("resource", res.Name), zap.Error(err))
		}
	}

	c.state.Store(int32(Terminated))
	c.logger.Info("shutdown complete")
}
