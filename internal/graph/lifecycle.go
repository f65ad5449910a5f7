package graph

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StopPolicy decides what StopAll does after a node failed to stop.
type StopPolicy int

const (
	// StopPolicyContinue attempts every node and returns all failures.
	StopPolicyContinue StopPolicy = iota
	// StopPolicyAbort returns the first failure and leaves the remaining nodes running.
	StopPolicyAbort
)

const (
	phaseInit = "init"
	phaseStop = "stop"
)

// Options bounds the bulk lifecycle operations.
type Options struct {
	InitTimeout       time.Duration
	ReadyPollAttempts int
	ReadyPollInterval time.Duration
	StopTimeout       time.Duration
	StopPollAttempts  int
	StopPollInterval  time.Duration
	WaitPollInterval  time.Duration
	StopPolicy        StopPolicy
	InboxSize         int
}

func DefaultOptions() Options {
	return Options{
		InitTimeout:       120 * time.Second,
		ReadyPollAttempts: 10,
		ReadyPollInterval: 500 * time.Millisecond,
		StopTimeout:       10 * time.Second,
		StopPollAttempts:  20,
		StopPollInterval:  10 * time.Millisecond,
		WaitPollInterval:  500 * time.Millisecond,
		StopPolicy:        StopPolicyContinue,
		InboxSize:         DefaultInboxSize,
	}
}

// InitAll initializes the vertices in topological order. A vertex is started
// only after its predecessor reached Ready. The first failure aborts the
// sequence and the remaining vertices stay in Created.
func (g *Graph) InitAll(ctx context.Context) error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}

	for _, v := range order {
		start := time.Now()

		g.logger.Debug("initializing node", zap.String("node", v.Name()), zap.String("kind", v.Kind()))

		if err := g.runTask(ctx, v, phaseInit, g.options.InitTimeout, v.Init); err != nil {
			g.metrics.NodeFailed(phaseInit, errors.GetCode(err).String())

			return err
		}

		if !g.pollState(ctx, v, statemachine.Ready, g.options.ReadyPollAttempts, g.options.ReadyPollInterval) {
			g.metrics.NodeFailed(phaseInit, errors.ErrCodeNodeStateNotReady.String())

			return errors.Newf(errors.ErrCodeNodeStateNotReady, "node %s is %s after init, expected Ready", v.Name(), v.State()).
				WithDetail("node_id", v.ID()).
				WithDetail("state", v.State().String())
		}

		g.metrics.NodeInitialized(v.Name(), time.Since(start))
		g.logger.Info("node ready", zap.String("node", v.Name()), zap.Duration("elapsed", time.Since(start)))
	}

	return nil
}

// StopAll stops the vertices in topological order. Vertices that never left
// Created or already reached Stopped or Failed are skipped.
func (g *Graph) StopAll(ctx context.Context) error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}

	var errs error

	for _, v := range order {
		switch v.State() {
		case statemachine.Created, statemachine.Stopped, statemachine.Failed:
			continue
		case statemachine.Initializing, statemachine.Ready, statemachine.Stopping:
		}

		if err := g.stopOne(ctx, v); err != nil {
			g.metrics.NodeFailed(phaseStop, errors.GetCode(err).String())

			if g.options.StopPolicy == StopPolicyAbort {
				return err
			}

			g.logger.Warn("node failed to stop", zap.String("node", v.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (g *Graph) stopOne(ctx context.Context, v Vertex) error {
	start := time.Now()

	if err := g.runTask(ctx, v, phaseStop, g.options.StopTimeout, v.Stop); err != nil {
		return err
	}

	if !g.pollState(ctx, v, statemachine.Stopped, g.options.StopPollAttempts, g.options.StopPollInterval) {
		return errors.Newf(errors.ErrCodeNodeStateNotStopped, "node %s is %s after stop, expected Stopped", v.Name(), v.State()).
			WithDetail("node_id", v.ID()).
			WithDetail("state", v.State().String())
	}

	g.metrics.NodeStopped(v.Name(), time.Since(start))

	return nil
}

// WaitForAllNodesStopped polls until every vertex is Stopped or Failed. It
// reports false when timeout elapses or ctx is done first.
func (g *Graph) WaitForAllNodesStopped(ctx context.Context, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(g.options.WaitPollInterval)
	defer ticker.Stop()

	for {
		if g.allStopped() {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return g.allStopped()
		case <-ticker.C:
		}
	}
}

func (g *Graph) allStopped() bool {
	for _, v := range g.Vertices() {
		if s := v.State(); s != statemachine.Stopped && s != statemachine.Failed {
			return false
		}
	}

	return true
}

// runTask runs fn in its own goroutine and waits for it at most timeout.
// A panic becomes ErrCodeNodeTaskFailed, an expired timeout becomes the
// phase's timeout error and any other error is wrapped with ErrCodeNodeFailed.
func (g *Graph) runTask(ctx context.Context, v Vertex, phase string, timeout time.Duration, fn func(context.Context) error) error {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		var (
			catcher panics.Catcher
			err     error
		)

		catcher.Try(func() { err = fn(taskCtx) })

		if r := catcher.Recovered(); r != nil {
			g.logger.Error("node task panicked",
				zap.String("node", v.Name()),
				zap.String("phase", phase),
				zap.Any("panic", r.Value),
				zap.String("stack", string(r.Stack)),
			)

			err = errors.Wrapf(errors.ErrCodeNodeTaskFailed, r.AsError(), "%s task of node %s crashed", phase, v.Name()).
				WithDetail("node_id", v.ID())
		}

		done <- err
	}()

	timedOut := func() error {
		code := errors.ErrCodeNodeInitTimeout
		if phase == phaseStop {
			code = errors.ErrCodeNodeStopTimeout
		}

		return errors.Newf(code, "%s of node %s timed out after %s", phase, v.Name(), timeout).
			WithDetail("node_id", v.ID()).
			WithDetail("phase", phase)
	}

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.HasCode(err, errors.ErrCodeNodeTaskFailed):
			return err
		case taskCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			return timedOut()
		default:
			return errors.Wrapf(errors.ErrCodeNodeFailed, err, "%s of node %s failed", phase, v.Name()).
				WithDetail("node_id", v.ID())
		}
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return errors.Wrapf(errors.ErrCodeNodeFailed, ctx.Err(), "%s of node %s interrupted", phase, v.Name())
		}

		return timedOut()
	}
}

// pollState checks the vertex state up to attempts times, sleeping interval
// between checks.
func (g *Graph) pollState(ctx context.Context, v Vertex, want statemachine.RunState, attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if v.State() == want {
			return true
		}

		if v.State() == statemachine.Failed {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}

	return v.State() == want
}
