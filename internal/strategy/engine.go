package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/config"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// CommandKind names a control command.
type CommandKind string

const (
	CommandPlay  CommandKind = "play"
	CommandPause CommandKind = "pause"
	CommandReset CommandKind = "reset"
	CommandStep  CommandKind = "step"
	CommandStop  CommandKind = "stop"
)

// Command controls one loaded strategy.
type Command struct {
	StrategyID int64       `json:"strategy_id" yaml:"strategy_id"`
	Kind       CommandKind `json:"kind" yaml:"kind"`
}

// Engine keeps the strategies of a process, keyed by strategy id.
type Engine struct {
	mu         sync.RWMutex
	options    Options
	strategies map[int64]*Strategy
}

func NewEngine(options Options) *Engine {
	return &Engine{
		mu:         sync.RWMutex{},
		options:    options,
		strategies: make(map[int64]*Strategy),
	}
}

// Load builds and initializes the strategy of cfg. A strategy whose init
// failed is stopped and not kept.
func (e *Engine) Load(ctx context.Context, cfg config.StrategyConfig) (*Strategy, error) {
	e.mu.Lock()
	if _, ok := e.strategies[cfg.ID]; ok {
		e.mu.Unlock()

		return nil, errors.Newf(errors.ErrCodeStrategyAlreadyExists, "strategy %d is already loaded", cfg.ID).
			WithDetail("strategy_id", cfg.ID)
	}

	s, err := New(cfg, e.options)
	if err != nil {
		e.mu.Unlock()

		return nil, err
	}

	// reserve the id while the nodes initialize
	e.strategies[cfg.ID] = s
	e.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		if stopErr := s.Stop(ctx); stopErr != nil {
			s.logger.Warn("failed to stop strategy after init failure", zap.Error(stopErr))
		}

		e.mu.Lock()
		delete(e.strategies, cfg.ID)
		e.mu.Unlock()

		return nil, err
	}

	return s, nil
}

func (e *Engine) Get(id int64) (*Strategy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.strategies[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %d is not loaded", id).
			WithDetail("strategy_id", id)
	}

	return s, nil
}

// List returns the loaded strategies ordered by id.
func (e *Engine) List() []*Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

// Dispatch runs a command on its strategy.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) error {
	s, err := e.Get(cmd.StrategyID)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case CommandPlay:
		return s.Play(ctx)
	case CommandPause:
		return s.Pause(ctx)
	case CommandReset:
		return s.Reset(ctx)
	case CommandStep:
		_, err := s.Step(ctx)

		return err
	case CommandStop:
		return s.Stop(ctx)
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown command %q", cmd.Kind).
			WithDetail("kind", string(cmd.Kind))
	}
}

// Remove stops a strategy and forgets it.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	e.mu.Lock()

	s, ok := e.strategies[id]
	if !ok {
		e.mu.Unlock()

		return errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %d is not loaded", id).
			WithDetail("strategy_id", id)
	}

	delete(e.strategies, id)
	e.mu.Unlock()

	return s.Stop(ctx)
}

// Close stops every loaded strategy concurrently.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	strategies := make([]*Strategy, 0, len(e.strategies))

	for id, s := range e.strategies {
		strategies = append(strategies, s)
		delete(e.strategies, id)
	}
	e.mu.Unlock()

	p := pool.New().WithErrors().WithContext(ctx)
	for _, s := range strategies {
		p.Go(func(ctx context.Context) error { return s.Stop(ctx) })
	}

	return p.Wait()
}
