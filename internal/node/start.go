package node

import (
	"context"

	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
)

// startHandler turns play index commands into ticks.
type startHandler struct {
	*base
}

func (h *startHandler) inputs() []string  { return nil }
func (h *startHandler) outputs() []string { return []string{HandleStart} }

func (h *startHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{statemachine.ActionSubscribeStrategyCommands}
}

func (h *startHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	return unsupportedAction(h.base, action)
}

func (h *startHandler) process(_ context.Context, playIndex int64, _ []graph.Message) (map[string]Payload, error) {
	return map[string]Payload{HandleStart: Tick{PlayIndex: playIndex}}, nil
}
