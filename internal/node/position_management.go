package node

import (
	"context"

	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"go.uber.org/zap"
)

// positionHandler closes or reads positions. Close operations run when their
// input handle receives a matched signal; query operations run every play index.
type positionHandler struct {
	*base
	spec PositionManagementSpec
	// operation by input handle
	operations map[string]PositionOperation
}

func newPositionHandler(b *base, spec PositionManagementSpec) *positionHandler {
	operations := make(map[string]PositionOperation, len(spec.Operations))
	for _, op := range spec.Operations {
		operations[ConfigInputHandle(op.ConfigID)] = op
	}

	return &positionHandler{base: b, spec: spec, operations: operations}
}

func (h *positionHandler) inputs() []string {
	out := make([]string, 0, len(h.spec.Operations))
	for _, op := range h.spec.Operations {
		out = append(out, ConfigInputHandle(op.ConfigID))
	}

	return out
}

func (h *positionHandler) outputs() []string {
	out := make([]string, 0, len(h.spec.Operations))
	for _, op := range h.spec.Operations {
		out = append(out, PositionHandle(op.ConfigID))
	}

	return out
}

func (h *positionHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{statemachine.ActionSubscribeNodeEvents}
}

func (h *positionHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	return unsupportedAction(h.base, action)
}

func (h *positionHandler) process(ctx context.Context, playIndex int64, inputs []graph.Message) (map[string]Payload, error) {
	triggered := make(map[int]bool, len(h.spec.Operations))

	for _, msg := range inputs {
		op, ok := h.operations[msg.ToHandle]
		if !ok {
			continue
		}

		if signal, ok := msg.Payload.(SignalPayload); ok && signal.Matched {
			triggered[op.ConfigID] = true
		}
	}

	out := make(map[string]Payload, len(h.spec.Operations))

	for _, op := range h.spec.Operations {
		payload := PositionPayload{ConfigID: op.ConfigID, Operation: op.Operation}

		if op.Operation != OperationQuery && triggered[op.ConfigID] {
			closed, err := h.close(ctx, op)
			payload.Closed = closed

			if err != nil {
				h.logger.Warn("failed to close positions",
					zap.Int("config_id", op.ConfigID),
					zap.Int64("play_index", playIndex),
					zap.Error(err),
				)

				payload.Error = err.Error()
			}
		}

		positions, err := bus.Call[[]types.VirtualPosition](ctx, h.services.Bus, bus.TopicVirtualTradingCommand,
			vts.GetPositionsCommand{Exchange: h.spec.Exchange})
		if err != nil && payload.Error == "" {
			payload.Error = err.Error()
		}

		payload.Positions = positions
		out[PositionHandle(op.ConfigID)] = payload
	}

	return out, nil
}

func (h *positionHandler) close(ctx context.Context, op PositionOperation) ([]types.OrderResult, error) {
	cmd := vts.ClosePositionCommand{Exchange: h.spec.Exchange}
	if op.Operation == OperationClose {
		cmd.Symbol = op.Symbol
	}

	closed, err := bus.Call[[]types.OrderResult](ctx, h.services.Bus, bus.TopicVirtualTradingCommand, cmd)
	if err != nil {
		return closed, err
	}

	h.logger.Info("positions closed",
		zap.Int("config_id", op.ConfigID),
		zap.String("operation", string(op.Operation)),
		zap.Int("closed", len(closed)),
	)

	return closed, nil
}
