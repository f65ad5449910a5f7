package node

import (
	"context"
	"strings"

	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"go.uber.org/multierr"
)

// variableHandler reads account variables from the trading system.
type variableHandler struct {
	*base
	spec VariableSpec
}

func newVariableHandler(b *base, spec VariableSpec) *variableHandler {
	return &variableHandler{base: b, spec: spec}
}

func (h *variableHandler) inputs() []string  { return []string{HandleInput} }
func (h *variableHandler) outputs() []string { return []string{HandleVariable} }

func (h *variableHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{statemachine.ActionSubscribeNodeEvents}
}

func (h *variableHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	return unsupportedAction(h.base, action)
}

func (h *variableHandler) process(ctx context.Context, playIndex int64, inputs []graph.Message) (map[string]Payload, error) {
	if h.spec.Trigger == TriggerCondition && !anyMatched(inputs) {
		return map[string]Payload{HandleVariable: NoData{Reason: "no matched signal"}}, nil
	}

	account, err := bus.Call[types.AccountSnapshot](ctx, h.services.Bus, bus.TopicVirtualTradingCommand, vts.GetAccountCommand{})
	if err != nil {
		return nil, err
	}

	var (
		positions []types.VirtualPosition
		errs      error
	)

	if h.needsPositions() {
		positions, err = bus.Call[[]types.VirtualPosition](ctx, h.services.Bus, bus.TopicVirtualTradingCommand, vts.GetPositionsCommand{})
		errs = multierr.Append(errs, err)
	}

	payload := VariablePayload{Time: account.Time, Values: make(map[string]float64, 2*len(h.spec.Variables))}

	for _, msg := range inputs {
		if p, ok := msg.Payload.(Payload); ok {
			if t := payloadTime(p); !t.IsZero() {
				payload.Time = t

				break
			}
		}
	}

	for _, v := range h.spec.Variables {
		var value float64

		switch v.Name {
		case "balance":
			value = account.Balance
		case "available_balance":
			value = account.AvailableBalance
		case "equity":
			value = account.Equity
		case "realized_pnl":
			value = account.RealizedPnL
		case "unrealized_pnl":
			value = account.UnrealizedPnL
		case "position_count":
			value = float64(len(filterPositions(positions, v)))
		case "position_quantity":
			for _, pos := range filterPositions(positions, v) {
				value += pos.Quantity
			}
		case "play_index":
			value = float64(playIndex)
		}

		payload.Values[v.Name] = value
		payload.Values[variableKey(v.ConfigID)] = value
	}

	return map[string]Payload{HandleVariable: payload}, errs
}

func (h *variableHandler) needsPositions() bool {
	for _, v := range h.spec.Variables {
		if strings.HasPrefix(v.Name, "position_") {
			return true
		}
	}

	return false
}

func filterPositions(positions []types.VirtualPosition, v Variable) []types.VirtualPosition {
	out := make([]types.VirtualPosition, 0, len(positions))

	for _, pos := range positions {
		if v.Exchange != "" && pos.Exchange != v.Exchange {
			continue
		}

		if v.Symbol != "" && pos.Symbol != v.Symbol {
			continue
		}

		out = append(out, pos)
	}

	return out
}

func anyMatched(inputs []graph.Message) bool {
	for _, msg := range inputs {
		if signal, ok := msg.Payload.(SignalPayload); ok && signal.Matched {
			return true
		}
	}

	return false
}
