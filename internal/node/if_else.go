package node

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

const equalityEpsilon = 1e-9

type operandPair struct {
	left  float64
	right float64
}

// ifElseHandler evaluates its cases in order. The first case whose conditions
// hold is matched and every later case is reported as not matched; the else
// handle is matched when no case is.
type ifElseHandler struct {
	*base
	spec IfElseSpec

	mu sync.Mutex
	// previous operand values per condition, for the crossing operators
	previous map[string]operandPair
}

func newIfElseHandler(b *base, spec IfElseSpec) *ifElseHandler {
	return &ifElseHandler{
		base:     b,
		spec:     spec,
		mu:       sync.Mutex{},
		previous: make(map[string]operandPair),
	}
}

func (h *ifElseHandler) inputs() []string { return []string{HandleInput} }

func (h *ifElseHandler) outputs() []string {
	out := make([]string, 0, len(h.spec.Cases)+1)
	for _, c := range h.spec.Cases {
		out = append(out, CaseHandle(c.CaseID))
	}

	return append(out, HandleElse)
}

func (h *ifElseHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{statemachine.ActionSubscribeNodeEvents}
}

func (h *ifElseHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	return unsupportedAction(h.base, action)
}

func (h *ifElseHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.previous = make(map[string]operandPair)
}

func (h *ifElseHandler) process(_ context.Context, playIndex int64, inputs []graph.Message) (map[string]Payload, error) {
	received := make(map[string]Payload, len(inputs))
	barTime := time.Time{}

	for _, msg := range inputs {
		p, ok := msg.Payload.(Payload)
		if !ok {
			continue
		}

		received[msg.FromNode+"/"+msg.FromHandle] = p

		if barTime.IsZero() {
			barTime = payloadTime(p)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]Payload, len(h.spec.Cases)+1)
	matched := 0

	for _, c := range h.spec.Cases {
		// every case is evaluated so crossing operators see each play index
		holds, reason := h.evaluate(c, received)

		signal := SignalPayload{
			Signal: types.Signal{
				Time:      barTime,
				PlayIndex: playIndex,
				NodeID:    h.id,
				CaseID:    c.CaseID,
			},
			Matched: holds && matched == 0,
		}

		if signal.Matched {
			matched = c.CaseID
			signal.Reason = reason
		}

		out[CaseHandle(c.CaseID)] = signal
	}

	out[HandleElse] = SignalPayload{
		Signal: types.Signal{
			Time:      barTime,
			PlayIndex: playIndex,
			NodeID:    h.id,
			CaseID:    0,
		},
		Matched: matched == 0,
	}

	return out, nil
}

func (h *ifElseHandler) evaluate(c Case, received map[string]Payload) (bool, string) {
	results := make([]bool, len(c.Conditions))
	reasons := make([]string, 0, len(c.Conditions))

	for i, cond := range c.Conditions {
		id := fmt.Sprintf("%d/%d", c.CaseID, i)

		left, lok := resolve(cond.Left, received)
		right, rok := resolve(cond.Right, received)

		if !lok || !rok {
			delete(h.previous, id)

			continue
		}

		prev, hasPrev := h.previous[id]
		h.previous[id] = operandPair{left: left, right: right}

		results[i] = compare(cond.Operator, left, right, prev, hasPrev)
		if results[i] {
			reasons = append(reasons, fmt.Sprintf("%s %s %s (%g %s %g)", cond.Left, cond.Operator, cond.Right, left, cond.Operator, right))
		}
	}

	holds := c.Logic != LogicOr
	for _, r := range results {
		if c.Logic == LogicOr {
			holds = holds || r
		} else {
			holds = holds && r
		}
	}

	sep := " and "
	if c.Logic == LogicOr {
		sep = " or "
	}

	return holds, strings.Join(reasons, sep)
}

// resolve reads the value of an operand. Missing payloads and fields do not
// resolve, and a condition with an unresolved operand does not hold.
func resolve(o Operand, received map[string]Payload) (float64, bool) {
	if o.Type == OperandConstant {
		return o.Value, true
	}

	p, ok := received[o.NodeID+"/"+o.Handle]
	if !ok {
		return 0, false
	}

	return p.FieldValue(o.Field)
}

func compare(op Operator, left, right float64, prev operandPair, hasPrev bool) bool {
	switch op {
	case OpGreaterThan:
		return left > right
	case OpGreaterThanOrEqual:
		return left >= right
	case OpLessThan:
		return left < right
	case OpLessThanOrEqual:
		return left <= right
	case OpEqual:
		return math.Abs(left-right) < equalityEpsilon
	case OpNotEqual:
		return math.Abs(left-right) >= equalityEpsilon
	case OpCrossesAbove:
		return hasPrev && prev.left <= prev.right && left > right
	case OpCrossesBelow:
		return hasPrev && prev.left >= prev.right && left < right
	default:
		return false
	}
}

func payloadTime(p Payload) time.Time {
	switch v := p.(type) {
	case KlinePayload:
		return v.Kline.Time
	case IndicatorPayload:
		return v.Value.Time
	case SignalPayload:
		return v.Time
	default:
		return time.Time{}
	}
}
