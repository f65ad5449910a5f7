package node

import (
	"strconv"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// Payload is a message a node emits on an output handle. FieldValue exposes
// named numeric fields to if-else conditions.
type Payload interface {
	FieldValue(name string) (float64, bool)
}

// NoData is emitted on a handle that has nothing for the play index, so
// downstream nodes still receive one message per edge.
type NoData struct {
	Reason string `json:"reason,omitempty"`
}

func (NoData) FieldValue(string) (float64, bool) { return 0, false }

// Tick starts a play index.
type Tick struct {
	PlayIndex int64 `json:"play_index"`
}

func (t Tick) FieldValue(name string) (float64, bool) {
	if name == "play_index" {
		return float64(t.PlayIndex), true
	}

	return 0, false
}

// KlinePayload carries the bar of one symbol. Empty field names read the close.
type KlinePayload struct {
	ConfigID int          `json:"config_id"`
	Key      key.KlineKey `json:"key"`
	Kline    types.Kline  `json:"kline"`
}

func (p KlinePayload) FieldValue(name string) (float64, bool) {
	if name == "" {
		name = "close"
	}

	return p.Kline.Field(name)
}

// IndicatorPayload carries one computed indicator point. Empty field names read
// the single "value" output.
type IndicatorPayload struct {
	ConfigID int                  `json:"config_id"`
	Key      key.IndicatorKey     `json:"key"`
	Value    types.IndicatorValue `json:"value"`
}

func (p IndicatorPayload) FieldValue(name string) (float64, bool) {
	if name == "" {
		name = "value"
	}

	v, ok := p.Value.Values[name]

	return v, ok
}

// SignalPayload is emitted by an if-else node on every case handle and on the
// else handle. Matched is true on exactly one of them.
type SignalPayload struct {
	types.Signal
	Matched bool `json:"matched"`
}

func (p SignalPayload) FieldValue(name string) (float64, bool) {
	switch name {
	case "", "matched":
		if p.Matched {
			return 1, true
		}

		return 0, true
	case "case_id":
		return float64(p.CaseID), true
	default:
		return 0, false
	}
}

// OrderStatus summarizes what an order config did for a play index.
type OrderStatus string

const (
	// OrderIdle means no order was submitted.
	OrderIdle OrderStatus = "idle"
	// OrderSubmitted means an order was accepted and waits for a fill.
	OrderSubmitted OrderStatus = "submitted"
	// OrderFilled means the latest order of the config filled.
	OrderFilled OrderStatus = "filled"
	// OrderSkipped means the config already had an unfilled order.
	OrderSkipped OrderStatus = "skipped"
	// OrderRejected means the trading system refused the order.
	OrderRejected OrderStatus = "rejected"
)

// OrderPayload is emitted by an order node per order config.
type OrderPayload struct {
	ConfigID int                 `json:"config_id"`
	Status   OrderStatus         `json:"status"`
	Order    *types.VirtualOrder `json:"order,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func (p OrderPayload) FieldValue(name string) (float64, bool) {
	switch name {
	case "", "filled":
		if p.Status == OrderFilled {
			return 1, true
		}

		return 0, true
	case "submitted":
		if p.Status == OrderSubmitted || p.Status == OrderFilled {
			return 1, true
		}

		return 0, true
	}

	if p.Order == nil {
		return 0, false
	}

	switch name {
	case "quantity":
		return p.Order.Quantity, true
	case "price":
		return p.Order.OpenPrice, true
	case "order_id":
		return float64(p.Order.OrderID), true
	default:
		return 0, false
	}
}

// PositionPayload is emitted by a position management node per operation.
type PositionPayload struct {
	ConfigID  int                     `json:"config_id"`
	Operation Operation               `json:"operation"`
	Positions []types.VirtualPosition `json:"positions"`
	Closed    []types.OrderResult     `json:"closed,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func (p PositionPayload) FieldValue(name string) (float64, bool) {
	switch name {
	case "", "count":
		return float64(len(p.Positions)), true
	case "closed":
		return float64(len(p.Closed)), true
	case "quantity":
		total := 0.0
		for _, pos := range p.Positions {
			total += pos.Quantity
		}

		return total, true
	case "unrealized_pnl":
		total := 0.0
		for _, pos := range p.Positions {
			total += pos.UnrealizedProfit
		}

		return total, true
	default:
		return 0, false
	}
}

// VariablePayload carries the variables a variable node read, by name and by
// config id.
type VariablePayload struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

func (p VariablePayload) FieldValue(name string) (float64, bool) {
	v, ok := p.Values[name]

	return v, ok
}

func variableKey(configID int) string {
	return "variable_" + strconv.Itoa(configID)
}
