package node

import (
	"context"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// futuresOrderHandler places the order of a config when the input handle of
// that config receives a matched signal.
type futuresOrderHandler struct {
	*base
	spec FuturesOrderSpec
	// config id by input handle
	configs map[string]int

	mu       sync.Mutex
	requests map[int]types.CreateOrderRequest
	// latest order placed per config id
	latest map[int]types.VirtualOrder
}

func newFuturesOrderHandler(b *base, spec FuturesOrderSpec) *futuresOrderHandler {
	configs := make(map[string]int, len(spec.Orders))
	for _, o := range spec.Orders {
		configs[ConfigInputHandle(o.ConfigID)] = o.ConfigID
	}

	return &futuresOrderHandler{
		base:     b,
		spec:     spec,
		configs:  configs,
		mu:       sync.Mutex{},
		requests: make(map[int]types.CreateOrderRequest),
		latest:   make(map[int]types.VirtualOrder),
	}
}

func (h *futuresOrderHandler) inputs() []string {
	out := make([]string, 0, len(h.spec.Orders))
	for _, o := range h.spec.Orders {
		out = append(out, ConfigInputHandle(o.ConfigID))
	}

	return out
}

func (h *futuresOrderHandler) outputs() []string {
	out := make([]string, 0, len(h.spec.Orders))
	for _, o := range h.spec.Orders {
		out = append(out, OrderHandle(o.ConfigID))
	}

	return out
}

func (h *futuresOrderHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{
		statemachine.ActionSubscribeExternalEvents,
		statemachine.ActionSubscribeNodeEvents,
		statemachine.ActionRegisterOrderConfigs,
	}
}

func (h *futuresOrderHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	if action != statemachine.ActionRegisterOrderConfigs {
		return unsupportedAction(h.base, action)
	}

	if h.services.Exchanges != nil {
		if err := h.services.Exchanges.Register(h.spec.Exchange); err != nil {
			return err
		}
	}

	requests := make(map[int]types.CreateOrderRequest, len(h.spec.Orders))

	for _, o := range h.spec.Orders {
		pointSize := optional.None[float64]()
		if o.PointSize > 0 {
			pointSize = optional.Some(o.PointSize)
		}

		req := types.CreateOrderRequest{
			StrategyID:    h.services.StrategyID,
			NodeID:        h.id,
			NodeName:      h.name,
			OrderConfigID: o.ConfigID,
			Exchange:      h.spec.Exchange,
			Symbol:        h.spec.Symbol,
			Side:          o.Side,
			OrderType:     o.OrderType,
			Price:         o.Price,
			Quantity:      o.Quantity,
			TakeProfit:    tpsl(o.TakeProfit),
			StopLoss:      tpsl(o.StopLoss),
			PointSize:     pointSize,
		}

		probe := req
		if o.QuantityRatio > 0 {
			// sized when placed
			probe.Quantity = 1
		}

		if err := probe.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidNodeConfig, err, "order config %d", o.ConfigID)
		}

		requests[o.ConfigID] = req
	}

	h.mu.Lock()
	h.requests = requests
	h.mu.Unlock()

	return nil
}

func (h *futuresOrderHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = make(map[int]types.VirtualOrder)
}

// onEvent follows the orders this node placed so fills of resting orders show
// up in later payloads.
func (h *futuresOrderHandler) onEvent(_ context.Context, event vts.Event) {
	var order types.VirtualOrder

	switch e := event.(type) {
	case vts.OrderFilled:
		order = e.Order
	case vts.OrderCanceled:
		order = e.Order
	default:
		return
	}

	if order.NodeID != h.id {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if latest, ok := h.latest[order.OrderConfigID]; ok && latest.OrderID == order.OrderID {
		h.latest[order.OrderConfigID] = order
	}
}

func (h *futuresOrderHandler) process(ctx context.Context, _ int64, inputs []graph.Message) (map[string]Payload, error) {
	triggered := make(map[int]bool, len(h.spec.Orders))

	for _, msg := range inputs {
		id, ok := h.configs[msg.ToHandle]
		if !ok {
			continue
		}

		if signal, ok := msg.Payload.(SignalPayload); ok && signal.Matched {
			triggered[id] = true
		}
	}

	out := make(map[string]Payload, len(h.spec.Orders))

	for _, o := range h.spec.Orders {
		if triggered[o.ConfigID] {
			out[OrderHandle(o.ConfigID)] = h.submit(ctx, o.ConfigID)

			continue
		}

		out[OrderHandle(o.ConfigID)] = h.current(o.ConfigID)
	}

	return out, nil
}

// submit places the order of a config unless one is still unfilled.
// Rejections are reported in the payload and never stop the graph.
func (h *futuresOrderHandler) submit(ctx context.Context, configID int) OrderPayload {
	unfilled, err := bus.Call[[]types.VirtualOrder](ctx, h.services.Bus, bus.TopicVirtualTradingCommand,
		vts.GetUnfilledOrdersCommand{NodeID: h.id})
	if err != nil {
		h.logger.Warn("failed to query unfilled orders", zap.Int("config_id", configID), zap.Error(err))

		return OrderPayload{ConfigID: configID, Status: OrderRejected, Error: err.Error()}
	}

	for i := range unfilled {
		// take-profit and stop-loss orders attached to a fill do not block the config
		placed := unfilled[i].OrderType == types.OrderTypeMarket || unfilled[i].OrderType == types.OrderTypeLimit
		if placed && unfilled[i].OrderConfigID == configID {
			return OrderPayload{ConfigID: configID, Status: OrderSkipped, Order: &unfilled[i]}
		}
	}

	h.mu.Lock()
	req := h.requests[configID]
	h.mu.Unlock()

	if ratio := h.ratio(configID); ratio > 0 {
		qty, err := bus.Call[float64](ctx, h.services.Bus, bus.TopicVirtualTradingCommand, vts.SizeOrderCommand{
			Exchange:  req.Exchange,
			Symbol:    req.Symbol,
			Ratio:     ratio,
			Precision: h.precision(configID),
		})
		if err != nil {
			h.logger.Warn("order not sized", zap.Int("config_id", configID), zap.Float64("ratio", ratio), zap.Error(err))

			return OrderPayload{ConfigID: configID, Status: OrderRejected, Error: err.Error()}
		}

		req.Quantity = qty
	}

	result, err := bus.Call[types.OrderResult](ctx, h.services.Bus, bus.TopicVirtualTradingCommand,
		vts.CreateOrderCommand{Request: req})
	if err != nil {
		h.logger.Warn("order rejected",
			zap.Int("config_id", configID),
			zap.String("side", string(req.Side)),
			zap.String("code", errors.GetCode(err).String()),
			zap.Error(err),
		)

		return OrderPayload{ConfigID: configID, Status: OrderRejected, Error: err.Error()}
	}

	h.mu.Lock()
	h.latest[configID] = result.Order
	h.mu.Unlock()

	h.logger.Info("order placed",
		zap.Int("config_id", configID),
		zap.Int64("order_id", result.Order.OrderID),
		zap.String("side", string(req.Side)),
		zap.Bool("filled", result.Filled),
	)

	status := OrderSubmitted
	if result.Filled {
		status = OrderFilled
	}

	order := result.Order

	return OrderPayload{ConfigID: configID, Status: status, Order: &order}
}

func (h *futuresOrderHandler) ratio(configID int) float64 {
	for _, o := range h.spec.Orders {
		if o.ConfigID == configID {
			return o.QuantityRatio
		}
	}

	return 0
}

func (h *futuresOrderHandler) precision(configID int) int {
	for _, o := range h.spec.Orders {
		if o.ConfigID == configID {
			return o.Precision
		}
	}

	return 0
}

func (h *futuresOrderHandler) current(configID int) OrderPayload {
	h.mu.Lock()
	defer h.mu.Unlock()

	latest, ok := h.latest[configID]
	if !ok {
		return OrderPayload{ConfigID: configID, Status: OrderIdle}
	}

	status := OrderIdle

	switch latest.Status {
	case types.OrderStatusCreated:
		status = OrderSubmitted
	case types.OrderStatusFilled:
		status = OrderFilled
	case types.OrderStatusCanceled:
	}

	return OrderPayload{ConfigID: configID, Status: status, Order: &latest}
}
