package vts

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/utils"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// TpSlOrderRequest attaches a standalone take-profit or stop-loss order to the
// open position the side closes.
type TpSlOrderRequest struct {
	StrategyID    int64           `yaml:"strategy_id" json:"strategy_id"`
	NodeID        string          `yaml:"node_id" json:"node_id" validate:"required"`
	NodeName      string          `yaml:"node_name" json:"node_name"`
	OrderConfigID int             `yaml:"order_config_id" json:"order_config_id"`
	Exchange      string          `yaml:"exchange" json:"exchange" validate:"required"`
	Symbol        string          `yaml:"symbol" json:"symbol" validate:"required"`
	Side          types.OrderSide `yaml:"side" json:"side" validate:"required,oneof=CLOSE_LONG CLOSE_SHORT"`
	Price         float64         `yaml:"price" json:"price" validate:"gt=0"`
	Quantity      float64         `yaml:"quantity" json:"quantity" validate:"gt=0"`
}

func (r *TpSlOrderRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid take profit or stop loss request", err)
	}

	return nil
}

// CreateOrder accepts a market or limit order. Market orders and limit orders
// whose price already crosses the latest close fill immediately at that close;
// other limit orders wait for a kline that reaches their price.
func (s *System) CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.OrderResult, error) {
	s.mu.Lock()
	result, err := s.createOrder(req)

	if err != nil {
		s.metrics.OrderRejected(errors.GetCode(err).String())
		s.log.Debug("order rejected",
			zap.String("node_id", req.NodeID),
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Error(err),
		)
	}

	return result, s.unlockAndPublish(ctx, err)
}

// SizeOrder returns the quantity of an open order spending ratio of the
// available balance at the latest close of exchange/symbol, fees included,
// rounded down to precision decimals.
func (s *System) SizeOrder(exchange, symbol string, ratio float64, precision int) (float64, error) {
	if ratio <= 0 || ratio > 1 {
		return 0, errors.Newf(errors.ErrCodeInvalidOrder, "quantity ratio %g is not in (0, 1]", ratio)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bar, ok := s.prices[symbolKey(exchange, symbol)]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeKlineKeyNotFound, "no kline for %s %s", exchange, symbol)
	}

	available := s.account.AvailableBalance
	qty := utils.RoundToDecimalPrecision(
		utils.CalculateOrderQuantityByPercentage(available, bar.Close, s.config.Leverage, s.fee, ratio),
		precision,
	)

	if qty <= 0 {
		return 0, errors.Newf(errors.ErrCodeMarginNotEnough, "available balance %.8f buys nothing at %.8f", available, bar.Close).
			WithDetail("available", available)
	}

	return qty, nil
}

func (s *System) createOrder(req types.CreateOrderRequest) (types.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return types.OrderResult{}, err
	}

	if req.OrderType != types.OrderTypeMarket && req.OrderType != types.OrderTypeLimit {
		return types.OrderResult{}, errors.Newf(errors.ErrCodeUnsupportedOrderType, "unsupported order type %s", req.OrderType)
	}

	bar, ok := s.prices[symbolKey(req.Exchange, req.Symbol)]
	if !ok {
		return types.OrderResult{}, errors.Newf(errors.ErrCodeKlineKeyNotFound, "no kline for %s %s", req.Exchange, req.Symbol)
	}

	current := bar.Close
	side := req.Side.PositionSide()
	pos := s.openPosition(req.Exchange, req.Symbol)

	if req.Side.IsOpen() {
		if (pos != nil && pos.Side != side) || s.hasPendingOpen(req.Exchange, req.Symbol, side.Opposite()) {
			return types.OrderResult{}, errors.Newf(errors.ErrCodeDirectionConflict,
				"cannot %s %s while holding the opposite direction", req.Side, req.Symbol)
		}
	} else if pos == nil || pos.Side != side {
		return types.OrderResult{}, errors.Newf(errors.ErrCodePositionNotFound, "no %s position on %s %s", side, req.Exchange, req.Symbol)
	}

	fillNow := req.OrderType == types.OrderTypeMarket || crosses(req.Side, req.Price, current)

	entry := current
	if !fillNow {
		entry = req.Price
	}

	if req.Side.IsOpen() {
		required := Margin(entry, req.Quantity, s.config.Leverage)
		if required > s.account.AvailableBalance {
			return types.OrderResult{}, errors.Newf(errors.ErrCodeMarginNotEnough,
				"margin not enough: required %.8f, available %.8f", required, s.account.AvailableBalance).
				WithDetail("required", required).
				WithDetail("available", s.account.AvailableBalance)
		}
	}

	order := &types.VirtualOrder{
		OrderID:       s.ids.NextOrderID(),
		StrategyID:    req.StrategyID,
		NodeID:        req.NodeID,
		NodeName:      req.NodeName,
		OrderConfigID: req.OrderConfigID,
		Exchange:      req.Exchange,
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Quantity:      req.Quantity,
		OpenPrice:     entry,
		Status:        types.OrderStatusCreated,
		TakeProfit:    CalculateTakeProfit(side, entry, req.TakeProfit, req.PointSize),
		StopLoss:      CalculateStopLoss(side, entry, req.StopLoss, req.PointSize),
		PositionID:    optional.None[int64](),
		CreateTime:    s.now,
		UpdateTime:    s.now,
	}

	if pos != nil && !req.Side.IsOpen() {
		order.PositionID = optional.Some(pos.PositionID)
	}

	s.addOrder(order)

	result := types.OrderResult{
		Order:          types.VirtualOrder{},
		Filled:         false,
		ExcessQuantity: 0,
	}

	if fillNow {
		result.Filled = true
		result.ExcessQuantity = s.fill(order, current)
	} else if !req.Side.IsOpen() {
		result.ExcessQuantity = excessOf(order.Quantity, pos.Quantity)
	}

	s.updateAccount()
	result.Order = *order

	return result, nil
}

// CreateTakeProfitOrder attaches a take-profit order to the open position.
// It fills at its price once a kline reaches it.
func (s *System) CreateTakeProfitOrder(ctx context.Context, req TpSlOrderRequest) (types.OrderResult, error) {
	return s.createTpSlOrder(ctx, req, types.OrderTypeTakeProfitMarket)
}

// CreateStopLossOrder attaches a stop-loss order to the open position.
func (s *System) CreateStopLossOrder(ctx context.Context, req TpSlOrderRequest) (types.OrderResult, error) {
	return s.createTpSlOrder(ctx, req, types.OrderTypeStopMarket)
}

func (s *System) createTpSlOrder(ctx context.Context, req TpSlOrderRequest, orderType types.OrderType) (types.OrderResult, error) {
	s.mu.Lock()

	result, err := func() (types.OrderResult, error) {
		if err := req.Validate(); err != nil {
			return types.OrderResult{}, err
		}

		pos := s.openPosition(req.Exchange, req.Symbol)
		if pos == nil || pos.Side != req.Side.PositionSide() {
			return types.OrderResult{}, errors.Newf(errors.ErrCodePositionNotFound,
				"no %s position on %s %s", req.Side.PositionSide(), req.Exchange, req.Symbol)
		}

		order := s.newTpSlOrder(pos, orderType, req.Price, req.Quantity)
		order.StrategyID = req.StrategyID
		order.NodeID = req.NodeID
		order.NodeName = req.NodeName
		order.OrderConfigID = req.OrderConfigID

		s.addOrder(order)
		s.updateAccount()

		return types.OrderResult{
			Order:          *order,
			Filled:         false,
			ExcessQuantity: excessOf(req.Quantity, pos.Quantity),
		}, nil
	}()
	if err != nil {
		s.metrics.OrderRejected(errors.GetCode(err).String())
	}

	return result, s.unlockAndPublish(ctx, err)
}

// CancelOrder cancels an unfilled order and releases its frozen margin.
func (s *System) CancelOrder(ctx context.Context, orderID int64) (types.VirtualOrder, error) {
	s.mu.Lock()

	order, err := func() (types.VirtualOrder, error) {
		o := s.findOrder(orderID)
		if o == nil {
			return types.VirtualOrder{}, errors.Newf(errors.ErrCodeOrderNotFound, "order %d not found", orderID)
		}

		if o.Status.IsTerminal() {
			return types.VirtualOrder{}, errors.Newf(errors.ErrCodeInvalidOrder, "order %d is already %s", orderID, o.Status)
		}

		s.cancel(o, "canceled by request")
		s.updateAccount()

		return *o, nil
	}()

	return order, s.unlockAndPublish(ctx, err)
}

// GetOrder looks an order up by id.
func (s *System) GetOrder(orderID int64) optional.Option[types.VirtualOrder] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o := s.findOrder(orderID); o != nil {
		return optional.Some(*o)
	}

	return optional.None[types.VirtualOrder]()
}

// UnfilledOrders returns the orders still waiting for a fill, oldest first.
func (s *System) UnfilledOrders() []types.VirtualOrder {
	return s.collectOrders(func(o *types.VirtualOrder) bool { return !o.Status.IsTerminal() })
}

// UnfilledOrdersOf returns the unfilled orders submitted by a node.
func (s *System) UnfilledOrdersOf(nodeID string) []types.VirtualOrder {
	return s.collectOrders(func(o *types.VirtualOrder) bool {
		return !o.Status.IsTerminal() && o.NodeID == nodeID
	})
}

// HistoryOrders returns filled and canceled orders, oldest first.
func (s *System) HistoryOrders() []types.VirtualOrder {
	return s.collectOrders(func(o *types.VirtualOrder) bool { return o.Status.IsTerminal() })
}

// Transactions returns every fill, oldest first.
func (s *System) Transactions() []types.VirtualTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.VirtualTransaction, len(s.transactions))
	copy(out, s.transactions)

	return out
}

func (s *System) collectOrders(keep func(*types.VirtualOrder) bool) []types.VirtualOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.VirtualOrder

	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}

	return out
}

func (s *System) addOrder(o *types.VirtualOrder) {
	s.orders = append(s.orders, o)
	s.metrics.OrderAccepted(string(o.OrderType), string(o.Side))
	s.emit(OrderCreated{Order: *o})
}

func (s *System) findOrder(orderID int64) *types.VirtualOrder {
	for _, o := range s.orders {
		if o.OrderID == orderID {
			return o
		}
	}

	return nil
}

func (s *System) hasPendingOpen(exchange, symbol string, side types.PositionSide) bool {
	for _, o := range s.orders {
		if o.Status == types.OrderStatusCreated && o.Side.IsOpen() &&
			o.Exchange == exchange && o.Symbol == symbol && o.Side.PositionSide() == side {
			return true
		}
	}

	return false
}

func (s *System) cancel(o *types.VirtualOrder, reason string) {
	o.Status = types.OrderStatusCanceled
	o.UpdateTime = s.now
	s.emit(OrderCanceled{Order: *o, Reason: reason})
}

// checkUnfilled fills every pending order of exchange/symbol that bar reaches.
// Orders are visited oldest first, so when a take-profit and a stop-loss both
// trigger on one bar the older one wins and the other is canceled with it.
func (s *System) checkUnfilled(exchange, symbol string, bar types.Kline) {
	pending := make([]*types.VirtualOrder, 0, len(s.orders))

	for _, o := range s.orders {
		if o.Status == types.OrderStatusCreated && o.Exchange == exchange && o.Symbol == symbol {
			pending = append(pending, o)
		}
	}

	for _, o := range pending {
		// an earlier fill in this pass may have canceled it
		if o.Status != types.OrderStatusCreated {
			continue
		}

		if !triggered(o, bar) {
			continue
		}

		if !o.Side.IsOpen() && s.closingTarget(o) == nil {
			s.cancel(o, "position not found")

			continue
		}

		s.fill(o, o.TriggerPrice())
	}
}

// crosses reports whether a limit order is marketable at current.
func crosses(side types.OrderSide, limit, current float64) bool {
	switch side {
	case types.OrderSideOpenLong, types.OrderSideCloseShort:
		return limit >= current
	case types.OrderSideOpenShort, types.OrderSideCloseLong:
		return limit <= current
	default:
		return false
	}
}

// triggered reports whether bar reaches the trigger price of a pending order.
func triggered(o *types.VirtualOrder, bar types.Kline) bool {
	price := o.TriggerPrice()
	buys := o.Side == types.OrderSideOpenLong || o.Side == types.OrderSideCloseShort

	switch o.OrderType {
	case types.OrderTypeLimit:
		if buys {
			return bar.Low <= price
		}

		return bar.High >= price
	case types.OrderTypeTakeProfitMarket:
		if o.Side == types.OrderSideCloseLong {
			return bar.High >= price
		}

		return bar.Low <= price
	case types.OrderTypeStopMarket:
		if o.Side == types.OrderSideCloseLong {
			return bar.Low <= price
		}

		return bar.High >= price
	case types.OrderTypeMarket:
		return true
	default:
		return false
	}
}

// fill executes o at price and returns the closing quantity above the
// position, which is zero for opening orders.
func (s *System) fill(o *types.VirtualOrder, price float64) float64 {
	o.Status = types.OrderStatusFilled
	o.UpdateTime = s.now

	var excess float64
	if o.Side.IsOpen() {
		s.fillOpen(o, price)
	} else {
		excess = s.fillClose(o, price)
	}

	s.metrics.OrderFilled(string(o.OrderType))
	s.emit(OrderFilled{Order: *o, Price: price, ExcessQuantity: excess})

	if o.Side.IsOpen() {
		s.attachTpSl(o)
	}

	return excess
}

// attachTpSl creates the take-profit and stop-loss orders an opening order
// carried, sized to the whole position. A new leg replaces the pending legs of
// the same type on the position.
func (s *System) attachTpSl(o *types.VirtualOrder) {
	pos := s.positionByID(o.PositionID)
	if pos == nil {
		return
	}

	if tp, err := o.TakeProfit.Take(); err == nil {
		s.cancelLegs(pos.PositionID, types.OrderTypeTakeProfitMarket)
		s.addOrder(s.newTpSlOrderFrom(o, pos, types.OrderTypeTakeProfitMarket, tp))
	}

	if sl, err := o.StopLoss.Take(); err == nil {
		s.cancelLegs(pos.PositionID, types.OrderTypeStopMarket)
		s.addOrder(s.newTpSlOrderFrom(o, pos, types.OrderTypeStopMarket, sl))
	}
}

func (s *System) newTpSlOrderFrom(parent *types.VirtualOrder, pos *types.VirtualPosition, orderType types.OrderType, price float64) *types.VirtualOrder {
	order := s.newTpSlOrder(pos, orderType, price, pos.Quantity)
	order.StrategyID = parent.StrategyID
	order.NodeID = parent.NodeID
	order.NodeName = parent.NodeName
	order.OrderConfigID = parent.OrderConfigID

	return order
}

func (s *System) newTpSlOrder(pos *types.VirtualPosition, orderType types.OrderType, price, quantity float64) *types.VirtualOrder {
	order := &types.VirtualOrder{
		OrderID:       s.ids.NextOrderID(),
		StrategyID:    pos.StrategyID,
		NodeID:        pos.NodeID,
		NodeName:      pos.NodeName,
		OrderConfigID: pos.OrderConfigID,
		Exchange:      pos.Exchange,
		Symbol:        pos.Symbol,
		Side:          types.CloseSide(pos.Side),
		OrderType:     orderType,
		Quantity:      quantity,
		OpenPrice:     price,
		Status:        types.OrderStatusCreated,
		TakeProfit:    optional.None[float64](),
		StopLoss:      optional.None[float64](),
		PositionID:    optional.Some(pos.PositionID),
		CreateTime:    s.now,
		UpdateTime:    s.now,
	}

	if orderType == types.OrderTypeTakeProfitMarket {
		order.TakeProfit = optional.Some(price)
	} else {
		order.StopLoss = optional.Some(price)
	}

	return order
}

func excessOf(quantity, available float64) float64 {
	if quantity-available <= quantityEpsilon {
		return 0
	}

	return sub(quantity, available)
}
