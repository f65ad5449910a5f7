package vts

import (
	"context"
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// GetPosition returns the open position on exchange/symbol.
func (s *System) GetPosition(exchange, symbol string) optional.Option[types.VirtualPosition] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos := s.openPosition(exchange, symbol); pos != nil {
		return optional.Some(*pos)
	}

	return optional.None[types.VirtualPosition]()
}

// CurrentPositions returns the open positions in opening order.
func (s *System) CurrentPositions() []types.VirtualPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.VirtualPosition, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}

	return out
}

// HistoryPositions returns the closed positions in closing order.
func (s *System) HistoryPositions() []types.VirtualPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.VirtualPosition, len(s.historyPositions))
	copy(out, s.historyPositions)

	return out
}

// ClosePosition closes the whole position on exchange/symbol at the latest close.
func (s *System) ClosePosition(ctx context.Context, exchange, symbol string) (types.OrderResult, error) {
	s.mu.Lock()
	result, err := s.closePosition(exchange, symbol)

	return result, s.unlockAndPublish(ctx, err)
}

// CloseAllPositions closes every open position. Positions without a price are
// skipped and reported in the returned error.
func (s *System) CloseAllPositions(ctx context.Context) ([]types.OrderResult, error) {
	s.mu.Lock()

	targets := make([]*types.VirtualPosition, len(s.positions))
	copy(targets, s.positions)

	var (
		results  []types.OrderResult
		firstErr error
	)

	for _, pos := range targets {
		result, err := s.closePosition(pos.Exchange, pos.Symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		results = append(results, result)
	}

	return results, s.unlockAndPublish(ctx, firstErr)
}

func (s *System) closePosition(exchange, symbol string) (types.OrderResult, error) {
	pos := s.openPosition(exchange, symbol)
	if pos == nil {
		return types.OrderResult{}, errors.Newf(errors.ErrCodePositionNotFound, "no open position on %s %s", exchange, symbol)
	}

	bar, ok := s.prices[symbolKey(exchange, symbol)]
	if !ok {
		return types.OrderResult{}, errors.Newf(errors.ErrCodeKlineKeyNotFound, "no kline for %s %s", exchange, symbol)
	}

	order := &types.VirtualOrder{
		OrderID:       s.ids.NextOrderID(),
		StrategyID:    pos.StrategyID,
		NodeID:        pos.NodeID,
		NodeName:      pos.NodeName,
		OrderConfigID: pos.OrderConfigID,
		Exchange:      exchange,
		Symbol:        symbol,
		Side:          types.CloseSide(pos.Side),
		OrderType:     types.OrderTypeMarket,
		Quantity:      pos.Quantity,
		OpenPrice:     bar.Close,
		Status:        types.OrderStatusCreated,
		TakeProfit:    optional.None[float64](),
		StopLoss:      optional.None[float64](),
		PositionID:    optional.Some(pos.PositionID),
		CreateTime:    s.now,
		UpdateTime:    s.now,
	}

	s.addOrder(order)
	excess := s.fill(order, bar.Close)
	s.updateAccount()

	return types.OrderResult{
		Order:          *order,
		Filled:         true,
		ExcessQuantity: excess,
	}, nil
}

func (s *System) openPosition(exchange, symbol string) *types.VirtualPosition {
	for _, pos := range s.positions {
		if pos.Exchange == exchange && pos.Symbol == symbol {
			return pos
		}
	}

	return nil
}

func (s *System) positionByID(id optional.Option[int64]) *types.VirtualPosition {
	positionID, err := id.Take()
	if err != nil {
		return nil
	}

	for _, pos := range s.positions {
		if pos.PositionID == positionID {
			return pos
		}
	}

	return nil
}

// closingTarget is the open position a closing order acts on.
func (s *System) closingTarget(o *types.VirtualOrder) *types.VirtualPosition {
	if o.PositionID.IsSome() {
		return s.positionByID(o.PositionID)
	}

	pos := s.openPosition(o.Exchange, o.Symbol)
	if pos == nil || pos.Side != o.Side.PositionSide() {
		return nil
	}

	return pos
}

// fillOpen opens a position or adds to the same-side one at a weighted
// average price.
func (s *System) fillOpen(o *types.VirtualOrder, price float64) {
	fee := s.fee.Calculate(price, o.Quantity)
	s.totalFees = add(s.totalFees, fee)

	pos := s.openPosition(o.Exchange, o.Symbol)
	if pos == nil {
		pos = &types.VirtualPosition{
			PositionID:       s.ids.NextPositionID(),
			StrategyID:       o.StrategyID,
			NodeID:           o.NodeID,
			NodeName:         o.NodeName,
			OrderConfigID:    o.OrderConfigID,
			Exchange:         o.Exchange,
			Symbol:           o.Symbol,
			Side:             o.Side.PositionSide(),
			State:            types.PositionStateOpen,
			Quantity:         o.Quantity,
			OpenPrice:        price,
			CurrentPrice:     price,
			UnrealizedProfit: 0,
			RealizedProfit:   0,
			Leverage:         s.config.Leverage,
			Margin:           0,
			MarginRatio:      0,
			ForcePrice:       0,
			ROI:              0,
			CreateTime:       s.now,
			UpdateTime:       s.now,
			CloseTime:        optional.None[time.Time](),
		}
		s.refreshPosition(pos, price)
		s.positions = append(s.positions, pos)
		s.emit(PositionOpened{Position: *pos})
	} else {
		pos.OpenPrice = AveragePrice(pos.OpenPrice, pos.Quantity, price, o.Quantity)
		pos.Quantity = add(pos.Quantity, o.Quantity)
		s.refreshPosition(pos, price)
		s.emit(PositionUpdated{Position: *pos})
	}

	o.PositionID = optional.Some(pos.PositionID)
	s.recordTransaction(o, pos, price, o.Quantity, fee, optional.None[float64](), 0)
}

// fillClose reduces the target position by the order quantity. A quantity
// above the position closes all of it and the rest is returned as excess.
func (s *System) fillClose(o *types.VirtualOrder, price float64) float64 {
	pos := s.closingTarget(o)
	if pos == nil {
		// callers check the target first
		s.log.Error("closing order without position", zap.Int64("order_id", o.OrderID))

		return o.Quantity
	}

	closeQty := min(o.Quantity, pos.Quantity)
	excess := excessOf(o.Quantity, pos.Quantity)
	realized := Profit(pos.Side, pos.OpenPrice, price, closeQty)
	fee := s.fee.Calculate(price, closeQty)
	s.totalFees = add(s.totalFees, fee)

	s.refreshPosition(pos, price)
	pos.RealizedProfit = add(pos.RealizedProfit, realized)
	pos.Quantity = sub(pos.Quantity, closeQty)
	o.PositionID = optional.Some(pos.PositionID)

	if pos.Quantity <= quantityEpsilon {
		pos.Quantity = 0
		pos.State = types.PositionStateClosed
		pos.UnrealizedProfit = 0
		pos.Margin = 0
		pos.MarginRatio = 0
		pos.CloseTime = optional.Some(s.now)

		s.positions = slices.DeleteFunc(s.positions, func(p *types.VirtualPosition) bool { return p == pos })
		s.historyPositions = append(s.historyPositions, *pos)

		s.emit(PositionUpdated{Position: *pos})
		s.emit(PositionClosed{Position: *pos})
		s.metrics.PositionClosed(string(pos.Side))
		s.cancelSiblings(pos.PositionID, o.OrderID)
	} else {
		s.refreshPosition(pos, price)
		s.emit(PositionUpdated{Position: *pos})
	}

	s.recordTransaction(o, pos, price, closeQty, fee, optional.Some(realized), excess)

	return excess
}

// cancelSiblings cancels the unfilled orders still attached to a closed position.
func (s *System) cancelSiblings(positionID, filledOrderID int64) {
	for _, o := range s.orders {
		if o.OrderID == filledOrderID || o.Status != types.OrderStatusCreated {
			continue
		}

		if id, err := o.PositionID.Take(); err == nil && id == positionID {
			s.cancel(o, "position closed")
		}
	}
}

// cancelLegs cancels the pending orders of orderType attached to a position.
func (s *System) cancelLegs(positionID int64, orderType types.OrderType) {
	for _, o := range s.orders {
		if o.Status != types.OrderStatusCreated || o.OrderType != orderType {
			continue
		}

		if id, err := o.PositionID.Take(); err == nil && id == positionID {
			s.cancel(o, "replaced")
		}
	}
}

func (s *System) updatePositions(exchange, symbol string, price float64) {
	for _, pos := range s.positions {
		if pos.Exchange != exchange || pos.Symbol != symbol {
			continue
		}

		s.refreshPosition(pos, price)
		s.emit(PositionUpdated{Position: *pos})
	}
}

// refreshPosition marks pos to price. The margin ratio is set by updateAccount.
func (s *System) refreshPosition(pos *types.VirtualPosition, price float64) {
	pos.CurrentPrice = price
	pos.UnrealizedProfit = Profit(pos.Side, pos.OpenPrice, price, pos.Quantity)
	pos.ROI = ROI(pos.UnrealizedProfit, pos.OpenPrice, pos.Quantity)
	pos.Margin = Margin(pos.OpenPrice, pos.Quantity, pos.Leverage)
	pos.ForcePrice = ForcePrice(pos.Side, pos.OpenPrice, pos.Leverage)
	pos.UpdateTime = s.now
}

func (s *System) recordTransaction(o *types.VirtualOrder, pos *types.VirtualPosition, price, quantity, fee float64, realized optional.Option[float64], excess float64) {
	tx := types.VirtualTransaction{
		TransactionID:  s.ids.NextTransactionID(),
		OrderID:        o.OrderID,
		PositionID:     pos.PositionID,
		StrategyID:     o.StrategyID,
		NodeID:         o.NodeID,
		NodeName:       o.NodeName,
		OrderConfigID:  o.OrderConfigID,
		Exchange:       o.Exchange,
		Symbol:         o.Symbol,
		Side:           types.TransactionSideOf(o.Side),
		Quantity:       quantity,
		Price:          price,
		Fee:            fee,
		RealizedProfit: realized,
		ExcessQuantity: excess,
		CreateTime:     s.now,
	}

	s.transactions = append(s.transactions, tx)
	s.emit(TransactionCreated{Transaction: tx})
}
