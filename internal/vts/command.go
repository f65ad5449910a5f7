package vts

import (
	"context"

	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Commands answered on bus.TopicVirtualTradingCommand. The reply value type is
// noted per command.

// CreateOrderCommand replies types.OrderResult.
type CreateOrderCommand struct {
	Request types.CreateOrderRequest
}

// CreateTakeProfitOrderCommand replies types.OrderResult.
type CreateTakeProfitOrderCommand struct {
	Request TpSlOrderRequest
}

// CreateStopLossOrderCommand replies types.OrderResult.
type CreateStopLossOrderCommand struct {
	Request TpSlOrderRequest
}

// CancelOrderCommand replies the canceled types.VirtualOrder.
type CancelOrderCommand struct {
	OrderID int64
}

// ClosePositionCommand replies []types.OrderResult. An empty Symbol closes
// every open position.
type ClosePositionCommand struct {
	Exchange string
	Symbol   string
}

// GetPositionCommand replies optional.Option[types.VirtualPosition].
type GetPositionCommand struct {
	Exchange string
	Symbol   string
}

// GetPositionsCommand replies the open []types.VirtualPosition of an exchange,
// or of every exchange when Exchange is empty.
type GetPositionsCommand struct {
	Exchange string
}

// SizeOrderCommand replies the float64 quantity of an open order spending
// Ratio of the available balance.
type SizeOrderCommand struct {
	Exchange  string
	Symbol    string
	Ratio     float64
	Precision int
}

// GetAccountCommand replies types.AccountSnapshot.
type GetAccountCommand struct{}

// GetUnfilledOrdersCommand replies []types.VirtualOrder of one node, or of
// every node when NodeID is empty.
type GetUnfilledOrdersCommand struct {
	NodeID string
}

// Serve answers commands on the virtual trading command topic until ctx is
// done or the returned subscription is closed. The subscription exists when
// Serve returns, so requests sent afterwards are never lost.
func (s *System) Serve(ctx context.Context, b *bus.Bus) *bus.Subscription {
	sub := b.Subscribe(bus.TopicVirtualTradingCommand, bus.DefaultBufferSize)

	go b.Serve(ctx, sub, s.HandleCommand)

	return sub
}

// HandleCommand is the bus.Handler of the engine.
func (s *System) HandleCommand(ctx context.Context, command any) (any, error) {
	switch cmd := command.(type) {
	case CreateOrderCommand:
		return s.CreateOrder(ctx, cmd.Request)
	case CreateTakeProfitOrderCommand:
		return s.CreateTakeProfitOrder(ctx, cmd.Request)
	case CreateStopLossOrderCommand:
		return s.CreateStopLossOrder(ctx, cmd.Request)
	case CancelOrderCommand:
		return s.CancelOrder(ctx, cmd.OrderID)
	case ClosePositionCommand:
		if cmd.Symbol == "" {
			return s.CloseAllPositions(ctx)
		}

		result, err := s.ClosePosition(ctx, cmd.Exchange, cmd.Symbol)
		if err != nil {
			return nil, err
		}

		return []types.OrderResult{result}, nil
	case GetPositionCommand:
		return s.GetPosition(cmd.Exchange, cmd.Symbol), nil
	case GetPositionsCommand:
		positions := s.CurrentPositions()
		if cmd.Exchange == "" {
			return positions, nil
		}

		out := make([]types.VirtualPosition, 0, len(positions))
		for _, pos := range positions {
			if pos.Exchange == cmd.Exchange {
				out = append(out, pos)
			}
		}

		return out, nil
	case SizeOrderCommand:
		return s.SizeOrder(cmd.Exchange, cmd.Symbol, cmd.Ratio, cmd.Precision)
	case GetAccountCommand:
		return s.Snapshot(), nil
	case GetUnfilledOrdersCommand:
		if cmd.NodeID == "" {
			return s.UnfilledOrders(), nil
		}

		return s.UnfilledOrdersOf(cmd.NodeID), nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedCommand, "unsupported command %T", command)
	}
}
