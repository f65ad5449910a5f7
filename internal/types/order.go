package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

type OrderSide string

type OrderType string

type OrderStatus string

type TpSlType string

const (
	OrderSideOpenLong   OrderSide = "OPEN_LONG"
	OrderSideOpenShort  OrderSide = "OPEN_SHORT"
	OrderSideCloseLong  OrderSide = "CLOSE_LONG"
	OrderSideCloseShort OrderSide = "CLOSE_SHORT"
)

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
)

const (
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

const (
	TpSlTypePrice      TpSlType = "PRICE"
	TpSlTypePercentage TpSlType = "PERCENTAGE"
	TpSlTypePoint      TpSlType = "POINT"
)

// IsOpen reports whether the side opens or adds to a position.
func (s OrderSide) IsOpen() bool {
	return s == OrderSideOpenLong || s == OrderSideOpenShort
}

// PositionSide returns the side of the position the order acts on.
func (s OrderSide) PositionSide() PositionSide {
	if s == OrderSideOpenLong || s == OrderSideCloseLong {
		return PositionSideLong
	}

	return PositionSideShort
}

// CloseSide returns the order side that closes a position of side p.
func CloseSide(p PositionSide) OrderSide {
	if p == PositionSideLong {
		return OrderSideCloseLong
	}

	return OrderSideCloseShort
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

// TpSlSpec describes how a take-profit or stop-loss price is derived from the
// entry price of an order.
type TpSlSpec struct {
	Type  TpSlType `yaml:"type" json:"type" jsonschema:"enum=PRICE,enum=PERCENTAGE,enum=POINT" validate:"required,oneof=PRICE PERCENTAGE POINT"`
	Value float64  `yaml:"value" json:"value" validate:"gt=0"`
}

// CreateOrderRequest is an order intent emitted by an order node.
type CreateOrderRequest struct {
	StrategyID    int64     `yaml:"strategy_id" json:"strategy_id"`
	NodeID        string    `yaml:"node_id" json:"node_id" validate:"required"`
	NodeName      string    `yaml:"node_name" json:"node_name"`
	OrderConfigID int       `yaml:"order_config_id" json:"order_config_id"`
	Exchange      string    `yaml:"exchange" json:"exchange" validate:"required"`
	Symbol        string    `yaml:"symbol" json:"symbol" validate:"required"`
	Side          OrderSide `yaml:"side" json:"side" validate:"required,oneof=OPEN_LONG OPEN_SHORT CLOSE_LONG CLOSE_SHORT"`
	OrderType     OrderType `yaml:"order_type" json:"order_type" validate:"required"`
	// Price is the limit price. Ignored for market orders.
	Price    float64 `yaml:"price" json:"price" validate:"gte=0"`
	Quantity float64 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// TakeProfit and StopLoss are derived once, when the order is created.
	TakeProfit optional.Option[TpSlSpec] `yaml:"take_profit" json:"take_profit"`
	StopLoss   optional.Option[TpSlSpec] `yaml:"stop_loss" json:"stop_loss"`
	// PointSize is required by POINT specs.
	PointSize optional.Option[float64] `yaml:"point_size" json:"point_size"`
}

var validate = validator.New()

// Validate validates the CreateOrderRequest struct.
func (r *CreateOrderRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.OrderType == OrderTypeLimit && r.Price <= 0 {
		return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a positive price")
	}

	for _, spec := range []optional.Option[TpSlSpec]{r.TakeProfit, r.StopLoss} {
		if s, err := spec.Take(); err == nil {
			if err := validate.Struct(s); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid take profit or stop loss", err)
			}
		}
	}

	return nil
}

// VirtualOrder is an order accepted by the virtual trading system.
type VirtualOrder struct {
	OrderID       int64       `yaml:"order_id" json:"order_id" csv:"order_id"`
	StrategyID    int64       `yaml:"strategy_id" json:"strategy_id" csv:"strategy_id"`
	NodeID        string      `yaml:"node_id" json:"node_id" csv:"node_id"`
	NodeName      string      `yaml:"node_name" json:"node_name" csv:"node_name"`
	OrderConfigID int         `yaml:"order_config_id" json:"order_config_id" csv:"order_config_id"`
	Exchange      string      `yaml:"exchange" json:"exchange" csv:"exchange"`
	Symbol        string      `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side          OrderSide   `yaml:"side" json:"side" csv:"side"`
	OrderType     OrderType   `yaml:"order_type" json:"order_type" csv:"order_type"`
	Quantity      float64     `yaml:"quantity" json:"quantity" csv:"quantity"`
	OpenPrice     float64     `yaml:"open_price" json:"open_price" csv:"open_price"`
	Status        OrderStatus `yaml:"status" json:"status" csv:"status"`
	// TakeProfit and StopLoss are absolute prices, computed once at creation.
	TakeProfit optional.Option[float64] `yaml:"take_profit" json:"take_profit" csv:"take_profit"`
	StopLoss   optional.Option[float64] `yaml:"stop_loss" json:"stop_loss" csv:"stop_loss"`
	// PositionID links take-profit and stop-loss orders to the position they close.
	PositionID optional.Option[int64] `yaml:"position_id" json:"position_id" csv:"position_id"`
	CreateTime time.Time              `yaml:"create_time" json:"create_time" csv:"create_time"`
	UpdateTime time.Time              `yaml:"update_time" json:"update_time" csv:"update_time"`
}

// TriggerPrice returns the price that fills a pending order: the limit price,
// the take-profit price or the stop-loss price depending on the order type.
func (o *VirtualOrder) TriggerPrice() float64 {
	switch o.OrderType {
	case OrderTypeTakeProfitMarket:
		if o.TakeProfit.IsSome() {
			return o.TakeProfit.Unwrap()
		}
	case OrderTypeStopMarket:
		if o.StopLoss.IsSome() {
			return o.StopLoss.Unwrap()
		}
	case OrderTypeMarket, OrderTypeLimit:
	}

	return o.OpenPrice
}

// OrderResult is returned to the node that submitted an order.
type OrderResult struct {
	Order VirtualOrder `json:"order"`
	// Filled is true when the order filled immediately.
	Filled bool `json:"filled"`
	// ExcessQuantity is the part of a closing order above the position quantity.
	// The whole position is closed and the excess is reported here.
	ExcessQuantity float64 `json:"excess_quantity"`
}
