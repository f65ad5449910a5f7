package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type PositionSide string

type PositionState string

type TransactionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

const (
	PositionStateOpen   PositionState = "OPEN"
	PositionStateClosed PositionState = "CLOSED"
)

const (
	TransactionSideOpenLong   TransactionSide = "OPEN_LONG"
	TransactionSideOpenShort  TransactionSide = "OPEN_SHORT"
	TransactionSideCloseLong  TransactionSide = "CLOSE_LONG"
	TransactionSideCloseShort TransactionSide = "CLOSE_SHORT"
)

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideLong {
		return PositionSideShort
	}

	return PositionSideLong
}

// VirtualPosition is the single open position of a strategy on one symbol.
type VirtualPosition struct {
	PositionID       int64         `yaml:"position_id" json:"position_id" csv:"position_id"`
	StrategyID       int64         `yaml:"strategy_id" json:"strategy_id" csv:"strategy_id"`
	NodeID           string        `yaml:"node_id" json:"node_id" csv:"node_id"`
	NodeName         string        `yaml:"node_name" json:"node_name" csv:"node_name"`
	OrderConfigID    int           `yaml:"order_config_id" json:"order_config_id" csv:"order_config_id"`
	Exchange         string        `yaml:"exchange" json:"exchange" csv:"exchange"`
	Symbol           string        `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side             PositionSide  `yaml:"side" json:"side" csv:"side"`
	State            PositionState `yaml:"state" json:"state" csv:"state"`
	Quantity         float64       `yaml:"quantity" json:"quantity" csv:"quantity"`
	OpenPrice        float64       `yaml:"open_price" json:"open_price" csv:"open_price"`
	CurrentPrice     float64       `yaml:"current_price" json:"current_price" csv:"current_price"`
	UnrealizedProfit float64       `yaml:"unrealized_profit" json:"unrealized_profit" csv:"unrealized_profit"`
	RealizedProfit   float64       `yaml:"realized_profit" json:"realized_profit" csv:"realized_profit"`
	Leverage         float64       `yaml:"leverage" json:"leverage" csv:"leverage"`
	Margin           float64       `yaml:"margin" json:"margin" csv:"margin"`
	MarginRatio      float64       `yaml:"margin_ratio" json:"margin_ratio" csv:"margin_ratio"`
	ForcePrice       float64       `yaml:"force_price" json:"force_price" csv:"force_price"`
	ROI              float64       `yaml:"roi" json:"roi" csv:"roi"`
	CreateTime       time.Time     `yaml:"create_time" json:"create_time" csv:"create_time"`
	UpdateTime       time.Time     `yaml:"update_time" json:"update_time" csv:"update_time"`

	CloseTime optional.Option[time.Time] `yaml:"close_time" json:"close_time" csv:"close_time"`
}

// IsOpen reports whether the position still holds quantity.
func (p *VirtualPosition) IsOpen() bool {
	return p.State == PositionStateOpen
}

// VirtualTransaction is the immutable record of one fill.
type VirtualTransaction struct {
	TransactionID int64           `yaml:"transaction_id" json:"transaction_id" csv:"transaction_id"`
	OrderID       int64           `yaml:"order_id" json:"order_id" csv:"order_id"`
	PositionID    int64           `yaml:"position_id" json:"position_id" csv:"position_id"`
	StrategyID    int64           `yaml:"strategy_id" json:"strategy_id" csv:"strategy_id"`
	NodeID        string          `yaml:"node_id" json:"node_id" csv:"node_id"`
	NodeName      string          `yaml:"node_name" json:"node_name" csv:"node_name"`
	OrderConfigID int             `yaml:"order_config_id" json:"order_config_id" csv:"order_config_id"`
	Exchange      string          `yaml:"exchange" json:"exchange" csv:"exchange"`
	Symbol        string          `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side          TransactionSide `yaml:"side" json:"side" csv:"side"`
	Quantity      float64         `yaml:"quantity" json:"quantity" csv:"quantity"`
	Price         float64         `yaml:"price" json:"price" csv:"price"`
	Fee           float64         `yaml:"fee" json:"fee" csv:"fee"`
	// RealizedProfit is set on closing fills only.
	RealizedProfit optional.Option[float64] `yaml:"realized_profit" json:"realized_profit" csv:"realized_profit"`
	// ExcessQuantity is the closing quantity that exceeded the position.
	ExcessQuantity float64   `yaml:"excess_quantity" json:"excess_quantity" csv:"excess_quantity"`
	CreateTime     time.Time `yaml:"create_time" json:"create_time" csv:"create_time"`
}

// TransactionSideOf maps an order side to the side recorded on its fill.
func TransactionSideOf(side OrderSide) TransactionSide {
	return TransactionSide(side)
}
