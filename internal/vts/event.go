package vts

import "github.com/rxtech-lab/argo-strategy/internal/types"

// Event is published on bus.TopicVirtualTrading after every mutation.
type Event interface {
	EventName() string
}

const (
	EventOrderCreated       = "order_created"
	EventOrderFilled        = "order_filled"
	EventOrderCanceled      = "order_canceled"
	EventPositionOpened     = "position_opened"
	EventPositionUpdated    = "position_updated"
	EventPositionClosed     = "position_closed"
	EventTransactionCreated = "transaction_created"
	EventAccountUpdated     = "account_updated"
)

type OrderCreated struct {
	Order types.VirtualOrder `json:"order"`
}

type OrderFilled struct {
	Order types.VirtualOrder `json:"order"`
	Price float64            `json:"price"`
	// ExcessQuantity is the closing quantity above the position that was closed.
	ExcessQuantity float64 `json:"excess_quantity"`
}

type OrderCanceled struct {
	Order  types.VirtualOrder `json:"order"`
	Reason string             `json:"reason"`
}

type PositionOpened struct {
	Position types.VirtualPosition `json:"position"`
}

type PositionUpdated struct {
	Position types.VirtualPosition `json:"position"`
}

type PositionClosed struct {
	Position types.VirtualPosition `json:"position"`
}

type TransactionCreated struct {
	Transaction types.VirtualTransaction `json:"transaction"`
}

type AccountUpdated struct {
	Account types.AccountSnapshot `json:"account"`
}

func (OrderCreated) EventName() string       { return EventOrderCreated }
func (OrderFilled) EventName() string        { return EventOrderFilled }
func (OrderCanceled) EventName() string      { return EventOrderCanceled }
func (PositionOpened) EventName() string     { return EventPositionOpened }
func (PositionUpdated) EventName() string    { return EventPositionUpdated }
func (PositionClosed) EventName() string     { return EventPositionClosed }
func (TransactionCreated) EventName() string { return EventTransactionCreated }
func (AccountUpdated) EventName() string     { return EventAccountUpdated }
