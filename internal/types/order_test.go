package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		StrategyID: 1,
		NodeID:     "order-node",
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		Side:       OrderSideOpenLong,
		OrderType:  OrderTypeMarket,
		Quantity:   1,
		TakeProfit: optional.None[TpSlSpec](),
		StopLoss:   optional.None[TpSlSpec](),
		PointSize:  optional.None[float64](),
	}
}

func TestCreateOrderRequestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(r *CreateOrderRequest)
		shouldError bool
	}{
		{
			name:        "valid market order",
			mutate:      func(_ *CreateOrderRequest) {},
			shouldError: false,
		},
		{
			name: "valid limit order with take profit",
			mutate: func(r *CreateOrderRequest) {
				r.OrderType = OrderTypeLimit
				r.Price = 100
				r.TakeProfit = optional.Some(TpSlSpec{Type: TpSlTypePercentage, Value: 10})
			},
			shouldError: false,
		},
		{
			name:        "missing node id",
			mutate:      func(r *CreateOrderRequest) { r.NodeID = "" },
			shouldError: true,
		},
		{
			name:        "zero quantity",
			mutate:      func(r *CreateOrderRequest) { r.Quantity = 0 },
			shouldError: true,
		},
		{
			name:        "unknown side",
			mutate:      func(r *CreateOrderRequest) { r.Side = "BUY" },
			shouldError: true,
		},
		{
			name: "limit order without price",
			mutate: func(r *CreateOrderRequest) {
				r.OrderType = OrderTypeLimit
				r.Price = 0
			},
			shouldError: true,
		},
		{
			name: "invalid stop loss type",
			mutate: func(r *CreateOrderRequest) {
				r.StopLoss = optional.Some(TpSlSpec{Type: "ATR", Value: 2})
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()
			if tt.shouldError {
				assert.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidOrder))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderSide(t *testing.T) {
	assert.True(t, OrderSideOpenLong.IsOpen())
	assert.True(t, OrderSideOpenShort.IsOpen())
	assert.False(t, OrderSideCloseLong.IsOpen())
	assert.False(t, OrderSideCloseShort.IsOpen())

	assert.Equal(t, PositionSideLong, OrderSideOpenLong.PositionSide())
	assert.Equal(t, PositionSideLong, OrderSideCloseLong.PositionSide())
	assert.Equal(t, PositionSideShort, OrderSideOpenShort.PositionSide())
	assert.Equal(t, PositionSideShort, OrderSideCloseShort.PositionSide())

	assert.Equal(t, OrderSideCloseLong, CloseSide(PositionSideLong))
	assert.Equal(t, OrderSideCloseShort, CloseSide(PositionSideShort))
	assert.Equal(t, PositionSideShort, PositionSideLong.Opposite())
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.False(t, OrderStatusCreated.IsTerminal())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCanceled.IsTerminal())
}

func TestVirtualOrderTriggerPrice(t *testing.T) {
	order := VirtualOrder{
		OrderType:  OrderTypeTakeProfitMarket,
		OpenPrice:  100,
		TakeProfit: optional.Some(110.0),
		StopLoss:   optional.Some(90.0),
		CreateTime: time.Now(),
	}
	assert.Equal(t, 110.0, order.TriggerPrice())

	order.OrderType = OrderTypeStopMarket
	assert.Equal(t, 90.0, order.TriggerPrice())

	order.OrderType = OrderTypeLimit
	assert.Equal(t, 100.0, order.TriggerPrice())

	order.OrderType = OrderTypeStopMarket
	order.StopLoss = optional.None[float64]()
	assert.Equal(t, 100.0, order.TriggerPrice())
}

func TestKlineField(t *testing.T) {
	k := Kline{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}

	for name, expected := range map[string]float64{"open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10} {
		v, ok := k.Field(name)
		assert.True(t, ok, name)
		assert.Equal(t, expected, v, name)
	}

	_, ok := k.Field("vwap")
	assert.False(t, ok)
}
