package vts

import (
	"github.com/shopspring/decimal"
)

// FeeModel calculates the commission charged on one fill.
type FeeModel interface {
	// Calculate returns the fee in quote currency for a fill of quantity at price.
	Calculate(price, quantity float64) float64
}

type Broker string

const (
	// BrokerRate charges notional * fee_rate.
	BrokerRate              Broker = "rate"
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
)

var AllBrokers = []any{
	BrokerRate,
	BrokerInteractiveBroker,
	BrokerZero,
}

// NewFeeModel returns the fee model of broker. Unknown brokers fall back to the
// rate model so a configured fee_rate is never silently ignored.
func NewFeeModel(broker Broker, rate float64) FeeModel {
	switch broker {
	case BrokerInteractiveBroker:
		return &InteractiveBrokerFee{}
	case BrokerZero:
		return &ZeroFee{}
	case BrokerRate:
		return &RateFee{Rate: rate}
	default:
		return &RateFee{Rate: rate}
	}
}

// RateFee charges a fixed fraction of the notional value.
type RateFee struct {
	Rate float64
}

func (f *RateFee) Calculate(price, quantity float64) float64 {
	if f.Rate <= 0 || price <= 0 || quantity <= 0 {
		return 0
	}

	fee, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromFloat(f.Rate)).
		Float64()

	return fee
}

// InteractiveBrokerFee charges 0.005 per share with a minimum of 1.0 per fill.
type InteractiveBrokerFee struct{}

func (f *InteractiveBrokerFee) Calculate(_, quantity float64) float64 {
	perShare, _ := decimal.NewFromFloat(0.005).Mul(decimal.NewFromFloat(quantity)).Float64()

	return max(perShare, 1.0)
}

type ZeroFee struct{}

func (f *ZeroFee) Calculate(_, _ float64) float64 {
	return 0
}
