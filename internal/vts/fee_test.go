package vts

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type FeeTestSuite struct {
	suite.Suite
}

func TestFeeSuite(t *testing.T) {
	suite.Run(t, new(FeeTestSuite))
}

func (suite *FeeTestSuite) TestRateFee() {
	fee := NewFeeModel(BrokerRate, 0.001)

	tests := []struct {
		name     string
		price    float64
		quantity float64
		expected float64
	}{
		{"zero quantity", 100, 0, 0},
		{"notional 1000", 100, 10, 1},
		{"fractional quantity", 25000, 0.02, 0.5},
		{"negative quantity", 100, -1, 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, fee.Calculate(tc.price, tc.quantity))
		})
	}
}

func (suite *FeeTestSuite) TestInteractiveBrokerFee() {
	fee := NewFeeModel(BrokerInteractiveBroker, 0)

	tests := []struct {
		name     string
		quantity float64
		expected float64
	}{
		{"minimum fee", 10, 1.0},
		{"at threshold", 200, 1.0},
		{"above threshold", 1000, 5.0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, fee.Calculate(100, tc.quantity))
		})
	}
}

func (suite *FeeTestSuite) TestZeroAndDefault() {
	suite.Equal(0.0, NewFeeModel(BrokerZero, 0.5).Calculate(100, 10))
	suite.IsType(&RateFee{}, NewFeeModel("unknown", 0.1))
}
