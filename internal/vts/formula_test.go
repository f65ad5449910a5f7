package vts

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/stretchr/testify/suite"
)

type FormulaTestSuite struct {
	suite.Suite
}

func TestFormulaSuite(t *testing.T) {
	suite.Run(t, new(FormulaTestSuite))
}

func spec(t types.TpSlType, v float64) optional.Option[types.TpSlSpec] {
	return optional.Some(types.TpSlSpec{Type: t, Value: v})
}

func (suite *FormulaTestSuite) TestTakeProfit() {
	tests := []struct {
		name      string
		side      types.PositionSide
		spec      optional.Option[types.TpSlSpec]
		pointSize optional.Option[float64]
		expected  optional.Option[float64]
	}{
		{"percentage long", types.PositionSideLong, spec(types.TpSlTypePercentage, 10), optional.None[float64](), optional.Some(110.0)},
		{"percentage short", types.PositionSideShort, spec(types.TpSlTypePercentage, 10), optional.None[float64](), optional.Some(90.0)},
		{"point long", types.PositionSideLong, spec(types.TpSlTypePoint, 50), optional.Some(0.01), optional.Some(100.5)},
		{"point short", types.PositionSideShort, spec(types.TpSlTypePoint, 50), optional.Some(0.01), optional.Some(99.5)},
		{"point without point size", types.PositionSideLong, spec(types.TpSlTypePoint, 50), optional.None[float64](), optional.None[float64]()},
		{"price is verbatim", types.PositionSideShort, spec(types.TpSlTypePrice, 87.5), optional.None[float64](), optional.Some(87.5)},
		{"no spec", types.PositionSideLong, optional.None[types.TpSlSpec](), optional.Some(0.01), optional.None[float64]()},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			got := CalculateTakeProfit(tc.side, 100, tc.spec, tc.pointSize)
			suite.Equal(tc.expected.IsSome(), got.IsSome())

			if tc.expected.IsSome() {
				suite.Equal(tc.expected.Unwrap(), got.Unwrap())
			}
		})
	}
}

func (suite *FormulaTestSuite) TestStopLossIsInverted() {
	suite.Equal(90.0, CalculateStopLoss(types.PositionSideLong, 100, spec(types.TpSlTypePercentage, 10), optional.None[float64]()).Unwrap())
	suite.Equal(110.0, CalculateStopLoss(types.PositionSideShort, 100, spec(types.TpSlTypePercentage, 10), optional.None[float64]()).Unwrap())
	suite.Equal(99.5, CalculateStopLoss(types.PositionSideLong, 100, spec(types.TpSlTypePoint, 50), optional.Some(0.01)).Unwrap())
	suite.True(CalculateStopLoss(types.PositionSideShort, 100, spec(types.TpSlTypePoint, 50), optional.None[float64]()).IsNone())
}

func (suite *FormulaTestSuite) TestDecimalPrecision() {
	// 0.1 + 0.2 style drift must not leak into prices
	suite.Equal(0.3, add(0.1, 0.2))
	suite.Equal(110.11, CalculateTakeProfit(types.PositionSideLong, 100.1, spec(types.TpSlTypePercentage, 10), optional.None[float64]()).Unwrap())
}

func (suite *FormulaTestSuite) TestAccountMath() {
	suite.Equal(500.0, Margin(100, 50, 10))
	suite.Equal(5000.0, Margin(100, 50, 0))
	suite.Equal(80.0, ForcePrice(types.PositionSideLong, 100, 5))
	suite.Equal(120.0, ForcePrice(types.PositionSideShort, 100, 5))
	suite.Equal(20.0, Profit(types.PositionSideLong, 100, 110, 2))
	suite.Equal(-20.0, Profit(types.PositionSideShort, 100, 110, 2))
	suite.Equal(0.1, ROI(20, 100, 2))
	suite.Equal(0.0, ROI(20, 0, 2))
	suite.Equal(105.0, AveragePrice(100, 1, 110, 1))
	suite.Equal(0.0, ratio(1, 0))
}
