package vts

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateTakeProfit derives the absolute take-profit price of a position of
// side opened at entry. It returns None when spec is None, or when spec is a
// POINT spec and pointSize is None.
func CalculateTakeProfit(side types.PositionSide, entry float64, spec optional.Option[types.TpSlSpec], pointSize optional.Option[float64]) optional.Option[float64] {
	return derive(side, entry, spec, pointSize, true)
}

// CalculateStopLoss is CalculateTakeProfit with the direction inverted.
func CalculateStopLoss(side types.PositionSide, entry float64, spec optional.Option[types.TpSlSpec], pointSize optional.Option[float64]) optional.Option[float64] {
	return derive(side, entry, spec, pointSize, false)
}

func derive(side types.PositionSide, entry float64, spec optional.Option[types.TpSlSpec], pointSize optional.Option[float64], profit bool) optional.Option[float64] {
	s, err := spec.Take()
	if err != nil {
		return optional.None[float64]()
	}

	// a long take-profit and a short stop-loss sit above the entry
	up := (side == types.PositionSideLong) == profit
	e := decimal.NewFromFloat(entry)
	v := decimal.NewFromFloat(s.Value)

	var offset decimal.Decimal

	switch s.Type {
	case types.TpSlTypePrice:
		return optional.Some(s.Value)
	case types.TpSlTypePercentage:
		offset = e.Mul(v).Div(hundred)
	case types.TpSlTypePoint:
		ps, err := pointSize.Take()
		if err != nil {
			return optional.None[float64]()
		}

		offset = v.Mul(decimal.NewFromFloat(ps))
	default:
		return optional.None[float64]()
	}

	if up {
		return optional.Some(e.Add(offset).InexactFloat64())
	}

	return optional.Some(e.Sub(offset).InexactFloat64())
}

// Margin is the collateral locked by quantity at price.
func Margin(price, quantity, leverage float64) float64 {
	if leverage <= 0 {
		leverage = 1
	}

	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		Div(decimal.NewFromFloat(leverage)).
		InexactFloat64()
}

// ForcePrice is the liquidation price of a position opened at entry.
func ForcePrice(side types.PositionSide, entry, leverage float64) float64 {
	if leverage <= 0 {
		leverage = 1
	}

	e := decimal.NewFromFloat(entry)
	step := e.Div(decimal.NewFromFloat(leverage))

	if side == types.PositionSideLong {
		return e.Sub(step).InexactFloat64()
	}

	return e.Add(step).InexactFloat64()
}

// Profit is the PnL of quantity moved from open to current on side.
func Profit(side types.PositionSide, open, current, quantity float64) float64 {
	diff := decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(open))
	if side == types.PositionSideShort {
		diff = diff.Neg()
	}

	return diff.Mul(decimal.NewFromFloat(quantity)).InexactFloat64()
}

// ROI is profit over the notional the position was opened with.
func ROI(profit, open, quantity float64) float64 {
	notional := decimal.NewFromFloat(open).Mul(decimal.NewFromFloat(quantity))
	if notional.IsZero() {
		return 0
	}

	return decimal.NewFromFloat(profit).Div(notional).InexactFloat64()
}

// AveragePrice is the weighted open price after adding addQty at addPrice to a
// position of qty opened at price.
func AveragePrice(price, qty, addPrice, addQty float64) float64 {
	total := decimal.NewFromFloat(qty).Add(decimal.NewFromFloat(addQty))
	if total.IsZero() {
		return addPrice
	}

	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)).
		Add(decimal.NewFromFloat(addPrice).Mul(decimal.NewFromFloat(addQty))).
		Div(total).
		InexactFloat64()
}

func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}

	return decimal.NewFromFloat(a).Div(decimal.NewFromFloat(b)).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}
