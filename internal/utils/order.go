package utils

import (
	"github.com/shopspring/decimal"
)

// FeeCalculator returns the commission of a fill of quantity at price. The fee
// models of the virtual trading system implement it.
type FeeCalculator interface {
	Calculate(price, quantity float64) float64
}

// CalculateMaxQuantity calculates the largest quantity whose notional divided
// by leverage plus the fee fits in balance.
func CalculateMaxQuantity(balance, price, leverage float64, fee FeeCalculator) float64 {
	if price <= 0 || balance <= 0 {
		return 0
	}

	if leverage < 1 {
		leverage = 1
	}

	// initial estimate ignoring fees
	maxQty := balance * leverage / price

	// usually converges in a couple of rounds
	for i := 0; i < 10; i++ {
		totalCost := maxQty*price/leverage + fee.Calculate(price, maxQty)
		if totalCost <= balance {
			break
		}

		maxQty *= balance / totalCost
	}

	return maxQty
}

// RoundToDecimalPrecision rounds the quantity down to the specified decimal precision.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	return decimal.NewFromFloat(quantity).RoundFloor(int32(decimalPrecision)).InexactFloat64()
}

// CalculateOrderQuantityByPercentage sizes an order spending percentage of the balance.
func CalculateOrderQuantityByPercentage(balance, price, leverage float64, fee FeeCalculator, percentage float64) float64 {
	return CalculateMaxQuantity(balance*percentage, price, leverage, fee)
}
