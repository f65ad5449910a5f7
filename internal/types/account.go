package types

import "time"

// AccountSnapshot is a consistent view of a strategy's simulated account.
type AccountSnapshot struct {
	StrategyID       int64     `json:"strategy_id" yaml:"strategy_id"`
	InitialBalance   float64   `json:"initial_balance" yaml:"initial_balance"`
	Balance          float64   `json:"balance" yaml:"balance"`
	AvailableBalance float64   `json:"available_balance" yaml:"available_balance"`
	Equity           float64   `json:"equity" yaml:"equity"`
	RealizedPnL      float64   `json:"realized_pnl" yaml:"realized_pnl"`
	UnrealizedPnL    float64   `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	UsedMargin       float64   `json:"used_margin" yaml:"used_margin"`
	FrozenMargin     float64   `json:"frozen_margin" yaml:"frozen_margin"`
	MarginRatio      float64   `json:"margin_ratio" yaml:"margin_ratio"`
	TotalFees        float64   `json:"total_fees" yaml:"total_fees"`
	Leverage         float64   `json:"leverage" yaml:"leverage"`
	FeeRate          float64   `json:"fee_rate" yaml:"fee_rate"`
	OpenPositions    int       `json:"open_positions" yaml:"open_positions"`
	UnfilledOrders   int       `json:"unfilled_orders" yaml:"unfilled_orders"`
	Transactions     int       `json:"transactions" yaml:"transactions"`
	Time             time.Time `json:"time" yaml:"time"`
}
