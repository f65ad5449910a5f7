package types

import (
	"os"
	"time"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a closed position in seconds
	Min int `yaml:"min" json:"min"`
	// Maximum holding time of a closed position in seconds
	Max int `yaml:"max" json:"max"`
	// Average holding time of a closed position in seconds
	Avg int `yaml:"avg" json:"avg"`
}

type TradePnl struct {
	// Realized PnL. Sum of the realized profit of every closing fill.
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl"`
	// Unrealized PnL of the positions still open at the end of the run.
	UnrealizedPnL float64 `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	// Total PnL. RealizedPnL plus UnrealizedPnL.
	TotalPnL float64 `yaml:"total_pnl" json:"total_pnl"`
	// Maximum loss of a single closing fill.
	MaximumLoss float64 `yaml:"maximum_loss" json:"maximum_loss"`
	// Maximum profit of a single closing fill.
	MaximumProfit float64 `yaml:"maximum_profit" json:"maximum_profit"`
}

type TradeResult struct {
	// Count of closing fills.
	NumberOfTrades int `yaml:"number_of_trades" json:"number_of_trades"`
	// Count of closing fills with positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades" json:"number_of_winning_trades"`
	// Count of closing fills with negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades" json:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// Maximum drawdown of the equity curve.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
}

// LedgerFiles are the parquet files written by a ledger export.
type LedgerFiles struct {
	Orders       string `yaml:"orders" json:"orders"`
	Positions    string `yaml:"positions" json:"positions"`
	Transactions string `yaml:"transactions" json:"transactions"`
	Equity       string `yaml:"equity" json:"equity"`
}

// RunStats summarizes one strategy run.
type RunStats struct {
	// ID is the unique identifier of this run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when the stats were computed.
	Timestamp    time.Time `yaml:"timestamp" json:"timestamp"`
	StrategyID   int64     `yaml:"strategy_id" json:"strategy_id"`
	StrategyName string    `yaml:"strategy_name" json:"strategy_name"`
	// Symbols traded during the run.
	Symbols          []string         `yaml:"symbols" json:"symbols"`
	InitialBalance   float64          `yaml:"initial_balance" json:"initial_balance"`
	FinalEquity      float64          `yaml:"final_equity" json:"final_equity"`
	TradeResult      TradeResult      `yaml:"trade_result" json:"trade_result"`
	TotalFees        float64          `yaml:"total_fees" json:"total_fees"`
	TradeHoldingTime TradeHoldingTime `yaml:"trade_holding_time" json:"trade_holding_time"`
	TradePnl         TradePnl         `yaml:"trade_pnl" json:"trade_pnl"`
	// Files is set when the ledger was exported.
	Files LedgerFiles `yaml:"files,omitempty" json:"files,omitempty"`
}

func WriteRunStats(path string, stats RunStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWrite, "failed to marshal run stats to YAML", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(errors.ErrCodeLedgerWrite, err, "failed to write run stats to %s", path)
	}

	return nil
}
