package config

import (
	"encoding/json"

	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/node"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/version"
)

// Sample returns a small valid strategy: buy one BTCUSDT when the close
// crosses above its 20 bar SMA.
func Sample() StrategyConfig {
	cfg := Default()
	cfg.ID = 1
	cfg.Name = "sample"
	cfg.Description = "Buy BTCUSDT when the close crosses above its 20 bar SMA"
	cfg.EngineVersion = version.GetVersion()
	cfg.Account.StrategyID = cfg.ID

	cfg.Nodes = []node.Config{
		{ID: "start", Name: "Start", Type: node.KindStart},
		{ID: "kline", Name: "BTC 1m", Type: node.KindKline, Config: mustSpec(node.KlineSpec{
			Exchange: "binance",
			Symbols:  []node.KlineSymbol{{ConfigID: 1, Symbol: "BTCUSDT", Interval: "1m"}},
		})},
		{ID: "sma", Name: "SMA 20", Type: node.KindIndicator, Config: mustSpec(node.IndicatorSpec{
			Exchange:   "binance",
			Symbol:     "BTCUSDT",
			Interval:   "1m",
			Indicators: []node.IndicatorEntry{{ConfigID: 1, Config: "sma(period=20)"}},
		})},
		{ID: "signal", Name: "Close above SMA", Type: node.KindIfElse, Config: mustSpec(node.IfElseSpec{
			Cases: []node.Case{{
				CaseID: 1,
				Conditions: []node.Condition{{
					Left:     node.Operand{Type: node.OperandNode, NodeID: "kline", Handle: node.KlineHandle(1)},
					Operator: node.OpCrossesAbove,
					Right:    node.Operand{Type: node.OperandNode, NodeID: "sma", Handle: node.IndicatorHandle(1)},
				}},
			}},
		})},
		{ID: "buy", Name: "Buy", Type: node.KindFuturesOrder, Config: mustSpec(node.FuturesOrderSpec{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
			Orders: []node.OrderConfig{{
				ConfigID:  1,
				Side:      types.OrderSideOpenLong,
				OrderType: types.OrderTypeMarket,
				Quantity:  1,
				StopLoss:  &types.TpSlSpec{Type: types.TpSlTypePercentage, Value: 1},
			}},
		})},
	}

	cfg.Edges = []graph.Edge{
		edge("start", node.HandleStart, "kline", node.HandleInput),
		edge("kline", node.KlineHandle(1), "sma", node.HandleInput),
		edge("kline", node.KlineHandle(1), "signal", node.HandleInput),
		edge("sma", node.IndicatorHandle(1), "signal", node.HandleInput),
		edge("signal", node.CaseHandle(1), "buy", node.ConfigInputHandle(1)),
	}

	return cfg
}

func edge(from, fromHandle, to, toHandle string) graph.Edge {
	return graph.Edge{
		ID:         from + "-" + to + "-" + toHandle,
		FromNode:   from,
		FromHandle: fromHandle,
		ToNode:     to,
		ToHandle:   toHandle,
	}
}

func mustSpec(spec node.Spec) json.RawMessage {
	data, err := json.Marshal(spec)
	if err != nil {
		panic(err)
	}

	return data
}
