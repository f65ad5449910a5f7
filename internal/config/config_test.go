package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/node"
	"github.com/rxtech-lab/argo-strategy/internal/version"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

const smaCross = `
id: 7
name: sma-cross
trade_mode: backtest
account:
  initial_balance: 5000
  fee_rate: 0.001
runtime:
  step_timeout: 3s
nodes:
  - id: start
    type: start
  - id: kline
    name: BTC 1m
    type: kline
    config:
      exchange: binance
      symbols:
        - config_id: 1
          symbol: BTCUSDT
          interval: 1m
      time_range:
        start: 2024-01-01T00:00:00Z
        end: 2024-01-02T00:00:00Z
  - id: signal
    type: if_else
    config:
      cases:
        - case_id: 1
          conditions:
            - left: {type: node, node_id: kline, handle: kline_1}
              operator: ">"
              right: {type: constant, value: 100}
edges:
  - id: e1
    source: start
    source_handle: start
    target: kline
    target_handle: input
  - id: e2
    source: kline
    source_handle: kline_1
    target: signal
    target_handle: input
`

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefault() {
	cfg := Default()

	suite.Equal(TradeModeBacktest, cfg.TradeMode)
	suite.Equal(StatusDraft, cfg.Status)
	suite.Equal(10000.0, cfg.Account.InitialBalance)
	suite.Equal(vts.BrokerRate, cfg.Account.Broker)
	suite.Equal(10*time.Second, cfg.Runtime.StepTimeout.Std())
}

func (suite *ConfigTestSuite) TestParseYAML() {
	cfg, err := Parse([]byte(smaCross), FormatYAML)
	suite.Require().NoError(err)

	suite.Equal(int64(7), cfg.ID)
	suite.Equal(int64(7), cfg.Account.StrategyID)
	suite.Equal(5000.0, cfg.Account.InitialBalance)
	suite.Equal(1.0, cfg.Account.Leverage)
	suite.Equal(3*time.Second, cfg.Runtime.StepTimeout.Std())
	suite.Equal(120*time.Second, cfg.Runtime.InitTimeout.Std())
	suite.Len(cfg.Nodes, 3)
	suite.Len(cfg.Edges, 2)

	kline, ok := cfg.Node("kline")
	suite.Require().True(ok)
	suite.Equal("BTC 1m", kline.DisplayName())

	spec, err := node.ParseSpec(kline)
	suite.Require().NoError(err)

	klineSpec := spec.(node.KlineSpec)
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), klineSpec.TimeRange.Start)

	options := cfg.GraphOptions()
	suite.Equal(graph.StopPolicyContinue, options.StopPolicy)
	suite.Equal(120*time.Second, options.InitTimeout)
}

func (suite *ConfigTestSuite) TestRoundTrip() {
	cfg, err := Parse([]byte(smaCross), FormatYAML)
	suite.Require().NoError(err)

	for _, format := range []Format{FormatJSON, FormatYAML} {
		data, err := cfg.Marshal(format)
		suite.Require().NoError(err)

		again, err := Parse(data, format)
		suite.Require().NoError(err, "format %s", format)
		suite.Equal(cfg.Name, again.Name)
		suite.Equal(cfg.Runtime, again.Runtime)
		suite.Equal(cfg.Edges, again.Edges)
		suite.Len(again.Nodes, len(cfg.Nodes))
	}
}

func (suite *ConfigTestSuite) TestLoadFile() {
	dir := suite.T().TempDir()

	cfg, err := Parse([]byte(smaCross), FormatYAML)
	suite.Require().NoError(err)

	data, err := cfg.Marshal(FormatJSON)
	suite.Require().NoError(err)

	path := filepath.Join(dir, "strategy.json")
	suite.Require().NoError(os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	suite.Require().NoError(err)
	suite.Equal(cfg.ID, loaded.ID)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestInvalidDocuments() {
	tests := []struct {
		name    string
		mutate  func(doc string) string
		errCode errors.ErrorCode
	}{
		{
			name:    "empty",
			mutate:  func(string) string { return "" },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "unknown field",
			mutate:  func(doc string) string { return doc + "owner: alice\n" },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "missing name",
			mutate:  func(doc string) string { return strings.Replace(doc, "name: sma-cross\n", "", 1) },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "bad trade mode",
			mutate:  func(doc string) string { return strings.Replace(doc, "trade_mode: backtest", "trade_mode: paper", 1) },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "bad duration",
			mutate:  func(doc string) string { return strings.Replace(doc, "step_timeout: 3s", "step_timeout: soon", 1) },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "negative balance",
			mutate:  func(doc string) string { return strings.Replace(doc, "initial_balance: 5000", "initial_balance: -1", 1) },
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "duplicate node",
			mutate:  func(doc string) string { return strings.Replace(doc, "  - id: signal\n", "  - id: kline\n", 1) },
			errCode: errors.ErrCodeDuplicateNode,
		},
		{
			name:    "invalid node config",
			mutate:  func(doc string) string { return strings.Replace(doc, "interval: 1m", "interval: often", 1) },
			errCode: errors.ErrCodeInvalidNodeConfig,
		},
		{
			name:    "edge to unknown node",
			mutate:  func(doc string) string { return strings.Replace(doc, "target: signal", "target: order", 1) },
			errCode: errors.ErrCodeNodeNotFound,
		},
		{
			name: "no start node",
			mutate: func(doc string) string {
				return strings.Replace(doc, "  - id: start\n    type: start\n", "", 1)
			},
			errCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:    "engine too new",
			mutate:  func(doc string) string { return doc + "engine_version: \">= 99.0\"\n" },
			errCode: errors.ErrCodeVersionMismatch,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := Parse([]byte(tt.mutate(smaCross)), FormatYAML)
			suite.Require().Error(err)
			suite.Equal(tt.errCode, errors.GetCode(err), "got %v", err)
		})
	}
}

func (suite *ConfigTestSuite) TestEngineVersion() {
	doc := smaCross + "engine_version: " + version.GetVersion() + "\n"

	cfg, err := Parse([]byte(doc), FormatYAML)
	suite.Require().NoError(err)
	suite.Equal(version.GetVersion(), cfg.EngineVersion)
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	out, err := GenerateSchemaJSON()
	suite.Require().NoError(err)

	var schema map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(out), &schema))
	suite.Equal("strategy-config", schema["title"])

	properties, ok := schema["properties"].(map[string]any)
	suite.Require().True(ok)
	suite.Contains(properties, "nodes")
	suite.Contains(properties, "edges")
	suite.Contains(properties, "engine_version")
}

func (suite *ConfigTestSuite) TestSample() {
	cfg := Sample()
	suite.Require().NoError(cfg.Validate())

	for _, n := range cfg.Nodes {
		spec, err := node.ParseSpec(n)
		suite.Require().NoError(err, n.ID)
		suite.Equal(n.Type, spec.Kind())
	}

	data, err := cfg.Marshal(FormatYAML)
	suite.Require().NoError(err)

	parsed, err := Parse(data, FormatYAML)
	suite.Require().NoError(err)
	suite.Equal(cfg.Edges, parsed.Edges)
	suite.Equal(cfg.Nodes[4].ID, parsed.Nodes[4].ID)
}
