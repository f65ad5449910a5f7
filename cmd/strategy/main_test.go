package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/version"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v2"
)

const breakout = `
id: 1
name: breakout
trade_mode: backtest
account:
  initial_balance: 10000
  broker: zero_commission
runtime:
  step_timeout: 5s
nodes:
  - id: start
    type: start
  - id: kline
    type: kline
    config:
      exchange: binance
      symbols:
        - {config_id: 1, symbol: BTCUSDT, interval: 1m}
  - id: signal
    type: if_else
    config:
      cases:
        - case_id: 1
          conditions:
            - left: {type: node, node_id: kline, handle: kline_1}
              operator: crosses_above
              right: {type: constant, value: 105}
        - case_id: 2
          conditions:
            - left: {type: node, node_id: kline, handle: kline_1}
              operator: crosses_below
              right: {type: constant, value: 95}
  - id: orders
    type: futures_order
    config:
      exchange: binance
      symbol: BTCUSDT
      orders:
        - {config_id: 1, side: OPEN_LONG, order_type: MARKET, quantity: 1}
        - {config_id: 2, side: CLOSE_LONG, order_type: MARKET, quantity: 1}
edges:
  - {id: e1, source: start, source_handle: start, target: kline, target_handle: input}
  - {id: e2, source: kline, source_handle: kline_1, target: signal, target_handle: input}
  - {id: e3, source: signal, source_handle: case_1, target: orders, target_handle: input_1}
  - {id: e4, source: signal, source_handle: case_2, target: orders, target_handle: input_2}
`

type StrategyCmdTestSuite struct {
	suite.Suite
	dir     string
	config  string
	data    string
	results string
}

func TestStrategyCmdSuite(t *testing.T) {
	suite.Run(t, new(StrategyCmdTestSuite))
}

func (suite *StrategyCmdTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.config = filepath.Join(suite.dir, "breakout.yaml")
	suite.data = filepath.Join(suite.dir, "bars.parquet")
	suite.results = filepath.Join(suite.dir, "results")

	suite.Require().NoError(os.WriteFile(suite.config, []byte(breakout), 0644))

	db, err := sql.Open("duckdb", "")
	suite.Require().NoError(err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE bars (time TIMESTAMP, symbol TEXT, open DOUBLE, high DOUBLE, low DOUBLE, close DOUBLE, volume DOUBLE)`)
	suite.Require().NoError(err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range []float64{100, 110, 120, 90, 100} {
		_, err = db.Exec(`INSERT INTO bars VALUES (?, 'BTCUSDT', ?, ?, ?, ?, 1)`,
			start.Add(time.Duration(i)*time.Minute), c, c, c, c)
		suite.Require().NoError(err)
	}

	_, err = db.Exec(fmt.Sprintf(`COPY bars TO '%s' (FORMAT PARQUET)`, suite.data))
	suite.Require().NoError(err)
}

func (suite *StrategyCmdTestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer

	cmd := newCommand()
	cmd.Writer = &out
	cmd.ErrWriter = &out

	err := cmd.Run(context.Background(), append([]string{"strategy", "--log-level", "error"}, args...))

	return out.String(), err
}

func (suite *StrategyCmdTestSuite) TestRun() {
	out, err := suite.run("run", "--config", suite.config, "--data", suite.data, "--results", suite.results)
	suite.Require().NoError(err)

	var stats types.RunStats
	suite.Require().NoError(yaml.Unmarshal([]byte(out), &stats))
	suite.Equal(int64(1), stats.StrategyID)
	suite.Equal("breakout", stats.StrategyName)
	suite.Equal(1, stats.TradeResult.NumberOfTrades)
	suite.InDelta(-20.0, stats.TradePnl.RealizedPnL, 1e-9)

	runDir := filepath.Join(suite.results, stats.ID)
	suite.FileExists(filepath.Join(runDir, "stats.yaml"))
	suite.FileExists(stats.Files.Orders)
}

func (suite *StrategyCmdTestSuite) TestRunLimitedSteps() {
	out, err := suite.run("run", "-c", suite.config, "-d", suite.data, "-o", suite.results, "--steps", "2")
	suite.Require().NoError(err)

	var stats types.RunStats
	suite.Require().NoError(yaml.Unmarshal([]byte(out), &stats))
	suite.Equal(0, stats.TradeResult.NumberOfTrades, "the long opened at index 1 is still open")
}

func (suite *StrategyCmdTestSuite) TestRunMissingData() {
	_, err := suite.run("run", "-c", suite.config, "-d", filepath.Join(suite.dir, "missing.parquet"), "-o", suite.results)
	suite.Error(err)
}

func (suite *StrategyCmdTestSuite) TestValidate() {
	out, err := suite.run("validate", "--config", suite.config)
	suite.Require().NoError(err)
	suite.Equal("breakout (id 1) is valid: 4 nodes, 4 edges\n", out)

	broken := filepath.Join(suite.dir, "broken.yaml")
	suite.Require().NoError(os.WriteFile(broken, []byte("id: 1\nname: broken\nnodes: []\n"), 0644))

	_, err = suite.run("validate", "--config", broken)
	suite.Error(err)
}

func (suite *StrategyCmdTestSuite) TestSchema() {
	out, err := suite.run("schema")
	suite.Require().NoError(err)
	suite.Contains(out, `"engine_version"`)

	path := filepath.Join(suite.dir, "schema", "strategy-config.json")
	_, err = suite.run("schema", "--output", path)
	suite.Require().NoError(err)
	suite.FileExists(path)

	out, err = suite.run("schema", "--node", "futures_order")
	suite.Require().NoError(err)
	suite.Contains(out, `"quantity_ratio"`)
	suite.NotContains(out, `"engine_version"`)

	_, err = suite.run("schema", "--node", "webhook")
	suite.Error(err)
}

func (suite *StrategyCmdTestSuite) TestVersion() {
	out, err := suite.run("version")
	suite.Require().NoError(err)
	suite.Equal(version.GetVersion()+"\n", out)
}
