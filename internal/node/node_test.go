package node

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/cache"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/indicator"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type report struct {
	nodeID    string
	playIndex int64
}

type recorder struct {
	reports chan report
}

func (r *recorder) Report(nodeID string, playIndex int64) {
	r.reports <- report{nodeID: nodeID, playIndex: playIndex}
}

type NodeTestSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	bus      *bus.Bus
	graph    *graph.Graph
	cache    *cache.CacheV1
	history  *datasource.MemorySource
	sys      *vts.System
	recorder *recorder
	key      key.KlineKey
	start    time.Time
}

func TestNodeSuite(t *testing.T) {
	suite.Run(t, new(NodeTestSuite))
}

func (suite *NodeTestSuite) SetupTest() {
	log := logger.NewNopLogger()
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 10*time.Second)

	options := graph.DefaultOptions()
	options.ReadyPollInterval = 5 * time.Millisecond
	options.StopPollInterval = 5 * time.Millisecond
	options.WaitPollInterval = 5 * time.Millisecond

	suite.bus = bus.New(log)
	suite.graph = graph.New(log, nil, options)
	suite.cache = cache.NewCacheV1(log)
	suite.history = datasource.NewMemorySource()
	suite.recorder = &recorder{reports: make(chan report, 64)}
	suite.key = key.NewKlineKey("binance", "BTCUSDT", "1m")
	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	sys, err := vts.NewSystem(vts.Config{StrategyID: 1, InitialBalance: 100000, Leverage: 1, Broker: vts.BrokerZero}, suite.bus, log, nil)
	suite.Require().NoError(err)
	suite.sys = sys

	sub := suite.sys.Serve(suite.ctx, suite.bus)
	suite.T().Cleanup(sub.Close)
}

func (suite *NodeTestSuite) TearDownTest() {
	_ = suite.graph.StopAll(context.Background())
	suite.cancel()
}

func (suite *NodeTestSuite) services() Services {
	return Services{
		StrategyID: 1,
		Bus:        suite.bus,
		Cache:      suite.cache,
		Router:     suite.graph.Router(),
		History:    suite.history,
		Exchanges:  NewExchangeSet("binance"),
		Indicators: indicator.NewRegistry(),
		Prices:     suite.sys,
		Cycles:     suite.recorder,
		Logger:     logger.NewNopLogger(),
		Metrics:    nil,
	}
}

func (suite *NodeTestSuite) closes(values ...float64) {
	bars := make([]types.Kline, len(values))
	for i, c := range values {
		bars[i] = types.Kline{
			Time:   suite.start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1,
		}
	}

	suite.history.Add(suite.key, bars)
}

func config(id string, kind Kind, spec any) Config {
	cfg := Config{ID: id, Name: id, Type: kind}

	if spec != nil {
		raw, err := json.Marshal(spec)
		if err != nil {
			panic(err)
		}

		cfg.Config = raw
	}

	return cfg
}

func (suite *NodeTestSuite) add(services Services, configs ...Config) map[string]*Node {
	nodes := make(map[string]*Node, len(configs))

	for _, cfg := range configs {
		n, err := New(cfg, services)
		suite.Require().NoError(err)
		suite.Require().NoError(suite.graph.AddVertex(n))

		nodes[cfg.ID] = n
	}

	return nodes
}

func (suite *NodeTestSuite) connect(from, fromHandle, to, toHandle string) {
	suite.Require().NoError(suite.graph.AddEdge(graph.Edge{
		ID:         from + "." + fromHandle + "->" + to + "." + toHandle,
		FromNode:   from,
		FromHandle: fromHandle,
		ToNode:     to,
		ToHandle:   toHandle,
	}))
}

// step publishes a play index and waits until every leaf reported it.
func (suite *NodeTestSuite) step(idx int64, leaves ...string) {
	suite.Require().NoError(suite.bus.Publish(suite.ctx, bus.TopicStrategy, PlayIndexCommand{StrategyID: 1, PlayIndex: idx}))

	waiting := make(map[string]bool, len(leaves))
	for _, leaf := range leaves {
		waiting[leaf] = true
	}

	for len(waiting) > 0 {
		select {
		case r := <-suite.recorder.reports:
			suite.Require().Equal(idx, r.playIndex)
			delete(waiting, r.nodeID)
		case <-time.After(2 * time.Second):
			suite.FailNow("play index timed out", "index %d still waiting for %v", idx, waiting)
		}
	}
}

var btcKline = KlineSpec{
	Exchange: "binance",
	Symbols:  []KlineSymbol{{ConfigID: 1, Symbol: "BTCUSDT", Interval: "1m"}},
}

func (suite *NodeTestSuite) TestNewValidatesServices() {
	_, err := New(config("start", KindStart, nil), Services{})
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))

	_, err = New(config("x", Kind("webhook"), map[string]any{}), suite.services())
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownNodeType))
}

func (suite *NodeTestSuite) TestHandles() {
	nodes := suite.add(suite.services(),
		config("start", KindStart, nil),
		config("order", KindFuturesOrder, FuturesOrderSpec{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
			Orders: []OrderConfig{
				{ConfigID: 1, Side: types.OrderSideOpenLong, OrderType: types.OrderTypeMarket, Quantity: 1},
				{ConfigID: 2, Side: types.OrderSideCloseLong, OrderType: types.OrderTypeMarket, Quantity: 1},
			},
		}),
	)

	suite.Nil(nodes["start"].InputHandles())
	suite.Equal([]string{"start"}, nodes["start"].OutputHandles())
	suite.Equal([]string{"input_1", "input_2"}, nodes["order"].InputHandles())
	suite.Equal([]string{"order_1", "order_2"}, nodes["order"].OutputHandles())
	suite.Equal("futures_order", nodes["order"].Kind())
	suite.Equal(statemachine.Created, nodes["order"].State())
	suite.True(nodes["order"].HistoryLength().IsNone())
}

func (suite *NodeTestSuite) TestInitAndStop() {
	nodes := suite.add(suite.services(), config("start", KindStart, nil))
	start := nodes["start"]

	states := suite.bus.Subscribe(bus.TopicNode, 16)
	defer states.Close()

	suite.Require().NoError(start.Init(suite.ctx))
	suite.Equal(statemachine.Ready, start.State())
	suite.Equal(1, suite.bus.SubscriberCount(bus.TopicStrategy))

	suite.Require().NoError(start.Stop(suite.ctx))
	suite.Equal(statemachine.Stopped, start.State())
	suite.Equal(statemachine.Stopping, start.PreviousState())
	suite.Equal(0, suite.bus.SubscriberCount(bus.TopicStrategy))

	want := []statemachine.RunState{statemachine.Initializing, statemachine.Ready, statemachine.Stopping, statemachine.Stopped}
	for _, to := range want {
		msg, err := states.Receive(suite.ctx)
		suite.Require().NoError(err)

		event, ok := msg.(StateChanged)
		suite.Require().True(ok)
		suite.Equal("start", event.NodeID)
		suite.Equal(to, event.To)
	}
}

func (suite *NodeTestSuite) TestInitTwiceFails() {
	nodes := suite.add(suite.services(), config("start", KindStart, nil))

	suite.Require().NoError(nodes["start"].Init(suite.ctx))

	err := nodes["start"].Init(suite.ctx)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTransition))
	suite.Equal(statemachine.Failed, nodes["start"].State())
	suite.Equal(0, suite.bus.SubscriberCount(bus.TopicStrategy))
}

func (suite *NodeTestSuite) TestInitFailureMovesToFailed() {
	nodes := suite.add(suite.services(), config("kline", KindKline, btcKline))
	kline := nodes["kline"]

	err := kline.Init(suite.ctx)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeActionFailed))
	suite.True(errors.ChainHasCode(err, errors.ErrCodeHistoryLoadError))
	suite.Equal(statemachine.Failed, kline.State())

	// a failed node has released its tasks and stays failed
	suite.Error(kline.Stop(suite.ctx))
	suite.Equal(statemachine.Failed, kline.State())
}

func (suite *NodeTestSuite) TestUnsupportedExchange() {
	services := suite.services()
	services.Exchanges = NewExchangeSet("okx")
	suite.closes(100)

	nodes := suite.add(services, config("kline", KindKline, btcKline))

	err := nodes["kline"].Init(suite.ctx)
	suite.True(errors.ChainHasCode(err, errors.ErrCodeInvalidParameter))
	suite.Equal(statemachine.Failed, nodes["kline"].State())
}

func (suite *NodeTestSuite) TestKlineReplay() {
	suite.closes(100, 101, 102)

	services := suite.services()
	nodes := suite.add(services,
		config("start", KindStart, nil),
		config("kline", KindKline, btcKline),
	)
	suite.connect("start", HandleStart, "kline", HandleInput)

	leaves, err := suite.graph.Validate()
	suite.Require().NoError(err)
	suite.Len(leaves, 1)
	suite.True(nodes["kline"].IsLeaf())

	suite.Require().NoError(suite.graph.InitAll(suite.ctx))
	suite.Equal(optional.Some(3), nodes["kline"].HistoryLength())
	suite.Equal([]string{"binance"}, services.Exchanges.List())

	market := suite.bus.Subscribe(bus.TopicMarket, 16)
	defer market.Close()

	for i := int64(0); i < 3; i++ {
		suite.step(i, "kline")
	}

	length, err := suite.cache.Length(suite.key)
	suite.Require().NoError(err)
	suite.Equal(3, length)
	suite.Equal(102.0, suite.sys.LatestPrice("binance", "BTCUSDT").Unwrap().Close)

	msg, err := market.Receive(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(100.0, msg.(KlineEvent).Kline.Close)

	// past the end of the history the node still completes the play index
	suite.step(3, "kline")

	suite.Require().NoError(suite.graph.StopAll(suite.ctx))
	suite.True(suite.graph.WaitForAllNodesStopped(suite.ctx, time.Second))
}

func (suite *NodeTestSuite) TestPipelinePlacesOrders() {
	suite.closes(100, 102, 101, 105)

	suite.add(suite.services(),
		config("start", KindStart, nil),
		config("kline", KindKline, btcKline),
		config("sma", KindIndicator, IndicatorSpec{
			Exchange:   "binance",
			Symbol:     "BTCUSDT",
			Interval:   "1m",
			Indicators: []IndicatorEntry{{ConfigID: 1, Config: "sma(period=2)"}},
		}),
		config("if", KindIfElse, IfElseSpec{Cases: []Case{{
			CaseID: 1,
			Conditions: []Condition{{
				Left:     Operand{Type: OperandNode, NodeID: "kline", Handle: KlineHandle(1)},
				Operator: OpGreaterThan,
				Right:    Operand{Type: OperandNode, NodeID: "sma", Handle: IndicatorHandle(1)},
			}},
		}}}),
		config("order", KindFuturesOrder, FuturesOrderSpec{
			Exchange: "binance",
			Symbol:   "BTCUSDT",
			Orders:   []OrderConfig{{ConfigID: 1, Side: types.OrderSideOpenLong, OrderType: types.OrderTypeMarket, Quantity: 1}},
		}),
	)
	suite.connect("start", HandleStart, "kline", HandleInput)
	suite.connect("kline", KlineHandle(1), "sma", HandleInput)
	suite.connect("kline", KlineHandle(1), "if", HandleInput)
	suite.connect("sma", IndicatorHandle(1), "if", HandleInput)
	suite.connect("if", CaseHandle(1), "order", ConfigInputHandle(1))

	_, err := suite.graph.Validate()
	suite.Require().NoError(err)
	suite.Require().NoError(suite.graph.InitAll(suite.ctx))

	for i := int64(0); i < 4; i++ {
		suite.step(i, "order")
	}

	// close > sma(2) holds on bars 1 and 3
	pos := suite.sys.GetPosition("binance", "BTCUSDT")
	suite.Require().True(pos.IsSome())
	suite.Equal(2.0, pos.Unwrap().Quantity)

	cfg, err := indicator.ParseConfig("sma(period=2)")
	suite.Require().NoError(err)

	values, err := suite.cache.GetIndicators(cache.Request{Key: key.NewIndicatorKey("binance", "BTCUSDT", "1m", cfg.String())})
	suite.Require().NoError(err)
	suite.Require().Len(values.Values, 3)
	suite.InDelta(103.0, values.Values[2].Values[indicator.ValueOutput], 1e-9)
}

func (suite *NodeTestSuite) TestResetClearsState() {
	suite.closes(100, 101)

	nodes := suite.add(suite.services(),
		config("start", KindStart, nil),
		config("kline", KindKline, btcKline),
	)
	suite.connect("start", HandleStart, "kline", HandleInput)

	_, err := suite.graph.Validate()
	suite.Require().NoError(err)
	suite.Require().NoError(suite.graph.InitAll(suite.ctx))

	suite.step(0, "kline")

	nodes["start"].Reset()
	nodes["kline"].Reset()
	suite.cache.Reset()

	suite.step(0, "kline")

	length, err := suite.cache.Length(suite.key)
	suite.Require().NoError(err)
	suite.Equal(1, length)
}
