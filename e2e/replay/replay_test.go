package replay_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rxtech-lab/argo-strategy/e2e/replay/testhelper"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/config"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

const bars = 600

// ReplayTestSuite replays the example strategies against generated klines.
type ReplayTestSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	source   *datasource.DuckDBSource
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *strategy.Engine
}

func TestReplaySuite(t *testing.T) {
	suite.Run(t, new(ReplayTestSuite))
}

func (suite *ReplayTestSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 2*time.Minute)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(suite.T().TempDir(), "klines.parquet")

	err := testhelper.GenerateAndWriteToParquet(path,
		testhelper.MockDataConfig{
			Symbol:            "BTCUSDT",
			StartTime:         start,
			Interval:          time.Minute,
			NumDataPoints:     bars,
			Pattern:           testhelper.PatternOscillating,
			InitialPrice:      50000,
			AmplitudePercent:  5,
			Period:            90,
			VolatilityPercent: 0.5,
			Seed:              42,
		},
		testhelper.MockDataConfig{
			Symbol:             "ETHUSDT",
			StartTime:          start,
			Interval:           time.Minute,
			NumDataPoints:      bars,
			Pattern:            testhelper.PatternVolatile,
			InitialPrice:       2000,
			VolatilityPercent:  1,
			MaxDrawdownPercent: 8,
			Seed:               7,
		},
	)
	suite.Require().NoError(err)

	suite.source, err = datasource.NewDuckDBSource(path, logger.NewNopLogger())
	suite.Require().NoError(err)

	suite.registry = prometheus.NewRegistry()
	suite.metrics = metrics.New(suite.registry)
	suite.engine = strategy.NewEngine(strategy.Options{
		History: suite.source,
		Logger:  logger.NewNopLogger(),
		Metrics: suite.metrics,
	})
}

func (suite *ReplayTestSuite) TearDownTest() {
	suite.NoError(suite.engine.Close(context.Background()))
	suite.NoError(suite.source.Close())
	suite.cancel()
}

func (suite *ReplayTestSuite) load(example string) *strategy.Strategy {
	cfg, err := config.LoadFile(filepath.Join("..", "..", "examples", example))
	suite.Require().NoError(err)

	s, err := suite.engine.Load(suite.ctx, cfg)
	suite.Require().NoError(err)

	return s
}

func (suite *ReplayTestSuite) stepAll(s *strategy.Strategy) {
	for {
		_, err := s.Step(suite.ctx)
		if errors.HasCode(err, errors.ErrCodeStrategyFinished) {
			return
		}

		suite.Require().NoError(err)
	}
}

func (suite *ReplayTestSuite) TestSMACross() {
	s := suite.load("sma_cross.yaml")
	suite.Equal(bars, s.TotalSteps())

	suite.stepAll(s)
	suite.Equal(strategy.StatusFinished, s.Status())
	suite.Equal(int64(bars-1), s.PlayIndex())

	stats, err := s.Stats(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("sma-cross", stats.StrategyName)
	suite.GreaterOrEqual(stats.TradeResult.NumberOfTrades, 1)
	suite.Positive(stats.TotalFees)
	suite.Positive(stats.FinalEquity)

	files, err := s.Export(suite.ctx, suite.T().TempDir())
	suite.Require().NoError(err)
	suite.FileExists(files.Orders)
	suite.FileExists(files.Transactions)

	suite.Equal(float64(bars-1), testutil.ToFloat64(suite.metrics.PlayIndex.WithLabelValues("1")))

	families, err := suite.registry.Gather()
	suite.Require().NoError(err)

	var steps uint64
	for _, family := range families {
		if family.GetName() == "argo_strategy_strategy_step_duration_seconds" {
			steps = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}

	suite.Equal(uint64(bars), steps)
}

func (suite *ReplayTestSuite) TestResetIsDeterministic() {
	s := suite.load("sma_cross.yaml")

	suite.stepAll(s)
	first, err := s.Stats(suite.ctx)
	suite.Require().NoError(err)

	suite.Require().NoError(s.Reset(suite.ctx))
	suite.stepAll(s)
	second, err := s.Stats(suite.ctx)
	suite.Require().NoError(err)

	suite.NotEqual(first.ID, second.ID)
	suite.Equal(first.TradeResult, second.TradeResult)
	suite.InDelta(first.TradePnl.RealizedPnL, second.TradePnl.RealizedPnL, 1e-6)
}

func (suite *ReplayTestSuite) TestPlayPublishesProgress() {
	s := suite.load("sma_cross.yaml")

	sub := s.Bus().Subscribe(bus.TopicStrategy, 64)
	defer sub.Close()

	completed := make(chan int, 1)
	finished := make(chan strategy.PlayFinished, 1)

	go func() {
		count := 0

		for {
			select {
			case ev := <-sub.C():
				switch e := ev.(type) {
				case strategy.StepCompleted:
					count++
				case strategy.PlayFinished:
					completed <- count
					finished <- e

					return
				}
			case <-sub.Done():
				return
			}
		}
	}()

	suite.Require().NoError(suite.engine.Dispatch(suite.ctx, strategy.Command{StrategyID: s.ID(), Kind: strategy.CommandPlay}))

	select {
	case count := <-completed:
		suite.Equal(bars, count)
	case <-suite.ctx.Done():
		suite.FailNow("play did not finish")
	}

	done := <-finished
	suite.Equal(s.RunID(), done.RunID)
	suite.Equal(int64(bars-1), done.PlayIndex)
	suite.Eventually(func() bool { return s.Status() == strategy.StatusFinished }, 5*time.Second, 10*time.Millisecond)
}

func (suite *ReplayTestSuite) TestRSIReversal() {
	s := suite.load("rsi_reversal.yaml")
	suite.Equal(bars/5, s.TotalSteps(), "five minute bars are aggregated from the one minute file")

	suite.stepAll(s)
	suite.Equal(strategy.StatusFinished, s.Status())

	snap := s.Snapshot()
	suite.Equal("rsi-reversal", snap.Name)
	suite.Equal([]string{"binance"}, snap.Exchanges)

	for _, n := range snap.Nodes {
		suite.Equal(statemachine.Ready, n.State, n.ID)
	}
}

func (suite *ReplayTestSuite) TestBothExamplesSideBySide() {
	sma := suite.load("sma_cross.yaml")
	rsi := suite.load("rsi_reversal.yaml")
	suite.Len(suite.engine.List(), 2)

	suite.Require().NoError(suite.engine.Dispatch(suite.ctx, strategy.Command{StrategyID: sma.ID(), Kind: strategy.CommandPlay}))
	suite.Require().NoError(suite.engine.Dispatch(suite.ctx, strategy.Command{StrategyID: rsi.ID(), Kind: strategy.CommandPlay}))

	suite.Eventually(func() bool {
		return sma.Status() == strategy.StatusFinished && rsi.Status() == strategy.StatusFinished
	}, time.Minute, 20*time.Millisecond)

	suite.Require().NoError(suite.engine.Remove(suite.ctx, sma.ID()))
	suite.Equal(strategy.StatusStopped, sma.Status())
	suite.Equal(strategy.StatusFinished, rsi.Status())
}
