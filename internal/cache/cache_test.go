package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	cache *CacheV1
	base  time.Time
	kline key.KlineKey
	sma   key.IndicatorKey
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (suite *CacheTestSuite) SetupTest() {
	suite.cache = NewCacheV1(logger.NewNopLogger())
	suite.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.kline = key.NewKlineKey("binance", "BTCUSDT", "1m")
	suite.sma = key.NewIndicatorKey("binance", "BTCUSDT", "1m", "sma(period=3)")
}

func (suite *CacheTestSuite) bar(minute int, close float64) types.Kline {
	return types.Kline{Time: suite.base.Add(time.Duration(minute) * time.Minute), Close: close}
}

func (suite *CacheTestSuite) TestUpdateRequiresSubscription() {
	_, err := suite.cache.UpdateKline(suite.kline, suite.bar(0, 1))
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyNotFound))

	_, err = suite.cache.UpdateIndicator(suite.sma, types.IndicatorValue{Time: suite.base})
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyNotFound))

	_, err = suite.cache.Length(suite.kline)
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyNotFound))
}

func (suite *CacheTestSuite) TestSubscribeAndGet() {
	suite.Require().NoError(suite.cache.Subscribe(suite.kline, EntryOptions{MaxSize: optional.Some(10)}))

	for i := 0; i < 5; i++ {
		_, err := suite.cache.UpdateKline(suite.kline, suite.bar(i, float64(i)))
		suite.Require().NoError(err)
	}

	resp, err := suite.cache.GetKlines(Request{BatchID: "batch-1", Key: suite.kline, Limit: optional.Some(2)})
	suite.Require().NoError(err)
	suite.Equal("batch-1", resp.BatchID)
	suite.Equal(suite.kline.String(), resp.Key)
	suite.Equal(5, resp.Length)
	suite.Require().Len(resp.Values, 2)
	suite.Equal(3.0, resp.Values[0].Close)
	suite.Equal(4.0, resp.Values[1].Close)
	suite.True(resp.IsFresh)

	length, err := suite.cache.Length(suite.kline)
	suite.Require().NoError(err)
	suite.Equal(5, length)
}

func (suite *CacheTestSuite) TestBatchIDIsGenerated() {
	suite.Require().NoError(suite.cache.Subscribe(suite.kline, EntryOptions{}))

	first, err := suite.cache.GetKlines(Request{Key: suite.kline})
	suite.Require().NoError(err)
	second, err := suite.cache.GetKlines(Request{Key: suite.kline})
	suite.Require().NoError(err)

	suite.NotEmpty(first.BatchID)
	suite.NotEqual(first.BatchID, second.BatchID)
}

func (suite *CacheTestSuite) TestGetSince() {
	suite.Require().NoError(suite.cache.InitializeKlines(suite.kline, []types.Kline{
		suite.bar(0, 0), suite.bar(1, 1), suite.bar(2, 2),
	}))

	resp, err := suite.cache.GetKlines(Request{
		Key:   suite.kline,
		Since: optional.Some(suite.base.Add(time.Minute)),
		Limit: optional.Some(1),
	})
	suite.Require().NoError(err)
	suite.Len(resp.Values, 2)
}

func (suite *CacheTestSuite) TestKeyKindMismatch() {
	suite.Require().NoError(suite.cache.Subscribe(suite.sma, EntryOptions{}))

	_, err := suite.cache.GetKlines(Request{Key: suite.sma})
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyMismatch))

	_, err = suite.cache.GetIndicators(Request{Key: suite.kline})
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyMismatch))

	_, err = suite.cache.GetKlines(Request{})
	suite.True(errors.HasCode(err, errors.ErrCodeCacheKeyMismatch))
}

func (suite *CacheTestSuite) TestIndicatorValues() {
	suite.Require().NoError(suite.cache.Subscribe(suite.sma, EntryOptions{}))

	_, err := suite.cache.UpdateIndicator(suite.sma, types.IndicatorValue{
		Time:   suite.base,
		Values: map[string]float64{"value": 42},
	})
	suite.Require().NoError(err)

	_, err = suite.cache.UpdateIndicator(suite.sma, types.IndicatorValue{
		Time:   suite.base.Add(-time.Minute),
		Values: map[string]float64{"value": 1},
	})
	suite.True(errors.HasCode(err, errors.ErrCodeCacheOutOfOrder))

	resp, err := suite.cache.GetIndicators(Request{Key: suite.sma})
	suite.Require().NoError(err)
	suite.Require().Len(resp.Values, 1)
	suite.Equal(42.0, resp.Values[0].Values["value"])
}

func (suite *CacheTestSuite) TestKeysAndRemove() {
	suite.Require().NoError(suite.cache.Subscribe(suite.sma, EntryOptions{}))
	suite.Require().NoError(suite.cache.Subscribe(suite.kline, EntryOptions{}))
	suite.Require().NoError(suite.cache.Subscribe(suite.kline, EntryOptions{}))

	keys := suite.cache.Keys()
	suite.Require().Len(keys, 2)
	suite.Equal(suite.sma.String(), keys[0].String())
	suite.Equal(suite.kline.String(), keys[1].String())

	suite.True(suite.cache.Remove(suite.sma))
	suite.False(suite.cache.Remove(suite.sma))
	suite.Len(suite.cache.Keys(), 1)
}

func (suite *CacheTestSuite) TestResetKeepsSubscriptions() {
	suite.Require().NoError(suite.cache.InitializeKlines(suite.kline, []types.Kline{suite.bar(0, 1)}))

	suite.cache.Reset()

	length, err := suite.cache.Length(suite.kline)
	suite.Require().NoError(err)
	suite.Equal(0, length)

	_, err = suite.cache.UpdateKline(suite.kline, suite.bar(0, 1))
	suite.NoError(err)
}

func (suite *CacheTestSuite) TestConcurrentUpdates() {
	suite.Require().NoError(suite.cache.Subscribe(suite.kline, EntryOptions{MaxSize: optional.Some(50)}))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				_, _ = suite.cache.UpdateKline(suite.kline, suite.bar(i, float64(worker)))
				_, _ = suite.cache.GetKlines(Request{Key: suite.kline, Limit: optional.Some(5)})
			}
		}(w)
	}

	wg.Wait()

	resp, err := suite.cache.GetKlines(Request{Key: suite.kline})
	suite.Require().NoError(err)
	suite.LessOrEqual(len(resp.Values), 50)

	for i := 1; i < len(resp.Values); i++ {
		suite.True(resp.Values[i].Time.After(resp.Values[i-1].Time))
	}
}
