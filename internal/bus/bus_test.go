package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type BusTestSuite struct {
	suite.Suite
	bus *Bus
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusTestSuite))
}

func (suite *BusTestSuite) SetupTest() {
	suite.bus = New(logger.NewNopLogger())
}

func (suite *BusTestSuite) TearDownTest() {
	suite.bus.Close()
}

func (suite *BusTestSuite) TestEachSubscriberReadsInOrder() {
	first := suite.bus.Subscribe(TopicMarket, 10)
	second := suite.bus.Subscribe(TopicMarket, 10)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		suite.Require().NoError(suite.bus.Publish(ctx, TopicMarket, i))
	}

	for _, sub := range []*Subscription{first, second} {
		for i := 0; i < 5; i++ {
			event, err := sub.Receive(ctx)
			suite.Require().NoError(err)
			suite.Equal(i, event)
		}
	}

	stats := suite.bus.GetStats()
	suite.Equal(int64(5), stats.EventsPublished)
	suite.Equal(int64(10), stats.EventsDelivered)
	suite.Equal(int64(2), stats.ActiveSubscribers)
}

func (suite *BusTestSuite) TestTopicsAreIsolated() {
	market := suite.bus.Subscribe(TopicMarket, 1)
	node := suite.bus.Subscribe(TopicNode, 1)

	suite.Require().NoError(suite.bus.Publish(context.Background(), TopicNode, "done"))

	suite.Len(market.C(), 0)
	suite.Len(node.C(), 1)
}

func (suite *BusTestSuite) TestPublishWithoutSubscribers() {
	suite.NoError(suite.bus.Publish(context.Background(), TopicMarket, "nobody listens"))
}

func (suite *BusTestSuite) TestPublishBlocksUntilContextDone() {
	suite.bus.Subscribe(TopicMarket, 1)
	suite.Require().NoError(suite.bus.Publish(context.Background(), TopicMarket, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := suite.bus.Publish(ctx, TopicMarket, 2)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEventSendFailed))
	suite.Equal(int64(1), suite.bus.GetStats().SendFailures)
}

func (suite *BusTestSuite) TestClosedSubscription() {
	sub := suite.bus.Subscribe(TopicMarket, 1)
	sub.Close()
	sub.Close()

	suite.False(sub.IsActive())
	suite.Equal(0, suite.bus.SubscriberCount(TopicMarket))

	_, err := sub.Receive(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeSubscriptionClosed))

	suite.NoError(suite.bus.Publish(context.Background(), TopicMarket, 1))
}

func (suite *BusTestSuite) TestReceiveHonorsContext() {
	sub := suite.bus.Subscribe(TopicMarket, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sub.Receive(ctx)
	suite.ErrorIs(err, context.Canceled)
}

type echo struct{ Text string }

func (suite *BusTestSuite) serve(ctx context.Context, handler Handler) {
	sub := suite.bus.Subscribe(TopicVirtualTradingCommand, 8)
	go suite.bus.Serve(ctx, sub, handler)
}

func (suite *BusTestSuite) TestRequestResponse() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.serve(ctx, func(_ context.Context, cmd any) (any, error) {
		switch c := cmd.(type) {
		case echo:
			return c.Text + "!", nil
		default:
			return nil, errors.Newf(errors.ErrCodeUnsupportedCommand, "unsupported %T", cmd)
		}
	})

	reply, err := Call[string](ctx, suite.bus, TopicVirtualTradingCommand, echo{Text: "hi"})
	suite.Require().NoError(err)
	suite.Equal("hi!", reply)

	_, err = Call[string](ctx, suite.bus, TopicVirtualTradingCommand, 42)
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedCommand))

	_, err = Call[int](ctx, suite.bus, TopicVirtualTradingCommand, echo{Text: "hi"})
	suite.True(errors.HasCode(err, errors.ErrCodeUnexpectedResponse))
}

func (suite *BusTestSuite) TestRequestWithoutHandler() {
	_, err := suite.bus.Request(context.Background(), TopicVirtualTradingCommand, echo{})
	suite.True(errors.HasCode(err, errors.ErrCodeCommandSendFailed))
}

func (suite *BusTestSuite) TestRequestTimesOutWithoutReply() {
	suite.bus.Subscribe(TopicVirtualTradingCommand, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := suite.bus.Request(ctx, TopicVirtualTradingCommand, echo{})
	suite.True(errors.HasCode(err, errors.ErrCodeResponseRecvFailed))
}

func (suite *BusTestSuite) TestServeRecoversPanics() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.serve(ctx, func(_ context.Context, cmd any) (any, error) {
		if c, ok := cmd.(echo); ok && c.Text == "boom" {
			panic("boom")
		}

		return "ok", nil
	})

	_, err := suite.bus.Request(ctx, TopicVirtualTradingCommand, echo{Text: "boom"})
	suite.True(errors.HasCode(err, errors.ErrCodeCommandHandlerPanics))

	reply, err := suite.bus.Request(ctx, TopicVirtualTradingCommand, echo{Text: "again"})
	suite.Require().NoError(err)
	suite.Equal("ok", reply)
	suite.Equal(int64(1), suite.bus.GetStats().HandlerPanics)
}

func (suite *BusTestSuite) TestEnvelopeRespondsOnce() {
	env := NewEnvelope(echo{})
	suite.True(env.Respond(1, nil))
	suite.False(env.Respond(2, nil))

	reply := <-env.reply
	suite.Equal(1, reply.Value)
}

func (suite *BusTestSuite) TestConcurrentRequests() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.serve(ctx, func(_ context.Context, cmd any) (any, error) {
		return cmd.(int) * 2, nil
	})

	var wg sync.WaitGroup

	results := make([]int, 20)
	for i := range results {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			v, err := Call[int](ctx, suite.bus, TopicVirtualTradingCommand, i)
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	wg.Wait()

	for i, v := range results {
		suite.Equal(i*2, v)
	}
}
