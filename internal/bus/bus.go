// Package bus carries events and commands between the nodes of a strategy and
// the services they talk to.
//
// Every subscription owns a buffered channel, so each subscriber reads events
// at its own pace and in publish order. Publish blocks until every active
// subscriber has room for the event or the context is done.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// Topic names a stream of events.
type Topic string

const (
	// TopicVirtualTrading carries order, position, transaction and account events.
	TopicVirtualTrading Topic = "virtual_trading"
	// TopicVirtualTradingCommand carries commands answered by the virtual trading system.
	TopicVirtualTradingCommand Topic = "virtual_trading.command"
	// TopicMarket carries kline events emitted by data source nodes.
	TopicMarket Topic = "market"
	// TopicStrategy carries strategy commands such as play index updates.
	TopicStrategy Topic = "strategy"
	// TopicNode carries node output and cycle completion events.
	TopicNode Topic = "node"
)

// DefaultBufferSize is used when Subscribe is called with a non-positive buffer.
const DefaultBufferSize = 128

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	SendFailures      int64 `json:"send_failures"`
	HandlerPanics     int64 `json:"handler_panics"`
	ActiveSubscribers int64 `json:"active_subscribers"`
}

// Bus routes events to subscriptions by topic.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic]map[string]*Subscription

	eventsPublished   atomic.Int64
	eventsDelivered   atomic.Int64
	sendFailures      atomic.Int64
	handlerPanics     atomic.Int64
	activeSubscribers atomic.Int64

	log *logger.Logger
}

// New creates an empty bus. A nil logger discards output.
func New(log *logger.Logger) *Bus {
	return &Bus{
		mu:   sync.RWMutex{},
		subs: make(map[Topic]map[string]*Subscription),
		log:  log.Named("bus"),
	}
}

// Subscribe registers a new subscription on topic. Events published before
// Subscribe returns are never delivered to it.
func (b *Bus) Subscribe(topic Topic, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	sub := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		ch:    make(chan any, buffer),
		done:  make(chan struct{}),
		bus:   b,
	}
	sub.active.Store(true)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]*Subscription)
	}

	b.subs[topic][sub.ID] = sub
	b.mu.Unlock()

	b.activeSubscribers.Add(1)

	b.log.Debug("subscription added",
		zap.String("id", sub.ID),
		zap.String("topic", string(topic)),
		zap.Int("buffer", buffer),
	)

	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if m, ok := b.subs[sub.Topic]; ok {
		delete(m, sub.ID)

		if len(m) == 0 {
			delete(b.subs, sub.Topic)
		}
	}
	b.mu.Unlock()

	b.activeSubscribers.Add(-1)

	b.log.Debug("subscription removed",
		zap.String("id", sub.ID),
		zap.String("topic", string(sub.Topic)),
	)
}

// SubscriberCount returns the number of active subscriptions on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[topic])
}

func (b *Bus) snapshot(topic Topic) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m := b.subs[topic]
	out := make([]*Subscription, 0, len(m))

	for _, sub := range m {
		out = append(out, sub)
	}

	return out
}

// Publish delivers event to every active subscription on topic. Publishing to
// a topic without subscribers succeeds. When ctx is done before every
// subscriber accepted the event, ErrCodeEventSendFailed is returned.
func (b *Bus) Publish(ctx context.Context, topic Topic, event any) error {
	b.eventsPublished.Add(1)

	for _, sub := range b.snapshot(topic) {
		if !sub.IsActive() {
			continue
		}

		select {
		case sub.ch <- event:
			b.eventsDelivered.Add(1)
			sub.delivered.Add(1)
		case <-sub.done:
		case <-ctx.Done():
			b.sendFailures.Add(1)
			b.log.Warn("event send failed",
				zap.String("topic", string(topic)),
				zap.String("subscription", sub.ID),
				zap.Error(ctx.Err()),
			)

			return errors.Wrapf(errors.ErrCodeEventSendFailed, ctx.Err(), "failed to publish to %s", topic)
		}
	}

	return nil
}

// Close removes every subscription. Readers blocked in Receive return
// ErrCodeSubscriptionClosed.
func (b *Bus) Close() {
	b.mu.RLock()
	all := make([]*Subscription, 0)

	for _, m := range b.subs {
		for _, sub := range m {
			all = append(all, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}

// GetStats returns the current counters.
func (b *Bus) GetStats() Stats {
	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsDelivered:   b.eventsDelivered.Load(),
		SendFailures:      b.sendFailures.Load(),
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveSubscribers: b.activeSubscribers.Load(),
	}
}

// Subscription is one subscriber's cursor on a topic.
type Subscription struct {
	ID    string
	Topic Topic

	ch        chan any
	done      chan struct{}
	active    atomic.Bool
	delivered atomic.Int64
	closeOnce sync.Once
	bus       *Bus
}

// C exposes the event channel for select loops. Pair it with Done.
func (s *Subscription) C() <-chan any {
	return s.ch
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// Delivered counts the events handed to this subscription so far.
func (s *Subscription) Delivered() int64 {
	return s.delivered.Load()
}

// Receive waits for the next event.
func (s *Subscription) Receive(ctx context.Context) (any, error) {
	select {
	case event := <-s.ch:
		return event, nil
	case <-s.done:
		return nil, errors.Newf(errors.ErrCodeSubscriptionClosed, "subscription %s on %s is closed", s.ID, s.Topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the subscription from the bus. Buffered events are dropped.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.active.Store(false)
		close(s.done)
		s.bus.unsubscribe(s)
	})
}
