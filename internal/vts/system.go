// Package vts is the virtual trading system: a per-strategy matching engine that
// turns order intents into orders, positions and transactions against a stream
// of klines, and keeps the simulated account in sync.
package vts

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/metrics"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/utils"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// quantities below this are treated as zero
const quantityEpsilon = 1e-9

var validate = validator.New()

// Config is the account configuration of one strategy.
type Config struct {
	StrategyID     int64   `yaml:"strategy_id" json:"strategy_id"`
	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance" validate:"gt=0"`
	Leverage       float64 `yaml:"leverage" json:"leverage" validate:"gte=1"`
	FeeRate        float64 `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`
	Broker         Broker  `yaml:"broker" json:"broker" validate:"omitempty,oneof=rate interactive_broker zero_commission"`
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid virtual trading configuration", err)
	}

	return nil
}

// System is the matching engine of one strategy. Every mutation runs under a
// single mutex; the events it produces are published in order after the
// mutex is released.
type System struct {
	mu sync.Mutex
	// publishMu is taken before mu is released so events of consecutive
	// mutations reach subscribers in mutation order.
	publishMu sync.Mutex

	config  Config
	fee     FeeModel
	ids     IDGenerator
	bus     *bus.Bus
	log     *logger.Logger
	metrics *metrics.Metrics

	// tracked kline key per exchange|symbol; only the shortest interval is kept
	klineKeys map[string]key.KlineKey
	prices    map[string]types.Kline
	now       time.Time

	totalFees        float64
	account          types.AccountSnapshot
	orders           []*types.VirtualOrder
	positions        []*types.VirtualPosition
	historyPositions []types.VirtualPosition
	transactions     []types.VirtualTransaction

	outbox []Event
}

// NewSystem creates the engine of one strategy. b and m may be nil, in which
// case events are dropped and no metrics are recorded.
func NewSystem(config Config, b *bus.Bus, log *logger.Logger, m *metrics.Metrics) (*System, error) {
	if config.Leverage == 0 {
		config.Leverage = 1
	}

	if config.Broker == "" {
		config.Broker = BrokerRate
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		mu:               sync.Mutex{},
		publishMu:        sync.Mutex{},
		config:           config,
		fee:              NewFeeModel(config.Broker, config.FeeRate),
		ids:              NewSequenceGenerator(),
		bus:              b,
		log:              log.Named("vts").WithFields(zap.Int64("strategy_id", config.StrategyID)),
		metrics:          m,
		klineKeys:        make(map[string]key.KlineKey),
		prices:           make(map[string]types.Kline),
		now:              time.Time{},
		totalFees:        0,
		account:          types.AccountSnapshot{},
		orders:           nil,
		positions:        nil,
		historyPositions: nil,
		transactions:     nil,
		outbox:           nil,
	}

	s.updateAccount()
	s.outbox = nil

	return s, nil
}

// SetIDGenerator replaces the id source. It must be called before the first order.
func (s *System) SetIDGenerator(ids IDGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = ids
}

// SetFeeModel replaces the fee model derived from the configured broker.
func (s *System) SetFeeModel(fee FeeModel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fee = fee
}

func (s *System) Config() Config {
	return s.config
}

// TrackKline registers a kline series as a price source. For each
// exchange/symbol only the series with the shortest interval drives matching;
// the tracked key is returned.
func (s *System) TrackKline(k key.KlineKey) key.KlineKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	k.TimeRange = optional.None[key.TimeRange]()
	sk := symbolKey(k.Exchange, k.Symbol)

	existing, ok := s.klineKeys[sk]
	if !ok || utils.ShorterInterval(k.Interval, existing.Interval) {
		s.klineKeys[sk] = k
		s.log.Debug("tracking kline", zap.String("key", k.String()))

		return k
	}

	return existing
}

// TrackedKlines returns the kline series that drive matching.
func (s *System) TrackedKlines() []key.KlineKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]key.KlineKey, 0, len(s.klineKeys))
	for _, k := range s.klineKeys {
		out = append(out, k)
	}

	return out
}

// OnKline advances the engine to bar: pending orders are matched against the
// bar's range, open positions are marked to its close and the account is
// recomputed. Bars of untracked series are ignored.
func (s *System) OnKline(ctx context.Context, k key.KlineKey, bar types.Kline) error {
	s.mu.Lock()
	s.onKline(k, bar)

	return s.unlockAndPublish(ctx, nil)
}

func (s *System) onKline(k key.KlineKey, bar types.Kline) {
	sk := symbolKey(k.Exchange, k.Symbol)

	tracked, ok := s.klineKeys[sk]
	if !ok || tracked.Interval != k.Interval {
		return
	}

	if prev, ok := s.prices[sk]; ok && bar.Time.Before(prev.Time) {
		s.log.Warn("ignoring late kline",
			zap.String("key", k.String()),
			zap.Time("time", bar.Time),
			zap.Time("last", prev.Time),
		)

		return
	}

	s.prices[sk] = bar
	if bar.Time.After(s.now) {
		s.now = bar.Time
	}

	s.checkUnfilled(k.Exchange, k.Symbol, bar)
	s.updatePositions(k.Exchange, k.Symbol, bar.Close)
	s.updateAccount()
}

// updateAccount recomputes the account from the collections: realized pnl,
// unrealized pnl, used margin, frozen margin, balance, equity, available
// balance and margin ratio, in that order.
func (s *System) updateAccount() {
	realized := 0.0

	for _, tx := range s.transactions {
		if p, err := tx.RealizedProfit.Take(); err == nil {
			realized = add(realized, p)
		}
	}

	unrealized, used := 0.0, 0.0

	for _, pos := range s.positions {
		unrealized = add(unrealized, pos.UnrealizedProfit)
		used = add(used, pos.Margin)
	}

	frozen, unfilled := 0.0, 0

	for _, o := range s.orders {
		if o.Status != types.OrderStatusCreated {
			continue
		}

		unfilled++

		if o.Side.IsOpen() {
			frozen = add(frozen, Margin(o.OpenPrice, o.Quantity, s.config.Leverage))
		}
	}

	balance := sub(add(s.config.InitialBalance, realized), s.totalFees)
	equity := add(balance, unrealized)
	available := sub(sub(equity, used), frozen)

	for _, pos := range s.positions {
		pos.MarginRatio = ratio(pos.Margin, equity)
	}

	s.account = types.AccountSnapshot{
		StrategyID:       s.config.StrategyID,
		InitialBalance:   s.config.InitialBalance,
		Balance:          balance,
		AvailableBalance: available,
		Equity:           equity,
		RealizedPnL:      realized,
		UnrealizedPnL:    unrealized,
		UsedMargin:       used,
		FrozenMargin:     frozen,
		MarginRatio:      ratio(used, equity),
		TotalFees:        s.totalFees,
		Leverage:         s.config.Leverage,
		FeeRate:          s.config.FeeRate,
		OpenPositions:    len(s.positions),
		UnfilledOrders:   unfilled,
		Transactions:     len(s.transactions),
		Time:             s.now,
	}

	s.metrics.SetEquity(strconv.FormatInt(s.config.StrategyID, 10), equity)
	s.emit(AccountUpdated{Account: s.account})
}

// Snapshot returns the current account.
func (s *System) Snapshot() types.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.account
}

// Now is the time of the latest processed kline.
func (s *System) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now
}

// LatestPrice returns the latest bar of exchange/symbol.
func (s *System) LatestPrice(exchange, symbol string) optional.Option[types.Kline] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bar, ok := s.prices[symbolKey(exchange, symbol)]; ok {
		return optional.Some(bar)
	}

	return optional.None[types.Kline]()
}

// Reset restores the initial account and clears every order, position and
// transaction. Tracked klines stay registered.
func (s *System) Reset(ctx context.Context) error {
	s.mu.Lock()

	s.ids.Reset()
	s.prices = make(map[string]types.Kline)
	s.now = time.Time{}
	s.totalFees = 0
	s.orders = nil
	s.positions = nil
	s.historyPositions = nil
	s.transactions = nil
	s.outbox = nil
	s.updateAccount()

	s.log.Info("virtual trading system reset")

	return s.unlockAndPublish(ctx, nil)
}

func (s *System) emit(e Event) {
	s.outbox = append(s.outbox, e)
}

// unlockAndPublish releases mu and publishes the events collected while it
// was held. err is returned unchanged when set, otherwise the publish error.
func (s *System) unlockAndPublish(ctx context.Context, err error) error {
	events := s.outbox
	s.outbox = nil

	s.publishMu.Lock()
	s.mu.Unlock()
	defer s.publishMu.Unlock()

	if s.bus == nil {
		return err
	}

	for _, e := range events {
		if pubErr := s.bus.Publish(ctx, bus.TopicVirtualTrading, e); pubErr != nil {
			s.log.Error("failed to publish event", zap.String("event", e.EventName()), zap.Error(pubErr))

			if err == nil {
				err = pubErr
			}

			break
		}
	}

	return err
}

func symbolKey(exchange, symbol string) string {
	return exchange + "|" + symbol
}
