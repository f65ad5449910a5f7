package node

import (
	"context"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/cache"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// klineHandler replays the history of its symbols, one bar per play index.
type klineHandler struct {
	*base
	spec KlineSpec

	mu     sync.RWMutex
	keys   map[int]key.KlineKey
	series map[int][]types.Kline
}

func newKlineHandler(b *base, spec KlineSpec) *klineHandler {
	keys := make(map[int]key.KlineKey, len(spec.Symbols))
	for _, sym := range spec.Symbols {
		keys[sym.ConfigID] = key.NewKlineKey(spec.Exchange, sym.Symbol, sym.Interval)
	}

	return &klineHandler{
		base:   b,
		spec:   spec,
		mu:     sync.RWMutex{},
		keys:   keys,
		series: make(map[int][]types.Kline),
	}
}

func (h *klineHandler) inputs() []string { return []string{HandleInput} }

func (h *klineHandler) outputs() []string {
	out := make([]string, 0, len(h.spec.Symbols))
	for _, sym := range h.spec.Symbols {
		out = append(out, KlineHandle(sym.ConfigID))
	}

	return out
}

func (h *klineHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{
		statemachine.ActionSubscribeNodeEvents,
		statemachine.ActionRegisterExchange,
		statemachine.ActionLoadHistory,
	}
}

func (h *klineHandler) prepare(ctx context.Context, action statemachine.ActionKind) error {
	switch action {
	case statemachine.ActionRegisterExchange:
		return h.registerExchange()
	case statemachine.ActionLoadHistory:
		return h.loadHistory(ctx)
	default:
		return unsupportedAction(h.base, action)
	}
}

func (h *klineHandler) registerExchange() error {
	if h.services.Exchanges != nil {
		if err := h.services.Exchanges.Register(h.spec.Exchange); err != nil {
			return err
		}
	}

	if h.services.Prices == nil {
		return nil
	}

	for _, sym := range h.spec.Symbols {
		tracked := h.services.Prices.TrackKline(h.keys[sym.ConfigID])
		h.logger.Debug("price source registered",
			zap.String("key", h.keys[sym.ConfigID].String()),
			zap.String("tracked", tracked.String()),
		)
	}

	return nil
}

func (h *klineHandler) loadHistory(ctx context.Context) error {
	if h.services.History == nil {
		return errors.Newf(errors.ErrCodeHistoryLoadError, "node %s has no history source", h.name)
	}

	maxSize := optional.None[int]()
	if h.spec.CacheSize > 0 {
		maxSize = optional.Some(h.spec.CacheSize)
	}

	series := make(map[int][]types.Kline, len(h.spec.Symbols))

	for _, sym := range h.spec.Symbols {
		k := h.keys[sym.ConfigID]

		request := k
		if !h.spec.TimeRange.IsZero() {
			request = k.WithTimeRange(h.spec.TimeRange.Start, h.spec.TimeRange.End)
		}

		bars, err := h.services.History.Load(ctx, request)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeHistoryLoadError, err, "failed to load %s", request).
				WithDetail("key", request.String())
		}

		if len(bars) == 0 {
			return errors.Newf(errors.ErrCodeHistoryLoadError, "no history for %s", request).
				WithDetail("key", request.String())
		}

		if h.services.Cache != nil {
			if err := h.services.Cache.Subscribe(k, cache.EntryOptions{MaxSize: maxSize}); err != nil {
				return err
			}
		}

		series[sym.ConfigID] = bars

		h.logger.Info("history loaded",
			zap.String("key", request.String()),
			zap.Int("bars", len(bars)),
			zap.Time("first", bars[0].Time),
			zap.Time("last", bars[len(bars)-1].Time),
		)
	}

	h.mu.Lock()
	h.series = series
	h.mu.Unlock()

	return nil
}

// historyLength is the length of the shortest series.
func (h *klineHandler) historyLength() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.series) == 0 {
		return 0
	}

	shortest := -1
	for _, bars := range h.series {
		if shortest < 0 || len(bars) < shortest {
			shortest = len(bars)
		}
	}

	return shortest
}

// process pushes bar playIndex of every symbol into the cache and the price
// feed and emits it.
func (h *klineHandler) process(ctx context.Context, playIndex int64, _ []graph.Message) (map[string]Payload, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Payload, len(h.spec.Symbols))

	var errs error

	for _, sym := range h.spec.Symbols {
		handle := KlineHandle(sym.ConfigID)
		bars := h.series[sym.ConfigID]

		if playIndex < 0 || playIndex >= int64(len(bars)) {
			out[handle] = NoData{Reason: "play index past the end of the history"}

			continue
		}

		k := h.keys[sym.ConfigID]
		bar := bars[playIndex]

		if h.services.Cache != nil {
			if _, err := h.services.Cache.UpdateKline(k, bar); err != nil {
				// late bars keep the cache untouched but still drive the graph
				h.logger.Warn("kline not cached", zap.String("key", k.String()), zap.Error(err))
			}
		}

		if h.services.Prices != nil {
			if err := h.services.Prices.OnKline(ctx, k, bar); err != nil {
				errs = multierr.Append(errs, err)
			}
		}

		event := KlineEvent{NodeID: h.id, PlayIndex: playIndex, Key: k, Kline: bar}
		if err := h.services.Bus.Publish(ctx, bus.TopicMarket, event); err != nil {
			errs = multierr.Append(errs, err)
		}

		out[handle] = KlinePayload{ConfigID: sym.ConfigID, Key: k, Kline: bar}
	}

	return out, errs
}
