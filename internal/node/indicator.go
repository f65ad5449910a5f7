package node

import (
	"context"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/cache"
	"github.com/rxtech-lab/argo-strategy/internal/graph"
	"github.com/rxtech-lab/argo-strategy/internal/indicator"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/statemachine"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type indicatorSlot struct {
	entry     IndicatorEntry
	key       key.IndicatorKey
	indicator indicator.Indicator
}

// indicatorHandler computes its indicators over the cached klines of one
// series whenever the kline of that series arrives.
type indicatorHandler struct {
	*base
	spec     IndicatorSpec
	klineKey key.KlineKey

	mu    sync.RWMutex
	slots []indicatorSlot
}

func newIndicatorHandler(b *base, spec IndicatorSpec) *indicatorHandler {
	return &indicatorHandler{
		base:     b,
		spec:     spec,
		klineKey: key.NewKlineKey(spec.Exchange, spec.Symbol, spec.Interval),
		mu:       sync.RWMutex{},
		slots:    nil,
	}
}

func (h *indicatorHandler) inputs() []string { return []string{HandleInput} }

func (h *indicatorHandler) outputs() []string {
	out := make([]string, 0, len(h.spec.Indicators))
	for _, ind := range h.spec.Indicators {
		out = append(out, IndicatorHandle(ind.ConfigID))
	}

	return out
}

func (h *indicatorHandler) setup() []statemachine.ActionKind {
	return []statemachine.ActionKind{
		statemachine.ActionSubscribeNodeEvents,
		statemachine.ActionInitIndicatorCache,
	}
}

func (h *indicatorHandler) prepare(_ context.Context, action statemachine.ActionKind) error {
	if action != statemachine.ActionInitIndicatorCache {
		return unsupportedAction(h.base, action)
	}

	registry := h.services.Indicators
	if registry == nil {
		registry = indicator.NewRegistry()
	}

	maxSize := optional.None[int]()
	if h.spec.CacheSize > 0 {
		maxSize = optional.Some(h.spec.CacheSize)
	}

	slots := make([]indicatorSlot, 0, len(h.spec.Indicators))

	for _, entry := range h.spec.Indicators {
		cfg, err := indicator.ParseConfig(entry.Config)
		if err != nil {
			return err
		}

		ind, err := registry.New(entry.Config)
		if err != nil {
			return err
		}

		k := key.NewIndicatorKey(h.spec.Exchange, h.spec.Symbol, h.spec.Interval, cfg.String())

		if h.services.Cache != nil {
			if err := h.services.Cache.Subscribe(k, cache.EntryOptions{MaxSize: maxSize}); err != nil {
				return err
			}
		}

		slots = append(slots, indicatorSlot{entry: entry, key: k, indicator: ind})

		h.logger.Debug("indicator ready",
			zap.String("key", k.String()),
			zap.Int("window", ind.Window()),
		)
	}

	h.mu.Lock()
	h.slots = slots
	h.mu.Unlock()

	return nil
}

// process computes every indicator when the inputs carry a kline of the
// node's series. Indicators without enough history emit NoData.
func (h *indicatorHandler) process(_ context.Context, playIndex int64, inputs []graph.Message) (map[string]Payload, error) {
	if !h.hasKline(inputs) {
		return nil, nil
	}

	if h.services.Cache == nil {
		return nil, errors.Newf(errors.ErrCodeCacheKeyNotFound, "node %s has no cache", h.name)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Payload, len(h.slots))

	var errs error

	for _, slot := range h.slots {
		handle := IndicatorHandle(slot.entry.ConfigID)

		window, err := h.services.Cache.GetKlines(cache.Request{
			Key:   h.klineKey,
			Limit: optional.Some(slot.indicator.Window()),
		})
		if err != nil {
			errs = multierr.Append(errs, err)

			continue
		}

		value, err := indicator.Calculate(slot.indicator, window.Values)
		if err != nil {
			if errors.IsInsufficientDataError(err) {
				out[handle] = NoData{Reason: err.Error()}

				continue
			}

			errs = multierr.Append(errs, err)

			continue
		}

		if _, err := h.services.Cache.UpdateIndicator(slot.key, value); err != nil {
			h.logger.Warn("indicator not cached",
				zap.String("key", slot.key.String()),
				zap.Int64("play_index", playIndex),
				zap.Error(err),
			)
		}

		out[handle] = IndicatorPayload{ConfigID: slot.entry.ConfigID, Key: slot.key, Value: value}
	}

	return out, errs
}

func (h *indicatorHandler) hasKline(inputs []graph.Message) bool {
	for _, msg := range inputs {
		if p, ok := msg.Payload.(KlinePayload); ok &&
			p.Key.Exchange == h.klineKey.Exchange &&
			p.Key.Symbol == h.klineKey.Symbol &&
			p.Key.Interval == h.klineKey.Interval {
			return true
		}
	}

	return false
}
