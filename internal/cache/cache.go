// Package cache keeps the recent klines and indicator values each strategy
// reads while it replays or streams market data.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// Request selects values from one cache entry.
// Since takes precedence over Index and Limit when set.
type Request struct {
	BatchID string
	Key     key.Key
	Index   optional.Option[int]
	Limit   optional.Option[int]
	Since   optional.Option[time.Time]
}

// Response is the answer to a Request. BatchID echoes the request's id, or a
// freshly generated one when the request carried none.
type Response[V types.Timestamped] struct {
	BatchID   string
	Key       string
	Values    []V
	Length    int
	UpdatedAt time.Time
	IsFresh   bool
}

// Cache is the keyed store shared by the nodes of one strategy.
type Cache interface {
	// Subscribe creates the entry for k. Subscribing an existing key is a no-op.
	Subscribe(k key.Key, opts EntryOptions) error
	// InitializeKlines replaces the content of a kline entry, subscribing it when needed.
	InitializeKlines(k key.KlineKey, values []types.Kline) error
	UpdateKline(k key.KlineKey, value types.Kline) (UpdateResult, error)
	UpdateIndicator(k key.IndicatorKey, value types.IndicatorValue) (UpdateResult, error)
	GetKlines(req Request) (Response[types.Kline], error)
	GetIndicators(req Request) (Response[types.IndicatorValue], error)
	Length(k key.Key) (int, error)
	Keys() []key.Key
	// Remove drops an entry and reports whether it existed.
	Remove(k key.Key) bool
	// Reset clears the values of every entry but keeps the subscriptions.
	Reset()
}

// CacheV1 is the in-memory Cache implementation.
type CacheV1 struct {
	mu         sync.RWMutex
	klines     map[string]*Entry[types.Kline]
	indicators map[string]*Entry[types.IndicatorValue]
	keys       map[string]key.Key
	log        *logger.Logger
}

var _ Cache = (*CacheV1)(nil)

// NewCacheV1 creates an empty cache. A nil logger discards output.
func NewCacheV1(log *logger.Logger) *CacheV1 {
	return &CacheV1{
		mu:         sync.RWMutex{},
		klines:     make(map[string]*Entry[types.Kline]),
		indicators: make(map[string]*Entry[types.IndicatorValue]),
		keys:       make(map[string]key.Key),
		log:        log.Named("cache"),
	}
}

func (c *CacheV1) Subscribe(k key.Key, opts EntryOptions) error {
	if k == nil {
		return errors.New(errors.ErrCodeInvalidKey, "cannot subscribe a nil key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribeLocked(k, opts)

	return nil
}

func (c *CacheV1) subscribeLocked(k key.Key, opts EntryOptions) {
	id := k.String()
	if _, ok := c.keys[id]; ok {
		return
	}

	switch k.Kind() {
	case key.KindKline:
		c.klines[id] = NewEntry[types.Kline](k, opts)
	case key.KindIndicator:
		c.indicators[id] = NewEntry[types.IndicatorValue](k, opts)
	}

	c.keys[id] = k

	c.log.Debug("cache key subscribed",
		zap.String("key", id),
		zap.Duration("ttl", opts.TTL),
	)
}

func (c *CacheV1) InitializeKlines(k key.KlineKey, values []types.Kline) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribeLocked(k, EntryOptions{MaxSize: optional.None[int]()})

	return c.klines[k.String()].Initialize(values)
}

func (c *CacheV1) UpdateKline(k key.KlineKey, value types.Kline) (UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.klines[k.String()]
	if !ok {
		return UpdateAppended, errors.Newf(errors.ErrCodeCacheKeyNotFound, "kline key %s is not subscribed", k)
	}

	result, err := entry.Update(value)
	if err != nil {
		c.log.Warn("rejected late kline",
			zap.String("key", k.String()),
			zap.Time("time", value.Time),
			zap.Error(err),
		)
	}

	return result, err
}

func (c *CacheV1) UpdateIndicator(k key.IndicatorKey, value types.IndicatorValue) (UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.indicators[k.String()]
	if !ok {
		return UpdateAppended, errors.Newf(errors.ErrCodeCacheKeyNotFound, "indicator key %s is not subscribed", k)
	}

	result, err := entry.Update(value)
	if err != nil {
		c.log.Warn("rejected late indicator value",
			zap.String("key", k.String()),
			zap.Time("time", value.Time),
			zap.Error(err),
		)
	}

	return result, err
}

func (c *CacheV1) GetKlines(req Request) (Response[types.Kline], error) {
	if req.Key == nil || req.Key.Kind() != key.KindKline {
		return Response[types.Kline]{}, errors.Newf(errors.ErrCodeCacheKeyMismatch, "request key %v is not a kline key", req.Key)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.klines[req.Key.String()]
	if !ok {
		return Response[types.Kline]{}, errors.Newf(errors.ErrCodeCacheKeyNotFound, "kline key %s is not subscribed", req.Key)
	}

	return respond(req, entry), nil
}

func (c *CacheV1) GetIndicators(req Request) (Response[types.IndicatorValue], error) {
	if req.Key == nil || req.Key.Kind() != key.KindIndicator {
		return Response[types.IndicatorValue]{}, errors.Newf(errors.ErrCodeCacheKeyMismatch, "request key %v is not an indicator key", req.Key)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.indicators[req.Key.String()]
	if !ok {
		return Response[types.IndicatorValue]{}, errors.Newf(errors.ErrCodeCacheKeyNotFound, "indicator key %s is not subscribed", req.Key)
	}

	return respond(req, entry), nil
}

func respond[V types.Timestamped](req Request, entry *Entry[V]) Response[V] {
	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	var values []V
	if since, err := req.Since.Take(); err == nil {
		values = entry.Since(since)
	} else {
		values = entry.Get(req.Index, req.Limit)
	}

	return Response[V]{
		BatchID:   batchID,
		Key:       req.Key.String(),
		Values:    values,
		Length:    entry.Len(),
		UpdatedAt: entry.UpdatedAt(),
		IsFresh:   entry.IsFresh(),
	}
}

func (c *CacheV1) Length(k key.Key) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id := k.String()
	if entry, ok := c.klines[id]; ok {
		return entry.Len(), nil
	}

	if entry, ok := c.indicators[id]; ok {
		return entry.Len(), nil
	}

	return 0, errors.Newf(errors.ErrCodeCacheKeyNotFound, "key %s is not subscribed", id)
}

// Keys returns the subscribed keys sorted by their string form.
func (c *CacheV1) Keys() []key.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.keys))
	for id := range c.keys {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	out := make([]key.Key, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.keys[id])
	}

	return out
}

func (c *CacheV1) Remove(k key.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := k.String()
	if _, ok := c.keys[id]; !ok {
		return false
	}

	delete(c.keys, id)
	delete(c.klines, id)
	delete(c.indicators, id)

	return true
}

func (c *CacheV1) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.klines {
		entry.Clear()
	}

	for _, entry := range c.indicators {
		entry.Clear()
	}
}
