package cache

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// UpdateResult tells the caller what Update did with the value.
type UpdateResult int

const (
	// UpdateAppended means the value started a new bar.
	UpdateAppended UpdateResult = iota
	// UpdateReplaced means the value had the last bar's timestamp and replaced it.
	UpdateReplaced
)

// EntryOptions configures a cache entry.
type EntryOptions struct {
	// MaxSize bounds the number of stored values. None or a non-positive size means unbounded.
	MaxSize optional.Option[int]
	// TTL is how long the entry stays fresh after its last update. Zero never expires.
	TTL time.Duration
}

// Entry is a bounded, time-ordered deque of values for one key.
// Timestamps strictly increase from front to back.
// Entry is not safe for concurrent use; Cache guards it.
type Entry[V types.Timestamped] struct {
	key       key.Key
	data      []V
	createdAt time.Time
	updatedAt time.Time
	maxSize   optional.Option[int]
	isFresh   bool
	ttl       time.Duration
	now       func() time.Time
}

// NewEntry creates an empty entry.
func NewEntry[V types.Timestamped](k key.Key, opts EntryOptions) *Entry[V] {
	return newEntry[V](k, opts, time.Now)
}

func newEntry[V types.Timestamped](k key.Key, opts EntryOptions, now func() time.Time) *Entry[V] {
	created := now()

	maxSize := opts.MaxSize
	if max, err := maxSize.Take(); err == nil && max <= 0 {
		maxSize = optional.None[int]()
	}

	return &Entry[V]{
		key:       k,
		data:      make([]V, 0),
		createdAt: created,
		updatedAt: created,
		maxSize:   maxSize,
		isFresh:   false,
		ttl:       opts.TTL,
		now:       now,
	}
}

// Initialize replaces the content with values, which must be strictly increasing in time.
// Only the newest MaxSize values are kept.
func (e *Entry[V]) Initialize(values []V) error {
	for i := 1; i < len(values); i++ {
		if !values[i].GetTime().After(values[i-1].GetTime()) {
			return errors.Newf(errors.ErrCodeCacheOutOfOrder, "values for %s are not strictly increasing at index %d", e.key, i).
				WithDetail("index", i)
		}
	}

	data := make([]V, len(values))
	copy(data, values)

	if max, err := e.maxSize.Take(); err == nil && len(data) > max {
		data = data[len(data)-max:]
	}

	e.data = data
	e.isFresh = true
	e.updatedAt = e.now()

	return nil
}

// Update applies one value. A value with the same timestamp as the last one
// replaces it in place, a newer value is appended (evicting the oldest value
// once MaxSize is reached), an older value is rejected and the entry is left unchanged.
func (e *Entry[V]) Update(value V) (UpdateResult, error) {
	if len(e.data) > 0 {
		last := e.data[len(e.data)-1].GetTime()
		t := value.GetTime()

		switch {
		case t.Equal(last):
			e.data[len(e.data)-1] = value
			e.touch()

			return UpdateReplaced, nil
		case t.Before(last):
			return UpdateAppended, errors.Newf(errors.ErrCodeCacheOutOfOrder, "late value for %s: %s is before last %s",
				e.key, t.Format(time.RFC3339), last.Format(time.RFC3339)).
				WithDetail("last", last).
				WithDetail("incoming", t)
		}
	}

	if max, err := e.maxSize.Take(); err == nil && len(e.data) >= max {
		e.data = append(e.data[1:], value)
	} else {
		e.data = append(e.data, value)
	}

	e.touch()

	return UpdateAppended, nil
}

func (e *Entry[V]) touch() {
	e.isFresh = true
	e.updatedAt = e.now()
}

// Get returns a copy of the values selected by index and limit.
//   - index set: values up to and including index (counted from the oldest),
//     limited to the last limit values of that prefix when limit is set.
//     An index past the end returns nothing.
//   - index unset: the newest limit values, or everything when limit is unset.
func (e *Entry[V]) Get(index, limit optional.Option[int]) []V {
	end := len(e.data)

	if idx, err := index.Take(); err == nil {
		if idx < 0 || idx >= len(e.data) {
			return []V{}
		}

		end = idx + 1
	}

	start := 0
	if l, err := limit.Take(); err == nil && l < end {
		start = end - l
	}

	out := make([]V, end-start)
	copy(out, e.data[start:end])

	return out
}

// Since returns the values whose timestamp is not before t.
func (e *Entry[V]) Since(t time.Time) []V {
	for i, v := range e.data {
		if !v.GetTime().Before(t) {
			out := make([]V, len(e.data)-i)
			copy(out, e.data[i:])

			return out
		}
	}

	return []V{}
}

// Last returns the newest value.
func (e *Entry[V]) Last() optional.Option[V] {
	if len(e.data) == 0 {
		return optional.None[V]()
	}

	return optional.Some(e.data[len(e.data)-1])
}

// Clear drops every value and marks the entry stale.
func (e *Entry[V]) Clear() {
	e.data = make([]V, 0)
	e.isFresh = false
	e.updatedAt = e.now()
}

// IsExpired reports whether the entry outlived its TTL since the last update.
func (e *Entry[V]) IsExpired() bool {
	if e.ttl <= 0 {
		return false
	}

	return e.now().Sub(e.updatedAt) > e.ttl
}

// IsFresh reports whether the entry holds data that has not expired.
func (e *Entry[V]) IsFresh() bool {
	return e.isFresh && !e.IsExpired()
}

func (e *Entry[V]) Key() key.Key                  { return e.key }
func (e *Entry[V]) Len() int                      { return len(e.data) }
func (e *Entry[V]) CreatedAt() time.Time          { return e.createdAt }
func (e *Entry[V]) UpdatedAt() time.Time          { return e.updatedAt }
func (e *Entry[V]) TTL() time.Duration            { return e.ttl }
func (e *Entry[V]) MaxSize() optional.Option[int] { return e.maxSize }
