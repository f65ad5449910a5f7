package datasource

import (
	"context"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// MemorySource serves bars registered with Add. Bars are stored per
// exchange/symbol/interval and not aggregated.
type MemorySource struct {
	mu   sync.RWMutex
	bars map[string][]types.Kline
}

var _ HistorySource = (*MemorySource)(nil)

func NewMemorySource() *MemorySource {
	return &MemorySource{
		mu:   sync.RWMutex{},
		bars: make(map[string][]types.Kline),
	}
}

// Add stores bars for the series of k, sorted by time. The key's time range
// is ignored.
func (m *MemorySource) Add(k key.KlineKey, bars []types.Kline) {
	sorted := make([]types.Kline, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bars[seriesKey(k)] = sorted
}

// Load implements HistorySource.
func (m *MemorySource) Load(_ context.Context, k key.KlineKey) ([]types.Kline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bars, ok := m.bars[seriesKey(k)]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no history for %s", k.String())
	}

	tr, err := k.TimeRange.Take()
	if err != nil {
		out := make([]types.Kline, len(bars))
		copy(out, bars)

		return out, nil
	}

	var out []types.Kline

	for _, bar := range bars {
		if bar.Time.Before(tr.Start) || bar.Time.After(tr.End) {
			continue
		}

		out = append(out, bar)
	}

	if len(out) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no history for %s", k.String())
	}

	return out, nil
}

// Symbols implements HistorySource.
func (m *MemorySource) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})

	for s := range m.bars {
		k, err := key.ParseKlineKey(s)
		if err != nil {
			continue
		}

		seen[k.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}

	sort.Strings(symbols)

	return symbols, nil
}

func (m *MemorySource) Close() error {
	return nil
}

func seriesKey(k key.KlineKey) string {
	return key.NewKlineKey(k.Exchange, k.Symbol, k.Interval).String()
}
