// Package datasource provides the kline history replayed by kline nodes.
package datasource

import (
	"context"

	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// HistorySource loads the bars of a kline series in ascending time order.
// When the key carries a time range only bars inside [start, end] are returned.
type HistorySource interface {
	Load(ctx context.Context, k key.KlineKey) ([]types.Kline, error)
	// Symbols lists the symbols the source has data for.
	Symbols(ctx context.Context) ([]string, error)
	Close() error
}
