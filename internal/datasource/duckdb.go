package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy/internal/key"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/utils"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBSource reads bars from parquet files with the columns
// time, symbol, open, high, low, close, volume. Bars are aggregated to the
// interval of the requested key, so one file of 1m bars serves every interval.
type DuckDBSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	path   string
}

var _ HistorySource = (*DuckDBSource)(nil)

// NewDuckDBSource opens an in-memory DuckDB and exposes the parquet files
// matching path (a file or a glob) as the market_data view.
func NewDuckDBSource(path string, log *logger.Logger) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHistoryLoadError, "failed to open duckdb", err)
	}

	// CREATE VIEW is not expressible with squirrel
	if _, err := db.Exec(fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM read_parquet('%s');`, path)); err != nil {
		db.Close()

		return nil, errors.Wrapf(errors.ErrCodeHistoryLoadError, err, "failed to read parquet %s", path)
	}

	return &DuckDBSource{
		db:     db,
		logger: log.Named("datasource"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		path:   path,
	}, nil
}

// Load implements HistorySource.
func (d *DuckDBSource) Load(ctx context.Context, k key.KlineKey) ([]types.Kline, error) {
	interval, err := utils.ParseInterval(k.Interval)
	if err != nil {
		return nil, err
	}

	query, args, err := d.buildLoadQuery(k, interval)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	d.logger.Debug("loading history", zap.String("key", k.String()), zap.String("query", query))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query %s", k.String())
	}
	defer rows.Close()

	result := make([]types.Kline, 0, 1024)

	for rows.Next() {
		var bar types.Kline

		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err)
		}

		bar.Time = bar.Time.UTC()
		result = append(result, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err)
	}

	if len(result) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no history for %s in %s", k.String(), d.path)
	}

	return result, nil
}

func (d *DuckDBSource) buildLoadQuery(k key.KlineKey, interval time.Duration) (string, []any, error) {
	bucket := fmt.Sprintf("time_bucket(INTERVAL '%d seconds', time)", int64(interval/time.Second))

	where := squirrel.And{squirrel.Eq{"symbol": k.Symbol}}
	if tr, err := k.TimeRange.Take(); err == nil {
		where = append(where, squirrel.GtOrEq{"time": tr.Start}, squirrel.LtOrEq{"time": tr.End})
	}

	return d.sq.
		Select(
			bucket+" AS bucket_time",
			"arg_min(open, time) AS open",
			"max(high) AS high",
			"min(low) AS low",
			"arg_max(close, time) AS close",
			"sum(volume) AS volume",
		).
		From("market_data").
		Where(where).
		GroupBy("bucket_time").
		OrderBy("bucket_time ASC").
		ToSql()
}

// Symbols implements HistorySource.
func (d *DuckDBSource) Symbols(ctx context.Context) ([]string, error) {
	query, args, err := d.sq.Select("DISTINCT symbol").From("market_data").OrderBy("symbol").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}

// Close implements HistorySource.
func (d *DuckDBSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}
