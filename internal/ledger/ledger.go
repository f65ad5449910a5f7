// Package ledger records the virtual trading events of a strategy run in an
// in-memory DuckDB database, exports them to parquet and computes run stats.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/bus"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/internal/vts"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

const flushPollInterval = 5 * time.Millisecond

// Ledger is written only. Nothing in the engine reads trading state back from it.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType

	mu        sync.Mutex
	seq       int64
	sub       *bus.Subscription
	processed atomic.Int64
}

func NewLedger(log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedgerWrite, "failed to open database", err)
	}

	l := &Ledger{
		db:     db,
		logger: log.Named("ledger"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}

	if err := l.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return l, nil
}

func (l *Ledger) initialize() error {
	// DDL is not expressible with squirrel
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id BIGINT PRIMARY KEY,
			strategy_id BIGINT,
			node_id TEXT,
			node_name TEXT,
			order_config_id INTEGER,
			exchange TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			open_price DOUBLE,
			status TEXT,
			take_profit DOUBLE,
			stop_loss DOUBLE,
			position_id BIGINT,
			create_time TIMESTAMP,
			update_time TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS positions (
			position_id BIGINT PRIMARY KEY,
			strategy_id BIGINT,
			node_id TEXT,
			node_name TEXT,
			exchange TEXT,
			symbol TEXT,
			side TEXT,
			state TEXT,
			quantity DOUBLE,
			open_price DOUBLE,
			current_price DOUBLE,
			unrealized_profit DOUBLE,
			realized_profit DOUBLE,
			leverage DOUBLE,
			margin DOUBLE,
			force_price DOUBLE,
			roi DOUBLE,
			create_time TIMESTAMP,
			update_time TIMESTAMP,
			close_time TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id BIGINT PRIMARY KEY,
			order_id BIGINT,
			position_id BIGINT,
			strategy_id BIGINT,
			node_id TEXT,
			exchange TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			price DOUBLE,
			fee DOUBLE,
			realized_profit DOUBLE,
			excess_quantity DOUBLE,
			create_time TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS equity (
			seq BIGINT,
			time TIMESTAMP,
			balance DOUBLE,
			equity DOUBLE,
			available_balance DOUBLE,
			realized_pnl DOUBLE,
			unrealized_pnl DOUBLE,
			used_margin DOUBLE,
			total_fees DOUBLE
		);
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWrite, "failed to create ledger tables", err)
	}

	return nil
}

// Listen subscribes to the virtual trading topic and records every event
// until ctx is done or the subscription is closed. Only one subscription is
// kept; calling Listen again replaces it.
func (l *Ledger) Listen(ctx context.Context, b *bus.Bus) *bus.Subscription {
	sub := b.Subscribe(bus.TopicVirtualTrading, 1024)

	l.mu.Lock()
	if l.sub != nil {
		l.sub.Close()
	}

	l.sub = sub
	l.processed.Store(0)
	l.mu.Unlock()

	go func() {
		for {
			event, err := sub.Receive(ctx)
			if err != nil {
				return
			}

			if e, ok := event.(vts.Event); ok {
				if err := l.Record(ctx, e); err != nil {
					l.logger.Warn("failed to record event", zap.String("event", e.EventName()), zap.Error(err))
				}
			}

			l.processed.Add(1)
		}
	}()

	return sub
}

// Flush waits until every event delivered to the listening subscription has
// been recorded.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	sub := l.sub
	l.mu.Unlock()

	if sub == nil {
		return nil
	}

	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for l.processed.Load() < sub.Delivered() {
		if !sub.IsActive() {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeLedgerWrite, "ledger flush interrupted", ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}

// Record writes one event. Order and position events upsert the latest state,
// transactions are appended and account updates extend the equity curve.
func (l *Ledger) Record(ctx context.Context, event vts.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var query squirrel.InsertBuilder

	switch e := event.(type) {
	case vts.OrderCreated:
		query = l.orderUpsert(e.Order)
	case vts.OrderFilled:
		query = l.orderUpsert(e.Order)
	case vts.OrderCanceled:
		query = l.orderUpsert(e.Order)
	case vts.PositionOpened:
		query = l.positionUpsert(e.Position)
	case vts.PositionUpdated:
		query = l.positionUpsert(e.Position)
	case vts.PositionClosed:
		query = l.positionUpsert(e.Position)
	case vts.TransactionCreated:
		query = l.transactionInsert(e.Transaction)
	case vts.AccountUpdated:
		l.seq++
		query = l.equityInsert(l.seq, e.Account)
	default:
		return nil
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeLedgerWrite, "failed to build insert", err)
	}

	if _, err := l.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeLedgerWrite, err, "failed to record %s", event.EventName())
	}

	return nil
}

func (l *Ledger) orderUpsert(o types.VirtualOrder) squirrel.InsertBuilder {
	return l.sq.Insert("orders").
		Options("OR REPLACE").
		Columns(
			"order_id", "strategy_id", "node_id", "node_name", "order_config_id",
			"exchange", "symbol", "side", "order_type", "quantity", "open_price",
			"status", "take_profit", "stop_loss", "position_id", "create_time", "update_time",
		).
		Values(
			o.OrderID, o.StrategyID, o.NodeID, o.NodeName, int64(o.OrderConfigID),
			o.Exchange, o.Symbol, string(o.Side), string(o.OrderType), o.Quantity, o.OpenPrice,
			string(o.Status), nullable(o.TakeProfit), nullable(o.StopLoss), nullable(o.PositionID),
			o.CreateTime, o.UpdateTime,
		)
}

func (l *Ledger) positionUpsert(p types.VirtualPosition) squirrel.InsertBuilder {
	return l.sq.Insert("positions").
		Options("OR REPLACE").
		Columns(
			"position_id", "strategy_id", "node_id", "node_name", "exchange", "symbol",
			"side", "state", "quantity", "open_price", "current_price", "unrealized_profit",
			"realized_profit", "leverage", "margin", "force_price", "roi",
			"create_time", "update_time", "close_time",
		).
		Values(
			p.PositionID, p.StrategyID, p.NodeID, p.NodeName, p.Exchange, p.Symbol,
			string(p.Side), string(p.State), p.Quantity, p.OpenPrice, p.CurrentPrice, p.UnrealizedProfit,
			p.RealizedProfit, p.Leverage, p.Margin, p.ForcePrice, p.ROI,
			p.CreateTime, p.UpdateTime, nullable(p.CloseTime),
		)
}

func (l *Ledger) transactionInsert(t types.VirtualTransaction) squirrel.InsertBuilder {
	return l.sq.Insert("transactions").
		Columns(
			"transaction_id", "order_id", "position_id", "strategy_id", "node_id",
			"exchange", "symbol", "side", "quantity", "price", "fee",
			"realized_profit", "excess_quantity", "create_time",
		).
		Values(
			t.TransactionID, t.OrderID, t.PositionID, t.StrategyID, t.NodeID,
			t.Exchange, t.Symbol, string(t.Side), t.Quantity, t.Price, t.Fee,
			nullable(t.RealizedProfit), t.ExcessQuantity, t.CreateTime,
		)
}

func (l *Ledger) equityInsert(seq int64, a types.AccountSnapshot) squirrel.InsertBuilder {
	return l.sq.Insert("equity").
		Columns(
			"seq", "time", "balance", "equity", "available_balance",
			"realized_pnl", "unrealized_pnl", "used_margin", "total_fees",
		).
		Values(
			seq, a.Time, a.Balance, a.Equity, a.AvailableBalance,
			a.RealizedPnL, a.UnrealizedPnL, a.UsedMargin, a.TotalFees,
		)
}

// Count returns the number of rows in one of the ledger tables.
func (l *Ledger) Count(ctx context.Context, table string) (int, error) {
	var n int

	err := l.sq.Select("COUNT(*)").From(table).RunWith(l.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count %s", table)
	}

	return n, nil
}

// Reset removes every recorded row.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, table := range []string{"orders", "positions", "transactions", "equity"} {
		query, args, err := l.sq.Delete(table).ToSql()
		if err != nil {
			return errors.Wrap(errors.ErrCodeLedgerWrite, "failed to build delete", err)
		}

		if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(errors.ErrCodeLedgerWrite, err, "failed to reset %s", table)
		}
	}

	l.seq = 0

	return nil
}

// Export writes every table to a parquet file in dir.
func (l *Ledger) Export(dir string) (types.LedgerFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.LedgerFiles{}, errors.Wrapf(errors.ErrCodeLedgerWrite, err, "failed to create %s", dir)
	}

	files := types.LedgerFiles{
		Orders:       filepath.Join(dir, "orders.parquet"),
		Positions:    filepath.Join(dir, "positions.parquet"),
		Transactions: filepath.Join(dir, "transactions.parquet"),
		Equity:       filepath.Join(dir, "equity.parquet"),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for table, path := range map[string]string{
		"orders":       files.Orders,
		"positions":    files.Positions,
		"transactions": files.Transactions,
		"equity":       files.Equity,
	} {
		// COPY is not expressible with squirrel
		if _, err := l.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, path)); err != nil {
			return types.LedgerFiles{}, errors.Wrapf(errors.ErrCodeLedgerWrite, err, "failed to export %s", table)
		}
	}

	l.logger.Info("exported ledger",
		zap.String("orders", files.Orders),
		zap.String("positions", files.Positions),
		zap.String("transactions", files.Transactions),
		zap.String("equity", files.Equity),
	)

	return files, nil
}

// Stats computes the summary of everything recorded so far.
func (l *Ledger) Stats(ctx context.Context, strategyID int64, name string, initialBalance float64) (types.RunStats, error) {
	stats := types.RunStats{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		StrategyID:     strategyID,
		StrategyName:   name,
		InitialBalance: initialBalance,
		FinalEquity:    initialBalance,
	}

	result, pnl, err := l.tradeResult(ctx)
	if err != nil {
		return types.RunStats{}, err
	}

	drawdown, err := l.maxDrawdown(ctx)
	if err != nil {
		return types.RunStats{}, err
	}

	holding, err := l.holdingTime(ctx)
	if err != nil {
		return types.RunStats{}, err
	}

	symbols, err := l.symbols(ctx)
	if err != nil {
		return types.RunStats{}, err
	}

	result.MaxDrawdown = drawdown
	stats.TradeResult = result
	stats.TradeHoldingTime = holding
	stats.Symbols = symbols

	var equity, unrealized, fees sql.NullFloat64

	err = l.sq.Select("equity", "unrealized_pnl", "total_fees").
		From("equity").
		OrderBy("seq DESC").
		Limit(1).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&equity, &unrealized, &fees)

	switch {
	case err == nil:
		stats.FinalEquity = equity.Float64
		stats.TotalFees = fees.Float64
		pnl.UnrealizedPnL = unrealized.Float64
	case errors.Is(err, sql.ErrNoRows):
	default:
		return types.RunStats{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read final equity", err)
	}

	pnl.TotalPnL = pnl.RealizedPnL + pnl.UnrealizedPnL
	stats.TradePnl = pnl

	return stats, nil
}

func (l *Ledger) tradeResult(ctx context.Context) (types.TradeResult, types.TradePnl, error) {
	var (
		result             types.TradeResult
		pnl                types.TradePnl
		minPnl, maxPnl, sum sql.NullFloat64
	)

	err := l.sq.
		Select(
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE realized_profit > 0)",
			"COUNT(*) FILTER (WHERE realized_profit < 0)",
			"MIN(realized_profit)",
			"MAX(realized_profit)",
			"SUM(realized_profit)",
		).
		From("transactions").
		Where(squirrel.NotEq{"realized_profit": nil}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(
			&result.NumberOfTrades,
			&result.NumberOfWinningTrades,
			&result.NumberOfLosingTrades,
			&minPnl,
			&maxPnl,
			&sum,
		)
	if err != nil {
		return types.TradeResult{}, types.TradePnl{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to calculate trade result", err)
	}

	if result.NumberOfTrades > 0 {
		result.WinRate = float64(result.NumberOfWinningTrades) / float64(result.NumberOfTrades)
	}

	pnl.RealizedPnL = sum.Float64
	pnl.MaximumLoss = min(minPnl.Float64, 0)
	pnl.MaximumProfit = max(maxPnl.Float64, 0)

	return result, pnl, nil
}

func (l *Ledger) maxDrawdown(ctx context.Context) (float64, error) {
	// window functions are not expressible with squirrel
	query := `
		SELECT COALESCE(MAX(peak - equity), 0)
		FROM (
			SELECT equity, MAX(equity) OVER (ORDER BY seq) AS peak
			FROM equity
		)
	`

	var drawdown float64
	if err := l.db.QueryRowContext(ctx, query).Scan(&drawdown); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to calculate max drawdown", err)
	}

	return drawdown, nil
}

func (l *Ledger) holdingTime(ctx context.Context) (types.TradeHoldingTime, error) {
	var minSec, maxSec, avgSec sql.NullFloat64

	err := l.sq.
		Select(
			"MIN(epoch(close_time) - epoch(create_time))",
			"MAX(epoch(close_time) - epoch(create_time))",
			"AVG(epoch(close_time) - epoch(create_time))",
		).
		From("positions").
		Where(squirrel.NotEq{"close_time": nil}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&minSec, &maxSec, &avgSec)
	if err != nil {
		return types.TradeHoldingTime{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to calculate holding time", err)
	}

	return types.TradeHoldingTime{
		Min: int(minSec.Float64),
		Max: int(maxSec.Float64),
		Avg: int(avgSec.Float64),
	}, nil
}

func (l *Ledger) symbols(ctx context.Context) ([]string, error) {
	rows, err := l.sq.Select("DISTINCT symbol").From("orders").OrderBy("symbol").RunWith(l.db).QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query symbols", err)
	}
	defer rows.Close()

	symbols := make([]string, 0)

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}

// Close detaches the subscription and closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.sub != nil {
		l.sub.Close()
		l.sub = nil
	}
	l.mu.Unlock()

	return l.db.Close()
}

func nullable[T any](o optional.Option[T]) any {
	if v, err := o.Take(); err == nil {
		return v
	}

	return nil
}
