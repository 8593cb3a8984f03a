package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
		id BIGSERIAL PRIMARY KEY,
		instrument_token BIGINT NOT NULL,
		tradingsymbol TEXT NOT NULL,
		mode TEXT NOT NULL,
		last_price DOUBLE PRECISION NOT NULL,
		last_quantity BIGINT,
		average_price DOUBLE PRECISION,
		volume BIGINT,
		total_buy_quantity BIGINT,
		total_sell_quantity BIGINT,
		open DOUBLE PRECISION,
		high DOUBLE PRECISION,
		low DOUBLE PRECISION,
		close DOUBLE PRECISION,
		net_change DOUBLE PRECISION,
		oi BIGINT,
		oi_day_high BIGINT,
		oi_day_low BIGINT,
		exchange_ts TIMESTAMPTZ,
		last_trade_ts TIMESTAMPTZ,
		received_at TIMESTAMPTZ NOT NULL,
		trading_date DATE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_date ON ticks (tradingsymbol, trading_date)`,
	`CREATE INDEX IF NOT EXISTS idx_ticks_token_received ON ticks (instrument_token, received_at)`,
	`CREATE TABLE IF NOT EXISTS tick_depths (
		id BIGSERIAL PRIMARY KEY,
		tick_id BIGINT NOT NULL REFERENCES ticks(id) ON DELETE CASCADE,
		side TEXT NOT NULL,
		level SMALLINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity BIGINT NOT NULL,
		orders BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tick_depths_tick ON tick_depths (tick_id)`,
}

// EnsureSchema creates the tick tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

const insertTickSQL = `
	INSERT INTO ticks (
		instrument_token, tradingsymbol, mode, last_price, last_quantity,
		average_price, volume, total_buy_quantity, total_sell_quantity,
		open, high, low, close, net_change, oi, oi_day_high, oi_day_low,
		exchange_ts, last_trade_ts, received_at, trading_date
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21
	) RETURNING id
`

const insertDepthSQL = `
	INSERT INTO tick_depths (tick_id, side, level, price, quantity, orders)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// pgSink writes tick batches to Postgres. All rows of a batch commit in a
// single transaction so a failure leaves nothing half-written.
type pgSink struct {
	db  *pgxpool.Pool
	loc *time.Location
}

func (s *pgSink) Commit(ctx context.Context, rows []model.Tick) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	ids, err := insertTicks(ctx, tx, rows, s.loc)
	if err != nil {
		return err
	}

	if err := insertDepths(ctx, tx, rows, ids); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertTicks(ctx context.Context, tx pgx.Tx, rows []model.Tick, loc *time.Location) ([]int64, error) {
	batch := &pgx.Batch{}
	for _, tick := range rows {
		symbol := tick.TradingSymbol
		date := tick.Timestamp().In(loc).Format("2006-01-02")

		batch.Queue(insertTickSQL,
			int64(tick.InstrumentToken), symbol, tick.Mode, tick.LastPrice,
			int64(tick.LastQuantity), tick.AveragePrice, int64(tick.Volume),
			int64(tick.TotalBuyQuantity), int64(tick.TotalSellQuantity),
			tick.OHLC.Open, tick.OHLC.High, tick.OHLC.Low, tick.OHLC.Close,
			tick.NetChange, int64(tick.OI), int64(tick.OIDayHigh), int64(tick.OIDayLow),
			nullTime(tick.ExchangeTimestamp), nullTime(tick.LastTradeTime),
			tick.ReceivedAt, date,
		)
	}

	results := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(rows))
	for i := range rows {
		if err := results.QueryRow().Scan(&ids[i]); err != nil {
			results.Close()
			return nil, fmt.Errorf("insert tick: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("insert ticks: %w", err)
	}

	return ids, nil
}

func insertDepths(ctx context.Context, tx pgx.Tx, rows []model.Tick, ids []int64) error {
	batch := &pgx.Batch{}
	queued := 0

	for i, tick := range rows {
		if tick.Depth == nil {
			continue
		}
		for level, entry := range tick.Depth.Buy {
			batch.Queue(insertDepthSQL, ids[i], "buy", level+1, entry.Price, int64(entry.Quantity), int64(entry.Orders))
			queued++
		}
		for level, entry := range tick.Depth.Sell {
			batch.Queue(insertDepthSQL, ids[i], "sell", level+1, entry.Price, int64(entry.Quantity), int64(entry.Orders))
			queued++
		}
	}
	if queued == 0 {
		return nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert depth: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert depths: %w", err)
	}

	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
