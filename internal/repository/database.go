package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"portfoliosim/types"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoCandles            = errors.New("no candles found in datasource")
)

type assetRow struct {
	ID         int32     `db:"id"`
	Ticker     string    `db:"ticker"`
	Name       string    `db:"name"`
	Type       string    `db:"type"`
	CreatedAt  time.Time `db:"created_at"`
	ModifiedAt time.Time `db:"modified_at"`
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type aggregateRow struct {
	Bucket   time.Time       `db:"bucket"`
	AssetID  int32           `db:"asset_id"`
	Open     decimal.Decimal `db:"open"`
	High     decimal.Decimal `db:"high"`
	Low      decimal.Decimal `db:"low"`
	Close    decimal.Decimal `db:"close"`
	Volume   decimal.Decimal `db:"volume"`
	AdjClose decimal.Decimal `db:"adj_close"`
	Dividend decimal.Decimal `db:"dividend"`
}

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
}
type candlesRepository interface {
	GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error)
}

// Database struct that holds the database connection and queries.
type Database struct {
	assets  assetsRepository
	candles candlesRepository
	conn    *pgxpool.Pool
}

var _ Source = (*Database)(nil)

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	q := &queries{conn: conn}
	return &Database{
		assets:  q,
		candles: q,
		conn:    conn}, nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

type queries struct {
	conn *pgxpool.Pool
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	rows, err := q.conn.Query(ctx, getAssetByTicker, ticker)
	if err != nil {
		return assetRow{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[assetRow])
}

const getAggregates = `
SELECT time_bucket($1::interval, c.timestamp) AS bucket,
       c.asset_id,
       first(c.open, c.timestamp)                    AS open,
       max(c.high)                                   AS high,
       min(c.low)                                    AS low,
       last(c.close, c.timestamp)                    AS close,
       sum(c.volume)                                 AS volume,
       coalesce(last(c.adj_close, c.timestamp), 0)   AS adj_close,
       coalesce(sum(c.dividend), 0)                  AS dividend
FROM candles c
WHERE c.asset_id = $2
  AND c.timestamp >= $3
  AND c.timestamp <= $4
GROUP BY bucket, c.asset_id
ORDER BY bucket`

func (q *queries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.conn.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[aggregateRow])
}

// timeBuckets holds the time_bucket width of every interval the database
// can aggregate to.
var timeBuckets = map[types.Interval]string{
	types.OneMinute:     "1 minute",
	types.FiveMinutes:   "5 minutes",
	types.ThirtyMinutes: "30 minutes",
	types.Hour:          "1 hour",
	types.FourHours:     "4 hours",
	types.Day:           "1 day",
	types.Week:          "1 week",
}

// Asset looks up the asset listed under ticker.
func (db *Database) Asset(ctx context.Context, ticker string) (types.Asset, error) {
	row, err := db.assets.GetAssetByTicker(ctx, ticker)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return types.Asset{}, fmt.Errorf("asset %s: %w", ticker, ErrAssetNotFound)
	case err != nil:
		return types.Asset{}, fmt.Errorf("asset %s: %w", ticker, err)
	}
	return types.Asset{
		Id:         int(row.ID),
		Ticker:     row.Ticker,
		Name:       row.Name,
		Type:       types.AssetType(row.Type),
		CreatedAt:  row.CreatedAt,
		ModifiedAt: row.ModifiedAt,
	}, nil
}

// LoadCandles reads the bars of ticker in [start, end], bucketed to interval
// inside the database.
func (db *Database) LoadCandles(ctx context.Context, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := timeBuckets[interval]
	if !ok {
		return nil, fmt.Errorf("%s at %v: %w", ticker, interval, ErrIntervalNotSupported)
	}
	asset, err := db.Asset(ctx, ticker)
	if err != nil {
		return nil, err
	}
	rows, err := db.candles.GetAggregates(ctx, aggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(asset.Id),
		Starttime:  start,
		Endtime:    end,
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("candles of %s: %w", ticker, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s between %s and %s: %w", ticker, start.Format(time.DateOnly), end.Format(time.DateOnly), ErrNoCandles)
	}

	candles := make([]types.Candle, len(rows))
	for i, r := range rows {
		candles[i] = types.Candle{
			AssetId:   asset.Id,
			Ticker:    asset.Ticker,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			AdjClose:  r.AdjClose,
			Volume:    r.Volume,
			Dividend:  r.Dividend,
			Interval:  interval,
			Timestamp: r.Bucket,
		}
	}
	return candles, nil
}
