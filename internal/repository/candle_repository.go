package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
)

// candlesDDL archives OHLCV bars for backtest replay. The archiver
// re-writes overlapping windows on every sweep, so the engine is
// ReplacingMergeTree keyed on (symbol, timeframe, ts): duplicates
// collapse on merge and reads go through FINAL.
const candlesDDL = `
CREATE TABLE IF NOT EXISTS candles (
    symbol    LowCardinality(String),
    timeframe LowCardinality(String),
    ts        DateTime64(3),
    open      Float64,
    high      Float64,
    low       Float64,
    close     Float64,
    volume    Float64
) ENGINE = ReplacingMergeTree()
PARTITION BY toYYYYMM(ts)
ORDER BY (symbol, timeframe, ts)`

// ClickHouseCandleStore implements CandleStore on ClickHouse.
type ClickHouseCandleStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseCandleStore creates the ClickHouse-backed candle archive.
func NewClickHouseCandleStore(db *sql.DB) repository.CandleStore {
	return &ClickHouseCandleStore{db: db, table: "candles"}
}

func (s *ClickHouseCandleStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, candlesDDL); err != nil {
		return fmt.Errorf("candles schema: %w", err)
	}
	return nil
}

func (s *ClickHouseCandleStore) StoreBatch(ctx context.Context, candles []models.Candle, tf repository.Timeframe) error {
	if len(candles) == 0 {
		return nil
	}
	if !repository.IsValidTimeframe(tf) {
		return fmt.Errorf("unsupported timeframe: %s", tf)
	}
	const chunkSize = 1000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, c := range candles[start:end] {
			if c.Symbol == "" || c.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Symbol,
				string(tf),
				c.Timestamp,
				c.Open,
				c.High,
				c.Low,
				c.Close,
				c.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert candles: %w", err)
		}
	}
	return nil
}

// GetCandles returns bars for one symbol in [from, to], oldest first.
func (s *ClickHouseCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Candle, error) {
	if !repository.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	q := fmt.Sprintf(`
        SELECT ts, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// GetLatestNCandles returns the most recent n bars, oldest first.
func (s *ClickHouseCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf repository.Timeframe) ([]models.Candle, error) {
	if !repository.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if n <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
        SELECT ts, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseCandleStore) Close() error {
	// connection pool is owned by pkg/clickhouse
	return nil
}
