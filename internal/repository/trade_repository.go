package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	pkgkafka "github.com/kiheon-jang/autoTrade-sub000/pkg/kafka"
)

// tradesDDL keeps every fill queryable long after the in-memory ledger
// has been truncated. Partitioned by month, ordered for symbol scans.
const tradesDDL = `
CREATE TABLE IF NOT EXISTS trades (
    id          String,
    strategy_id String,
    strategy    LowCardinality(String),
    symbol      LowCardinality(String),
    side        LowCardinality(String),
    price       Float64,
    amount      Float64,
    commission  Float64,
    gross_pnl   Float64,
    net_pnl     Float64,
    strength    Float64,
    confidence  Float64,
    mode        LowCardinality(String),
    status      LowCardinality(String),
    reason      String,
    executed_at DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(executed_at)
ORDER BY (symbol, executed_at)`

// ClickHouseTradeStore implements TradeStore on ClickHouse.
type ClickHouseTradeStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseTradeStore creates the ClickHouse-backed trade store.
func NewClickHouseTradeStore(db *sql.DB) repository.TradeStore {
	return &ClickHouseTradeStore{db: db, table: "trades"}
}

func (s *ClickHouseTradeStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, tradesDDL); err != nil {
		return fmt.Errorf("trades schema: %w", err)
	}
	return nil
}

func (s *ClickHouseTradeStore) Store(ctx context.Context, t *models.Trade) error {
	return s.StoreBatch(ctx, []*models.Trade{t})
}

func (s *ClickHouseTradeStore) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	// Multi-row VALUES to keep round-trips down; fills are low-rate so
	// one chunk is the common case.
	const chunkSize = 1000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) {
			end = len(trades)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*16)
		for _, t := range trades[start:end] {
			if t == nil || t.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.ID,
				t.StrategyID,
				t.Strategy,
				t.Symbol,
				t.Side.String(),
				t.Price,
				t.Amount,
				t.Commission,
				t.GrossPnL,
				t.NetPnL,
				t.SignalStrength,
				t.SignalConfidence,
				string(t.Mode),
				string(t.Status),
				t.Reason,
				t.ExecutedAt,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (id, strategy_id, strategy, symbol, side, price, amount, commission, gross_pnl, net_pnl, strength, confidence, mode, status, reason, executed_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}
	return nil
}

// Query returns fills newest first. An empty symbol matches all symbols.
func (s *ClickHouseTradeStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(
		"SELECT id, strategy_id, strategy, symbol, side, price, amount, commission, gross_pnl, net_pnl, strength, confidence, mode, status, reason, executed_at FROM %s WHERE executed_at >= ? AND executed_at <= ?",
		s.table)
	args := []interface{}{from, to}
	if symbol != "" {
		q += " AND symbol = ?"
		args = append(args, symbol)
	}
	q += " ORDER BY executed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var side, mode, status string
		if err := rows.Scan(
			&t.ID, &t.StrategyID, &t.Strategy, &t.Symbol, &side,
			&t.Price, &t.Amount, &t.Commission, &t.GrossPnL, &t.NetPnL,
			&t.SignalStrength, &t.SignalConfidence, &mode, &status, &t.Reason, &t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if kind, err := models.ParseSignalKind(side); err == nil {
			t.Side = kind
		}
		t.Mode = models.TradingMode(mode)
		t.Status = models.TradeStatus(status)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *ClickHouseTradeStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTradeStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

// KafkaFillPublisher implements FillPublisher for Kafka. Messages are
// keyed by symbol so one symbol's fills stay ordered per partition.
type KafkaFillPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaFillPublisher creates the Kafka fill publisher.
func NewKafkaFillPublisher(producer *pkgkafka.Producer, topic string) repository.FillPublisher {
	return &KafkaFillPublisher{producer: producer, topic: topic}
}

func fillPayload(t *models.Trade) map[string]interface{} {
	return map[string]interface{}{
		"id":          t.ID,
		"strategy_id": t.StrategyID,
		"strategy":    t.Strategy,
		"symbol":      t.Symbol,
		"side":        t.Side.String(),
		"price":       t.Price,
		"amount":      t.Amount,
		"commission":  t.Commission,
		"gross_pnl":   t.GrossPnL,
		"net_pnl":     t.NetPnL,
		"strength":    t.SignalStrength,
		"confidence":  t.SignalConfidence,
		"mode":        string(t.Mode),
		"status":      string(t.Status),
		"reason":      t.Reason,
		"executed_at": t.ExecutedAt.UnixMilli(),
	}
}

func (p *KafkaFillPublisher) Publish(ctx context.Context, t *models.Trade) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), fillPayload(t))
}

func (p *KafkaFillPublisher) PublishBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.Symbol),
			Value: fillPayload(t),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaFillPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
