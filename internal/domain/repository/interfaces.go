package repository

import (
	"context"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.Ticker, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type FillPublisher interface {
	Publish(ctx context.Context, t *models.Trade) error
	PublishBatch(ctx context.Context, trades []*models.Trade) error
	Close() error
}

type TradeStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Trade) error
	StoreBatch(ctx context.Context, trades []*models.Trade) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// BacktestStore keeps replay results addressable by run ID for the
// API to poll. Implementations expire entries after a retention
// window; a missing or expired run surfaces models.ErrRunNotFound.
type BacktestStore interface {
	Put(ctx context.Context, res *models.BacktestResult) error
	Get(ctx context.Context, runID string) (*models.BacktestResult, error)
}

type Metrics interface {
	RecordFill(mode, side, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSignal(strategy, kind string)
	RecordForcedStop(strategy string)
	SetOpenPositions(mode string, count int)
	SetCapital(mode string, krw float64)
}
