package repository

import (
	"context"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

// CandleStore archives OHLCV bars and serves them back for backtests.
type CandleStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, candles []models.Candle, tf Timeframe) error
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}
