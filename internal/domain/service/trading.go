package service

import (
	"context"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

// MarketGateway is the exchange REST surface the engine trades through.
type MarketGateway interface {
	GetTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetAllTickers(ctx context.Context) ([]models.Ticker, error)
	GetOrderbook(ctx context.Context, symbol string) (*models.Orderbook, error)
	GetCandles(ctx context.Context, symbol, timeframe string, n int) ([]models.Candle, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetBalances(ctx context.Context) ([]models.Balance, error)
}

// Strategy turns market views into trading signals at its own cadence.
type Strategy interface {
	Name() string
	Interval() time.Duration
	Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error)
}

// Scorer produces a directional signal for a symbol from its candle window.
type Scorer interface {
	Score(ctx context.Context, symbol string, window []models.Candle) (*models.MLSignal, error)
}
