package api

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type noopMetrics struct{}

func (noopMetrics) RecordFill(mode, side, symbol string)         {}
func (noopMetrics) RecordError(kind string)                      {}
func (noopMetrics) RecordLastPrice(symbol string, price float64) {}
func (noopMetrics) RecordLatency(op string, seconds float64)     {}
func (noopMetrics) RecordSignal(strategy, kind string)           {}
func (noopMetrics) RecordForcedStop(strategy string)             {}
func (noopMetrics) SetOpenPositions(mode string, count int)      {}
func (noopMetrics) SetCapital(mode string, krw float64)          {}

// fakeGateway serves a canned universe of tickers, candles and books.
type fakeGateway struct {
	mu      sync.Mutex
	tickers []models.Ticker
	candles map[string][]models.Candle
	books   map[string]*models.Orderbook
	bookErr error
	placed  []models.OrderRequest
}

func newFakeGateway(tickers ...models.Ticker) *fakeGateway {
	return &fakeGateway{
		tickers: tickers,
		candles: make(map[string][]models.Candle),
		books:   make(map[string]*models.Orderbook),
	}
}

func (g *fakeGateway) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tickers {
		if t.Symbol == symbol {
			out := t
			out.Timestamp = time.Now()
			return &out, nil
		}
	}
	return nil, models.ErrDataUnavailable
}

func (g *fakeGateway) GetAllTickers(ctx context.Context) ([]models.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Ticker, len(g.tickers))
	copy(out, g.tickers)
	return out, nil
}

func (g *fakeGateway) GetOrderbook(ctx context.Context, symbol string) (*models.Orderbook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bookErr != nil {
		return nil, g.bookErr
	}
	if book, ok := g.books[symbol]; ok {
		out := *book
		return &out, nil
	}
	return &models.Orderbook{Symbol: symbol, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) GetCandles(ctx context.Context, symbol, timeframe string, n int) ([]models.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cs := g.candles[symbol]
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	out := make([]models.Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placed = append(g.placed, req)
	return &models.OrderResult{
		OrderID:    fmt.Sprintf("order-%d", len(g.placed)),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Amount:     req.Amount,
		ExecutedAt: time.Now(),
	}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (g *fakeGateway) GetBalances(ctx context.Context) ([]models.Balance, error) {
	return []models.Balance{{Currency: "KRW", Available: 1_000_000}}, nil
}

// fakeScorer answers hold unless a signal was canned for the symbol.
type fakeScorer struct {
	mu      sync.Mutex
	signals map[string]models.MLSignal
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{signals: make(map[string]models.MLSignal)}
}

func (s *fakeScorer) set(symbol string, kind models.SignalKind, confidence, strength float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[symbol] = models.MLSignal{
		Symbol: symbol, Kind: kind, Confidence: confidence, Strength: strength,
		Source: "local", Timestamp: time.Now(),
	}
}

func (s *fakeScorer) Score(ctx context.Context, symbol string, window []models.Candle) (*models.MLSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.signals[symbol]; ok {
		out := sig
		return &out, nil
	}
	return &models.MLSignal{
		Symbol: symbol, Kind: models.SignalHold, Confidence: 0.5, Strength: 0.5,
		Source: "local", Timestamp: time.Now(),
	}, nil
}

// fakeCandleStore is an in-memory archive.
type fakeCandleStore struct {
	mu   sync.Mutex
	bars map[string][]models.Candle
	err  error
}

func newFakeCandleStore() *fakeCandleStore {
	return &fakeCandleStore{bars: make(map[string][]models.Candle)}
}

func (s *fakeCandleStore) seed(symbol string, candles []models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = append(s.bars[symbol], candles...)
}

func (s *fakeCandleStore) Init(ctx context.Context) error { return nil }

func (s *fakeCandleStore) StoreBatch(ctx context.Context, candles []models.Candle, tf drepo.Timeframe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candles {
		s.bars[c.Symbol] = append(s.bars[c.Symbol], c)
	}
	return nil
}

func (s *fakeCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf drepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Candle
	for _, c := range s.bars[symbol] {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf drepo.Timeframe) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cs := s.bars[symbol]
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	out := make([]models.Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (s *fakeCandleStore) Health(ctx context.Context) error { return s.err }
func (s *fakeCandleStore) Close() error                     { return nil }

// fakeTradeStore keeps fills in memory for the analysis endpoint.
type fakeTradeStore struct {
	mu     sync.Mutex
	stored []*models.Trade
	err    error
}

func (s *fakeTradeStore) Init(ctx context.Context) error { return nil }

func (s *fakeTradeStore) Store(ctx context.Context, t *models.Trade) error {
	return s.StoreBatch(ctx, []*models.Trade{t})
}

func (s *fakeTradeStore) StoreBatch(ctx context.Context, trades []*models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, trades...)
	return nil
}

func (s *fakeTradeStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Trade
	for _, t := range s.stored {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeTradeStore) Health(ctx context.Context) error { return s.err }
func (s *fakeTradeStore) Close() error                     { return nil }

// fakeBacktestStore maps run IDs to results.
type fakeBacktestStore struct {
	mu      sync.Mutex
	results map[string]*models.BacktestResult
}

func newFakeBacktestStore() *fakeBacktestStore {
	return &fakeBacktestStore{results: make(map[string]*models.BacktestResult)}
}

func (s *fakeBacktestStore) Put(ctx context.Context, res *models.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *res
	s.results[res.RunID] = &cp
	return nil
}

func (s *fakeBacktestStore) Get(ctx context.Context, runID string) (*models.BacktestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[runID]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	cp := *res
	return &cp, nil
}

// fakeJobQueue records published queue messages.
type fakeJobQueue struct {
	mu       sync.Mutex
	types    []string
	payloads []interface{}
}

func (q *fakeJobQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *fakeJobQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.types)
}

// fakeStream only answers the health probe.
type fakeStream struct{ connected bool }

func (s *fakeStream) Connect(ctx context.Context) error                              { return nil }
func (s *fakeStream) Subscribe(ctx context.Context, symbols []string) error          { return nil }
func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) { return nil, nil }
func (s *fakeStream) Reconnect(ctx context.Context) error                            { return nil }
func (s *fakeStream) Close() error                                                   { return nil }
func (s *fakeStream) IsConnected() bool                                              { return s.connected }

// marketFixture builds a universe where filler symbols swamp the movers
// list, keeping the curated symbols in the core tier.
func marketFixture() []models.Ticker {
	now := time.Now()
	tickers := []models.Ticker{
		{Symbol: "BTC", Price: 50_000_000, Volume24h: 100, Value24h: 5e12, ChangeRate: 0.1, Timestamp: now},
		{Symbol: "ETH", Price: 3_000_000, Volume24h: 500, Value24h: 1e12, ChangeRate: 0.2, Timestamp: now},
	}
	for i := 0; i < 40; i++ {
		tickers = append(tickers, models.Ticker{
			Symbol:     fmt.Sprintf("C%02d", i),
			Price:      1000 * float64(i+1),
			Volume24h:  float64(1000 - i),
			Value24h:   float64((i + 1) * 1_000_000),
			ChangeRate: float64(40 - i + 1),
			Timestamp:  now,
		})
	}
	return tickers
}

// flatCandles builds n one-minute bars at a constant price ending now.
func flatCandles(symbol string, n int, price float64) []models.Candle {
	out := make([]models.Candle, 0, n)
	start := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		out = append(out, models.Candle{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1,
		})
	}
	return out
}
