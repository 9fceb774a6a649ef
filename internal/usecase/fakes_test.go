package usecase

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

// noopMetrics satisfies the metrics port without registering collectors.
type noopMetrics struct{}

func (noopMetrics) RecordFill(mode, side, symbol string)         {}
func (noopMetrics) RecordError(kind string)                      {}
func (noopMetrics) RecordLastPrice(symbol string, price float64) {}
func (noopMetrics) RecordLatency(op string, seconds float64)     {}
func (noopMetrics) RecordSignal(strategy, kind string)           {}
func (noopMetrics) RecordForcedStop(strategy string)             {}
func (noopMetrics) SetOpenPositions(mode string, count int)      {}
func (noopMetrics) SetCapital(mode string, krw float64)          {}

// countingMetrics tallies recorder calls for assertions.
type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	forced map[string]int
	fills  map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		errors: make(map[string]int),
		forced: make(map[string]int),
		fills:  make(map[string]int),
	}
}

func (m *countingMetrics) RecordFill(mode, side, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills[side+"_"+symbol]++
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordForcedStop(strategy string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced[strategy]++
}

func (m *countingMetrics) RecordLastPrice(symbol string, price float64) {}
func (m *countingMetrics) RecordLatency(op string, seconds float64)     {}
func (m *countingMetrics) RecordSignal(strategy, kind string)           {}
func (m *countingMetrics) SetOpenPositions(mode string, count int)      {}
func (m *countingMetrics) SetCapital(mode string, krw float64)          {}

func (m *countingMetrics) forcedCount(strategy string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced[strategy]
}

// scriptStrategy pops one batch of signals per Analyze call.
type scriptStrategy struct {
	name     string
	interval time.Duration

	mu     sync.Mutex
	queue  [][]models.Signal
	calls  int
	err    error
	block  chan struct{} // when set, Analyze blocks until it closes
	blockN int           // Analyze call number to start blocking at (1-based, 0 = always)
}

func newScriptStrategy(name string) *scriptStrategy {
	return &scriptStrategy{name: name, interval: time.Minute}
}

func (s *scriptStrategy) emit(signals ...models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, signals)
}

func (s *scriptStrategy) Name() string            { return s.name }
func (s *scriptStrategy) Interval() time.Duration { return s.interval }

func (s *scriptStrategy) Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	block := s.block
	blockAt := s.blockN
	err := s.err
	var out []models.Signal
	if len(s.queue) > 0 {
		out = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if block != nil && (blockAt == 0 || call >= blockAt) {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *scriptStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeGateway is an in-memory exchange with injectable failures.
type fakeGateway struct {
	mu sync.Mutex

	all       []models.Ticker
	allErr    error
	tickerErr map[string]error
	candles   map[string][]models.Candle
	candleErr map[string]error
	books     map[string]*models.Orderbook
	bookErr   error
	orderErr  error
	orderN    int // fail the next N PlaceOrder calls when orderErr is set

	tickerCalls map[string]int
	allCalls    int
	placed      []models.OrderRequest
}

func newFakeGateway(tickers ...models.Ticker) *fakeGateway {
	return &fakeGateway{
		all:         tickers,
		tickerErr:   make(map[string]error),
		candles:     make(map[string][]models.Candle),
		candleErr:   make(map[string]error),
		books:       make(map[string]*models.Orderbook),
		tickerCalls: make(map[string]int),
	}
}

func (g *fakeGateway) setAll(tickers []models.Ticker, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.all = tickers
	g.allErr = err
}

func (g *fakeGateway) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickerCalls[symbol]++
	if err, ok := g.tickerErr[symbol]; ok && err != nil {
		return nil, err
	}
	for _, t := range g.all {
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
	g.allCalls++
	if g.allErr != nil {
		return nil, g.allErr
	}
	out := make([]models.Ticker, len(g.all))
	copy(out, g.all)
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
	if err, ok := g.candleErr[symbol]; ok && err != nil {
		return nil, err
	}
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
	if g.orderErr != nil && g.orderN != 0 {
		if g.orderN > 0 {
			g.orderN--
		}
		return nil, g.orderErr
	}
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

func (g *fakeGateway) calls(symbol string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickerCalls[symbol]
}

// fakeScorer answers from a canned table, hold-default otherwise.
type fakeScorer struct {
	mu      sync.Mutex
	signals map[string]models.MLSignal
	err     error
	scored  []string
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
	if s.err != nil {
		return nil, s.err
	}
	s.scored = append(s.scored, symbol)
	if sig, ok := s.signals[symbol]; ok {
		out := sig
		return &out, nil
	}
	return &models.MLSignal{
		Symbol: symbol, Kind: models.SignalHold, Confidence: 0.5, Strength: 0.5,
		Source: "local", Timestamp: time.Now(),
	}, nil
}

// tickerFixture fabricates a universe where change rate falls and
// traded value rises with the index, so rank ordering is predictable.
func tickerFixture(n int) []models.Ticker {
	tickers := make([]models.Ticker, 0, n)
	for i := 0; i < n; i++ {
		tickers = append(tickers, models.Ticker{
			Symbol:     fmt.Sprintf("C%02d", i),
			Price:      1000 * float64(i+1),
			Volume24h:  float64(1000 - i),
			Value24h:   float64((i + 1) * 1_000_000),
			ChangeRate: float64(n - i),
			Timestamp:  time.Now(),
		})
	}
	return tickers
}

// flatCandles builds n bars at a constant price ending now.
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

// fakeCandleStore archives bars in memory and serves them back.
type fakeCandleStore struct {
	mu      sync.Mutex
	bars    map[string][]models.Candle
	batches int
	err     error
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
	if s.err != nil {
		return s.err
	}
	s.batches++
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

func (s *fakeCandleStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// fakeTradeStore collects batches in memory.
type fakeTradeStore struct {
	mu      sync.Mutex
	stored  []*models.Trade
	batches int
	err     error
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
	s.batches++
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

func (s *fakeTradeStore) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeTradeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func (s *fakeTradeStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// fakeBacktestStore keeps results in a map and the status sequence.
type fakeBacktestStore struct {
	mu      sync.Mutex
	results map[string]*models.BacktestResult
	history []models.RunStatus
	putErr  error
}

func newFakeBacktestStore() *fakeBacktestStore {
	return &fakeBacktestStore{results: make(map[string]*models.BacktestResult)}
}

func (s *fakeBacktestStore) Put(ctx context.Context, res *models.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := *res
	s.results[res.RunID] = &cp
	s.history = append(s.history, res.Status)
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

func (s *fakeBacktestStore) statuses() []models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunStatus, len(s.history))
	copy(out, s.history)
	return out
}

// fakeJobQueue records published queue messages.
type fakeJobQueue struct {
	mu       sync.Mutex
	types    []string
	payloads []interface{}
	err      error
}

func (q *fakeJobQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *fakeJobQueue) published() ([]string, []interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	types := make([]string, len(q.types))
	copy(types, q.types)
	payloads := make([]interface{}, len(q.payloads))
	copy(payloads, q.payloads)
	return types, payloads
}
