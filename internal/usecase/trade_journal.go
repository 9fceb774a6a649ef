package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	pkgkafka "github.com/kiheon-jang/autoTrade-sub000/pkg/kafka"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// TradeJournal consumes fills from the journal topic and copies them
// into the trade store in batches, so the durable history survives
// process restarts and ledger resets.
type TradeJournal struct {
	topic   string
	store   drepo.TradeStore
	metrics drepo.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	pending []*models.Trade

	batchSize  int
	flushEvery time.Duration
	maxPending int

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type TradeJournalOption func(*TradeJournal)

// WithJournalBatch sets the batch size and the idle flush interval.
func WithJournalBatch(size int, flushEvery time.Duration) TradeJournalOption {
	return func(j *TradeJournal) {
		if size > 0 {
			j.batchSize = size
			j.maxPending = size * 16
		}
		if flushEvery > 0 {
			j.flushEvery = flushEvery
		}
	}
}

// NewTradeJournal creates a journal consuming the given topic.
func NewTradeJournal(topic string, store drepo.TradeStore, metrics drepo.Metrics, log *logger.Logger, opts ...TradeJournalOption) *TradeJournal {
	j := &TradeJournal{
		topic:      topic,
		store:      store,
		metrics:    metrics,
		log:        log,
		batchSize:  64,
		flushEvery: 2 * time.Second,
		maxPending: 64 * 16,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *TradeJournal) Topic() string { return j.topic }

// Handle buffers one fill. A full buffer flushes synchronously so a
// failing store surfaces to the consumer's retry path.
func (j *TradeJournal) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID         string  `json:"id"`
		StrategyID string  `json:"strategy_id"`
		Strategy   string  `json:"strategy"`
		Symbol     string  `json:"symbol"`
		Side       string  `json:"side"`
		Price      float64 `json:"price"`
		Amount     float64 `json:"amount"`
		Commission float64 `json:"commission"`
		GrossPnL   float64 `json:"gross_pnl"`
		NetPnL     float64 `json:"net_pnl"`
		Strength   float64 `json:"strength"`
		Confidence float64 `json:"confidence"`
		Mode       string  `json:"mode"`
		Status     string  `json:"status"`
		Reason     string  `json:"reason"`
		ExecutedAt int64   `json:"executed_at"` // unix ms
	}
	if err := json.Unmarshal(b, &m); err != nil {
		j.metrics.RecordError("journal_unmarshal")
		return fmt.Errorf("decode fill: %w", err)
	}
	side, err := models.ParseSignalKind(m.Side)
	if err != nil {
		j.metrics.RecordError("journal_unmarshal")
		return fmt.Errorf("decode fill: %w", err)
	}

	t := &models.Trade{
		ID:               m.ID,
		StrategyID:       m.StrategyID,
		Strategy:         m.Strategy,
		Symbol:           m.Symbol,
		Side:             side,
		Price:            m.Price,
		Amount:           m.Amount,
		Commission:       m.Commission,
		GrossPnL:         m.GrossPnL,
		NetPnL:           m.NetPnL,
		SignalStrength:   m.Strength,
		SignalConfidence: m.Confidence,
		Mode:             models.TradingMode(m.Mode),
		Status:           models.TradeStatus(m.Status),
		Reason:           m.Reason,
		ExecutedAt:       time.UnixMilli(m.ExecutedAt),
	}

	j.mu.Lock()
	j.pending = append(j.pending, t)
	if over := len(j.pending) - j.maxPending; over > 0 {
		j.pending = j.pending[over:]
		j.metrics.RecordError("journal_drop")
		j.log.Warn("journal buffer saturated, oldest fills dropped", logger.Int("dropped", over))
	}
	full := len(j.pending) >= j.batchSize
	j.mu.Unlock()

	if full {
		return j.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered fills. On failure the batch is requeued in
// front of anything buffered meanwhile.
func (j *TradeJournal) Flush(ctx context.Context) error {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := j.store.StoreBatch(ctx, batch); err != nil {
		j.mu.Lock()
		j.pending = append(batch, j.pending...)
		j.mu.Unlock()
		j.metrics.RecordError("journal_store")
		return fmt.Errorf("journal flush: %w", err)
	}
	j.metrics.RecordLatency("journal_flush", time.Since(start).Seconds())
	return nil
}

// Start launches the idle flush loop.
func (j *TradeJournal) Start(ctx context.Context) {
	j.startMu.Lock()
	defer j.startMu.Unlock()
	if j.started {
		return
	}
	j.started = true

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.flushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := j.Flush(runCtx); err != nil {
					j.log.Warn("journal idle flush failed", logger.Error(err))
				}
			}
		}
	}()
	j.log.Info("trade journal started",
		logger.String("topic", j.topic),
		logger.Int("batch_size", j.batchSize),
		logger.Duration("flush_every", j.flushEvery))
}

// Stop joins the flush loop and drains whatever is still buffered.
func (j *TradeJournal) Stop() {
	j.startMu.Lock()
	defer j.startMu.Unlock()
	if !j.started {
		return
	}
	j.started = false
	j.cancel()
	j.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Flush(ctx); err != nil {
		j.log.Error("journal final flush failed", logger.Error(err))
	}
}

var _ pkgkafka.MessageHandler = (*TradeJournal)(nil)
