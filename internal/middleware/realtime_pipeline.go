package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// TickerSink is the cache-facing surface the pipeline feeds.
type TickerSink interface {
	ApplyTicker(t *models.Ticker) bool
	Tiers() models.TierSet
}

// TickerPipeline bridges the exchange WebSocket into the market
// cache. It validates and throttles pushes, keeps the subscription
// aligned with the hot and core tiers, and reconnects with backoff
// when the stream drops. The REST poll loops remain the source of
// truth; the pipeline only tightens freshness between polls.
type TickerPipeline struct {
	stream  drepo.MarketStream
	sink    TickerSink
	metrics drepo.Metrics
	log     *logger.Logger

	maxRPS       int           // per-symbol pushes per second
	resubscribe  time.Duration // subscription refresh cadence
	backoffStart time.Duration
	backoffCap   time.Duration

	lastSeen   map[string]time.Time // consume loop only
	subscribed []string

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PipelineOption configures TickerPipeline.
type PipelineOption func(*TickerPipeline)

// WithMaxRPS caps how many pushes per second one symbol may apply.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickerPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithResubscribeInterval sets how often the subscription is
// reconciled against the current tiers.
func WithResubscribeInterval(d time.Duration) PipelineOption {
	return func(p *TickerPipeline) {
		if d > 0 {
			p.resubscribe = d
		}
	}
}

// WithReconnectBackoff sets the initial and maximum pause between
// failed connection attempts.
func WithReconnectBackoff(start, cap time.Duration) PipelineOption {
	return func(p *TickerPipeline) {
		if start > 0 {
			p.backoffStart = start
		}
		if cap > 0 {
			p.backoffCap = cap
		}
	}
}

// NewTickerPipeline creates a pipeline from stream to sink.
func NewTickerPipeline(stream drepo.MarketStream, sink TickerSink, metrics drepo.Metrics, log *logger.Logger, opts ...PipelineOption) *TickerPipeline {
	p := &TickerPipeline{
		stream:       stream,
		sink:         sink,
		metrics:      metrics,
		log:          log,
		maxRPS:       20,
		resubscribe:  time.Minute,
		backoffStart: time.Second,
		backoffCap:   30 * time.Second,
		lastSeen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the stream loop. Calling Start twice is a no-op.
func (p *TickerPipeline) Start(ctx context.Context) {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx)
	}()
	p.log.Info("ticker pipeline started",
		logger.Int("max_rps", p.maxRPS),
		logger.Duration("resubscribe", p.resubscribe),
	)
}

// Stop tears the pipeline down and waits for the loop to exit.
func (p *TickerPipeline) Stop() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	p.cancel()
	p.wg.Wait()
	_ = p.stream.Close()
	p.log.Info("ticker pipeline stopped")
}

func (p *TickerPipeline) run(ctx context.Context) {
	backoff := p.backoffStart
	for ctx.Err() == nil {
		if err := p.stream.Connect(ctx); err != nil {
			p.metrics.RecordError("stream_connect")
			p.log.Warn("stream connect failed", logger.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > p.backoffCap {
				backoff = p.backoffCap
			}
			continue
		}
		backoff = p.backoffStart

		if symbols := p.fastSymbols(); len(symbols) > 0 {
			if err := p.stream.Subscribe(ctx, symbols); err != nil {
				p.metrics.RecordError("stream_subscribe")
				p.log.Warn("stream subscribe failed", logger.Error(err))
				_ = p.stream.Close()
				continue
			}
			p.subscribed = symbols
		}

		p.consume(ctx)
		_ = p.stream.Close()
	}
}

// consume drains one connection until it drops or the context ends.
func (p *TickerPipeline) consume(ctx context.Context) {
	ticks, errs := p.stream.Read(ctx)
	resub := time.NewTicker(p.resubscribe)
	defer resub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := validateTicker(t); err != nil {
				p.metrics.RecordError("stream_validate")
				continue
			}
			if !p.allow(t.Symbol, time.Now()) {
				p.metrics.RecordError("stream_throttle")
				continue
			}
			p.sink.ApplyTicker(t)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				p.metrics.RecordError("stream_read")
				p.log.Warn("stream dropped", logger.Error(err))
			}
			return
		case <-resub.C:
			p.reconcileSubscription(ctx)
		}
	}
}

// reconcileSubscription re-subscribes when the fast tiers changed,
// so newly promoted symbols start streaming without a reconnect.
func (p *TickerPipeline) reconcileSubscription(ctx context.Context) {
	symbols := p.fastSymbols()
	if len(symbols) == 0 || equalSymbols(symbols, p.subscribed) {
		return
	}
	if err := p.stream.Subscribe(ctx, symbols); err != nil {
		p.metrics.RecordError("stream_subscribe")
		p.log.Warn("subscription refresh failed", logger.Error(err))
		return
	}
	p.subscribed = symbols
	p.log.Info("stream subscription refreshed", logger.Int("symbols", len(symbols)))
}

// fastSymbols returns the hot and core tiers, the ones whose
// freshness budget benefits from pushes.
func (p *TickerPipeline) fastSymbols() []string {
	tiers := p.sink.Tiers()
	out := make([]string, 0, len(tiers.Hot)+len(tiers.Core))
	out = append(out, tiers.Hot...)
	out = append(out, tiers.Core...)
	return out
}

// allow enforces a minimum gap between accepted pushes per symbol.
func (p *TickerPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

func validateTicker(t *models.Ticker) error {
	if t == nil {
		return fmt.Errorf("ticker nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Price <= 0 {
		return fmt.Errorf("price invalid")
	}
	if t.Volume24h < 0 || t.Value24h < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
