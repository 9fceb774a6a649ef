package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/services/indicators"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// MarketCache maintains a bounded-staleness view of the tracked
// universe. Symbols are split into three disjoint tiers with their own
// refresh cadence, so the hot movers stay fresh without the wide tail
// serializing everything through one loop. All reads return the last
// committed value and never wait on an in-flight fetch.
type MarketCache struct {
	gateway domsvc.MarketGateway
	scorer  domsvc.Scorer
	metrics drepo.Metrics
	log     *logger.Logger

	coreSymbols []string
	hotSize     int
	broadSize   int
	windowSize  int
	timeframe   string

	hotPeriod        time.Duration
	corePeriod       time.Duration
	broadPeriod      time.Duration
	indicatorPeriod  time.Duration
	mlPeriod         time.Duration
	reclassifyPeriod time.Duration

	mu         sync.RWMutex
	tiers      models.TierSet
	tierOf     map[string]models.Tier
	tickers    map[string]models.Ticker
	indicators map[string]models.IndicatorSet
	signals    map[string]models.MLSignal
	windows    map[string][]models.Candle

	archive   drepo.CandleStore
	archiveCh chan []models.Candle

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type MarketCacheOption func(*MarketCache)

// WithCoreSymbols sets the curated list pinned to the core tier.
func WithCoreSymbols(symbols []string) MarketCacheOption {
	return func(c *MarketCache) {
		if len(symbols) > 0 {
			c.coreSymbols = symbols
		}
	}
}

// WithTierSizes sets how many symbols the hot and broad tiers hold.
func WithTierSizes(hot, broad int) MarketCacheOption {
	return func(c *MarketCache) {
		if hot > 0 {
			c.hotSize = hot
		}
		if broad > 0 {
			c.broadSize = broad
		}
	}
}

// WithWindowSize sets the candle window length fetched per symbol.
func WithWindowSize(n int) MarketCacheOption {
	return func(c *MarketCache) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

// WithRefreshPeriods overrides the per-tier refresh cadence.
func WithRefreshPeriods(hot, core, broad time.Duration) MarketCacheOption {
	return func(c *MarketCache) {
		if hot > 0 {
			c.hotPeriod = hot
		}
		if core > 0 {
			c.corePeriod = core
		}
		if broad > 0 {
			c.broadPeriod = broad
		}
	}
}

// WithRecomputePeriods overrides the indicator, ML, and tier
// reclassification cadence.
func WithRecomputePeriods(indicator, ml, reclassify time.Duration) MarketCacheOption {
	return func(c *MarketCache) {
		if indicator > 0 {
			c.indicatorPeriod = indicator
		}
		if ml > 0 {
			c.mlPeriod = ml
		}
		if reclassify > 0 {
			c.reclassifyPeriod = reclassify
		}
	}
}

// WithCandleArchive stores fetched indicator windows to the candle
// store, best effort, so backtests can replay real frames.
func WithCandleArchive(store drepo.CandleStore) MarketCacheOption {
	return func(c *MarketCache) { c.archive = store }
}

// NewMarketCache creates a cache over the given gateway and scorer.
func NewMarketCache(gateway domsvc.MarketGateway, scorer domsvc.Scorer, metrics drepo.Metrics, log *logger.Logger, opts ...MarketCacheOption) *MarketCache {
	c := &MarketCache{
		gateway:          gateway,
		scorer:           scorer,
		metrics:          metrics,
		log:              log,
		coreSymbols:      []string{"BTC", "ETH", "XRP", "SOL", "ADA"},
		hotSize:          10,
		broadSize:        30,
		windowSize:       200,
		timeframe:        string(drepo.TF1m),
		hotPeriod:        time.Second,
		corePeriod:       5 * time.Second,
		broadPeriod:      30 * time.Second,
		indicatorPeriod:  time.Minute,
		mlPeriod:         5 * time.Minute,
		reclassifyPeriod: time.Hour,
		tierOf:           make(map[string]models.Tier),
		tickers:          make(map[string]models.Ticker),
		indicators:       make(map[string]models.IndicatorSet),
		signals:          make(map[string]models.MLSignal),
		windows:          make(map[string][]models.Candle),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.archive != nil {
		c.archiveCh = make(chan []models.Candle, 64)
	}
	return c
}

// Start performs the initial tier classification and launches the
// refresh, recompute, and reclassification loops. A failed initial
// classification is a startup error; later failures only log.
func (c *MarketCache) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}

	if err := c.Reclassify(ctx); err != nil {
		return fmt.Errorf("initial tier classification: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	c.wg.Add(6)
	go c.refreshLoop(runCtx, models.TierHot, c.hotPeriod)
	go c.refreshLoop(runCtx, models.TierCore, c.corePeriod)
	go c.refreshLoop(runCtx, models.TierBroad, c.broadPeriod)
	go c.indicatorLoop(runCtx)
	go c.mlLoop(runCtx)
	go c.reclassifyLoop(runCtx)
	if c.archiveCh != nil {
		c.wg.Add(1)
		go c.archiveLoop(runCtx)
	}

	c.log.Info("market cache started",
		logger.Int("hot", len(c.Tiers().Hot)),
		logger.Int("core", len(c.Tiers().Core)),
		logger.Int("broad", len(c.Tiers().Broad)),
	)
	return nil
}

// Stop cancels every loop and waits for them to exit. Safe to call
// more than once.
func (c *MarketCache) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	c.cancel()
	c.wg.Wait()
}

// Reclassify fetches the full-market ticker and rebuilds the tier
// assignment: the strongest movers by 24h change go hot, the curated
// list stays core, and the next symbols by 24h traded value fill
// broad. Symbols tracked before but ranked out stay in broad so no
// tracked symbol ever loses its tier. On gateway failure the previous
// assignment is kept.
func (c *MarketCache) Reclassify(ctx context.Context) error {
	all, err := c.gateway.GetAllTickers(ctx)
	if err != nil {
		c.metrics.RecordError("reclassify")
		c.log.Warn("tier reclassification failed, keeping previous assignment", logger.Error(err))
		return err
	}
	if len(all) == 0 {
		c.metrics.RecordError("reclassify")
		c.log.Warn("tier reclassification returned no symbols, keeping previous assignment")
		return models.ErrDataUnavailable
	}

	byChange := make([]models.Ticker, len(all))
	copy(byChange, all)
	sort.Slice(byChange, func(i, j int) bool {
		return math.Abs(byChange[i].ChangeRate) > math.Abs(byChange[j].ChangeRate)
	})
	byValue := make([]models.Ticker, len(all))
	copy(byValue, all)
	sort.Slice(byValue, func(i, j int) bool {
		return byValue[i].Value24h > byValue[j].Value24h
	})

	assigned := make(map[string]models.Tier)
	var hot, core, broad []string

	for _, t := range byChange {
		if len(hot) >= c.hotSize {
			break
		}
		if _, ok := assigned[t.Symbol]; ok {
			continue
		}
		assigned[t.Symbol] = models.TierHot
		hot = append(hot, t.Symbol)
	}
	for _, s := range c.coreSymbols {
		if _, ok := assigned[s]; ok {
			continue
		}
		assigned[s] = models.TierCore
		core = append(core, s)
	}
	for _, t := range byValue {
		if len(broad) >= c.broadSize {
			break
		}
		if _, ok := assigned[t.Symbol]; ok {
			continue
		}
		assigned[t.Symbol] = models.TierBroad
		broad = append(broad, t.Symbol)
	}

	c.mu.Lock()
	for s := range c.tierOf {
		if _, ok := assigned[s]; !ok {
			assigned[s] = models.TierBroad
			broad = append(broad, s)
		}
	}
	c.tierOf = assigned
	c.tiers = models.TierSet{Hot: hot, Core: core, Broad: broad, UpdatedAt: time.Now()}
	for _, t := range all {
		if _, tracked := assigned[t.Symbol]; !tracked {
			continue
		}
		if _, seen := c.tickers[t.Symbol]; !seen {
			c.tickers[t.Symbol] = t
		}
	}
	c.mu.Unlock()

	c.log.Info("tiers reclassified",
		logger.Int("hot", len(hot)),
		logger.Int("core", len(core)),
		logger.Int("broad", len(broad)),
	)
	return nil
}

func (c *MarketCache) refreshLoop(ctx context.Context, tier models.Tier, period time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := time.Now()
		c.refreshTier(ctx, tier)
		c.metrics.RecordLatency("refresh_"+tier.String(), time.Since(start).Seconds())
	}
}

// refreshTier fetches every symbol in the tier sequentially. One
// symbol failing is logged and skipped; the rest of the cycle runs.
func (c *MarketCache) refreshTier(ctx context.Context, tier models.Tier) {
	for _, symbol := range c.tierSymbols(tier) {
		if ctx.Err() != nil {
			return
		}
		t, err := c.gateway.GetTicker(ctx, symbol)
		if err != nil {
			c.metrics.RecordError("refresh_" + tier.String())
			c.log.Debug("ticker refresh failed",
				logger.String("symbol", symbol),
				logger.String("tier", tier.String()),
				logger.Error(err),
			)
			continue
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		c.mu.Lock()
		c.tickers[symbol] = *t
		c.mu.Unlock()
		c.metrics.RecordLastPrice(symbol, t.Price)
	}
}

// ApplyTicker ingests an out-of-band ticker push, keeping the cache
// fresh between polls. Untracked symbols are ignored, as are updates
// older than the one already held.
func (c *MarketCache) ApplyTicker(t *models.Ticker) bool {
	if t == nil || t.Symbol == "" || t.Price <= 0 {
		return false
	}
	update := *t
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	c.mu.Lock()
	if _, tracked := c.tierOf[update.Symbol]; !tracked {
		c.mu.Unlock()
		return false
	}
	if cur, ok := c.tickers[update.Symbol]; ok && cur.Timestamp.After(update.Timestamp) {
		c.mu.Unlock()
		return false
	}
	c.tickers[update.Symbol] = update
	c.mu.Unlock()
	c.metrics.RecordLastPrice(update.Symbol, update.Price)
	return true
}

func (c *MarketCache) indicatorLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.indicatorPeriod)
	defer ticker.Stop()
	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cycle++
		start := time.Now()
		c.RecomputeIndicators(ctx, cycle%5 == 0)
		c.metrics.RecordLatency("indicators", time.Since(start).Seconds())
	}
}

// RecomputeIndicators refreshes the candle window and indicator set
// for the hot and core tiers, plus broad when includeBroad is set.
// Hot and core go first since strategies read them most.
func (c *MarketCache) RecomputeIndicators(ctx context.Context, includeBroad bool) {
	tiers := c.Tiers()
	symbols := append(append([]string{}, tiers.Hot...), tiers.Core...)
	if includeBroad {
		symbols = append(symbols, tiers.Broad...)
	}
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		window, err := c.gateway.GetCandles(ctx, symbol, c.timeframe, c.windowSize)
		if err != nil {
			c.metrics.RecordError("indicators")
			c.log.Debug("candle fetch failed", logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		set := indicators.Compute(symbol, window, time.Now())
		c.mu.Lock()
		c.windows[symbol] = window
		c.indicators[symbol] = set
		c.mu.Unlock()
		c.enqueueArchive(window)
	}
}

func (c *MarketCache) mlLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.mlPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := time.Now()
		c.RecomputeSignals(ctx)
		c.metrics.RecordLatency("ml_signals", time.Since(start).Seconds())
	}
}

// RecomputeSignals rescores the hot and core tiers only. Broad symbols
// keep the hold default, which bounds scorer load to the symbols
// strategies actually trade.
func (c *MarketCache) RecomputeSignals(ctx context.Context) {
	tiers := c.Tiers()
	symbols := append(append([]string{}, tiers.Hot...), tiers.Core...)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		window := c.Window(symbol)
		if len(window) == 0 {
			var err error
			window, err = c.gateway.GetCandles(ctx, symbol, c.timeframe, c.windowSize)
			if err != nil {
				c.metrics.RecordError("ml_signals")
				continue
			}
		}
		sig, err := c.scorer.Score(ctx, symbol, window)
		if err != nil {
			c.metrics.RecordError("ml_signals")
			c.log.Debug("signal scoring failed", logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		c.mu.Lock()
		c.signals[symbol] = *sig
		c.mu.Unlock()
	}
}

func (c *MarketCache) reclassifyLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.reclassifyPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Failure keeps the previous assignment; already logged inside.
		_ = c.Reclassify(ctx)
	}
}

func (c *MarketCache) enqueueArchive(window []models.Candle) {
	if c.archiveCh == nil || len(window) == 0 {
		return
	}
	select {
	case c.archiveCh <- window:
	default:
		c.metrics.RecordError("candle_archive_drop")
	}
}

func (c *MarketCache) archiveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case window := <-c.archiveCh:
			if err := c.archive.StoreBatch(ctx, window, drepo.Timeframe(c.timeframe)); err != nil {
				c.metrics.RecordError("candle_archive")
				c.log.Debug("candle archive write failed", logger.Error(err))
			}
		}
	}
}

func (c *MarketCache) tierSymbols(tier models.Tier) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var src []string
	switch tier {
	case models.TierHot:
		src = c.tiers.Hot
	case models.TierCore:
		src = c.tiers.Core
	case models.TierBroad:
		src = c.tiers.Broad
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Snapshot returns the last committed state for a symbol. The second
// return is false when the symbol is not tracked.
func (c *MarketCache) Snapshot(symbol string) (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ticker, ok := c.tickers[symbol]
	if !ok {
		return models.Snapshot{}, false
	}
	snap := models.Snapshot{
		Ticker:    ticker,
		Tier:      c.tierOf[symbol],
		UpdatedAt: ticker.Timestamp,
	}
	if set, ok := c.indicators[symbol]; ok {
		ind := set
		snap.Indicators = &ind
	}
	if sig, ok := c.signals[symbol]; ok {
		ml := sig
		snap.ML = &ml
	}
	return snap, true
}

// Indicators returns the last committed indicator set for a symbol, or
// a zero set when none was computed yet.
func (c *MarketCache) Indicators(symbol string) models.IndicatorSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indicators[symbol]
}

// Signal returns the last committed ML signal for a symbol. Symbols
// without a committed score answer with the hold default rather than
// blocking or erroring.
func (c *MarketCache) Signal(symbol string) models.MLSignal {
	c.mu.RLock()
	sig, ok := c.signals[symbol]
	c.mu.RUnlock()
	if ok {
		return sig
	}
	return models.MLSignal{
		Symbol:     symbol,
		Kind:       models.SignalHold,
		Confidence: 0.5,
		Strength:   0.5,
		Source:     "local",
		Timestamp:  time.Now(),
	}
}

// Window returns a copy of the symbol's candle window.
func (c *MarketCache) Window(symbol string) []models.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.windows[symbol]
	if len(src) == 0 {
		return nil
	}
	out := make([]models.Candle, len(src))
	copy(out, src)
	return out
}

// Tiers returns a copy of the current classification.
func (c *MarketCache) Tiers() models.TierSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := models.TierSet{UpdatedAt: c.tiers.UpdatedAt}
	out.Hot = append(out.Hot, c.tiers.Hot...)
	out.Core = append(out.Core, c.tiers.Core...)
	out.Broad = append(out.Broad, c.tiers.Broad...)
	return out
}

// TierOf returns the tier a symbol currently belongs to.
func (c *MarketCache) TierOf(symbol string) (models.Tier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tier, ok := c.tierOf[symbol]
	return tier, ok
}

// TopOpportunities ranks tracked symbols with a non-hold signal by
// confidence times strength, with a small bonus favoring the faster
// tiers, and returns the best limit entries.
func (c *MarketCache) TopOpportunities(limit int) []models.Opportunity {
	c.mu.RLock()
	out := make([]models.Opportunity, 0, len(c.signals))
	for symbol, sig := range c.signals {
		if sig.Kind == models.SignalHold {
			continue
		}
		tier := c.tierOf[symbol]
		score := sig.Confidence*sig.Strength + tierBonus(tier)
		out = append(out, models.Opportunity{
			Symbol:     symbol,
			Tier:       tier,
			Kind:       sig.Kind,
			Confidence: sig.Confidence,
			Strength:   sig.Strength,
			Score:      score,
			Price:      c.tickers[symbol].Price,
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tierBonus(tier models.Tier) float64 {
	switch tier {
	case models.TierHot:
		return 0.10
	case models.TierCore:
		return 0.05
	default:
		return 0
	}
}
