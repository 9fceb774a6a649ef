package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/services/strategy"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// StartConfig describes one strategy run to launch.
type StartConfig struct {
	Strategy string
	Symbols  []string // empty means the strategy's default universe
}

type liveRun struct {
	run      models.StrategyRun
	strategy domsvc.Strategy
	cancel   context.CancelFunc
	done     chan struct{}
	paused   bool
}

// Orchestrator owns the live trading loop: it schedules strategy
// cycles against the market cache, routes their signals through the
// ledger (and the exchange in live mode), and runs one shared risk
// monitor enforcing stop-loss and take-profit across every open
// position regardless of which run opened it.
type Orchestrator struct {
	cache   *MarketCache
	ledger  *Ledger
	gateway domsvc.MarketGateway
	fills   drepo.FillPublisher
	metrics drepo.Metrics
	log     *logger.Logger

	mode             models.TradingMode
	maxPositionPct   float64
	stopLossPct      float64
	takeProfitPct    float64
	monitorInterval  time.Duration
	stopWait         time.Duration
	intervalOverride time.Duration

	mu   sync.Mutex
	runs map[string]*liveRun

	publishCh chan models.Trade

	startMu sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type OrchestratorOption func(*Orchestrator)

// WithMode sets the execution mode for every run.
func WithMode(mode models.TradingMode) OrchestratorOption {
	return func(o *Orchestrator) {
		if mode.Valid() {
			o.mode = mode
		}
	}
}

// WithRiskLimits sets the global stop-loss and take-profit fractions
// applied by the position monitor.
func WithRiskLimits(stopLoss, takeProfit float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if stopLoss > 0 {
			o.stopLossPct = stopLoss
		}
		if takeProfit > 0 {
			o.takeProfitPct = takeProfit
		}
	}
}

// WithMonitorInterval sets the risk monitor sweep cadence.
func WithMonitorInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.monitorInterval = d
		}
	}
}

// WithStopWait bounds how long a graceful stop waits for the cycle
// loop to exit before falling back to the forced path.
func WithStopWait(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stopWait = d
		}
	}
}

// WithMaxPositionPct caps how much of free cash one entry may use.
func WithMaxPositionPct(pct float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if pct > 0 {
			o.maxPositionPct = pct
		}
	}
}

// WithIntervalOverride forces every cycle loop onto one cadence
// instead of the strategy's own interval.
func WithIntervalOverride(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.intervalOverride = d }
}

// NewOrchestrator wires the live trading loop. fills may be nil when
// no journal is attached.
func NewOrchestrator(cache *MarketCache, ledger *Ledger, gateway domsvc.MarketGateway, fills drepo.FillPublisher, metrics drepo.Metrics, log *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cache:           cache,
		ledger:          ledger,
		gateway:         gateway,
		fills:           fills,
		metrics:         metrics,
		log:             log,
		mode:            models.ModeSimulation,
		maxPositionPct:  0.3,
		stopLossPct:     0.05,
		takeProfitPct:   0.10,
		monitorInterval: 10 * time.Second,
		stopWait:        5 * time.Second,
		runs:            make(map[string]*liveRun),
		publishCh:       make(chan models.Trade, 256),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the shared monitor and journal publisher. Runs are
// started individually afterwards.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.started {
		return nil
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.started = true

	o.wg.Add(1)
	go o.monitorLoop(o.ctx)
	if o.fills != nil {
		o.wg.Add(1)
		go o.publisherLoop(o.ctx)
	}
	return nil
}

// Stop stops every run, then the monitor and publisher. Safe to call
// more than once.
func (o *Orchestrator) Stop() {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if !o.started {
		return
	}
	for _, name := range o.runNames() {
		if err := o.StopStrategy(name); err != nil {
			o.log.Warn("stopping run on shutdown", logger.String("strategy", name), logger.Error(err))
		}
	}
	o.started = false
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) runNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.runs))
	for name := range o.runs {
		names = append(names, name)
	}
	return names
}

// StartStrategy launches a run for a named strategy. If a run for the
// same strategy is still active it is force-stopped first, keeping a
// single authoritative loop per strategy.
func (o *Orchestrator) StartStrategy(cfg StartConfig) (models.StrategyRun, error) {
	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return models.StrategyRun{}, err
	}
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = strategy.DefaultSymbols(cfg.Strategy)
	}
	return o.startWith(cfg.Strategy, strat, symbols)
}

func (o *Orchestrator) startWith(name string, strat domsvc.Strategy, symbols []string) (models.StrategyRun, error) {
	o.startMu.Lock()
	started := o.started
	root := o.ctx
	o.startMu.Unlock()
	if !started {
		return models.StrategyRun{}, fmt.Errorf("orchestrator not started")
	}

	o.mu.Lock()
	existing, conflict := o.runs[name]
	o.mu.Unlock()
	if conflict && existing.run.State != models.RunInactive {
		o.log.Warn("run already active, force-stopping before restart",
			logger.String("strategy", name))
		if err := o.StopStrategy(name); err != nil {
			return models.StrategyRun{}, fmt.Errorf("stop conflicting run: %w", err)
		}
	}

	interval := strat.Interval()
	if o.intervalOverride > 0 {
		interval = o.intervalOverride
	}
	runCtx, cancel := context.WithCancel(root)
	r := &liveRun{
		run: models.StrategyRun{
			ID:        uuid.New().String(),
			Strategy:  name,
			Symbols:   symbols,
			Mode:      o.mode,
			State:     models.RunActive,
			Interval:  interval,
			StartedAt: time.Now(),
		},
		strategy: strat,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[name] = r
	o.mu.Unlock()

	go o.cycleLoop(runCtx, r)

	o.log.Info("strategy run started",
		logger.String("strategy", name),
		logger.String("run_id", r.run.ID),
		logger.String("mode", string(o.mode)),
		logger.Strings("symbols", symbols),
		logger.Duration("interval", interval),
	)
	return r.run, nil
}

// StopStrategy stops a run: cancel the cycle loop, wait for it to
// exit, then liquidate the run's positions. If the loop does not exit
// within the bound, the forced path clears the run's positions and
// fills instead, emitting a distinct metric so operators can see
// graceful shutdown failing. Stopping an unknown or inactive run is a
// no-op.
func (o *Orchestrator) StopStrategy(name string) error {
	o.mu.Lock()
	r, ok := o.runs[name]
	if !ok || r.run.State == models.RunInactive {
		o.mu.Unlock()
		return nil
	}
	runID := r.run.ID
	r.cancel()
	o.mu.Unlock()

	select {
	case <-r.done:
		o.liquidateRun(runID, name)
	case <-time.After(o.stopWait):
		positions, trades := o.ledger.ForceClear(runID)
		o.metrics.RecordForcedStop(name)
		o.log.Warn("graceful stop timed out, state cleared",
			logger.String("strategy", name),
			logger.String("run_id", runID),
			logger.Int("positions_cleared", positions),
			logger.Int("trades_cleared", trades),
		)
	}

	o.mu.Lock()
	r.run.State = models.RunInactive
	o.mu.Unlock()
	o.log.Info("strategy run stopped", logger.String("strategy", name))
	return nil
}

// PauseStrategy suspends an active run's cycles without cancelling
// its loop. The shared risk monitor keeps guarding its positions.
func (o *Orchestrator) PauseStrategy(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[name]
	if !ok {
		return fmt.Errorf("pause %s: %w", name, models.ErrRunNotFound)
	}
	if r.run.State != models.RunActive {
		return fmt.Errorf("pause %s: run is %s", name, r.run.State)
	}
	r.paused = true
	r.run.State = models.RunPaused
	return nil
}

// ResumeStrategy reactivates a paused run.
func (o *Orchestrator) ResumeStrategy(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[name]
	if !ok {
		return fmt.Errorf("resume %s: %w", name, models.ErrRunNotFound)
	}
	if r.run.State != models.RunPaused {
		return fmt.Errorf("resume %s: run is %s", name, r.run.State)
	}
	r.paused = false
	r.run.State = models.RunActive
	return nil
}

// DeleteStrategy stops a run and removes it from the registry.
func (o *Orchestrator) DeleteStrategy(name string) error {
	o.mu.Lock()
	_, ok := o.runs[name]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete %s: %w", name, models.ErrRunNotFound)
	}
	if err := o.StopStrategy(name); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.runs, name)
	o.mu.Unlock()
	return nil
}

// Run returns a copy of one run's registry entry.
func (o *Orchestrator) Run(name string) (models.StrategyRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[name]
	if !ok {
		return models.StrategyRun{}, false
	}
	return r.run, true
}

// Runs returns copies of every registry entry.
func (o *Orchestrator) Runs() []models.StrategyRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.StrategyRun, 0, len(o.runs))
	for _, r := range o.runs {
		out = append(out, r.run)
	}
	return out
}

// Trades returns the ledger's most recent fills, oldest first.
func (o *Orchestrator) Trades(limit int) []models.Trade {
	return o.ledger.Trades(limit)
}

// Portfolio marks the ledger to the cache's latest prices.
func (o *Orchestrator) Portfolio() models.PortfolioStatus {
	prices := make(map[string]float64)
	for _, pos := range o.ledger.Positions() {
		if snap, ok := o.cache.Snapshot(pos.Symbol); ok && snap.Ticker.Price > 0 {
			prices[pos.Symbol] = snap.Ticker.Price
		}
	}
	return o.ledger.Summary(prices)
}

func (o *Orchestrator) cycleLoop(ctx context.Context, r *liveRun) {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			o.setRunError(r, fmt.Errorf("cycle panic: %v", rec))
		}
	}()

	ticker := time.NewTicker(r.run.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		o.mu.Lock()
		paused := r.paused
		o.mu.Unlock()
		if paused {
			continue
		}

		start := time.Now()
		if err := o.runCycle(ctx, r); err != nil {
			// Only fatal conditions escape runCycle.
			o.setRunError(r, err)
			return
		}
		o.metrics.RecordLatency("cycle_"+r.run.Strategy, time.Since(start).Seconds())

		o.mu.Lock()
		r.run.LastExecuted = time.Now()
		o.mu.Unlock()
	}
}

func (o *Orchestrator) setRunError(r *liveRun, err error) {
	o.mu.Lock()
	r.run.State = models.RunErrored
	r.run.Error = err.Error()
	o.mu.Unlock()
	o.metrics.RecordError("run_" + r.run.Strategy)
	o.log.Error("strategy run failed",
		logger.String("strategy", r.run.Strategy),
		logger.String("run_id", r.run.ID),
		logger.Error(err),
	)
}

// runCycle evaluates one strategy pass. Per-symbol and per-signal
// errors are contained here; only authentication failures bubble up
// and kill the run.
func (o *Orchestrator) runCycle(ctx context.Context, r *liveRun) error {
	views := o.buildViews(r)
	if len(views) == 0 {
		return nil
	}

	signals, err := r.strategy.Analyze(ctx, views)
	if err != nil {
		o.metrics.RecordError("cycle_" + r.run.Strategy)
		o.log.Warn("strategy analysis failed",
			logger.String("strategy", r.run.Strategy), logger.Error(err))
		return nil
	}

	for _, sig := range signals {
		if sig.Kind == models.SignalHold {
			continue
		}
		sig.StrategyID = r.run.ID
		sig.Strategy = r.run.Strategy
		o.metrics.RecordSignal(r.run.Strategy, sig.Kind.String())
		if err := o.execute(ctx, sig); err != nil {
			if errors.Is(err, models.ErrAuthentication) {
				return fmt.Errorf("order placement: %w", err)
			}
			o.log.Warn("signal execution failed",
				logger.String("strategy", r.run.Strategy),
				logger.String("symbol", sig.Symbol),
				logger.String("kind", sig.Kind.String()),
				logger.Error(err),
			)
		}
	}
	return nil
}

// buildViews composes the read-only state each strategy evaluates.
// Symbols without a committed snapshot are skipped this cycle rather
// than fed synthetic data.
func (o *Orchestrator) buildViews(r *liveRun) []models.MarketView {
	views := make([]models.MarketView, 0, len(r.run.Symbols))
	for _, symbol := range r.run.Symbols {
		snap, ok := o.cache.Snapshot(symbol)
		if !ok || snap.Ticker.Price <= 0 {
			o.metrics.RecordError("view_unavailable")
			o.log.Debug("no market data for symbol, skipping",
				logger.String("symbol", symbol), logger.String("strategy", r.run.Strategy))
			continue
		}
		view := models.MarketView{
			Snapshot: snap,
			Window:   o.cache.Window(symbol),
			Capital:  o.ledger.Cash(),
		}
		if pos, ok := o.ledger.Position(symbol); ok {
			view.Position = &pos
		}
		views = append(views, view)
	}
	return views
}

func (o *Orchestrator) execute(ctx context.Context, sig models.Signal) error {
	switch sig.Kind {
	case models.SignalBuy:
		return o.executeBuy(ctx, sig)
	case models.SignalSell, models.SignalClose:
		return o.executeSell(ctx, sig)
	default:
		return nil
	}
}

func (o *Orchestrator) executeBuy(ctx context.Context, sig models.Signal) error {
	price := sig.Price
	if price <= 0 {
		return fmt.Errorf("buy %s: no price on signal", sig.Symbol)
	}
	quantity := sig.Quantity
	if quantity <= 0 {
		quantity = o.sizeQuantity(sig, price)
	}
	if quantity <= 0 {
		return nil
	}

	if o.mode == models.ModeLive {
		if err := o.ledger.CanOpen(OpenRequest{Symbol: sig.Symbol, Quantity: quantity, Price: price}); err != nil {
			o.log.Info("buy signal dropped before order", logger.String("symbol", sig.Symbol), logger.Error(err))
			return nil
		}
		req := models.OrderRequest{Symbol: sig.Symbol, Side: models.SignalBuy, Price: price, Amount: quantity, Mode: o.mode}
		res, err := o.placeWithRetry(ctx, req)
		if err != nil {
			o.ledger.RecordFailed(OpenRequest{
				Symbol: sig.Symbol, Quantity: quantity, Price: price,
				StrategyID: sig.StrategyID, Strategy: sig.Strategy,
				Strength: sig.Strength, Confidence: sig.Confidence,
			}, models.SignalBuy, err.Error())
			return err
		}
		if res.Price > 0 {
			price = res.Price
		}
		if res.Amount > 0 {
			quantity = res.Amount
		}
	}

	trade, err := o.ledger.Open(OpenRequest{
		Symbol:     sig.Symbol,
		Side:       models.SideLong,
		Quantity:   quantity,
		Price:      price,
		StrategyID: sig.StrategyID,
		Strategy:   sig.Strategy,
		Strength:   sig.Strength,
		Confidence: sig.Confidence,
		Reason:     sig.Reason,
	})
	if err != nil {
		// Business-rule rejections drop the signal; nothing to retry.
		if errors.Is(err, models.ErrInsufficientCapital) ||
			errors.Is(err, models.ErrBelowMinNotional) ||
			errors.Is(err, models.ErrMaxPositionsReached) {
			if o.mode == models.ModeLive {
				// The exchange already filled this order.
				o.log.Error("live fill could not be booked",
					logger.String("symbol", sig.Symbol), logger.Error(err))
				return err
			}
			o.log.Info("buy signal dropped", logger.String("symbol", sig.Symbol), logger.Error(err))
			return nil
		}
		return err
	}
	o.metrics.RecordFill(string(o.mode), models.SignalBuy.String(), sig.Symbol)
	o.enqueueFill(*trade)
	return nil
}

func (o *Orchestrator) executeSell(ctx context.Context, sig models.Signal) error {
	pos, ok := o.ledger.Position(sig.Symbol)
	if !ok {
		o.log.Error("sell signal without a position",
			logger.String("symbol", sig.Symbol), logger.String("strategy", sig.Strategy))
		return nil
	}
	price := sig.Price
	if price <= 0 {
		return fmt.Errorf("sell %s: no price on signal", sig.Symbol)
	}
	quantity := sig.Quantity
	if quantity <= 0 || quantity > pos.Amount {
		quantity = pos.Amount
	}
	return o.closePosition(ctx, closeOrder{
		symbol:     sig.Symbol,
		quantity:   quantity,
		price:      price,
		strategyID: sig.StrategyID,
		strategy:   sig.Strategy,
		confidence: sig.Confidence,
		strength:   sig.Strength,
		reason:     sig.Reason,
	})
}

type closeOrder struct {
	symbol     string
	quantity   float64
	price      float64
	strategyID string
	strategy   string
	confidence float64
	strength   float64
	reason     string
}

func (o *Orchestrator) closePosition(ctx context.Context, ord closeOrder) error {
	if o.mode == models.ModeLive {
		req := models.OrderRequest{Symbol: ord.symbol, Side: models.SignalSell, Price: ord.price, Amount: ord.quantity, Mode: o.mode}
		if _, err := o.placeWithRetry(ctx, req); err != nil {
			o.ledger.RecordFailed(OpenRequest{
				Symbol: ord.symbol, Quantity: ord.quantity, Price: ord.price,
				StrategyID: ord.strategyID, Strategy: ord.strategy,
				Strength: ord.strength, Confidence: ord.confidence,
			}, models.SignalSell, err.Error())
			return err
		}
	}

	trade, err := o.ledger.Close(CloseRequest{
		Symbol:     ord.symbol,
		Quantity:   ord.quantity,
		Price:      ord.price,
		StrategyID: ord.strategyID,
		Strategy:   ord.strategy,
		Strength:   ord.strength,
		Confidence: ord.confidence,
		Reason:     ord.reason,
	})
	if err != nil {
		if errors.Is(err, models.ErrNoSuchPosition) {
			// Raced with another closer; the position is already gone.
			o.log.Error("close raced, position already gone", logger.String("symbol", ord.symbol))
			return nil
		}
		return err
	}
	o.metrics.RecordFill(string(o.mode), models.SignalSell.String(), ord.symbol)
	o.enqueueFill(*trade)
	return nil
}

func (o *Orchestrator) sizeQuantity(sig models.Signal, price float64) float64 {
	return orderQuantity(o.ledger.Cash(), sig, price, o.maxPositionPct)
}

// orderQuantity derives order units from free cash: a base slice of
// capital scaled by the signal's multiplier, never more than the
// confidence-scaled slice, or the signal's fixed notional when set.
// Live and backtest entries size identically through this.
func orderQuantity(capital float64, sig models.Signal, price, maxPositionPct float64) float64 {
	if capital <= 0 || price <= 0 {
		return 0
	}
	notional := sig.FixedNotional
	if notional <= 0 {
		mult := sig.SizeMultiplier
		if mult <= 0 {
			mult = 1
		}
		base := capital * maxPositionPct * mult
		byConfidence := capital * sig.Confidence * maxPositionPct
		notional = math.Min(base, byConfidence)
	}
	if notional > capital {
		notional = capital
	}
	return notional / price
}

// placeWithRetry sends an order, retrying exactly once on transient
// failure. Authentication failures are never retried. A second
// failure marks the order failed for good; later cycles start fresh,
// never replaying this order.
func (o *Orchestrator) placeWithRetry(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	res, err := o.gateway.PlaceOrder(ctx, req)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, models.ErrAuthentication) {
		return nil, err
	}
	o.metrics.RecordError("order_retry")
	o.log.Warn("order placement failed, retrying once",
		logger.String("symbol", req.Symbol),
		logger.String("side", req.Side.String()),
		logger.Error(err),
	)
	res, err = o.gateway.PlaceOrder(ctx, req)
	if err != nil {
		o.metrics.RecordError("order_failed")
		return nil, fmt.Errorf("order after retry: %w", err)
	}
	return res, nil
}

// liquidateRun closes every position the run still holds, through the
// same commission-aware path as any other exit.
func (o *Orchestrator) liquidateRun(runID, name string) {
	for _, pos := range o.ledger.PositionsOf(runID) {
		price := pos.AvgPrice
		if snap, ok := o.cache.Snapshot(pos.Symbol); ok && snap.Ticker.Price > 0 {
			price = snap.Ticker.Price
		} else {
			o.log.Warn("liquidating without a fresh price",
				logger.String("symbol", pos.Symbol), logger.String("strategy", name))
		}
		err := o.closePosition(context.Background(), closeOrder{
			symbol:     pos.Symbol,
			quantity:   pos.Amount,
			price:      price,
			strategyID: runID,
			strategy:   name,
			confidence: 1,
			strength:   1,
			reason:     "strategy stopped",
		})
		if err != nil {
			o.log.Error("liquidation failed",
				logger.String("symbol", pos.Symbol), logger.Error(err))
		}
	}
}

func (o *Orchestrator) monitorLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		o.sweepPositions(ctx)
	}
}

// sweepPositions applies the global stop-loss and take-profit limits
// to every open position, whichever run opened it.
func (o *Orchestrator) sweepPositions(ctx context.Context) {
	positions := o.ledger.Positions()
	o.metrics.SetOpenPositions(string(o.mode), len(positions))
	o.metrics.SetCapital(string(o.mode), o.ledger.Cash())

	for _, pos := range positions {
		snap, ok := o.cache.Snapshot(pos.Symbol)
		if !ok || snap.Ticker.Price <= 0 {
			continue
		}
		basis := pos.AvgPrice * pos.Amount
		if basis <= 0 {
			continue
		}
		ret := pos.UnrealizedPnL(snap.Ticker.Price) / basis

		var reason string
		switch {
		case ret <= -o.stopLossPct:
			reason = "stop loss"
		case ret >= o.takeProfitPct:
			reason = "take profit"
		default:
			continue
		}

		err := o.closePosition(ctx, closeOrder{
			symbol:     pos.Symbol,
			quantity:   pos.Amount,
			price:      snap.Ticker.Price,
			strategyID: pos.StrategyID,
			strategy:   o.strategyNameFor(pos.StrategyID),
			confidence: 1,
			strength:   1,
			reason:     reason,
		})
		if err != nil {
			o.log.Error("risk close failed",
				logger.String("symbol", pos.Symbol),
				logger.String("reason", reason),
				logger.Error(err),
			)
		} else {
			o.log.Info("risk limit closed position",
				logger.String("symbol", pos.Symbol),
				logger.String("reason", reason),
				logger.Float64("return", ret),
			)
		}
	}
}

func (o *Orchestrator) strategyNameFor(runID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, r := range o.runs {
		if r.run.ID == runID {
			return name
		}
	}
	return "monitor"
}

func (o *Orchestrator) enqueueFill(t models.Trade) {
	if o.fills == nil {
		return
	}
	select {
	case o.publishCh <- t:
	default:
		o.metrics.RecordError("journal_drop")
	}
}

func (o *Orchestrator) publisherLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.publishCh:
			pubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := o.fills.Publish(pubCtx, &t); err != nil {
				o.metrics.RecordError("journal_publish")
				o.log.Debug("fill publish failed", logger.String("trade_id", t.ID), logger.Error(err))
			}
			cancel()
		}
	}
}
