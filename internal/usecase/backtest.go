package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/commission"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/services/indicators"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

const backtestWindow = 200 // bars of context handed to the strategy per symbol

// BacktestEngine replays OHLCV frames bar by bar through the same
// ledger operations as live trading, so its statistics carry the same
// commission drag a live run would see.
type BacktestEngine struct {
	sched          commission.Schedule
	scorer         domsvc.Scorer
	metrics        drepo.Metrics
	log            *logger.Logger
	stopLossPct    float64
	takeProfitPct  float64
	maxPositionPct float64
}

type BacktestOption func(*BacktestEngine)

// WithBacktestRisk overrides the fixed stop-loss and take-profit
// fractions applied against each bar close.
func WithBacktestRisk(stopLoss, takeProfit float64) BacktestOption {
	return func(e *BacktestEngine) {
		if stopLoss > 0 {
			e.stopLossPct = stopLoss
		}
		if takeProfit > 0 {
			e.takeProfitPct = takeProfit
		}
	}
}

// WithBacktestSizing overrides the capital fraction cap per entry.
func WithBacktestSizing(pct float64) BacktestOption {
	return func(e *BacktestEngine) {
		if pct > 0 {
			e.maxPositionPct = pct
		}
	}
}

// WithBacktestScorer supplies the model scorer so ML-driven strategies
// see a signal on every bar, same as the live cache would give them.
func WithBacktestScorer(s domsvc.Scorer) BacktestOption {
	return func(e *BacktestEngine) { e.scorer = s }
}

// NewBacktestEngine creates a replay engine with the given fee
// schedule. Defaults: -2% stop, +4% take, 30% sizing cap.
func NewBacktestEngine(sched commission.Schedule, metrics drepo.Metrics, log *logger.Logger, opts ...BacktestOption) *BacktestEngine {
	e := &BacktestEngine{
		sched:          sched,
		metrics:        metrics,
		log:            log,
		stopLossPct:    0.02,
		takeProfitPct:  0.04,
		maxPositionPct: 0.3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays the frame under the strategy and derives the result
// statistics. An empty frame or a replay without trades completes
// with zeroed statistics, not an error.
func (e *BacktestEngine) Run(ctx context.Context, cfg models.BacktestConfig, strat domsvc.Strategy, frame map[string][]models.Candle) (*models.BacktestResult, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: non-positive initial capital")
	}
	if strat == nil {
		return nil, fmt.Errorf("backtest: no strategy")
	}
	started := time.Now()
	runID := uuid.New().String()

	stopLoss := e.stopLossPct
	if cfg.StopLossPct > 0 {
		stopLoss = cfg.StopLossPct
	}
	takeProfit := e.takeProfitPct
	if cfg.TakeProfitPct > 0 {
		takeProfit = cfg.TakeProfitPct
	}

	bars := make(map[string][]models.Candle, len(frame))
	symbols := make([]string, 0, len(frame))
	for symbol, cs := range frame {
		if len(cs) == 0 {
			continue
		}
		sorted := make([]models.Candle, len(cs))
		copy(sorted, cs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
		bars[symbol] = sorted
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	timeline := mergeTimeline(bars)

	ledger := NewLedger(models.ModeSimulation, cfg.InitialCapital, e.sched, 0, 0, nil)
	cursor := make(map[string]int, len(symbols))
	for _, s := range symbols {
		cursor[s] = -1
	}
	lastClose := make(map[string]float64, len(symbols))
	curve := make([]models.EquityPoint, 0, len(timeline))

	for _, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled: %w", err)
		}
		views := make([]models.MarketView, 0, len(symbols))
		for _, symbol := range symbols {
			cs := bars[symbol]
			i := cursor[symbol]
			for i+1 < len(cs) && !cs[i+1].Timestamp.After(ts) {
				i++
			}
			cursor[symbol] = i
			if i < 0 {
				continue
			}
			lastClose[symbol] = cs[i].Close
			views = append(views, e.buildView(ctx, ledger, symbol, cs[:i+1], ts))
		}
		if len(views) == 0 {
			continue
		}

		signals, err := strat.Analyze(ctx, views)
		if err != nil {
			e.metrics.RecordError("backtest")
			return nil, fmt.Errorf("strategy analysis at %s: %w", ts.Format(time.RFC3339), err)
		}
		for _, sig := range signals {
			e.applySignal(ledger, runID, cfg.Strategy, sig, lastClose)
		}
		e.scanRisk(ledger, runID, cfg.Strategy, lastClose, stopLoss, takeProfit)

		equity := ledger.Cash()
		for _, pos := range ledger.Positions() {
			price, ok := lastClose[pos.Symbol]
			if !ok {
				price = pos.AvgPrice
			}
			equity += pos.AvgPrice*pos.Amount + pos.UnrealizedPnL(price)
		}
		curve = append(curve, models.EquityPoint{Timestamp: ts, Equity: equity})
	}

	result := e.summarize(cfg, runID, ledger, curve, started)
	e.metrics.RecordLatency("backtest", time.Since(started).Seconds())
	return result, nil
}

func (e *BacktestEngine) buildView(ctx context.Context, ledger *Ledger, symbol string, history []models.Candle, ts time.Time) models.MarketView {
	window := history
	if len(window) > backtestWindow {
		window = window[len(window)-backtestWindow:]
	}
	bar := history[len(history)-1]
	view := models.MarketView{
		Snapshot: models.Snapshot{
			Ticker: models.Ticker{
				Symbol:    symbol,
				Price:     bar.Close,
				High24h:   bar.High,
				Low24h:    bar.Low,
				Volume24h: bar.Volume,
				Timestamp: ts,
			},
			UpdatedAt: ts,
		},
		Window:  window,
		Capital: ledger.Cash(),
	}
	set := indicators.Compute(symbol, window, ts)
	view.Snapshot.Indicators = &set
	if e.scorer != nil {
		if sig, err := e.scorer.Score(ctx, symbol, window); err == nil {
			view.Snapshot.ML = sig
		}
	}
	if pos, ok := ledger.Position(symbol); ok {
		view.Position = &pos
	}
	return view
}

// applySignal maps one strategy decision onto the ledger. Buys cover
// an open short first; sells close an open long, or open a short when
// nothing is held. Rejections are dropped exactly like the live path
// drops them.
func (e *BacktestEngine) applySignal(ledger *Ledger, runID, strategy string, sig models.Signal, lastClose map[string]float64) {
	price := sig.Price
	if price <= 0 {
		price = lastClose[sig.Symbol]
	}
	if price <= 0 {
		return
	}

	pos, held := ledger.Position(sig.Symbol)
	switch sig.Kind {
	case models.SignalBuy:
		if held && pos.Side == models.SideShort {
			e.close(ledger, runID, strategy, sig.Symbol, 0, price, sig, "short covered")
			return
		}
		quantity := sig.Quantity
		if quantity <= 0 {
			quantity = orderQuantity(ledger.Cash(), sig, price, e.maxPositionPct)
		}
		if quantity <= 0 {
			return
		}
		_, err := ledger.Open(OpenRequest{
			Symbol: sig.Symbol, Side: models.SideLong, Quantity: quantity, Price: price,
			StrategyID: runID, Strategy: strategy,
			Strength: sig.Strength, Confidence: sig.Confidence, Reason: sig.Reason,
		})
		if err != nil && e.log != nil {
			e.log.Debug("backtest buy dropped", logger.String("symbol", sig.Symbol), logger.Error(err))
		}
	case models.SignalSell:
		if held && pos.Side == models.SideLong {
			e.close(ledger, runID, strategy, sig.Symbol, sig.Quantity, price, sig, sig.Reason)
			return
		}
		if held {
			return // already short, don't pyramid
		}
		quantity := sig.Quantity
		if quantity <= 0 {
			quantity = orderQuantity(ledger.Cash(), sig, price, e.maxPositionPct)
		}
		if quantity <= 0 {
			return
		}
		_, err := ledger.Open(OpenRequest{
			Symbol: sig.Symbol, Side: models.SideShort, Quantity: quantity, Price: price,
			StrategyID: runID, Strategy: strategy,
			Strength: sig.Strength, Confidence: sig.Confidence, Reason: sig.Reason,
		})
		if err != nil && e.log != nil {
			e.log.Debug("backtest short dropped", logger.String("symbol", sig.Symbol), logger.Error(err))
		}
	case models.SignalClose:
		if held {
			e.close(ledger, runID, strategy, sig.Symbol, 0, price, sig, sig.Reason)
		}
	}
}

func (e *BacktestEngine) close(ledger *Ledger, runID, strategy, symbol string, quantity, price float64, sig models.Signal, reason string) {
	_, err := ledger.Close(CloseRequest{
		Symbol: symbol, Quantity: quantity, Price: price,
		StrategyID: runID, Strategy: strategy,
		Strength: sig.Strength, Confidence: sig.Confidence, Reason: reason,
	})
	if err != nil && e.log != nil {
		e.log.Debug("backtest close dropped", logger.String("symbol", symbol), logger.Error(err))
	}
}

// scanRisk closes any position whose return against the bar close
// breaches the fixed stop or take, through the same commission-aware
// exit path as strategy sells.
func (e *BacktestEngine) scanRisk(ledger *Ledger, runID, strategy string, lastClose map[string]float64, stopLoss, takeProfit float64) {
	for _, pos := range ledger.Positions() {
		price, ok := lastClose[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}
		basis := pos.AvgPrice * pos.Amount
		if basis <= 0 {
			continue
		}
		ret := pos.UnrealizedPnL(price) / basis

		var reason string
		switch {
		case ret <= -stopLoss:
			reason = "stop loss"
		case ret >= takeProfit:
			reason = "take profit"
		default:
			continue
		}
		_, err := ledger.Close(CloseRequest{
			Symbol: pos.Symbol, Price: price,
			StrategyID: runID, Strategy: strategy,
			Strength: 1, Confidence: 1, Reason: reason,
		})
		if err != nil && e.log != nil {
			e.log.Debug("backtest risk close failed", logger.String("symbol", pos.Symbol), logger.Error(err))
		}
	}
}

func (e *BacktestEngine) summarize(cfg models.BacktestConfig, runID string, ledger *Ledger, curve []models.EquityPoint, started time.Time) *models.BacktestResult {
	result := &models.BacktestResult{
		RunID:          runID,
		Status:         models.RunCompleted,
		Strategy:       cfg.Strategy,
		Symbols:        cfg.Symbols,
		From:           cfg.From,
		To:             cfg.To,
		StartedAt:      started,
		FinishedAt:     time.Now(),
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		EquityCurve:    curve,
		Trades:         ledger.Trades(0),
	}
	if len(curve) > 0 {
		result.FinalEquity = curve[len(curve)-1].Equity
	}
	result.TotalCommission = ledger.CommissionPaid()

	var wins, losses int
	var grossProfit, grossLoss float64
	for _, t := range result.Trades {
		if !t.IsExit() || t.Status != models.TradeFilled {
			continue
		}
		result.TotalTrades++
		if t.NetPnL > 0 {
			wins++
		} else if t.NetPnL < 0 {
			losses++
		}
		if t.GrossPnL > 0 {
			grossProfit += t.GrossPnL
		} else {
			grossLoss += t.GrossPnL
		}
	}
	result.WinningTrades = wins
	result.LosingTrades = losses
	if result.TotalTrades > 0 {
		result.WinRate = float64(wins) / float64(result.TotalTrades)
	}

	switch {
	case result.TotalTrades == 0:
		result.ProfitFactor = 0
	case grossLoss == 0:
		if grossProfit > 0 {
			result.ProfitFactor = math.Inf(1)
		}
	default:
		result.ProfitFactor = grossProfit / math.Abs(grossLoss)
	}
	if grossProfit > 0 {
		result.CommissionPct = result.TotalCommission / grossProfit * 100
	}

	totalReturn := 0.0
	if cfg.InitialCapital > 0 {
		totalReturn = (result.FinalEquity - cfg.InitialCapital) / cfg.InitialCapital
	}
	result.TotalReturnPct = totalReturn * 100

	if len(curve) > 1 {
		days := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / 24
		if days < 1 {
			days = 1
		}
		if 1+totalReturn > 0 {
			result.AnnualizedReturnPct = (math.Pow(1+totalReturn, 365.25/days) - 1) * 100
		} else {
			result.AnnualizedReturnPct = -100
		}

		returns := make([]float64, 0, len(curve)-1)
		for i := 1; i < len(curve); i++ {
			prev := curve[i-1].Equity
			if prev <= 0 {
				continue
			}
			returns = append(returns, curve[i].Equity/prev-1)
		}
		result.SharpeRatio = sharpe(returns)
		result.SortinoRatio = sortino(returns)
		result.MaxDrawdownPct = maxDrawdown(curve) * 100
	}
	return result
}

func mergeTimeline(bars map[string][]models.Candle) []time.Time {
	seen := make(map[int64]time.Time)
	for _, cs := range bars {
		for _, c := range cs {
			seen[c.Timestamp.UnixNano()] = c.Timestamp
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}

// sharpe annualizes mean/std of bar returns by sqrt(252); zero when
// the deviation is zero.
func sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// sortino is sharpe with the deviation taken over losing bars only;
// zero when there are none.
func sortino(returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	_, std := meanStd(downside)
	if std == 0 {
		return 0
	}
	mean, _ := meanStd(returns)
	return mean / std * math.Sqrt(252)
}

func maxDrawdown(curve []models.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
