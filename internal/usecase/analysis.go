package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
	"github.com/kiheon-jang/autoTrade-sub000/internal/services/features"
)

// AnalysisUseCase assembles the full per-symbol view: the cached
// market state and window statistics, joined with a live depth
// snapshot and the symbol's recent fills. The external sources are
// gathered concurrently; a failing source degrades to an entry in the
// Errors map instead of failing the whole view.
type AnalysisUseCase struct {
	cache   *MarketCache
	gateway domsvc.MarketGateway
	trades  drepo.TradeStore
	timeout time.Duration
	fills   int
}

// NewAnalysisUseCase builds the per-symbol analysis reader. trades may
// be nil when no durable journal is configured.
func NewAnalysisUseCase(cache *MarketCache, gateway domsvc.MarketGateway, trades drepo.TradeStore) *AnalysisUseCase {
	return &AnalysisUseCase{
		cache:   cache,
		gateway: gateway,
		trades:  trades,
		timeout: 10 * time.Second,
		fills:   20,
	}
}

// DepthSummary condenses an orderbook snapshot to its top of book.
type DepthSummary struct {
	BestBid   float64
	BestAsk   float64
	SpreadPct float64
	BidVolume float64 // units across returned bid levels
	AskVolume float64 // units across returned ask levels
	Timestamp time.Time
}

// WindowStats are derived from the cached 1m candle window.
type WindowStats struct {
	Bars           int
	ChangePct      float64
	RealizedVol    float64 // annualized
	MaxDrawdownPct float64
}

type SymbolAnalysis struct {
	Symbol      string
	Tier        models.Tier
	Ticker      models.Ticker
	Indicators  *models.IndicatorSet
	ML          *models.MLSignal
	Window      WindowStats
	Depth       *DepthSummary
	RecentFills []models.Trade
	Errors      map[string]string
	Timestamp   time.Time
}

// Analyze returns the combined view for one tracked symbol. An
// untracked symbol fails with models.ErrDataUnavailable.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, symbol string) (*SymbolAnalysis, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	snap, ok := uc.cache.Snapshot(symbol)
	if !ok {
		return nil, fmt.Errorf("analysis for %s: %w", symbol, models.ErrDataUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &SymbolAnalysis{
		Symbol:     symbol,
		Tier:       snap.Tier,
		Ticker:     snap.Ticker,
		Indicators: snap.Indicators,
		ML:         snap.ML,
		Timestamp:  time.Now(),
		Errors:     map[string]string{},
	}

	window := uc.cache.Window(symbol)
	rets := features.LogReturns(window)
	res.Window = WindowStats{
		Bars:           len(window),
		ChangePct:      features.WindowChangePct(window),
		RealizedVol:    features.RealizedVolatility(rets, minInt(60, len(rets)), features.BarsPerYear(drepo.TF1m)),
		MaxDrawdownPct: features.MaxDrawdown(window) * 100,
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		book, err := uc.gateway.GetOrderbook(ctx, symbol)
		ch <- item{"depth", book, err}
	}()
	if uc.trades != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			fills, err := uc.trades.Query(ctx, symbol, now.Add(-24*time.Hour), now, uc.fills)
			ch <- item{"fills", fills, err}
		}()
	}

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch it.name {
		case "depth":
			if book, ok := it.val.(*models.Orderbook); ok && book != nil {
				res.Depth = summarizeDepth(book)
			}
		case "fills":
			if fills, ok := it.val.([]*models.Trade); ok {
				out := make([]models.Trade, 0, len(fills))
				for _, f := range fills {
					if f != nil {
						out = append(out, *f)
					}
				}
				res.RecentFills = out
			}
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

func summarizeDepth(book *models.Orderbook) *DepthSummary {
	d := &DepthSummary{Timestamp: book.Timestamp}
	if len(book.Bids) > 0 {
		d.BestBid = book.Bids[0].Price
	}
	if len(book.Asks) > 0 {
		d.BestAsk = book.Asks[0].Price
	}
	for _, lvl := range book.Bids {
		d.BidVolume += lvl.Quantity
	}
	for _, lvl := range book.Asks {
		d.AskVolume += lvl.Quantity
	}
	if d.BestBid > 0 && d.BestAsk > 0 {
		mid := (d.BestBid + d.BestAsk) / 2
		d.SpreadPct = (d.BestAsk - d.BestBid) / mid * 100
	}
	return d
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
