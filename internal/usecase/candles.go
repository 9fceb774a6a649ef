package usecase

import (
	"context"
	"fmt"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
)

// CandlesUseCase serves recent bars for one symbol. Tracked symbols are
// answered from the market cache's live window; untracked ones fall
// back to the candle archive when one is attached.
type CandlesUseCase struct {
	cache   *MarketCache
	archive drepo.CandleStore
}

func NewCandlesUseCase(cache *MarketCache, archive drepo.CandleStore) *CandlesUseCase {
	return &CandlesUseCase{cache: cache, archive: archive}
}

type RecentCandlesResult struct {
	Symbol    string
	Timeframe string
	Source    string // "cache" | "archive"
	Count     int
	Candles   []models.Candle
}

// Recent returns up to n of the latest 1m bars, oldest first.
func (uc *CandlesUseCase) Recent(ctx context.Context, symbol string, n int) (*RecentCandlesResult, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if n <= 0 {
		n = 200
	}

	if window := uc.cache.Window(symbol); len(window) > 0 {
		if len(window) > n {
			window = window[len(window)-n:]
		}
		return &RecentCandlesResult{
			Symbol:    symbol,
			Timeframe: string(drepo.TF1m),
			Source:    "cache",
			Count:     len(window),
			Candles:   window,
		}, nil
	}

	if uc.archive == nil {
		return nil, fmt.Errorf("candles for %s: %w", symbol, models.ErrDataUnavailable)
	}
	candles, err := uc.archive.GetLatestNCandles(ctx, symbol, n, drepo.TF1m)
	if err != nil {
		return nil, fmt.Errorf("archived candles for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("candles for %s: %w", symbol, models.ErrDataUnavailable)
	}
	return &RecentCandlesResult{
		Symbol:    symbol,
		Timeframe: string(drepo.TF1m),
		Source:    "archive",
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
