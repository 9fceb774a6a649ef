package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/cache"
)

const backtestRetention = 24 * time.Hour

// CachedBacktestStore keeps replay results in the cache tier so the
// API can poll them, expiring each record after the retention window.
type CachedBacktestStore struct {
	cache     cache.Service
	retention time.Duration
}

// NewBacktestStore creates a cache-backed result store. A retention
// of zero keeps results for a day.
func NewBacktestStore(c cache.Service, retention time.Duration) repository.BacktestStore {
	if retention <= 0 {
		retention = backtestRetention
	}
	return &CachedBacktestStore{cache: c, retention: retention}
}

func backtestKey(runID string) string {
	return cache.GenerateKey("backtest:result", runID)
}

// Put serializes the result as JSON. An infinite profit factor is
// capped to the largest float first, since JSON has no encoding for it.
func (s *CachedBacktestStore) Put(ctx context.Context, res *models.BacktestResult) error {
	record := *res
	if math.IsInf(record.ProfitFactor, 1) {
		record.ProfitFactor = math.MaxFloat64
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("marshal backtest result: %w", err)
	}
	if err := s.cache.Set(ctx, backtestKey(record.RunID), string(data), s.retention); err != nil {
		return fmt.Errorf("store backtest result: %w", err)
	}
	return nil
}

func (s *CachedBacktestStore) Get(ctx context.Context, runID string) (*models.BacktestResult, error) {
	var data string
	if err := s.cache.Get(ctx, backtestKey(runID), &data); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrRunNotFound
		}
		return nil, fmt.Errorf("load backtest result: %w", err)
	}
	var res models.BacktestResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decode backtest result: %w", err)
	}
	return &res, nil
}
