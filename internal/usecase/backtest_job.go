package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	drepo "github.com/kiheon-jang/autoTrade-sub000/internal/domain/repository"
	"github.com/kiheon-jang/autoTrade-sub000/internal/services/strategy"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/queue"
)

// BacktestJobType is the queue message type for replay requests.
const BacktestJobType = "backtest.run"

// BacktestRequest is the queued payload describing one replay.
type BacktestRequest struct {
	JobID          string    `json:"job_id"`
	Strategy       string    `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	InitialCapital float64   `json:"initial_capital"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Timeframe      string    `json:"timeframe"`
	StopLossPct    float64   `json:"stop_loss_pct"`
	TakeProfitPct  float64   `json:"take_profit_pct"`
}

// Config converts the queued payload back to a replay config.
func (r BacktestRequest) Config() models.BacktestConfig {
	return models.BacktestConfig{
		Strategy:       r.Strategy,
		Symbols:        r.Symbols,
		InitialCapital: r.InitialCapital,
		From:           r.From,
		To:             r.To,
		Timeframe:      r.Timeframe,
		StopLossPct:    r.StopLossPct,
		TakeProfitPct:  r.TakeProfitPct,
	}
}

// BacktestSubmitter validates replay requests, records them as pending
// and hands them to the queue. Results are polled from the store.
type BacktestSubmitter struct {
	queue queue.QueueService
	store drepo.BacktestStore
	log   *logger.Logger
}

func NewBacktestSubmitter(q queue.QueueService, store drepo.BacktestStore, log *logger.Logger) *BacktestSubmitter {
	return &BacktestSubmitter{queue: q, store: store, log: log}
}

// Submit enqueues a replay and returns its run ID.
func (s *BacktestSubmitter) Submit(ctx context.Context, cfg models.BacktestConfig) (string, error) {
	if cfg.InitialCapital <= 0 {
		return "", fmt.Errorf("backtest: non-positive initial capital")
	}
	if len(cfg.Symbols) == 0 {
		return "", fmt.Errorf("backtest: no symbols")
	}
	if !cfg.To.After(cfg.From) {
		return "", fmt.Errorf("backtest: empty time window")
	}
	if _, err := strategy.New(cfg.Strategy); err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	pending := &models.BacktestResult{
		RunID:          jobID,
		Status:         models.RunPending,
		Strategy:       cfg.Strategy,
		Symbols:        cfg.Symbols,
		From:           cfg.From,
		To:             cfg.To,
		InitialCapital: cfg.InitialCapital,
	}
	if err := s.store.Put(ctx, pending); err != nil {
		return "", fmt.Errorf("record pending run: %w", err)
	}

	req := BacktestRequest{
		JobID:          jobID,
		Strategy:       cfg.Strategy,
		Symbols:        cfg.Symbols,
		InitialCapital: cfg.InitialCapital,
		From:           cfg.From,
		To:             cfg.To,
		Timeframe:      cfg.Timeframe,
		StopLossPct:    cfg.StopLossPct,
		TakeProfitPct:  cfg.TakeProfitPct,
	}
	if err := s.queue.PublishMessage(ctx, BacktestJobType, req); err != nil {
		return "", fmt.Errorf("enqueue backtest: %w", err)
	}
	s.log.Info("backtest queued",
		logger.String("run_id", jobID),
		logger.String("strategy", cfg.Strategy),
		logger.Strings("symbols", cfg.Symbols))
	return jobID, nil
}

// Result returns the stored state of a run; models.ErrRunNotFound when
// the ID is unknown or the record has expired.
func (s *BacktestSubmitter) Result(ctx context.Context, runID string) (*models.BacktestResult, error) {
	return s.store.Get(ctx, runID)
}

// BacktestJob consumes queued replay requests. It loads the frame from
// the candle archive, runs the engine and stores the outcome.
type BacktestJob struct {
	engine  *BacktestEngine
	candles drepo.CandleStore
	store   drepo.BacktestStore
	log     *logger.Logger
}

func NewBacktestJob(engine *BacktestEngine, candles drepo.CandleStore, store drepo.BacktestStore, log *logger.Logger) *BacktestJob {
	return &BacktestJob{engine: engine, candles: candles, store: store, log: log}
}

func (j *BacktestJob) Name() string { return "backtest-runner" }
func (j *BacktestJob) Type() string { return BacktestJobType }

// Handle runs one replay. Permanent failures are recorded against the
// run and absorbed; transient ones are returned so the queue retries.
func (j *BacktestJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[BacktestRequest](payload)
	if err != nil {
		return fmt.Errorf("parse backtest payload: %w", err)
	}
	cfg := req.Config()

	running := &models.BacktestResult{
		RunID:          req.JobID,
		Status:         models.RunRunning,
		Strategy:       cfg.Strategy,
		Symbols:        cfg.Symbols,
		From:           cfg.From,
		To:             cfg.To,
		StartedAt:      time.Now(),
		InitialCapital: cfg.InitialCapital,
	}
	if err := j.store.Put(ctx, running); err != nil {
		j.log.Warn("backtest status update failed", logger.String("run_id", req.JobID), logger.Error(err))
	}

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		j.fail(ctx, req, err)
		return nil
	}
	frame, err := j.loadFrame(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load frame for %s: %w", req.JobID, err)
	}

	res, err := j.engine.Run(ctx, cfg, strat, frame)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		j.fail(ctx, req, err)
		return nil
	}
	res.RunID = req.JobID
	if err := j.store.Put(ctx, res); err != nil {
		return fmt.Errorf("store result for %s: %w", req.JobID, err)
	}
	j.log.Info("backtest finished",
		logger.String("run_id", req.JobID),
		logger.String("strategy", cfg.Strategy),
		logger.Int("trades", res.TotalTrades),
		logger.Float64("final_equity", res.FinalEquity))
	return nil
}

// RunSync executes one replay inline, bypassing the queue. The result
// is stored under a fresh run ID so it stays pollable afterwards.
func (j *BacktestJob) RunSync(ctx context.Context, cfg models.BacktestConfig) (*models.BacktestResult, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: non-positive initial capital")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("backtest: no symbols")
	}
	if !cfg.To.After(cfg.From) {
		return nil, fmt.Errorf("backtest: empty time window")
	}
	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	frame, err := j.loadFrame(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := j.engine.Run(ctx, cfg, strat, frame)
	if err != nil {
		return nil, err
	}
	res.RunID = uuid.New().String()
	if err := j.store.Put(ctx, res); err != nil {
		j.log.Warn("sync backtest result not stored", logger.String("run_id", res.RunID), logger.Error(err))
	}
	return res, nil
}

func (j *BacktestJob) fail(ctx context.Context, req *BacktestRequest, cause error) {
	res := &models.BacktestResult{
		RunID:          req.JobID,
		Status:         models.RunFailed,
		Strategy:       req.Strategy,
		Symbols:        req.Symbols,
		From:           req.From,
		To:             req.To,
		FinishedAt:     time.Now(),
		InitialCapital: req.InitialCapital,
		Error:          cause.Error(),
	}
	if err := j.store.Put(ctx, res); err != nil {
		j.log.Error("backtest failure not recorded", logger.String("run_id", req.JobID), logger.Error(err))
	}
	j.log.Error("backtest failed",
		logger.String("run_id", req.JobID),
		logger.String("strategy", req.Strategy),
		logger.Error(cause))
}

func (j *BacktestJob) loadFrame(ctx context.Context, cfg models.BacktestConfig) (map[string][]models.Candle, error) {
	tf := drepo.Timeframe(cfg.Timeframe)
	if cfg.Timeframe == "" {
		tf = drepo.TF1m
	}
	frame := make(map[string][]models.Candle, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		cs, err := j.candles.GetCandles(ctx, symbol, cfg.From, cfg.To, tf)
		if err != nil {
			return nil, fmt.Errorf("candles for %s: %w", symbol, err)
		}
		if len(cs) == 0 {
			j.log.Warn("no archived bars", logger.String("symbol", symbol), logger.String("timeframe", string(tf)))
			continue
		}
		frame[symbol] = cs
	}
	return frame, nil
}
