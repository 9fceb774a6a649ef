package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func TestSubmitQueuesAndRecordsPending(t *testing.T) {
	store := newFakeBacktestStore()
	q := &fakeJobQueue{}
	s := NewBacktestSubmitter(q, store, testLogger(t))

	id, err := s.Submit(context.Background(), replayConfig("BTC"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a run id")
	}
	types, payloads := q.published()
	if len(types) != 1 || types[0] != BacktestJobType {
		t.Fatalf("expected one %s message, got %v", BacktestJobType, types)
	}
	req, ok := payloads[0].(BacktestRequest)
	if !ok || req.JobID != id {
		t.Fatalf("expected payload carrying %s, got %#v", id, payloads[0])
	}
	res, err := s.Result(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.RunPending {
		t.Fatalf("expected pending, got %s", res.Status)
	}
}

func TestSubmitRejectsInvalidConfigs(t *testing.T) {
	store := newFakeBacktestStore()
	q := &fakeJobQueue{}
	s := NewBacktestSubmitter(q, store, testLogger(t))

	bad := []models.BacktestConfig{}
	cfg := replayConfig("BTC")
	cfg.InitialCapital = 0
	bad = append(bad, cfg)

	cfg = replayConfig()
	bad = append(bad, cfg) // no symbols

	cfg = replayConfig("BTC")
	cfg.To = cfg.From
	bad = append(bad, cfg)

	cfg = replayConfig("BTC")
	cfg.Strategy = "grid"
	bad = append(bad, cfg)

	for i, cfg := range bad {
		if _, err := s.Submit(context.Background(), cfg); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
	if types, _ := q.published(); len(types) != 0 {
		t.Fatalf("expected nothing queued, got %v", types)
	}
}

func TestSubmitFailsWhenQueueDown(t *testing.T) {
	store := newFakeBacktestStore()
	q := &fakeJobQueue{err: errors.New("redis down")}
	s := NewBacktestSubmitter(q, store, testLogger(t))

	if _, err := s.Submit(context.Background(), replayConfig("BTC")); err == nil {
		t.Fatalf("expected enqueue failure")
	}
}

func TestJobReplaysArchivedFrame(t *testing.T) {
	candles := newFakeCandleStore()
	candles.seed("BTC", priceBars("BTC", replayStart, time.Minute, 100, 101, 102, 101, 100))
	store := newFakeBacktestStore()
	job := NewBacktestJob(freeEngine(t), candles, store, testLogger(t))

	req := BacktestRequest{
		JobID: "job-1", Strategy: "momentum", Symbols: []string{"BTC"},
		InitialCapital: 10_000,
		From:           replayStart, To: replayStart.Add(time.Hour), Timeframe: "1m",
	}
	if err := job.Handle(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Error)
	}
	if res.RunID != "job-1" {
		t.Fatalf("expected the job id kept, got %s", res.RunID)
	}
	if len(res.EquityCurve) != 5 {
		t.Fatalf("expected one equity point per bar, got %d", len(res.EquityCurve))
	}
	got := store.statuses()
	if len(got) != 2 || got[0] != models.RunRunning || got[1] != models.RunCompleted {
		t.Fatalf("expected running then completed, got %v", got)
	}
}

func TestJobParsesQueueDeliveredPayload(t *testing.T) {
	candles := newFakeCandleStore()
	candles.seed("BTC", priceBars("BTC", replayStart, time.Minute, 100, 100))
	store := newFakeBacktestStore()
	job := NewBacktestJob(freeEngine(t), candles, store, testLogger(t))

	raw, err := json.Marshal(BacktestRequest{
		JobID: "job-2", Strategy: "dca", Symbols: []string{"BTC"},
		InitialCapital: 10_000,
		From:           replayStart, To: replayStart.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := job.Handle(context.Background(), json.RawMessage(raw)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := store.Get(context.Background(), "job-2")
	if err != nil || res.Status != models.RunCompleted {
		t.Fatalf("expected completed run, got %+v (%v)", res, err)
	}
}

func TestJobMarksUnknownStrategyFailed(t *testing.T) {
	store := newFakeBacktestStore()
	job := NewBacktestJob(freeEngine(t), newFakeCandleStore(), store, testLogger(t))

	req := BacktestRequest{
		JobID: "job-3", Strategy: "grid", Symbols: []string{"BTC"},
		InitialCapital: 10_000,
		From:           replayStart, To: replayStart.Add(time.Hour),
	}
	if err := job.Handle(context.Background(), req); err != nil {
		t.Fatalf("permanent failure must not requeue, got %v", err)
	}
	res, err := store.Get(context.Background(), "job-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.RunFailed || res.Error == "" {
		t.Fatalf("expected failed run with cause, got %+v", res)
	}
}

func TestJobRetriesWhenArchiveDown(t *testing.T) {
	candles := newFakeCandleStore()
	candles.err = errors.New("clickhouse down")
	store := newFakeBacktestStore()
	job := NewBacktestJob(freeEngine(t), candles, store, testLogger(t))

	req := BacktestRequest{
		JobID: "job-4", Strategy: "momentum", Symbols: []string{"BTC"},
		InitialCapital: 10_000,
		From:           replayStart, To: replayStart.Add(time.Hour),
	}
	if err := job.Handle(context.Background(), req); err == nil {
		t.Fatalf("expected transient error so the queue retries")
	}
	res, err := store.Get(context.Background(), "job-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != models.RunRunning {
		t.Fatalf("expected run left in running for retry, got %s", res.Status)
	}
}
