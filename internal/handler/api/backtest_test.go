package api

import (
	"net/http"
	"testing"
	"time"
)

func TestSubmitBacktestQueuesRun(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now().UTC()
	var sub SubmittedView
	env.do(t, http.MethodPost, "/api/backtests", map[string]interface{}{
		"strategy": "momentum",
		"symbols":  []string{"btc"},
		"from":     now.Add(-2 * time.Hour).Format(time.RFC3339),
		"to":       now.Format(time.RFC3339),
	}).expect(t, http.StatusCreated).into(t, &sub)
	if sub.RunID == "" || sub.Status != "pending" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if env.queue.count() != 1 {
		t.Fatalf("expected 1 queued job, got %d", env.queue.count())
	}

	var res BacktestView
	env.do(t, http.MethodGet, "/api/backtests/"+sub.RunID, nil).
		expect(t, http.StatusOK).into(t, &res)
	if res.Status != "pending" || res.Strategy != "momentum" {
		t.Fatalf("unexpected pending record: %+v", res)
	}
	// Capital was omitted, so the deployment's starting capital applies.
	if res.InitialCapital != 1_000_000 {
		t.Fatalf("expected defaulted capital, got %v", res.InitialCapital)
	}
	if len(res.Symbols) != 1 || res.Symbols[0] != "BTC" {
		t.Fatalf("expected canonical symbols, got %v", res.Symbols)
	}
}

func TestSubmitBacktestValidation(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	// Unparseable window bound.
	env.do(t, http.MethodPost, "/api/backtests", map[string]interface{}{
		"strategy": "momentum",
		"symbols":  []string{"BTC"},
		"from":     "not-a-time",
		"to":       now.Format(time.RFC3339),
	}).expect(t, http.StatusBadRequest)

	// Inverted window.
	env.do(t, http.MethodPost, "/api/backtests", map[string]interface{}{
		"strategy": "momentum",
		"symbols":  []string{"BTC"},
		"from":     now.Format(time.RFC3339),
		"to":       now.Add(-time.Hour).Format(time.RFC3339),
	}).expect(t, http.StatusBadRequest)

	// Unknown strategy never reaches the submitter.
	env.do(t, http.MethodPost, "/api/backtests", map[string]interface{}{
		"strategy": "martingale",
		"symbols":  []string{"BTC"},
		"from":     now.Add(-time.Hour).Format(time.RFC3339),
		"to":       now.Format(time.RFC3339),
	}).expect(t, http.StatusBadRequest)

	if env.queue.count() != 0 {
		t.Fatalf("invalid submissions must not enqueue, got %d", env.queue.count())
	}
}

func TestBacktestResultUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/backtests/no-such-run", nil).
		expect(t, http.StatusNotFound)
}

func TestRunBacktestInline(t *testing.T) {
	env := newTestEnv(t)
	env.archive.seed("BTC", flatCandles("BTC", 90, 50_000_000))

	now := time.Now().UTC()
	var res BacktestView
	env.do(t, http.MethodPost, "/api/backtests/run", map[string]interface{}{
		"strategy": "momentum",
		"symbols":  []string{"BTC"},
		"from":     now.Add(-2 * time.Hour).Format(time.RFC3339),
		"to":       now.Format(time.RFC3339),
	}).expect(t, http.StatusOK).into(t, &res)

	if res.Status != "completed" {
		t.Fatalf("expected completed run, got %+v", res)
	}
	// Flat prices give momentum nothing to act on.
	if res.TotalTrades != 0 || res.FinalEquity != 1_000_000 {
		t.Fatalf("expected an idle replay, got %+v", res)
	}
	if res.RunID == "" {
		t.Fatalf("expected a run id for later polling")
	}

	// The inline result is stored and stays pollable.
	var polled BacktestView
	env.do(t, http.MethodGet, "/api/backtests/"+res.RunID, nil).
		expect(t, http.StatusOK).into(t, &polled)
	if polled.Status != "completed" {
		t.Fatalf("expected stored result, got %+v", polled)
	}
}

func TestBacktestsWithoutQueueBackend(t *testing.T) {
	env := newTestEnv(t)
	env.h.submit = nil

	now := time.Now().UTC()
	body := map[string]interface{}{
		"strategy": "momentum",
		"symbols":  []string{"BTC"},
		"from":     now.Add(-time.Hour).Format(time.RFC3339),
		"to":       now.Format(time.RFC3339),
	}
	env.do(t, http.MethodPost, "/api/backtests", body).
		expect(t, http.StatusServiceUnavailable)
	env.do(t, http.MethodGet, "/api/backtests/any", nil).
		expect(t, http.StatusServiceUnavailable)

	// The inline path keeps working without a queue.
	env.archive.seed("BTC", flatCandles("BTC", 30, 50_000_000))
	env.do(t, http.MethodPost, "/api/backtests/run", body).
		expect(t, http.StatusOK)
}
