package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func fillBytes(t *testing.T, id, symbol, side string, price float64) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"strategy_id": "run-1",
		"strategy":    "momentum",
		"symbol":      symbol,
		"side":        side,
		"price":       price,
		"amount":      0.5,
		"commission":  12.5,
		"mode":        "simulation",
		"status":      "filled",
		"executed_at": time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal fill: %v", err)
	}
	return b
}

func TestJournalFlushesWhenBatchFills(t *testing.T) {
	store := &fakeTradeStore{}
	j := NewTradeJournal("trading.fills", store, noopMetrics{}, testLogger(t),
		WithJournalBatch(3, time.Hour))

	for i := 0; i < 3; i++ {
		msg := fillBytes(t, fmt.Sprintf("fill-%d", i), "BTC", "BUY", 50_000_000)
		if err := j.Handle(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.count() != 3 || store.batchCount() != 1 {
		t.Fatalf("expected one batch of three, got %d fills in %d batches", store.count(), store.batchCount())
	}
	if store.count() > 0 {
		got := store.stored[0]
		if got.Symbol != "BTC" || got.Side != models.SignalBuy || got.Commission != 12.5 {
			t.Fatalf("fill fields lost in transit: %+v", got)
		}
	}
}

func TestJournalIdleFlushOnTimer(t *testing.T) {
	store := &fakeTradeStore{}
	j := NewTradeJournal("trading.fills", store, noopMetrics{}, testLogger(t),
		WithJournalBatch(100, 20*time.Millisecond))
	j.Start(context.Background())
	defer j.Stop()

	if err := j.Handle(context.Background(), fillBytes(t, "fill-1", "ETH", "SELL", 4_000_000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "idle flush", func() bool { return store.count() == 1 })
}

func TestJournalRequeuesFailedFlush(t *testing.T) {
	store := &fakeTradeStore{}
	store.setErr(errors.New("clickhouse down"))
	metrics := newCountingMetrics()
	j := NewTradeJournal("trading.fills", store, metrics, testLogger(t),
		WithJournalBatch(2, time.Hour))

	if err := j.Handle(context.Background(), fillBytes(t, "fill-1", "BTC", "BUY", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := j.Handle(context.Background(), fillBytes(t, "fill-2", "BTC", "BUY", 101))
	if err == nil {
		t.Fatalf("expected flush failure to surface")
	}

	store.setErr(nil)
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.count() != 2 {
		t.Fatalf("expected requeued fills stored, got %d", store.count())
	}
}

func TestJournalRejectsMalformedFill(t *testing.T) {
	store := &fakeTradeStore{}
	j := NewTradeJournal("trading.fills", store, noopMetrics{}, testLogger(t))

	if err := j.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	bad, _ := json.Marshal(map[string]interface{}{"symbol": "BTC", "side": "LONG"})
	if err := j.Handle(context.Background(), bad); err == nil {
		t.Fatalf("expected unknown side rejected")
	}
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("expected nothing stored, got %d", store.count())
	}
}

func TestJournalStopDrainsBuffer(t *testing.T) {
	store := &fakeTradeStore{}
	j := NewTradeJournal("trading.fills", store, noopMetrics{}, testLogger(t),
		WithJournalBatch(100, time.Hour))
	j.Start(context.Background())

	if err := j.Handle(context.Background(), fillBytes(t, "fill-1", "XRP", "BUY", 800)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j.Stop()
	if store.count() != 1 {
		t.Fatalf("expected stop to drain the buffer, got %d", store.count())
	}
}

func TestJournalDropsOldestWhenSaturated(t *testing.T) {
	store := &fakeTradeStore{}
	store.setErr(errors.New("clickhouse down"))
	metrics := newCountingMetrics()
	j := NewTradeJournal("trading.fills", store, metrics, testLogger(t),
		WithJournalBatch(1, time.Hour)) // cap = 16

	for i := 0; i < 20; i++ {
		_ = j.Handle(context.Background(), fillBytes(t, fmt.Sprintf("fill-%d", i), "BTC", "BUY", 100))
	}
	store.setErr(nil)
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.count() != 16 {
		t.Fatalf("expected the capped 16 fills stored, got %d", store.count())
	}
	metrics.mu.Lock()
	drops := metrics.errors["journal_drop"]
	metrics.mu.Unlock()
	if drops == 0 {
		t.Fatalf("expected drop errors recorded")
	}
}
