package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func TestRecentServesCacheWindow(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())
	gw.candles["C10"] = flatCandles("C10", 60, 1000)
	c.RecomputeIndicators(context.Background(), false)

	uc := NewCandlesUseCase(c, newFakeCandleStore())
	res, err := uc.Recent(context.Background(), "C10", 20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if res.Source != "cache" || res.Count != 20 || len(res.Candles) != 20 {
		t.Fatalf("expected 20 cached bars, got %+v", res)
	}
	// Tail of the window, oldest first.
	if !res.Candles[0].Timestamp.Before(res.Candles[19].Timestamp) {
		t.Fatalf("bars out of order")
	}

	// Asking for more than the window holds returns the whole window.
	res, err = uc.Recent(context.Background(), "C10", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if res.Count != 60 {
		t.Fatalf("expected full window, got %d", res.Count)
	}
}

func TestRecentFallsBackToArchive(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())
	archive := newFakeCandleStore()
	archive.seed("OLD", flatCandles("OLD", 30, 500))

	uc := NewCandlesUseCase(c, archive)
	res, err := uc.Recent(context.Background(), "OLD", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if res.Source != "archive" || res.Count != 10 {
		t.Fatalf("expected 10 archived bars, got %+v", res)
	}
}

func TestRecentWithoutAnySource(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())

	// No archive attached.
	uc := NewCandlesUseCase(c, nil)
	if _, err := uc.Recent(context.Background(), "C10", 10); !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}

	// Archive attached but empty for the symbol.
	uc = NewCandlesUseCase(c, newFakeCandleStore())
	if _, err := uc.Recent(context.Background(), "C10", 10); !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}

	if _, err := uc.Recent(context.Background(), "", 10); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}

func TestRecentArchiveFailure(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())
	archive := newFakeCandleStore()
	archive.err = errors.New("clickhouse down")

	uc := NewCandlesUseCase(c, archive)
	if _, err := uc.Recent(context.Background(), "C10", 10); err == nil {
		t.Fatalf("expected archive failure to surface")
	}
}
