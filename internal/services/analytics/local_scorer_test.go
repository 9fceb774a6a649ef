package analytics

import (
    "context"
    "testing"
    "time"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func windowFromCloses(closes []float64) []models.Candle {
    out := make([]models.Candle, len(closes))
    ts := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
    for i, c := range closes {
        out[i] = models.Candle{Symbol: "BTC", Timestamp: ts.Add(time.Duration(i) * time.Minute), Close: c, Volume: 1}
    }
    return out
}

// staircase builds an accelerating series of alternating up and down
// steps. The gain/loss ratio pins RSI mid-band so the trend and MACD
// experts decide the vote.
func staircase(n int, up, down float64) []float64 {
    closes := make([]float64, n)
    closes[0] = 10000
    for i := 1; i < n; i++ {
        f := 1 + 0.02*float64(i)
        if i%2 == 1 {
            closes[i] = closes[i-1] + up*f
        } else {
            closes[i] = closes[i-1] + down*f
        }
    }
    return closes
}

func TestLocalScorerShortWindowDefaults(t *testing.T) {
    s := NewLocalScorer()
    got, err := s.Score(context.Background(), "BTC", windowFromCloses(make([]float64, 10)))
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if got.Kind != models.SignalHold || got.Confidence != 0.5 || got.Strength != 0.5 {
        t.Fatalf("expected neutral default, got %+v", got)
    }
}

func TestLocalScorerAcceleratingRiseBuys(t *testing.T) {
    s := NewLocalScorer()
    got, err := s.Score(context.Background(), "BTC", windowFromCloses(staircase(160, 1.2, -0.6)))
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if got.Kind != models.SignalBuy {
        t.Fatalf("expected buy, got %+v", got)
    }
    if got.Confidence <= 0.5 || got.Strength <= 0 {
        t.Fatalf("expected conviction above neutral, got %+v", got)
    }
}

func TestLocalScorerAcceleratingFallSells(t *testing.T) {
    s := NewLocalScorer()
    got, err := s.Score(context.Background(), "BTC", windowFromCloses(staircase(160, 0.6, -1.2)))
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if got.Kind != models.SignalSell {
        t.Fatalf("expected sell, got %+v", got)
    }
    if got.Source != "local" {
        t.Fatalf("unexpected source %q", got.Source)
    }
}

func TestLocalScorerMonotonicRiseHoldsOnOverboughtVeto(t *testing.T) {
    closes := make([]float64, 150)
    for i := range closes {
        closes[i] = 100 + float64(i)
    }
    s := NewLocalScorer()
    got, err := s.Score(context.Background(), "BTC", windowFromCloses(closes))
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    // Trend and MACD vote up but a pegged RSI votes down, leaving one vote.
    if got.Kind != models.SignalHold {
        t.Fatalf("expected hold, got %+v", got)
    }
}
