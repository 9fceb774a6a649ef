package indicators

import (
    "math"
    "testing"
    "time"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
    out := make([]models.Candle, len(closes))
    ts := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
    for i, c := range closes {
        out[i] = models.Candle{
            Symbol:    "BTC",
            Timestamp: ts.Add(time.Duration(i) * time.Minute),
            Open:      c,
            High:      c,
            Low:       c,
            Close:     c,
            Volume:    1,
        }
    }
    return out
}

func TestSMA(t *testing.T) {
    got := SMA([]float64{1, 2, 3, 4, 5}, 5)
    if got != 3 {
        t.Fatalf("unexpected sma %v", got)
    }
    if got := SMA([]float64{1, 2}, 5); got != 0 {
        t.Fatalf("expected zero on short series, got %v", got)
    }
}

func TestSMASeriesAlignment(t *testing.T) {
    got := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
    want := []float64{0, 0, 2, 3, 4}
    for i := range want {
        if got[i] != want[i] {
            t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
        }
    }
}

func TestEMASeriesSeedAndDecay(t *testing.T) {
    got := EMASeries([]float64{1, 2, 3, 4, 5}, 3)
    // Seed is the SMA of the first three values, then k = 0.5.
    want := []float64{0, 0, 2, 3, 4}
    for i := range want {
        if got[i] != want[i] {
            t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
        }
    }
}

func TestRSIAllGains(t *testing.T) {
    values := make([]float64, 20)
    for i := range values {
        values[i] = float64(i + 1)
    }
    if got := RSI(values, 14); got != 100 {
        t.Fatalf("expected 100, got %v", got)
    }
}

func TestRSIFlatSeries(t *testing.T) {
    values := make([]float64, 20)
    for i := range values {
        values[i] = 7
    }
    if got := RSI(values, 14); got != 50 {
        t.Fatalf("expected neutral 50, got %v", got)
    }
}

func TestRSIAlternatingNearNeutral(t *testing.T) {
    values := make([]float64, 40)
    for i := range values {
        if i%2 == 0 {
            values[i] = 100
        } else {
            values[i] = 101
        }
    }
    got := RSI(values, 14)
    if got < 40 || got > 60 {
        t.Fatalf("expected near neutral, got %v", got)
    }
}

func TestRSIShortSeries(t *testing.T) {
    if got := RSI([]float64{1, 2, 3}, 14); got != 0 {
        t.Fatalf("expected zero on short series, got %v", got)
    }
}

func TestMACDTrendingUp(t *testing.T) {
    values := make([]float64, 60)
    for i := range values {
        values[i] = 100 + float64(i)
    }
    macd, signal, hist := MACD(values)
    if macd <= 0 {
        t.Fatalf("expected positive macd, got %v", macd)
    }
    if math.Abs(hist-(macd-signal)) > 1e-9 {
        t.Fatalf("histogram mismatch: %v vs %v", hist, macd-signal)
    }
}

func TestMACDShortSeries(t *testing.T) {
    macd, signal, hist := MACD(make([]float64, 10))
    if macd != 0 || signal != 0 || hist != 0 {
        t.Fatalf("expected zeros, got %v %v %v", macd, signal, hist)
    }
}

func TestBollingerConstantSeries(t *testing.T) {
    values := make([]float64, 30)
    for i := range values {
        values[i] = 50
    }
    upper, middle, lower := Bollinger(values, 20, 2)
    if upper != 50 || middle != 50 || lower != 50 {
        t.Fatalf("expected flat bands, got %v %v %v", upper, middle, lower)
    }
}

func TestBollingerOrdering(t *testing.T) {
    values := make([]float64, 30)
    for i := range values {
        values[i] = 50 + float64(i%5)
    }
    upper, middle, lower := Bollinger(values, 20, 2)
    if !(lower < middle && middle < upper) {
        t.Fatalf("bands out of order: %v %v %v", lower, middle, upper)
    }
}

func TestComputeNotReadyOnShortWindow(t *testing.T) {
    set := Compute("BTC", candlesFromCloses(make([]float64, MinBars)), time.Now())
    if set.Ready {
        t.Fatalf("expected not ready")
    }
}

func TestComputeFullWindow(t *testing.T) {
    closes := make([]float64, 200)
    for i := range closes {
        closes[i] = 100 + math.Sin(float64(i)/10)*5
    }
    set := Compute("BTC", candlesFromCloses(closes), time.Now())
    if !set.Ready {
        t.Fatalf("expected ready")
    }
    if set.RSI <= 0 || set.RSI >= 100 {
        t.Fatalf("rsi out of range: %v", set.RSI)
    }
    if set.SMA5 == 0 || set.SMA20 == 0 {
        t.Fatalf("missing moving averages: %+v", set)
    }
    if set.BollUpper <= set.BollLower {
        t.Fatalf("bands out of order: %+v", set)
    }
}
