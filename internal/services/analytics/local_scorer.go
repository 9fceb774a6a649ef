package analytics

import (
    "context"
    "math"
    "time"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
    domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
    "github.com/kiheon-jang/autoTrade-sub000/internal/services/indicators"
)

// MinWindow is the number of bars the local scorer needs before it
// trusts its own output over the neutral default.
const MinWindow = 100

// LocalScorer blends three indicator experts into one directional
// signal: trend (SMA cross), momentum (RSI bands), and MACD histogram.
// Each expert votes -1, 0, or +1 and the votes decide the signal.
type LocalScorer struct{}

func NewLocalScorer() *LocalScorer { return &LocalScorer{} }

// DefaultSignal is the neutral output used when the window is too short.
func DefaultSignal(symbol string, at time.Time) *models.MLSignal {
    return &models.MLSignal{
        Symbol:     symbol,
        Kind:       models.SignalHold,
        Confidence: 0.5,
        Strength:   0.5,
        Source:     "local",
        Timestamp:  at,
    }
}

func (s *LocalScorer) Score(ctx context.Context, symbol string, window []models.Candle) (*models.MLSignal, error) {
    now := time.Now()
    if len(window) < MinWindow {
        return DefaultSignal(symbol, now), nil
    }

    closes := indicators.Closes(window)
    votes := 0

    sma5 := indicators.SMA(closes, 5)
    sma20 := indicators.SMA(closes, 20)
    if sma5 > sma20 {
        votes++
    } else if sma5 < sma20 {
        votes--
    }

    rsi := indicators.RSI(closes, 14)
    if rsi < 30 {
        votes++
    } else if rsi > 70 {
        votes--
    }

    _, _, hist := indicators.MACD(closes)
    if hist > 0 {
        votes++
    } else if hist < 0 {
        votes--
    }

    kind := models.SignalHold
    switch {
    case votes >= 2:
        kind = models.SignalBuy
    case votes <= -2:
        kind = models.SignalSell
    }

    magnitude := math.Abs(float64(votes))
    return &models.MLSignal{
        Symbol:     symbol,
        Kind:       kind,
        Confidence: 0.5 + magnitude/6,
        Strength:   magnitude / 3,
        Source:     "local",
        Timestamp:  now,
    }, nil
}

var _ domsvc.Scorer = (*LocalScorer)(nil)
