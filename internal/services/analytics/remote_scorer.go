package analytics

import (
    "context"
    "fmt"
    "time"

    "github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
    domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
    "github.com/kiheon-jang/autoTrade-sub000/pkg/config"
)

// HTTPScorer asks an external model service to score a candle window.
type HTTPScorer struct{ base *HTTPServiceBase }

func NewHTTPScorer(cfg *config.Config) *HTTPScorer { return &HTTPScorer{base: NewHTTPServiceBase(cfg)} }

type scoreRequest struct {
    Symbol  string    `json:"symbol"`
    Closes  []float64 `json:"closes"`
    Volumes []float64 `json:"volumes"`
}

type scoreResponse struct {
    Signal     string  `json:"signal"`
    Confidence float64 `json:"confidence"`
    Strength   float64 `json:"strength"`
}

func (s *HTTPScorer) Score(ctx context.Context, symbol string, window []models.Candle) (*models.MLSignal, error) {
    req := scoreRequest{Symbol: symbol}
    req.Closes = make([]float64, len(window))
    req.Volumes = make([]float64, len(window))
    for i, c := range window {
        req.Closes[i] = c.Close
        req.Volumes[i] = c.Volume
    }

    var resp scoreResponse
    if err := s.base.PostJSONWithRetry(ctx, "/signal/score", req, &resp, 3); err != nil {
        return nil, fmt.Errorf("post score: %w", err)
    }
    kind, err := models.ParseSignalKind(resp.Signal)
    if err != nil {
        return nil, fmt.Errorf("parse score: %w", err)
    }
    return &models.MLSignal{
        Symbol:     symbol,
        Kind:       kind,
        Confidence: resp.Confidence,
        Strength:   resp.Strength,
        Source:     "remote",
        Timestamp:  time.Now(),
    }, nil
}

var _ domsvc.Scorer = (*HTTPScorer)(nil)
