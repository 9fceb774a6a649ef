package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
)

// momentumConfidenceFloor gates entries on model conviction.
const momentumConfidenceFloor = 0.7

// Momentum follows the model signal: it buys fresh high-confidence BUY
// calls and exits open positions when the model turns to SELL.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (s *Momentum) Name() string            { return "momentum" }
func (s *Momentum) Interval() time.Duration { return DefaultInterval }

func (s *Momentum) Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error) {
	now := time.Now()
	var out []models.Signal
	for _, v := range views {
		ml := v.Snapshot.ML
		if ml == nil {
			continue
		}
		switch {
		case ml.Kind == models.SignalBuy && ml.Confidence > momentumConfidenceFloor && v.Position == nil:
			out = append(out, models.Signal{
				Strategy:       s.Name(),
				Symbol:         v.Snapshot.Ticker.Symbol,
				Kind:           models.SignalBuy,
				Price:          v.Snapshot.Ticker.Price,
				Confidence:     ml.Confidence,
				Strength:       ml.Strength,
				SizeMultiplier: 1,
				Reason:         fmt.Sprintf("model buy %.0f%%", ml.Confidence*100),
				Timestamp:      now,
			})
		case ml.Kind == models.SignalSell && v.Position != nil:
			out = append(out, models.Signal{
				Strategy:   s.Name(),
				Symbol:     v.Snapshot.Ticker.Symbol,
				Kind:       models.SignalSell,
				Price:      v.Snapshot.Ticker.Price,
				Confidence: ml.Confidence,
				Strength:   ml.Strength,
				Reason:     fmt.Sprintf("model sell %.0f%%", ml.Confidence*100),
				Timestamp:  now,
			})
		}
	}
	return out, nil
}

var _ domsvc.Strategy = (*Momentum)(nil)
