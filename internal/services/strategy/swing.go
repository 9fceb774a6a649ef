package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
)

// Swing rides moving-average crosses: long above the golden cross,
// flat after the dead cross.
type Swing struct{}

func NewSwing() *Swing { return &Swing{} }

func (s *Swing) Name() string            { return "swing" }
func (s *Swing) Interval() time.Duration { return DefaultInterval }

func (s *Swing) Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error) {
	now := time.Now()
	var out []models.Signal
	for _, v := range views {
		ind := v.Snapshot.Indicators
		if ind == nil || !ind.Ready {
			continue
		}
		switch {
		case ind.SMA5 > ind.SMA20 && v.Position == nil:
			out = append(out, models.Signal{
				Strategy:       s.Name(),
				Symbol:         v.Snapshot.Ticker.Symbol,
				Kind:           models.SignalBuy,
				Price:          v.Snapshot.Ticker.Price,
				Confidence:     0.7,
				Strength:       0.6,
				SizeMultiplier: 1,
				Reason:         fmt.Sprintf("golden cross sma5 %.0f over sma20 %.0f", ind.SMA5, ind.SMA20),
				Timestamp:      now,
			})
		case ind.SMA5 < ind.SMA20 && v.Position != nil:
			out = append(out, models.Signal{
				Strategy:   s.Name(),
				Symbol:     v.Snapshot.Ticker.Symbol,
				Kind:       models.SignalSell,
				Price:      v.Snapshot.Ticker.Price,
				Confidence: 0.7,
				Strength:   0.6,
				Reason:     fmt.Sprintf("dead cross sma5 %.0f under sma20 %.0f", ind.SMA5, ind.SMA20),
				Timestamp:  now,
			})
		}
	}
	return out, nil
}

var _ domsvc.Strategy = (*Swing)(nil)
