package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// Scalping trades RSI extremes: it buys half-sized into oversold dips
// and exits positions when the symbol turns overbought.
type Scalping struct{}

func NewScalping() *Scalping { return &Scalping{} }

func (s *Scalping) Name() string            { return "scalping" }
func (s *Scalping) Interval() time.Duration { return ScalpingInterval }

func (s *Scalping) Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error) {
	now := time.Now()
	var out []models.Signal
	for _, v := range views {
		ind := v.Snapshot.Indicators
		if ind == nil || !ind.Ready {
			continue
		}
		switch {
		case ind.RSI < rsiOversold && v.Position == nil:
			out = append(out, models.Signal{
				Strategy:       s.Name(),
				Symbol:         v.Snapshot.Ticker.Symbol,
				Kind:           models.SignalBuy,
				Price:          v.Snapshot.Ticker.Price,
				Confidence:     0.6,
				Strength:       0.3,
				SizeMultiplier: 0.5,
				Reason:         fmt.Sprintf("rsi %.1f oversold", ind.RSI),
				Timestamp:      now,
			})
		case ind.RSI > rsiOverbought && v.Position != nil:
			out = append(out, models.Signal{
				Strategy:   s.Name(),
				Symbol:     v.Snapshot.Ticker.Symbol,
				Kind:       models.SignalSell,
				Price:      v.Snapshot.Ticker.Price,
				Confidence: 0.6,
				Strength:   0.3,
				Reason:     fmt.Sprintf("rsi %.1f overbought", ind.RSI),
				Timestamp:  now,
			})
		}
	}
	return out, nil
}

var _ domsvc.Strategy = (*Scalping)(nil)
