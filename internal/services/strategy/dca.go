package strategy

import (
	"context"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	domsvc "github.com/kiheon-jang/autoTrade-sub000/internal/domain/service"
)

// dcaCapitalShare is the slice of free cash spent per symbol each cycle.
const dcaCapitalShare = 0.05

// DCA accumulates on a fixed schedule, spending a fixed share of free
// cash per symbol regardless of price or indicators.
type DCA struct{}

func NewDCA() *DCA { return &DCA{} }

func (s *DCA) Name() string            { return "dca" }
func (s *DCA) Interval() time.Duration { return DCAInterval }

func (s *DCA) Analyze(ctx context.Context, views []models.MarketView) ([]models.Signal, error) {
	now := time.Now()
	var out []models.Signal
	for _, v := range views {
		notional := v.Capital * dcaCapitalShare
		if notional <= 0 {
			continue
		}
		out = append(out, models.Signal{
			Strategy:      s.Name(),
			Symbol:        v.Snapshot.Ticker.Symbol,
			Kind:          models.SignalBuy,
			Price:         v.Snapshot.Ticker.Price,
			Confidence:    0.85,
			Strength:      0.5,
			FixedNotional: notional,
			Reason:        "scheduled accumulation",
			Timestamp:     now,
		})
	}
	return out, nil
}

var _ domsvc.Strategy = (*DCA)(nil)
