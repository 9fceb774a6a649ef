package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func view(symbol string, price float64) models.MarketView {
	return models.MarketView{
		Snapshot: models.Snapshot{
			Ticker:    models.Ticker{Symbol: symbol, Price: price, Timestamp: time.Now()},
			UpdatedAt: time.Now(),
		},
		Capital: 1_000_000,
	}
}

func withML(v models.MarketView, kind models.SignalKind, confidence float64) models.MarketView {
	v.Snapshot.ML = &models.MLSignal{Symbol: v.Snapshot.Ticker.Symbol, Kind: kind, Confidence: confidence, Strength: 0.5}
	return v
}

func withRSI(v models.MarketView, rsi float64) models.MarketView {
	v.Snapshot.Indicators = &models.IndicatorSet{Symbol: v.Snapshot.Ticker.Symbol, RSI: rsi, Ready: true}
	return v
}

func withSMAs(v models.MarketView, sma5, sma20 float64) models.MarketView {
	v.Snapshot.Indicators = &models.IndicatorSet{Symbol: v.Snapshot.Ticker.Symbol, SMA5: sma5, SMA20: sma20, Ready: true}
	return v
}

func withPosition(v models.MarketView) models.MarketView {
	v.Position = &models.Position{Symbol: v.Snapshot.Ticker.Symbol, Side: models.SideLong, Amount: 0.01, AvgPrice: v.Snapshot.Ticker.Price}
	return v
}

func TestNewByName(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name)
		if err != nil {
			t.Fatalf("new %s: %v", name, err)
		}
		if s.Name() != name {
			t.Fatalf("expected %s, got %s", name, s.Name())
		}
	}
	if _, err := New("grid"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestIntervals(t *testing.T) {
	scalping := NewScalping()
	if scalping.Interval() != 10*time.Second {
		t.Fatalf("unexpected scalping interval %v", scalping.Interval())
	}
	momentum := NewMomentum()
	if momentum.Interval() != time.Minute {
		t.Fatalf("unexpected momentum interval %v", momentum.Interval())
	}
	dca := NewDCA()
	if dca.Interval() != time.Hour {
		t.Fatalf("unexpected dca interval %v", dca.Interval())
	}
}

func TestMomentumBuysHighConfidence(t *testing.T) {
	s := NewMomentum()
	views := []models.MarketView{withML(view("BTC", 50_000_000), models.SignalBuy, 0.8)}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalBuy {
		t.Fatalf("expected one buy, got %+v", got)
	}
	if got[0].SizeMultiplier != 1 || got[0].Confidence != 0.8 {
		t.Fatalf("unexpected sizing: %+v", got[0])
	}
}

func TestMomentumIgnoresLowConfidence(t *testing.T) {
	s := NewMomentum()
	views := []models.MarketView{withML(view("BTC", 50_000_000), models.SignalBuy, 0.6)}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no signals, got %+v", got)
	}
}

func TestMomentumSkipsWhenPositioned(t *testing.T) {
	s := NewMomentum()
	views := []models.MarketView{withPosition(withML(view("BTC", 50_000_000), models.SignalBuy, 0.9))}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no signals, got %+v", got)
	}
}

func TestMomentumSellsOnModelFlip(t *testing.T) {
	s := NewMomentum()
	views := []models.MarketView{withPosition(withML(view("BTC", 50_000_000), models.SignalSell, 0.75))}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalSell {
		t.Fatalf("expected one sell, got %+v", got)
	}
}

func TestScalpingOversoldBuysHalfSize(t *testing.T) {
	s := NewScalping()
	views := []models.MarketView{withRSI(view("ETH", 3_000_000), 25)}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalBuy {
		t.Fatalf("expected one buy, got %+v", got)
	}
	if got[0].SizeMultiplier != 0.5 {
		t.Fatalf("expected half size, got %v", got[0].SizeMultiplier)
	}
}

func TestScalpingOverboughtSellsPosition(t *testing.T) {
	s := NewScalping()
	views := []models.MarketView{withPosition(withRSI(view("ETH", 3_000_000), 75))}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalSell {
		t.Fatalf("expected one sell, got %+v", got)
	}
}

func TestScalpingNeutralAndUnreadyDoNothing(t *testing.T) {
	s := NewScalping()
	views := []models.MarketView{
		withRSI(view("ETH", 3_000_000), 50),
		view("BTC", 50_000_000), // no indicators yet
	}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no signals, got %+v", got)
	}
}

func TestSwingGoldenCrossBuys(t *testing.T) {
	s := NewSwing()
	views := []models.MarketView{withSMAs(view("BTC", 50_000_000), 51_000_000, 50_000_000)}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalBuy {
		t.Fatalf("expected one buy, got %+v", got)
	}
}

func TestSwingDeadCrossSellsPosition(t *testing.T) {
	s := NewSwing()
	views := []models.MarketView{withPosition(withSMAs(view("BTC", 50_000_000), 49_000_000, 50_000_000))}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Kind != models.SignalSell {
		t.Fatalf("expected one sell, got %+v", got)
	}
}

func TestDCABuysFixedShare(t *testing.T) {
	s := NewDCA()
	views := []models.MarketView{
		view("BTC", 50_000_000),
		withPosition(view("ETH", 3_000_000)),
	}
	got, err := s.Analyze(context.Background(), views)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected buys for every symbol, got %+v", got)
	}
	for _, sig := range got {
		if sig.Kind != models.SignalBuy || sig.FixedNotional != 50_000 {
			t.Fatalf("unexpected signal %+v", sig)
		}
	}
}

func TestDCASkipsWithoutCapital(t *testing.T) {
	s := NewDCA()
	v := view("BTC", 50_000_000)
	v.Capital = 0
	got, err := s.Analyze(context.Background(), []models.MarketView{v})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no signals, got %+v", got)
	}
}
