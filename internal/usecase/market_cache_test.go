package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
)

func classifiedCache(t *testing.T, gw *fakeGateway, scorer *fakeScorer, opts ...MarketCacheOption) *MarketCache {
	t.Helper()
	base := []MarketCacheOption{WithCoreSymbols([]string{"C00", "C10", "C11"})}
	c := NewMarketCache(gw, scorer, noopMetrics{}, testLogger(t), append(base, opts...)...)
	if err := c.Reclassify(context.Background()); err != nil {
		t.Fatalf("reclassify: %v", err)
	}
	return c
}

func TestReclassifyBuildsDisjointTiers(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())

	tiers := c.Tiers()
	if len(tiers.Hot) != 10 {
		t.Fatalf("expected 10 hot symbols, got %d", len(tiers.Hot))
	}
	if len(tiers.Broad) != 30 {
		t.Fatalf("expected 30 broad symbols, got %d", len(tiers.Broad))
	}
	// C00 is the top mover, so the curated list only contributes the rest.
	if len(tiers.Core) != 2 {
		t.Fatalf("expected curated minus hot = 2, got %d: %v", len(tiers.Core), tiers.Core)
	}

	seen := make(map[string]int)
	for _, s := range tiers.Symbols() {
		seen[s]++
	}
	for s, n := range seen {
		if n != 1 {
			t.Fatalf("symbol %s assigned to %d tiers", s, n)
		}
	}
	if tier, ok := c.TierOf("C00"); !ok || tier != models.TierHot {
		t.Fatalf("top mover should be hot, got %v/%v", tier, ok)
	}
	if tier, _ := c.TierOf("C10"); tier != models.TierCore {
		t.Fatalf("curated symbol should be core, got %v", tier)
	}
}

func TestReclassifyFailureKeepsPreviousTiers(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())
	before := c.Tiers()

	gw.setAll(nil, errors.New("gateway down"))
	if err := c.Reclassify(context.Background()); err == nil {
		t.Fatalf("expected error from failed reclassification")
	}

	after := c.Tiers()
	if len(after.Hot) != len(before.Hot) || len(after.Core) != len(before.Core) || len(after.Broad) != len(before.Broad) {
		t.Fatalf("tier assignment must survive a failed refresh")
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("failed reclassification must not touch the assignment")
	}
}

func TestReclassifyKeepsTrackedSymbols(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())
	if _, ok := c.TierOf("C20"); !ok {
		t.Fatalf("fixture should track C20")
	}

	// C20 disappears from the exchange answer entirely.
	var trimmed []models.Ticker
	for _, tk := range tickerFixture(50) {
		if tk.Symbol != "C20" {
			trimmed = append(trimmed, tk)
		}
	}
	gw.setAll(trimmed, nil)
	if err := c.Reclassify(context.Background()); err != nil {
		t.Fatalf("reclassify: %v", err)
	}

	tier, ok := c.TierOf("C20")
	if !ok {
		t.Fatalf("previously tracked symbol must stay tracked")
	}
	if tier != models.TierBroad {
		t.Fatalf("ranked-out symbol should land in broad, got %v", tier)
	}
}

func TestSnapshotAbsentForUnknownSymbol(t *testing.T) {
	gw := newFakeGateway(tickerFixture(10)...)
	c := classifiedCache(t, gw, newFakeScorer())

	if _, ok := c.Snapshot("ZZZ"); ok {
		t.Fatalf("unknown symbol must report absent")
	}
	if _, ok := c.Snapshot("C00"); !ok {
		t.Fatalf("tracked symbol should have a seeded snapshot")
	}
}

func TestApplyTickerRespectsTrackingAndFreshness(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	c := classifiedCache(t, gw, newFakeScorer())

	now := time.Now()
	if !c.ApplyTicker(&models.Ticker{Symbol: "C10", Price: 42_000, Timestamp: now.Add(time.Minute)}) {
		t.Fatalf("expected push for tracked symbol to apply")
	}
	if snap, ok := c.Snapshot("C10"); !ok || snap.Ticker.Price != 42_000 {
		t.Fatalf("expected pushed price visible, got %+v", snap.Ticker)
	}

	if c.ApplyTicker(&models.Ticker{Symbol: "C10", Price: 41_000, Timestamp: now.Add(-time.Hour)}) {
		t.Fatalf("stale push must not overwrite a newer ticker")
	}
	if snap, _ := c.Snapshot("C10"); snap.Ticker.Price != 42_000 {
		t.Fatalf("stale push leaked: %+v", snap.Ticker)
	}

	if c.ApplyTicker(&models.Ticker{Symbol: "ZZZ", Price: 10, Timestamp: now}) {
		t.Fatalf("untracked symbol must be ignored")
	}
	if c.ApplyTicker(&models.Ticker{Symbol: "C10", Price: 0, Timestamp: now.Add(2 * time.Minute)}) {
		t.Fatalf("non-positive price must be ignored")
	}
}

func TestSignalDefaultsToHold(t *testing.T) {
	gw := newFakeGateway(tickerFixture(10)...)
	c := classifiedCache(t, gw, newFakeScorer())

	sig := c.Signal("C00")
	if sig.Kind != models.SignalHold {
		t.Fatalf("expected hold default, got %v", sig.Kind)
	}
	if sig.Confidence != 0.5 || sig.Strength != 0.5 {
		t.Fatalf("expected 0.5/0.5 default, got %f/%f", sig.Confidence, sig.Strength)
	}
}

func TestIndicatorsDefaultToEmpty(t *testing.T) {
	gw := newFakeGateway(tickerFixture(10)...)
	c := classifiedCache(t, gw, newFakeScorer())

	set := c.Indicators("C00")
	if set.Ready {
		t.Fatalf("no window fetched yet, set must not be ready")
	}
}

func TestRecomputeIndicatorsSkipsFailedSymbol(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	for _, s := range []string{"C00", "C02", "C10"} {
		gw.candles[s] = flatCandles(s, 60, 1000)
	}
	gw.candleErr["C01"] = errors.New("candle endpoint 500")
	c := classifiedCache(t, gw, newFakeScorer())

	c.RecomputeIndicators(context.Background(), false)

	if !c.Indicators("C00").Ready {
		t.Fatalf("C00 indicators should be ready")
	}
	if c.Indicators("C01").Ready {
		t.Fatalf("failed symbol must keep its empty set")
	}
	if !c.Indicators("C10").Ready {
		t.Fatalf("core symbol after the failure must still be computed")
	}
	if len(c.Window("C00")) != 60 {
		t.Fatalf("window should be committed alongside indicators")
	}
}

func TestRecomputeIndicatorsBroadOnlyWhenIncluded(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	broadSym := "C49"
	gw.candles[broadSym] = flatCandles(broadSym, 60, 1000)
	c := classifiedCache(t, gw, newFakeScorer())

	c.RecomputeIndicators(context.Background(), false)
	if c.Indicators(broadSym).Ready {
		t.Fatalf("broad tier must be skipped on ordinary cycles")
	}

	c.RecomputeIndicators(context.Background(), true)
	if !c.Indicators(broadSym).Ready {
		t.Fatalf("broad tier should be computed on the inclusive cycle")
	}
}

func TestRecomputeSignalsCoversHotAndCoreOnly(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	scorer := newFakeScorer()
	scorer.set("C49", models.SignalBuy, 0.9, 0.9) // broad symbol, must never be asked
	c := classifiedCache(t, gw, scorer)

	c.RecomputeSignals(context.Background())

	if got := c.Signal("C49").Kind; got != models.SignalHold {
		t.Fatalf("broad symbol must keep the hold default, got %v", got)
	}
	for _, s := range scorer.scored {
		if tier, _ := c.TierOf(s); tier == models.TierBroad {
			t.Fatalf("scorer consulted for broad symbol %s", s)
		}
	}
	if len(scorer.scored) != 12 {
		t.Fatalf("expected 10 hot + 2 core scored, got %d", len(scorer.scored))
	}
}

func TestTopOpportunitiesRanking(t *testing.T) {
	gw := newFakeGateway(tickerFixture(50)...)
	scorer := newFakeScorer()
	scorer.set("C02", models.SignalBuy, 0.5, 0.6)  // hot: 0.30 + 0.10
	scorer.set("C10", models.SignalBuy, 0.55, 0.6) // core: 0.33 + 0.05
	scorer.set("C03", models.SignalSell, 0.9, 0.5) // hot: 0.45 + 0.10
	c := classifiedCache(t, gw, scorer)

	c.RecomputeSignals(context.Background())

	top := c.TopOpportunities(10)
	if len(top) != 3 {
		t.Fatalf("hold signals must be excluded, got %d entries", len(top))
	}
	if top[0].Symbol != "C03" || top[1].Symbol != "C02" || top[2].Symbol != "C10" {
		t.Fatalf("unexpected ranking: %s %s %s", top[0].Symbol, top[1].Symbol, top[2].Symbol)
	}
	if top[0].Kind != models.SignalSell {
		t.Fatalf("sell opportunities rank too, got %v", top[0].Kind)
	}

	if got := c.TopOpportunities(1); len(got) != 1 || got[0].Symbol != "C03" {
		t.Fatalf("limit should truncate after ranking")
	}
}

func TestCacheStartRefreshesAndStops(t *testing.T) {
	gw := newFakeGateway(tickerFixture(20)...)
	c := classifiedCache(t, gw, newFakeScorer(),
		WithRefreshPeriods(20*time.Millisecond, 25*time.Millisecond, 30*time.Millisecond),
		WithRecomputePeriods(time.Hour, time.Hour, time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for gw.calls("C00") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("hot tier never refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, ok := c.Snapshot("C00")
	if !ok {
		t.Fatalf("expected snapshot after refresh")
	}
	if age := time.Since(snap.UpdatedAt); age > 500*time.Millisecond {
		t.Fatalf("snapshot staleness out of bound: %v", age)
	}

	c.Stop()
	c.Stop() // second stop is a no-op
}

func TestCacheStartFailsWithoutInitialTiers(t *testing.T) {
	gw := newFakeGateway()
	gw.setAll(nil, errors.New("exchange unreachable"))
	c := NewMarketCache(gw, newFakeScorer(), noopMetrics{}, testLogger(t))

	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("startup must fail when the universe cannot be classified")
	}
	c.Stop() // never started, must not panic
}
