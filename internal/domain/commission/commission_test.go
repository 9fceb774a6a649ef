package commission

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestTakerFeeBithumb(t *testing.T) {
	s := Default()
	got := s.TakerFee(0.01, 50_000_000)
	if !almostEqual(got, 750) {
		t.Fatalf("unexpected taker fee %v", got)
	}
}

func TestMakerFeeBithumb(t *testing.T) {
	s := Default()
	got := s.MakerFee(0.01, 50_000_000)
	if !almostEqual(got, 250) {
		t.Fatalf("unexpected maker fee %v", got)
	}
}

func TestFeeZeroOnNonPositiveInputs(t *testing.T) {
	s := Default()
	if got := s.TakerFee(0, 50_000_000); got != 0 {
		t.Fatalf("expected zero fee, got %v", got)
	}
	if got := s.TakerFee(0.01, -1); got != 0 {
		t.Fatalf("expected zero fee, got %v", got)
	}
}

func TestFeeClamps(t *testing.T) {
	s := Schedule{TakerRate: 0.0015, MinFee: 100, MaxFee: 500}
	if got := s.TakerFee(0.0001, 50_000_000); !almostEqual(got, 100) {
		t.Fatalf("expected floor, got %v", got)
	}
	if got := s.TakerFee(1, 50_000_000); !almostEqual(got, 500) {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestScheduleFor(t *testing.T) {
	s, ok := ScheduleFor(Binance)
	if !ok {
		t.Fatalf("expected ok")
	}
	if s.MakerRate != 0.001 || s.TakerRate != 0.001 {
		t.Fatalf("unexpected rates %+v", s)
	}
	if _, ok := ScheduleFor(Exchange("nope")); ok {
		t.Fatalf("expected unknown exchange")
	}
}

func TestNetProfitRoundTrip(t *testing.T) {
	s := Default()
	// 0.01 BTC in at 50M, out at 51M: gross 10,000 less 750 + 765 fees.
	got := s.NetProfit(0.01, 50_000_000, 0.01, 51_000_000)
	if !almostEqual(got, 8_485) {
		t.Fatalf("unexpected net profit %v", got)
	}
}

func TestNetProfitMatchesSmallerLeg(t *testing.T) {
	s := Default()
	full := s.NetProfit(0.01, 50_000_000, 0.01, 51_000_000)
	partial := s.NetProfit(0.02, 50_000_000, 0.01, 51_000_000)
	// Same matched quantity but the larger entry pays more commission.
	if partial >= full {
		t.Fatalf("expected partial %v below full %v", partial, full)
	}
}

func TestNetProfitHighRateEatsGain(t *testing.T) {
	// At a 15% taker rate a +2% move still loses money.
	s := Schedule{TakerRate: 0.15}
	if got := s.TakerFee(0.01, 50_000_000); !almostEqual(got, 75_000) {
		t.Fatalf("unexpected entry fee %v", got)
	}
	if got := s.TakerFee(0.01, 51_000_000); !almostEqual(got, 76_500) {
		t.Fatalf("unexpected exit fee %v", got)
	}
	got := s.NetProfit(0.01, 50_000_000, 0.01, 51_000_000)
	if !almostEqual(got, -141_500) {
		t.Fatalf("unexpected net profit %v", got)
	}
}

func TestBreakEvenPriceCoversFees(t *testing.T) {
	s := Default()
	entryPrice, amount := 50_000_000.0, 0.01
	be := s.BreakEvenPrice(entryPrice, amount, amount)
	if be <= entryPrice {
		t.Fatalf("expected break even above entry, got %v", be)
	}
	// Selling at the break-even price recovers entry cost plus both fees.
	entryCommission := s.TakerFee(amount, entryPrice)
	proceeds := be * amount * (1 - s.TakerRate)
	if !almostEqual(proceeds, entryPrice*amount+entryCommission) {
		t.Fatalf("break even does not balance: %v vs %v", proceeds, entryPrice*amount+entryCommission)
	}
}

func TestBreakEvenPriceNonPositiveAmounts(t *testing.T) {
	s := Default()
	if got := s.BreakEvenPrice(50_000_000, 0, 0.01); got != 50_000_000 {
		t.Fatalf("expected entry price, got %v", got)
	}
	if got := s.BreakEvenPrice(50_000_000, 0.01, 0); got != 50_000_000 {
		t.Fatalf("expected entry price, got %v", got)
	}
}

func TestRequiredReturnExceedsNaiveTarget(t *testing.T) {
	s := Default()
	// 10,000 KRW target on a 500,000 KRW position is 2% before fees.
	got := s.RequiredReturn(50_000_000, 0.01, 10_000)
	if got <= 0.02 {
		t.Fatalf("expected required return above 0.02, got %v", got)
	}
	if got >= 0.03 {
		t.Fatalf("required return unexpectedly large: %v", got)
	}
}

func TestRequiredReturnZeroOnNonPositiveInputs(t *testing.T) {
	s := Default()
	if got := s.RequiredReturn(50_000_000, 0, 10_000); got != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
	if got := s.RequiredReturn(50_000_000, 0.01, 0); got != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
}
