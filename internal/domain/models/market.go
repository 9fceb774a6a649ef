package models

import "time"

// Tier controls how often a symbol's price is refreshed.
type Tier int

const (
	TierHot   Tier = iota // top movers, 1s refresh
	TierCore              // curated majors, 5s refresh
	TierBroad             // wide coverage, 30s refresh
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierCore:
		return "core"
	case TierBroad:
		return "broad"
	default:
		return "unknown"
	}
}

func (t Tier) Valid() bool {
	return t >= TierHot && t <= TierBroad
}

// TierSet is one full classification of the tracked universe.
// The three slices are disjoint and together cover every tracked symbol.
type TierSet struct {
	Hot       []string
	Core      []string
	Broad     []string
	UpdatedAt time.Time
}

// Symbols returns the union of all three tiers.
func (ts TierSet) Symbols() []string {
	out := make([]string, 0, len(ts.Hot)+len(ts.Core)+len(ts.Broad))
	out = append(out, ts.Hot...)
	out = append(out, ts.Core...)
	out = append(out, ts.Broad...)
	return out
}

// Contains reports whether symbol is tracked in any tier.
func (ts TierSet) Contains(symbol string) bool {
	for _, s := range ts.Symbols() {
		if s == symbol {
			return true
		}
	}
	return false
}

// Ticker is one exchange ticker observation for a symbol, quoted in KRW.
type Ticker struct {
	Symbol     string
	Price      float64
	Open24h    float64
	High24h    float64
	Low24h     float64
	Volume24h  float64 // units traded over the trailing 24h
	Value24h   float64 // KRW traded over the trailing 24h
	ChangeRate float64 // signed 24h change, percent
	Timestamp  time.Time
}

// Candle represents an OHLCV bar for indicator and model input.
type Candle struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IndicatorSet holds the derived indicators for one symbol at one instant.
// Fields the window was too short to compute are left at zero with Ready false.
type IndicatorSet struct {
	Symbol     string
	Timestamp  time.Time
	RSI        float64
	SMA5       float64
	SMA20      float64
	EMA12      float64
	EMA26      float64
	MACD       float64
	MACDSignal float64
	BollUpper  float64
	BollMiddle float64
	BollLower  float64
	Ready      bool
}

// MLSignal is a directional score for a symbol.
type MLSignal struct {
	Symbol     string
	Kind       SignalKind
	Confidence float64 // 0..1
	Strength   float64 // 0..1
	Source     string  // "local" | "remote"
	Timestamp  time.Time
}

// Snapshot is the cached market state for one symbol, served to
// strategies and API readers without touching the exchange.
type Snapshot struct {
	Ticker     Ticker
	Tier       Tier
	Indicators *IndicatorSet
	ML         *MLSignal
	UpdatedAt  time.Time
}

// MarketView is the read-only state a strategy evaluates for one symbol.
// Position is nil when the run holds nothing in the symbol; Capital is
// the free cash of the evaluating run, not the whole account.
type MarketView struct {
	Snapshot Snapshot
	Window   []Candle
	Position *Position
	Capital  float64 // free cash available to the run, KRW
}

// Opportunity is one entry of the ranked non-Hold signal list.
type Opportunity struct {
	Symbol     string
	Tier       Tier
	Kind       SignalKind
	Confidence float64
	Strength   float64
	Score      float64
	Price      float64
}
