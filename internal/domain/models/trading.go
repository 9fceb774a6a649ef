package models

import (
	"fmt"
	"time"
)

// TradingMode selects how orders are executed.
type TradingMode string

const (
	ModeSimulation TradingMode = "simulation" // internal fills, no exchange calls
	ModePaper      TradingMode = "paper"      // exchange prices, simulated fills
	ModeLive       TradingMode = "live"       // real orders on the exchange
)

func (m TradingMode) Valid() bool {
	switch m {
	case ModeSimulation, ModePaper, ModeLive:
		return true
	}
	return false
}

func (m TradingMode) String() string { return string(m) }

// ParseTradingMode converts s into a TradingMode or fails on unknown input.
func ParseTradingMode(s string) (TradingMode, error) {
	m := TradingMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown trading mode %q", s)
	}
	return m, nil
}

// SignalKind is the action a strategy or model recommends.
type SignalKind int

const (
	SignalHold SignalKind = iota
	SignalBuy
	SignalSell
	SignalClose
)

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalHold:
		return "HOLD"
	case SignalClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (k SignalKind) Valid() bool {
	return k >= SignalHold && k <= SignalClose
}

// ParseSignalKind converts s into a SignalKind or fails on unknown input.
func ParseSignalKind(s string) (SignalKind, error) {
	switch s {
	case "BUY":
		return SignalBuy, nil
	case "SELL":
		return SignalSell, nil
	case "HOLD":
		return SignalHold, nil
	case "CLOSE":
		return SignalClose, nil
	}
	return SignalHold, fmt.Errorf("unknown signal kind %q", s)
}

// Signal is one actionable recommendation produced by a strategy.
type Signal struct {
	StrategyID     string
	Strategy       string
	Symbol         string
	Kind           SignalKind
	Price          float64
	Quantity       float64 // units; 0 means derive from sizing rules
	Confidence     float64 // 0..1
	Strength       float64 // 0..1
	SizeMultiplier float64 // scales position sizing, 1.0 = full
	FixedNotional  float64 // KRW to spend; 0 means size from confidence
	Reason         string
	Timestamp      time.Time
}

// PositionSide distinguishes long and short holdings. The live ledger
// only opens longs; backtests may also carry shorts.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position is an open holding in one symbol.
type Position struct {
	Symbol          string
	Side            PositionSide
	Amount          float64 // units held, always positive
	AvgPrice        float64 // quantity-weighted entry price in KRW
	EntryCommission float64 // cumulative commission paid on entries
	RealizedPnL     float64 // net PnL realized by partial closes
	StrategyID      string  // run that opened the position
	OpenedAt        time.Time
	UpdatedAt       time.Time
}

// Value returns the position's worth at the given mark price.
func (p Position) Value(price float64) float64 {
	return p.Amount * price
}

// UnrealizedPnL returns the open profit at a mark price, before exit costs.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideShort {
		return (p.AvgPrice - price) * p.Amount
	}
	return (price - p.AvgPrice) * p.Amount
}

// TradeStatus marks whether a fill went through.
type TradeStatus string

const (
	TradeFilled TradeStatus = "filled"
	TradeFailed TradeStatus = "failed"
)

// Trade is one executed fill, immutable once recorded. Exit fills carry
// the realized outcome of the quantity they closed; entry fills carry
// zero PnL.
type Trade struct {
	ID               string
	StrategyID       string
	Strategy         string
	Symbol           string
	Side             SignalKind // SignalBuy or SignalSell
	Price            float64
	Amount           float64
	Commission       float64
	GrossPnL         float64 // exit fills only
	NetPnL           float64 // exit fills only, gross minus exit commission
	SignalStrength   float64
	SignalConfidence float64
	Mode             TradingMode
	Status           TradeStatus
	Reason           string
	ExecutedAt       time.Time
}

// IsExit reports whether the fill reduced or closed a position.
func (t Trade) IsExit() bool { return t.Side == SignalSell }

// RunState is the lifecycle state of a live strategy run.
type RunState string

const (
	RunInactive RunState = "inactive"
	RunActive   RunState = "active"
	RunPaused   RunState = "paused"
	RunErrored  RunState = "error"
)

func (s RunState) Valid() bool {
	switch s {
	case RunInactive, RunActive, RunPaused, RunErrored:
		return true
	}
	return false
}

func (s RunState) String() string { return string(s) }

// StrategyRun is the registry entry for one live strategy instance.
type StrategyRun struct {
	ID           string
	Strategy     string
	Symbols      []string
	Mode         TradingMode
	State        RunState
	Interval     time.Duration
	StartedAt    time.Time
	LastExecuted time.Time
	Error        string
}

// PositionStatus is a position marked to the latest known price.
type PositionStatus struct {
	Position      Position
	CurrentPrice  float64
	Value         float64
	UnrealizedPnL float64
	UnrealizedPct float64
	PriceKnown    bool
}

// PortfolioStatus is a point-in-time view of capital and holdings.
type PortfolioStatus struct {
	Mode            TradingMode
	InitialCapital  float64
	Capital         float64 // free cash
	PositionsValue  float64
	TotalValue      float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalReturnPct  float64
	TotalCommission float64
	TradeCount      int
	Positions       []PositionStatus
	Timestamp       time.Time
}
