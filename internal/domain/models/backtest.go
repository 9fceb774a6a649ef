package models

import "time"

// RunStatus is the lifecycle state of a backtest run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

func (s RunStatus) String() string { return string(s) }

// Terminal reports whether the run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// BacktestConfig describes one historical replay.
type BacktestConfig struct {
	Strategy       string
	Symbols        []string
	InitialCapital float64
	From           time.Time
	To             time.Time
	Timeframe      string  // candle interval, e.g. "1m"
	StopLossPct    float64 // fraction, e.g. 0.02
	TakeProfitPct  float64 // fraction, e.g. 0.04
}

// EquityPoint is one sample of total account value during a replay.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// BacktestResult is the full outcome of one replay. A zero-trade run
// reports zeroed statistics, not an error.
type BacktestResult struct {
	RunID          string
	Status         RunStatus
	Strategy       string
	Symbols        []string
	From           time.Time
	To             time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
	InitialCapital float64
	FinalEquity    float64

	TotalReturnPct      float64
	AnnualizedReturnPct float64
	SharpeRatio         float64
	SortinoRatio        float64
	MaxDrawdownPct      float64
	WinRate             float64
	ProfitFactor        float64

	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	TotalCommission float64
	CommissionPct   float64 // commission as a share of gross profit

	EquityCurve []EquityPoint
	Trades      []Trade
	Error       string
}
