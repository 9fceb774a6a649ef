// Package commission prices exchange fees and the fee-adjusted
// profitability thresholds the strategies and the ledger depend on.
package commission

// Exchange identifies a fee schedule.
type Exchange string

const (
	Bithumb Exchange = "bithumb"
	Upbit   Exchange = "upbit"
	Binance Exchange = "binance"
)

// Schedule holds one exchange's fee rates as fractions of notional.
// MaxFee of zero means uncapped.
type Schedule struct {
	MakerRate float64
	TakerRate float64
	MinFee    float64
	MaxFee    float64
}

var schedules = map[Exchange]Schedule{
	Bithumb: {MakerRate: 0.0005, TakerRate: 0.0015},
	Upbit:   {MakerRate: 0.0005, TakerRate: 0.0015},
	Binance: {MakerRate: 0.001, TakerRate: 0.001},
}

// ScheduleFor returns the fee schedule of a known exchange.
func ScheduleFor(ex Exchange) (Schedule, bool) {
	s, ok := schedules[ex]
	return s, ok
}

// Default returns the Bithumb schedule.
func Default() Schedule {
	return schedules[Bithumb]
}

func (s Schedule) fee(amount, price, rate float64) float64 {
	if amount <= 0 || price <= 0 {
		return 0
	}
	fee := amount * price * rate
	if fee < s.MinFee {
		fee = s.MinFee
	}
	if s.MaxFee > 0 && fee > s.MaxFee {
		fee = s.MaxFee
	}
	return fee
}

// TakerFee returns the commission for a market fill of amount units at price.
func (s Schedule) TakerFee(amount, price float64) float64 {
	return s.fee(amount, price, s.TakerRate)
}

// MakerFee returns the commission for a resting fill of amount units at price.
func (s Schedule) MakerFee(amount, price float64) float64 {
	return s.fee(amount, price, s.MakerRate)
}

// NetProfit returns the round-trip profit of entering and exiting at the
// given prices, with taker commission charged on both legs.
func (s Schedule) NetProfit(entryAmount, entryPrice, exitAmount, exitPrice float64) float64 {
	if entryAmount <= 0 || exitAmount <= 0 {
		return 0
	}
	entryCommission := s.TakerFee(entryAmount, entryPrice)
	exitCommission := s.TakerFee(exitAmount, exitPrice)
	matched := entryAmount
	if exitAmount < matched {
		matched = exitAmount
	}
	gross := (exitPrice - entryPrice) * matched
	return gross - entryCommission - exitCommission
}

// BreakEvenPrice returns the exit price at which selling exitAmount units
// recovers the entry cost plus both commissions. Entry commission is
// charged on entryAmount at entryPrice; the exit leg pays taker rate.
func (s Schedule) BreakEvenPrice(entryPrice, entryAmount, exitAmount float64) float64 {
	if entryAmount <= 0 || exitAmount <= 0 {
		return entryPrice
	}
	entryCommission := s.TakerFee(entryAmount, entryPrice)
	return (entryPrice*exitAmount + entryCommission) / (exitAmount * (1 - s.TakerRate))
}

// RequiredReturn returns the fractional price move needed to realize
// targetProfit after commissions on both legs. Non-positive inputs
// yield zero.
func (s Schedule) RequiredReturn(entryPrice, entryAmount, targetProfit float64) float64 {
	if entryAmount <= 0 || targetProfit <= 0 {
		return 0
	}
	entryCommission := s.TakerFee(entryAmount, entryPrice)
	requiredPrice := (targetProfit+entryCommission)/(entryAmount*(1-s.TakerRate)) + entryPrice
	return (requiredPrice - entryPrice) / entryPrice
}
