package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/commission"
	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/pkg/logger"
)

// dust is the residual amount below which a position is considered closed.
const dust = 1e-12

// OpenRequest asks the ledger to create or grow a position.
type OpenRequest struct {
	Symbol     string
	Side       models.PositionSide
	Quantity   float64
	Price      float64
	StrategyID string
	Strategy   string
	Strength   float64
	Confidence float64
	Maker      bool
	Mode       models.TradingMode
	Reason     string
}

// CloseRequest asks the ledger to shrink or delete a position.
// Quantity of zero closes the full amount.
type CloseRequest struct {
	Symbol     string
	Quantity   float64
	Price      float64
	StrategyID string
	Strategy   string
	Strength   float64
	Confidence float64
	Maker      bool
	Mode       models.TradingMode
	Reason     string
}

// Ledger is the single owner of positions, trades, and cash. Every
// mutation goes through Open or Close under one mutex, so concurrent
// strategy cycles and the risk monitor never observe half-applied
// state. The ledger performs no I/O and never holds its lock across
// external calls.
type Ledger struct {
	mu sync.Mutex

	mode           models.TradingMode
	initialCapital float64
	cash           float64
	realizedNet    float64
	realizedGross  float64
	commissionPaid float64

	positions map[string]*models.Position
	trades    []models.Trade

	sched        commission.Schedule
	minNotional  float64
	maxPositions int

	log *logger.Logger
}

// NewLedger creates a ledger holding initialCapital in cash.
// maxPositions of zero disables the concurrent-position limit.
func NewLedger(
	mode models.TradingMode,
	initialCapital float64,
	sched commission.Schedule,
	minNotional float64,
	maxPositions int,
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		mode:           mode,
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*models.Position),
		sched:          sched,
		minNotional:    minNotional,
		maxPositions:   maxPositions,
		log:            log,
	}
}

func (l *Ledger) fee(quantity, price float64, maker bool) float64 {
	if maker {
		return l.sched.MakerFee(quantity, price)
	}
	return l.sched.TakerFee(quantity, price)
}

// CanOpen checks Open's preconditions without mutating anything. The
// live path uses it to drop rejected signals before an exchange order
// goes out; Open remains the authoritative check.
func (l *Ledger) CanOpen(req OpenRequest) error {
	if req.Quantity <= 0 || req.Price <= 0 {
		return fmt.Errorf("open %s: non-positive quantity or price", req.Symbol)
	}
	notional := req.Quantity * req.Price
	if notional < l.minNotional {
		return fmt.Errorf("open %s for %.0f KRW: %w", req.Symbol, notional, models.ErrBelowMinNotional)
	}
	cost := notional + l.fee(req.Quantity, req.Price, req.Maker)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.positions[req.Symbol]; !exists && l.maxPositions > 0 && len(l.positions) >= l.maxPositions {
		return fmt.Errorf("open %s: %w", req.Symbol, models.ErrMaxPositionsReached)
	}
	if cost > l.cash {
		return fmt.Errorf("open %s needs %.0f KRW, have %.0f: %w",
			req.Symbol, cost, l.cash, models.ErrInsufficientCapital)
	}
	return nil
}

// Open debits cash and creates or averages into a position, returning
// the recorded entry fill.
func (l *Ledger) Open(req OpenRequest) (*models.Trade, error) {
	if req.Quantity <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("open %s: non-positive quantity or price", req.Symbol)
	}
	side := req.Side
	if side == "" {
		side = models.SideLong
	}
	notional := req.Quantity * req.Price
	if notional < l.minNotional {
		return nil, fmt.Errorf("open %s for %.0f KRW: %w", req.Symbol, notional, models.ErrBelowMinNotional)
	}
	fee := l.fee(req.Quantity, req.Price, req.Maker)
	cost := notional + fee

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.positions[req.Symbol]
	if exists && pos.Side != side {
		return nil, fmt.Errorf("open %s: position is %s, requested %s", req.Symbol, pos.Side, side)
	}
	if !exists && l.maxPositions > 0 && len(l.positions) >= l.maxPositions {
		return nil, fmt.Errorf("open %s: %w", req.Symbol, models.ErrMaxPositionsReached)
	}
	if cost > l.cash {
		return nil, fmt.Errorf("open %s needs %.0f KRW, have %.0f: %w",
			req.Symbol, cost, l.cash, models.ErrInsufficientCapital)
	}

	now := time.Now()
	l.cash -= cost
	l.commissionPaid += fee

	if exists {
		total := pos.Amount + req.Quantity
		pos.AvgPrice = (pos.AvgPrice*pos.Amount + req.Price*req.Quantity) / total
		pos.Amount = total
		pos.EntryCommission += fee
		pos.UpdatedAt = now
	} else {
		l.positions[req.Symbol] = &models.Position{
			Symbol:          req.Symbol,
			Side:            side,
			Amount:          req.Quantity,
			AvgPrice:        req.Price,
			EntryCommission: fee,
			StrategyID:      req.StrategyID,
			OpenedAt:        now,
			UpdatedAt:       now,
		}
	}

	trade := models.Trade{
		ID:               uuid.New().String(),
		StrategyID:       req.StrategyID,
		Strategy:         req.Strategy,
		Symbol:           req.Symbol,
		Side:             models.SignalBuy,
		Price:            req.Price,
		Amount:           req.Quantity,
		Commission:       fee,
		SignalStrength:   req.Strength,
		SignalConfidence: req.Confidence,
		Mode:             l.mode,
		Status:           models.TradeFilled,
		Reason:           req.Reason,
		ExecutedAt:       now,
	}
	l.trades = append(l.trades, trade)

	if l.log != nil {
		l.log.Info("position opened",
			logger.String("symbol", req.Symbol),
			logger.String("side", string(side)),
			logger.Float64("quantity", req.Quantity),
			logger.Float64("price", req.Price),
			logger.Float64("commission", fee),
			logger.Float64("cash", l.cash),
		)
	}
	return &trade, nil
}

// Close credits cash and reduces or deletes a position, returning the
// recorded exit fill with its realized PnL.
func (l *Ledger) Close(req CloseRequest) (*models.Trade, error) {
	if req.Price <= 0 {
		return nil, fmt.Errorf("close %s: non-positive price", req.Symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", req.Symbol, models.ErrNoSuchPosition)
	}

	quantity := req.Quantity
	if quantity <= 0 || quantity > pos.Amount {
		quantity = pos.Amount
	}

	fee := l.fee(quantity, req.Price, req.Maker)
	gross := (req.Price - pos.AvgPrice) * quantity
	if pos.Side == models.SideShort {
		gross = -gross
	}
	net := gross - fee
	credit := quantity*pos.AvgPrice + gross - fee

	now := time.Now()
	l.cash += credit
	l.commissionPaid += fee
	l.realizedGross += gross
	l.realizedNet += net

	remainder := pos.Amount - quantity
	if remainder <= dust {
		delete(l.positions, req.Symbol)
	} else {
		pos.EntryCommission *= remainder / pos.Amount
		pos.Amount = remainder
		pos.RealizedPnL += net
		pos.UpdatedAt = now
	}

	trade := models.Trade{
		ID:               uuid.New().String(),
		StrategyID:       req.StrategyID,
		Strategy:         req.Strategy,
		Symbol:           req.Symbol,
		Side:             models.SignalSell,
		Price:            req.Price,
		Amount:           quantity,
		Commission:       fee,
		GrossPnL:         gross,
		NetPnL:           net,
		SignalStrength:   req.Strength,
		SignalConfidence: req.Confidence,
		Mode:             l.mode,
		Status:           models.TradeFilled,
		Reason:           req.Reason,
		ExecutedAt:       now,
	}
	l.trades = append(l.trades, trade)

	if l.log != nil {
		l.log.Info("position closed",
			logger.String("symbol", req.Symbol),
			logger.Float64("quantity", quantity),
			logger.Float64("price", req.Price),
			logger.Float64("net_pnl", net),
			logger.Float64("cash", l.cash),
		)
	}
	return &trade, nil
}

// RecordFailed appends a failed fill so rejected live orders stay in
// the audit trail. No cash or position state changes.
func (l *Ledger) RecordFailed(req OpenRequest, side models.SignalKind, reason string) *models.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade := models.Trade{
		ID:               uuid.New().String(),
		StrategyID:       req.StrategyID,
		Strategy:         req.Strategy,
		Symbol:           req.Symbol,
		Side:             side,
		Price:            req.Price,
		Amount:           req.Quantity,
		SignalStrength:   req.Strength,
		SignalConfidence: req.Confidence,
		Mode:             l.mode,
		Status:           models.TradeFailed,
		Reason:           reason,
		ExecutedAt:       time.Now(),
	}
	l.trades = append(l.trades, trade)
	return &trade
}

// Position returns a copy of the open position for symbol.
func (l *Ledger) Position(symbol string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of every open position.
func (l *Ledger) Positions() []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// PositionsOf returns copies of the open positions owned by one run.
func (l *Ledger) PositionsOf(strategyID string) []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Position
	for _, pos := range l.positions {
		if pos.StrategyID == strategyID {
			out = append(out, *pos)
		}
	}
	return out
}

// Trades returns the most recent fills, oldest first. A non-positive
// limit returns the full history.
func (l *Ledger) Trades(limit int) []models.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Trade, n)
	copy(out, l.trades[len(l.trades)-n:])
	return out
}

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// InitialCapital returns the starting cash balance.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// Mode returns the execution mode the ledger records fills under.
func (l *Ledger) Mode() models.TradingMode { return l.mode }

// RealizedNet returns realized PnL after exit commissions.
func (l *Ledger) RealizedNet() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedNet
}

// RealizedGross returns realized PnL before exit commissions.
func (l *Ledger) RealizedGross() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realizedGross
}

// CommissionPaid returns the cumulative fees charged on every fill.
func (l *Ledger) CommissionPaid() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commissionPaid
}

// Summary marks open positions to the supplied prices and reports the
// portfolio. Symbols without a price fall back to their entry price and
// are flagged as unpriced.
func (l *Ledger) Summary(prices map[string]float64) models.PortfolioStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := models.PortfolioStatus{
		Mode:            l.mode,
		InitialCapital:  l.initialCapital,
		Capital:         l.cash,
		RealizedPnL:     l.realizedNet,
		TotalCommission: l.commissionPaid,
		TradeCount:      len(l.trades),
		Timestamp:       time.Now(),
	}
	for _, pos := range l.positions {
		price, known := prices[pos.Symbol]
		if !known {
			price = pos.AvgPrice
		}
		value := pos.Value(price)
		upnl := pos.UnrealizedPnL(price)
		status.PositionsValue += value
		status.UnrealizedPnL += upnl
		status.Positions = append(status.Positions, models.PositionStatus{
			Position:      *pos,
			CurrentPrice:  price,
			Value:         value,
			UnrealizedPnL: upnl,
			UnrealizedPct: upnl / (pos.AvgPrice * pos.Amount) * 100,
			PriceKnown:    known,
		})
	}
	status.TotalValue = status.Capital + status.PositionsValue
	if l.initialCapital > 0 {
		status.TotalReturnPct = (status.TotalValue - l.initialCapital) / l.initialCapital * 100
	}
	return status
}

// ForceClear drops every position and recorded fill belonging to one
// run without selling. It trades consistency for availability when a
// graceful stop cannot complete, so callers must log and meter it.
func (l *Ledger) ForceClear(strategyID string) (positions, trades int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for symbol, pos := range l.positions {
		if pos.StrategyID == strategyID {
			delete(l.positions, symbol)
			positions++
		}
	}
	kept := l.trades[:0]
	for _, t := range l.trades {
		if t.StrategyID == strategyID {
			trades++
			continue
		}
		kept = append(kept, t)
	}
	l.trades = kept

	if l.log != nil && (positions > 0 || trades > 0) {
		l.log.Warn("force cleared run state",
			logger.String("strategy_id", strategyID),
			logger.Int("positions", positions),
			logger.Int("trades", trades),
		)
	}
	return positions, trades
}
