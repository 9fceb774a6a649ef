package api

import (
	"math"
	"sort"
	"time"

	"github.com/kiheon-jang/autoTrade-sub000/internal/domain/models"
	"github.com/kiheon-jang/autoTrade-sub000/internal/usecase"
)

// Response views. Domain models stay tag-free; everything leaving over
// HTTP is copied into one of these.

type RunView struct {
	ID           string     `json:"id"`
	Strategy     string     `json:"strategy"`
	Symbols      []string   `json:"symbols"`
	Mode         string     `json:"mode"`
	State        string     `json:"state"`
	Interval     string     `json:"interval"`
	StartedAt    time.Time  `json:"started_at"`
	LastExecuted *time.Time `json:"last_executed,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func newRunView(r models.StrategyRun) RunView {
	return RunView{
		ID:           r.ID,
		Strategy:     r.Strategy,
		Symbols:      r.Symbols,
		Mode:         r.Mode.String(),
		State:        r.State.String(),
		Interval:     r.Interval.String(),
		StartedAt:    r.StartedAt,
		LastExecuted: timeOrNil(r.LastExecuted),
		Error:        r.Error,
	}
}

func newRunViews(runs []models.StrategyRun) []RunView {
	sort.Slice(runs, func(i, j int) bool { return runs[i].Strategy < runs[j].Strategy })
	out := make([]RunView, 0, len(runs))
	for _, r := range runs {
		out = append(out, newRunView(r))
	}
	return out
}

type PositionView struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Amount        float64   `json:"amount"`
	AvgPrice      float64   `json:"avg_price"`
	CurrentPrice  float64   `json:"current_price"`
	Value         float64   `json:"value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UnrealizedPct float64   `json:"unrealized_pct"`
	PriceKnown    bool      `json:"price_known"`
	StrategyID    string    `json:"strategy_id"`
	OpenedAt      time.Time `json:"opened_at"`
}

func newPositionView(p models.PositionStatus) PositionView {
	return PositionView{
		Symbol:        p.Position.Symbol,
		Side:          string(p.Position.Side),
		Amount:        p.Position.Amount,
		AvgPrice:      p.Position.AvgPrice,
		CurrentPrice:  p.CurrentPrice,
		Value:         p.Value,
		UnrealizedPnL: p.UnrealizedPnL,
		UnrealizedPct: p.UnrealizedPct,
		PriceKnown:    p.PriceKnown,
		StrategyID:    p.Position.StrategyID,
		OpenedAt:      p.Position.OpenedAt,
	}
}

type PortfolioView struct {
	Mode            string         `json:"mode"`
	InitialCapital  float64        `json:"initial_capital"`
	Capital         float64        `json:"capital"`
	PositionsValue  float64        `json:"positions_value"`
	TotalValue      float64        `json:"total_value"`
	RealizedPnL     float64        `json:"realized_pnl"`
	UnrealizedPnL   float64        `json:"unrealized_pnl"`
	TotalReturnPct  float64        `json:"total_return_pct"`
	TotalCommission float64        `json:"total_commission"`
	TradeCount      int            `json:"trade_count"`
	Positions       []PositionView `json:"positions"`
	Timestamp       time.Time      `json:"timestamp"`
}

func newPortfolioView(s models.PortfolioStatus) PortfolioView {
	positions := make([]PositionView, 0, len(s.Positions))
	for _, p := range s.Positions {
		positions = append(positions, newPositionView(p))
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return PortfolioView{
		Mode:            s.Mode.String(),
		InitialCapital:  s.InitialCapital,
		Capital:         s.Capital,
		PositionsValue:  s.PositionsValue,
		TotalValue:      s.TotalValue,
		RealizedPnL:     s.RealizedPnL,
		UnrealizedPnL:   s.UnrealizedPnL,
		TotalReturnPct:  s.TotalReturnPct,
		TotalCommission: s.TotalCommission,
		TradeCount:      s.TradeCount,
		Positions:       positions,
		Timestamp:       s.Timestamp,
	}
}

type TradeView struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Strategy   string    `json:"strategy"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Commission float64   `json:"commission"`
	GrossPnL   float64   `json:"gross_pnl"`
	NetPnL     float64   `json:"net_pnl"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

func newTradeView(t models.Trade) TradeView {
	return TradeView{
		ID:         t.ID,
		StrategyID: t.StrategyID,
		Strategy:   t.Strategy,
		Symbol:     t.Symbol,
		Side:       t.Side.String(),
		Price:      t.Price,
		Amount:     t.Amount,
		Commission: t.Commission,
		GrossPnL:   t.GrossPnL,
		NetPnL:     t.NetPnL,
		Strength:   t.SignalStrength,
		Confidence: t.SignalConfidence,
		Mode:       t.Mode.String(),
		Status:     string(t.Status),
		Reason:     t.Reason,
		ExecutedAt: t.ExecutedAt,
	}
}

func newTradeViews(trades []models.Trade) []TradeView {
	out := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, newTradeView(t))
	}
	return out
}

type TierView struct {
	Count   int      `json:"count"`
	Symbols []string `json:"symbols"`
}

type TierStatusView struct {
	Hot       TierView  `json:"hot"`
	Core      TierView  `json:"core"`
	Broad     TierView  `json:"broad"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTierStatusView(ts models.TierSet) TierStatusView {
	return TierStatusView{
		Hot:       TierView{Count: len(ts.Hot), Symbols: ts.Hot},
		Core:      TierView{Count: len(ts.Core), Symbols: ts.Core},
		Broad:     TierView{Count: len(ts.Broad), Symbols: ts.Broad},
		Total:     len(ts.Hot) + len(ts.Core) + len(ts.Broad),
		UpdatedAt: ts.UpdatedAt,
	}
}

type OpportunityView struct {
	Symbol     string  `json:"symbol"`
	Tier       string  `json:"tier"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Strength   float64 `json:"strength"`
	Score      float64 `json:"score"`
	Price      float64 `json:"price"`
}

func newOpportunityViews(ops []models.Opportunity) []OpportunityView {
	out := make([]OpportunityView, 0, len(ops))
	for _, o := range ops {
		out = append(out, OpportunityView{
			Symbol:     o.Symbol,
			Tier:       o.Tier.String(),
			Kind:       o.Kind.String(),
			Confidence: o.Confidence,
			Strength:   o.Strength,
			Score:      o.Score,
			Price:      o.Price,
		})
	}
	return out
}

type TickerView struct {
	Price      float64   `json:"price"`
	Open24h    float64   `json:"open_24h"`
	High24h    float64   `json:"high_24h"`
	Low24h     float64   `json:"low_24h"`
	Volume24h  float64   `json:"volume_24h"`
	Value24h   float64   `json:"value_24h"`
	ChangeRate float64   `json:"change_rate"`
	Timestamp  time.Time `json:"timestamp"`
}

type IndicatorsView struct {
	RSI        float64   `json:"rsi"`
	SMA5       float64   `json:"sma5"`
	SMA20      float64   `json:"sma20"`
	EMA12      float64   `json:"ema12"`
	EMA26      float64   `json:"ema26"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	BollUpper  float64   `json:"boll_upper"`
	BollMiddle float64   `json:"boll_middle"`
	BollLower  float64   `json:"boll_lower"`
	Ready      bool      `json:"ready"`
	Timestamp  time.Time `json:"timestamp"`
}

type MLSignalView struct {
	Kind       string    `json:"kind"`
	Confidence float64   `json:"confidence"`
	Strength   float64   `json:"strength"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

type WindowStatsView struct {
	Bars           int     `json:"bars"`
	ChangePct      float64 `json:"change_pct"`
	RealizedVol    float64 `json:"realized_vol"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

type DepthView struct {
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	SpreadPct float64   `json:"spread_pct"`
	BidVolume float64   `json:"bid_volume"`
	AskVolume float64   `json:"ask_volume"`
	Timestamp time.Time `json:"timestamp"`
}

type AnalysisView struct {
	Symbol      string            `json:"symbol"`
	Tier        string            `json:"tier"`
	Ticker      TickerView        `json:"ticker"`
	Indicators  *IndicatorsView   `json:"indicators,omitempty"`
	ML          *MLSignalView     `json:"ml,omitempty"`
	Window      WindowStatsView   `json:"window"`
	Depth       *DepthView        `json:"depth,omitempty"`
	RecentFills []TradeView       `json:"recent_fills,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func newAnalysisView(a *usecase.SymbolAnalysis) AnalysisView {
	v := AnalysisView{
		Symbol: a.Symbol,
		Tier:   a.Tier.String(),
		Ticker: TickerView{
			Price:      a.Ticker.Price,
			Open24h:    a.Ticker.Open24h,
			High24h:    a.Ticker.High24h,
			Low24h:     a.Ticker.Low24h,
			Volume24h:  a.Ticker.Volume24h,
			Value24h:   a.Ticker.Value24h,
			ChangeRate: a.Ticker.ChangeRate,
			Timestamp:  a.Ticker.Timestamp,
		},
		Window: WindowStatsView{
			Bars:           a.Window.Bars,
			ChangePct:      a.Window.ChangePct,
			RealizedVol:    a.Window.RealizedVol,
			MaxDrawdownPct: a.Window.MaxDrawdownPct,
		},
		Errors:    a.Errors,
		Timestamp: a.Timestamp,
	}
	if a.Indicators != nil {
		v.Indicators = &IndicatorsView{
			RSI:        a.Indicators.RSI,
			SMA5:       a.Indicators.SMA5,
			SMA20:      a.Indicators.SMA20,
			EMA12:      a.Indicators.EMA12,
			EMA26:      a.Indicators.EMA26,
			MACD:       a.Indicators.MACD,
			MACDSignal: a.Indicators.MACDSignal,
			BollUpper:  a.Indicators.BollUpper,
			BollMiddle: a.Indicators.BollMiddle,
			BollLower:  a.Indicators.BollLower,
			Ready:      a.Indicators.Ready,
			Timestamp:  a.Indicators.Timestamp,
		}
	}
	if a.ML != nil {
		v.ML = &MLSignalView{
			Kind:       a.ML.Kind.String(),
			Confidence: a.ML.Confidence,
			Strength:   a.ML.Strength,
			Source:     a.ML.Source,
			Timestamp:  a.ML.Timestamp,
		}
	}
	if a.Depth != nil {
		v.Depth = &DepthView{
			BestBid:   a.Depth.BestBid,
			BestAsk:   a.Depth.BestAsk,
			SpreadPct: a.Depth.SpreadPct,
			BidVolume: a.Depth.BidVolume,
			AskVolume: a.Depth.AskVolume,
			Timestamp: a.Depth.Timestamp,
		}
	}
	if len(a.RecentFills) > 0 {
		v.RecentFills = newTradeViews(a.RecentFills)
	}
	return v
}

type CandleView struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

type CandlesView struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Source    string       `json:"source"`
	Count     int          `json:"count"`
	Candles   []CandleView `json:"candles"`
}

func newCandlesView(r *usecase.RecentCandlesResult) CandlesView {
	candles := make([]CandleView, 0, len(r.Candles))
	for _, c := range r.Candles {
		candles = append(candles, CandleView{
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return CandlesView{
		Symbol:    r.Symbol,
		Timeframe: r.Timeframe,
		Source:    r.Source,
		Count:     r.Count,
		Candles:   candles,
	}
}

type EquityPointView struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

type BacktestView struct {
	RunID          string     `json:"run_id"`
	Status         string     `json:"status"`
	Strategy       string     `json:"strategy"`
	Symbols        []string   `json:"symbols"`
	From           time.Time  `json:"from"`
	To             time.Time  `json:"to"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	InitialCapital float64    `json:"initial_capital"`
	FinalEquity    float64    `json:"final_equity"`

	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	WinRate             float64 `json:"win_rate"`
	ProfitFactor        float64 `json:"profit_factor"`

	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	TotalCommission float64 `json:"total_commission"`
	CommissionPct   float64 `json:"commission_pct"`

	EquityCurve []EquityPointView `json:"equity_curve,omitempty"`
	Trades      []TradeView       `json:"trades,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func newBacktestView(r *models.BacktestResult) BacktestView {
	// JSON cannot encode +Inf; a run with no losing trades saturates.
	pf := r.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = math.MaxFloat64
	}
	v := BacktestView{
		RunID:          r.RunID,
		Status:         r.Status.String(),
		Strategy:       r.Strategy,
		Symbols:        r.Symbols,
		From:           r.From,
		To:             r.To,
		StartedAt:      timeOrNil(r.StartedAt),
		FinishedAt:     timeOrNil(r.FinishedAt),
		InitialCapital: r.InitialCapital,
		FinalEquity:    r.FinalEquity,

		TotalReturnPct:      r.TotalReturnPct,
		AnnualizedReturnPct: r.AnnualizedReturnPct,
		SharpeRatio:         r.SharpeRatio,
		SortinoRatio:        r.SortinoRatio,
		MaxDrawdownPct:      r.MaxDrawdownPct,
		WinRate:             r.WinRate,
		ProfitFactor:        pf,

		TotalTrades:     r.TotalTrades,
		WinningTrades:   r.WinningTrades,
		LosingTrades:    r.LosingTrades,
		TotalCommission: r.TotalCommission,
		CommissionPct:   r.CommissionPct,

		Error: r.Error,
	}
	if len(r.EquityCurve) > 0 {
		v.EquityCurve = make([]EquityPointView, 0, len(r.EquityCurve))
		for _, p := range r.EquityCurve {
			v.EquityCurve = append(v.EquityCurve, EquityPointView{Timestamp: p.Timestamp, Equity: p.Equity})
		}
	}
	if len(r.Trades) > 0 {
		v.Trades = newTradeViews(r.Trades)
	}
	return v
}

type SubmittedView struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type StreamHealthView struct {
	Attached  bool `json:"attached"`
	Connected bool `json:"connected"`
}

type HealthView struct {
	Status     string            `json:"status"`
	Mode       string            `json:"mode"`
	Uptime     string            `json:"uptime"`
	ActiveRuns int               `json:"active_runs"`
	Stream     StreamHealthView  `json:"stream"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
