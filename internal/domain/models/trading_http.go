package models

// Requests for trading and market HTTP endpoints. Defined in domain for consistency and reuse.

type StartStrategyRequest struct {
	Strategy string      `json:"strategy" validate:"required,oneof=momentum scalping swing dca"`
	Symbols  []string    `json:"symbols" validate:"omitempty,dive,required"`
	Mode     TradingMode `json:"mode" validate:"omitempty,oneof=simulation paper live"`
	Capital  float64     `json:"capital" validate:"omitempty,gt=0"`
}

type StrategyNameRequest struct {
	Name string `param:"name" json:"name" validate:"required"`
}

type OpportunitiesRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=50"`
}

type MarketSnapshotRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type CandlesRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"200" validate:"gte=1,lte=200"`
}

type BacktestSubmitRequest struct {
	Strategy string   `json:"strategy" validate:"required,oneof=momentum scalping swing dca"`
	Symbols  []string `json:"symbols" validate:"required,min=1,dive,required"`
	From     string   `json:"from" validate:"required"`
	To       string   `json:"to" validate:"required"`
	Capital  float64  `json:"capital" validate:"omitempty,gt=0"`
	TF       string   `json:"tf" default:"1m" validate:"oneof=1m 5m 30m 1h"`
}

type TradesRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type BacktestResultRequest struct {
	RunID string `param:"id" json:"id" validate:"required"`
}
