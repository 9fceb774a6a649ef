package models

import "time"

// OrderRequest asks the exchange gateway for one fill.
type OrderRequest struct {
	Symbol string
	Side   SignalKind // SignalBuy or SignalSell
	Price  float64    // reference price, KRW
	Amount float64    // units
	Mode   TradingMode
}

// Notional returns the KRW value of the requested order.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Amount
}

// OrderResult is the gateway's confirmation of an executed order.
type OrderResult struct {
	OrderID    string
	Symbol     string
	Side       SignalKind
	Price      float64 // executed price
	Amount     float64 // executed units
	Commission float64
	ExecutedAt time.Time
}

// Balance is one currency's holdings on the exchange account.
type Balance struct {
	Currency  string
	Available float64
	InUse     float64
}

// OrderbookLevel is one price level on a side of the book.
type OrderbookLevel struct {
	Price    float64
	Quantity float64
}

// Orderbook is a depth snapshot for one symbol.
type Orderbook struct {
	Symbol    string
	Bids      []OrderbookLevel // descending by price
	Asks      []OrderbookLevel // ascending by price
	Timestamp time.Time
}
