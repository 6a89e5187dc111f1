// Package domain defines the core value types shared across the trading
// system: quotes, positions, bars, orders, and fills.
package domain

import "time"

// OrderSide distinguishes buy from sell orders.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// PriceType selects how the broker should price an order.
type PriceType string

const (
	// PriceTypeLimit is a plain limit order at an explicit price.
	PriceTypeLimit PriceType = "limit"

	// PriceTypeBestFiveCancel is the SZSE marketable convention: match
	// against the best five levels, cancel the remainder. No explicit
	// price is carried.
	PriceTypeBestFiveCancel PriceType = "best5-cancel"

	// PriceTypePeerBest is the SSE peer-price-first convention. The order
	// carries an explicit reference price offset by a premium.
	PriceTypePeerBest PriceType = "peer-best"
)

// Quote is one snapshot of an instrument's trading state, replaced or
// merged on every push from the market-data feed. Never persisted.
type Quote struct {
	Code      string    `json:"code"`
	LastPrice float64   `json:"lastPrice"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	LastClose float64   `json:"lastClose"` // previous session close
	Volume    int64     `json:"volume"`    // cumulative lots today
	Amount    float64   `json:"amount"`    // cumulative turnover today
	BidPrices []float64 `json:"bidPrices,omitempty"`
	BidSizes  []int64   `json:"bidSizes,omitempty"`
	AskPrices []float64 `json:"askPrices,omitempty"`
	AskSizes  []int64   `json:"askSizes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the quote carries the fields every rule needs.
// Partial pushes (warm-up packets, halted instruments) fail this check
// and are skipped for the cycle.
func (q Quote) Valid() bool {
	return q.LastPrice > 0 && q.LastClose > 0
}

// Position is a broker-owned snapshot of one holding, read once per
// evaluation cycle. The core never mutates it.
type Position struct {
	Code         string
	OpenPrice    float64 // average cost
	Volume       int64   // total shares
	UsableVolume int64   // sellable today
}

// Asset is a broker account snapshot.
type Asset struct {
	Cash       float64
	TotalValue float64
}

// Bar is one daily OHLCV row of historical data.
type Bar struct {
	Code      string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64
}

// Order is the write-only artifact handed to the broker delegate. The
// core does not retain it after submission.
type Order struct {
	Code      string
	Side      OrderSide
	PriceType PriceType
	Price     float64 // -1 when the price type carries no explicit price
	Volume    int64
	Remark    string // human-readable reason, e.g. a rule label
	Strategy  string // strategy tag
}

// Fill is an asynchronous trade confirmation from the broker.
type Fill struct {
	Code   string
	Side   OrderSide
	Volume int64
	Price  float64
	Remark string
}

// OrderError is an asynchronous rejection from the broker.
type OrderError struct {
	Code    string
	ErrorID int
	Message string
}
