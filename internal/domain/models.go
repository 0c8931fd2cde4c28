// Package domain provides core domain models, collaborator contracts and errors
// shared by the evaluation engine.
package domain

import "time"

// MarketSymbol is the pseudo-symbol used for market-wide readings such as sentiment.
const MarketSymbol = "MARKET"

// Quote is a price observation returned by a PriceOracle.
type Quote struct {
	FetchedAt time.Time `json:"fetched_at" msgpack:"fetched_at"`
	Symbol    string    `json:"symbol" msgpack:"symbol"`
	Price     float64   `json:"price" msgpack:"price"`
	Change24h float64   `json:"change_24h" msgpack:"change_24h"` // percent
}

// Holding is a stored lot record before it is valued.
type Holding struct {
	AcquiredAt time.Time `json:"acquired_at"`
	OwnerID    string    `json:"owner_id"`
	Symbol     string    `json:"symbol"`
	ID         int64     `json:"id"`
	Quantity   float64   `json:"quantity"`
	CostBasis  float64   `json:"cost_basis"` // per unit
}

// Sale is a realized sell used for wash-sale checks.
type Sale struct {
	SoldAt   time.Time `json:"sold_at"`
	OwnerID  string    `json:"owner_id"`
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
}

// DailyBar is one daily closing price from a market data provider.
type DailyBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}
