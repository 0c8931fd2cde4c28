package portfolio

import (
	"sort"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
)

// LongTermDays is the holding period after which a gain is taxed at the long-term rate.
const LongTermDays = 365

// Lot is a valued, read-only view of one holding at snapshot time.
type Lot struct {
	AcquiredAt   time.Time `json:"acquired_at"`
	Symbol       string    `json:"symbol"`
	HoldingID    int64     `json:"holding_id"`
	Quantity     float64   `json:"quantity"`
	CostBasis    float64   `json:"cost_basis"`
	CurrentPrice float64   `json:"current_price"`
	Change24h    float64   `json:"change_24h"`
}

// Value returns price × quantity.
func (l Lot) Value() float64 {
	return l.CurrentPrice * l.Quantity
}

// Invested returns cost × quantity.
func (l Lot) Invested() float64 {
	return l.CostBasis * l.Quantity
}

// UnrealizedPnL is negative for a loss.
func (l Lot) UnrealizedPnL() float64 {
	return (l.CurrentPrice - l.CostBasis) * l.Quantity
}

// HoldingDays returns whole days held as of now.
func (l Lot) HoldingDays(now time.Time) int {
	if now.Before(l.AcquiredAt) {
		return 0
	}
	return int(now.Sub(l.AcquiredAt).Hours() / 24)
}

func (l Lot) IsLongTerm(now time.Time) bool {
	return l.HoldingDays(now) >= LongTermDays
}

// UnpricedHolding is a holding left out of the aggregates because its price lookup failed.
type UnpricedHolding struct {
	Holding domain.Holding `json:"holding"`
	Reason  string         `json:"reason"`
}

// Position aggregates every priced lot of one symbol.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
	Invested float64 `json:"invested"`
	Price    float64 `json:"price"`
}

// AverageCost returns the quantity-weighted cost basis per unit.
func (p Position) AverageCost() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.Invested / p.Quantity
}

// Snapshot is a point-in-time valuation of one owner's holdings.
type Snapshot struct {
	TakenAt       time.Time         `json:"taken_at"`
	OwnerID       string            `json:"owner_id"`
	Lots          []Lot             `json:"lots"`
	Unpriced      []UnpricedHolding `json:"unpriced,omitempty"`
	TotalValue    float64           `json:"total_value"`
	TotalInvested float64           `json:"total_invested"`
}

// BySymbol aggregates priced lots per symbol.
func (s *Snapshot) BySymbol() map[string]Position {
	positions := make(map[string]Position)
	for _, lot := range s.Lots {
		p := positions[lot.Symbol]
		p.Symbol = lot.Symbol
		p.Quantity += lot.Quantity
		p.Value += lot.Value()
		p.Invested += lot.Invested()
		p.Price = lot.CurrentPrice
		positions[lot.Symbol] = p
	}
	return positions
}

// Symbols returns the distinct priced symbols in ascending order.
func (s *Snapshot) Symbols() []string {
	bySymbol := s.BySymbol()
	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// UnrealizedPnL returns value minus invested over priced lots.
func (s *Snapshot) UnrealizedPnL() float64 {
	return s.TotalValue - s.TotalInvested
}
