// Package taxlots derives tax-lot analytics from a valued portfolio: harvestable
// losses with wash-sale risk, and short-term gains worth holding to long-term.
package taxlots

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority ranks a harvest opportunity.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// WashSaleWindowDays is the span on either side of a sale in which a repurchase disallows the loss.
const WashSaleWindowDays = 30

// Params are the externally supplied rates and thresholds. Money values are in account currency.
type Params struct {
	TaxRate          float64
	ShortTermRate    float64
	LongTermRate     float64
	LossFloor        float64
	HarvestThreshold float64
	LargeLossCutoff  float64
}

// DefaultParams returns the stock thresholds: $50 floor, $100 harvest and priority cutoffs.
func DefaultParams() Params {
	return Params{
		TaxRate:          0.22,
		ShortTermRate:    0.32,
		LongTermRate:     0.15,
		LossFloor:        50,
		HarvestThreshold: 100,
		LargeLossCutoff:  100,
	}
}

// Opportunity is one lot whose unrealized loss clears the loss floor.
type Opportunity struct {
	WashSaleWindowStart time.Time       `json:"wash_sale_window_start"`
	WashSaleWindowEnd   time.Time       `json:"wash_sale_window_end"`
	AcquiredAt          time.Time       `json:"acquired_at"`
	Symbol              string          `json:"symbol"`
	Priority            Priority        `json:"priority"`
	HoldingID           int64           `json:"holding_id"`
	CurrentPrice        float64         `json:"current_price"`
	CostBasis           float64         `json:"cost_basis"`
	Quantity            float64         `json:"quantity"`
	UnrealizedLoss      decimal.Decimal `json:"unrealized_loss"`
	TaxSavings          decimal.Decimal `json:"tax_savings"`
	LongTerm            bool            `json:"long_term"`
	WashSaleRisk        bool            `json:"wash_sale_risk"`
	WashSaleChecked     bool            `json:"wash_sale_checked"`
	Harvestable         bool            `json:"harvestable"`
}

// HarvestReport aggregates the opportunities of one owner.
type HarvestReport struct {
	GeneratedAt           time.Time       `json:"generated_at"`
	OwnerID               string          `json:"owner_id"`
	Opportunities         []Opportunity   `json:"opportunities"`
	Limitations           []string        `json:"limitations,omitempty"`
	TotalLoss             decimal.Decimal `json:"total_loss"`
	TotalTaxSavings       decimal.Decimal `json:"total_tax_savings"`
	HarvestableLoss       decimal.Decimal `json:"harvestable_loss"`
	HarvestableTaxSavings decimal.Decimal `json:"harvestable_tax_savings"`
	WashSaleDataAvailable bool            `json:"wash_sale_data_available"`
}

// LongTermCandidate is a short-term lot with a gain that would be taxed less if held.
type LongTermCandidate struct {
	AcquiredAt     time.Time       `json:"acquired_at"`
	Symbol         string          `json:"symbol"`
	HoldingID      int64           `json:"holding_id"`
	Quantity       float64         `json:"quantity"`
	HoldingDays    int             `json:"holding_days"`
	DaysToLongTerm int             `json:"days_to_long_term"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	ShortTermTax   decimal.Decimal `json:"short_term_tax"`
	LongTermTax    decimal.Decimal `json:"long_term_tax"`
	RateDelta      decimal.Decimal `json:"rate_delta"`
	SavingsIfHeld  decimal.Decimal `json:"savings_if_held"`
}
