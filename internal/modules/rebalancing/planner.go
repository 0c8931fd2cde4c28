// Package rebalancing computes allocation drift against owner targets and the
// trades that would close it.
package rebalancing

import (
	"math"
	"sort"

	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// Action is the side of a proposed trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// DefaultFeeRate is the trading fee applied to every proposed trade's value.
const DefaultFeeRate = 0.001

// Target is a desired allocation percentage for one symbol.
// Price is only consulted when the symbol is not held; zero means unknown.
type Target struct {
	Symbol string  `json:"symbol"`
	Pct    float64 `json:"pct"`
	Price  float64 `json:"price,omitempty"`
}

// Params configures drift detection.
type Params struct {
	ThresholdPct float64
	FeeRate      float64
}

// Trade is a proposed buy or sell that moves a symbol back to its target.
type Trade struct {
	Symbol       string  `json:"symbol"`
	Action       Action  `json:"action"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	Value        float64 `json:"value"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	DeviationPct float64 `json:"deviation_pct"`
}

// Allocation is the current-versus-target reading of one target symbol.
type Allocation struct {
	Symbol       string  `json:"symbol"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	DeviationPct float64 `json:"deviation_pct"`
}

// Plan is the result of comparing a portfolio with its targets.
type Plan struct {
	Allocations   []Allocation `json:"allocations"`
	Trades        []Trade      `json:"trades"`
	Unpriced      []string     `json:"unpriced,omitempty"`
	TotalValue    float64      `json:"total_value"`
	MaxDeviation  float64      `json:"max_deviation"`
	EstimatedCost float64      `json:"estimated_cost"`
	Needed        bool         `json:"needed"`
}

// Planner produces rebalance plans. It holds no state beyond its logger.
type Planner struct {
	log zerolog.Logger
}

// NewPlanner creates a new planner
func NewPlanner(log zerolog.Logger) *Planner {
	return &Planner{
		log: log.With().Str("service", "rebalancing").Logger(),
	}
}

// Plan compares priced lots with targets.
// A target drifts when |target − current| exceeds ThresholdPct; every drifting target makes the
// plan Needed, even when no trade can be sized for it because its price is unknown.
func (p *Planner) Plan(lots []portfolio.Lot, targets []Target, params Params) *Plan {
	plan := &Plan{
		Allocations: []Allocation{},
		Trades:      []Trade{},
	}

	values := make(map[string]float64)
	prices := make(map[string]float64)
	for _, lot := range lots {
		values[lot.Symbol] += lot.Value()
		prices[lot.Symbol] = lot.CurrentPrice
		plan.TotalValue += lot.Value()
	}

	if plan.TotalValue <= 0 {
		p.log.Debug().Msg("Portfolio has no value, nothing to rebalance")
		return plan
	}

	sorted := make([]Target, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	for _, target := range sorted {
		currentValue := values[target.Symbol]
		currentPct := currentValue / plan.TotalValue * 100
		deviation := math.Abs(target.Pct - currentPct)

		plan.Allocations = append(plan.Allocations, Allocation{
			Symbol:       target.Symbol,
			CurrentPct:   currentPct,
			TargetPct:    target.Pct,
			DeviationPct: deviation,
		})
		plan.MaxDeviation = math.Max(plan.MaxDeviation, deviation)

		if deviation <= params.ThresholdPct {
			continue
		}
		plan.Needed = true

		price, held := prices[target.Symbol]
		if !held {
			price = target.Price
		}
		if price <= 0 {
			plan.Unpriced = append(plan.Unpriced, target.Symbol)
			continue
		}

		targetValue := plan.TotalValue * target.Pct / 100
		delta := targetValue - currentValue
		action := ActionSell
		if delta > 0 {
			action = ActionBuy
		}

		trade := Trade{
			Symbol:       target.Symbol,
			Action:       action,
			Quantity:     math.Abs(delta) / price,
			Price:        price,
			Value:        math.Abs(delta),
			CurrentPct:   currentPct,
			TargetPct:    target.Pct,
			DeviationPct: deviation,
		}
		plan.Trades = append(plan.Trades, trade)
		plan.EstimatedCost += trade.Value * params.FeeRate
	}

	sort.SliceStable(plan.Trades, func(i, j int) bool {
		if plan.Trades[i].DeviationPct != plan.Trades[j].DeviationPct {
			return plan.Trades[i].DeviationPct > plan.Trades[j].DeviationPct
		}
		return plan.Trades[i].Symbol < plan.Trades[j].Symbol
	})

	return plan
}

// UnheldSymbols returns target symbols that have no priced lot.
func UnheldSymbols(lots []portfolio.Lot, targets []Target) []string {
	held := make(map[string]bool, len(lots))
	for _, lot := range lots {
		held[lot.Symbol] = true
	}
	var out []string
	for _, t := range targets {
		if !held[t.Symbol] {
			out = append(out, t.Symbol)
		}
	}
	return out
}
