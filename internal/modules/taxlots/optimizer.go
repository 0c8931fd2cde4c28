package taxlots

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LimitationNoSellHistory is reported when wash-sale risk could not be checked.
const LimitationNoSellHistory = "sell history unavailable: wash-sale risk reported as false and not verified"

// Optimizer computes harvest opportunities and long-term hold analysis.
// Output is a pure function of the lots, params, clock and sell history.
type Optimizer struct {
	history domain.SellHistory
	now     domain.Clock
	log     zerolog.Logger
}

// NewOptimizer creates an optimizer. history may be nil.
func NewOptimizer(history domain.SellHistory, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		history: history,
		now:     time.Now,
		log:     log.With().Str("service", "taxlots").Logger(),
	}
}

// WithClock overrides the clock used for holding periods and wash-sale windows.
func (o *Optimizer) WithClock(clock domain.Clock) *Optimizer {
	o.now = clock
	return o
}

// HarvestOpportunities lists lots whose unrealized loss exceeds the loss floor.
func (o *Optimizer) HarvestOpportunities(ctx context.Context, ownerID string, lots []portfolio.Lot, p Params) (*HarvestReport, error) {
	if err := validateRate("tax rate", p.TaxRate); err != nil {
		return nil, err
	}

	now := o.now()
	rate := decimal.NewFromFloat(p.TaxRate)
	floor := decimal.NewFromFloat(p.LossFloor)
	harvestThreshold := decimal.NewFromFloat(p.HarvestThreshold)
	largeLoss := decimal.NewFromFloat(p.LargeLossCutoff)

	report := &HarvestReport{
		GeneratedAt:           now,
		OwnerID:               ownerID,
		Opportunities:         []Opportunity{},
		TotalLoss:             decimal.Zero,
		TotalTaxSavings:       decimal.Zero,
		HarvestableLoss:       decimal.Zero,
		HarvestableTaxSavings: decimal.Zero,
		WashSaleDataAvailable: o.history != nil,
	}

	washChecks := make(map[string]washResult)

	for _, lot := range sortedLots(lots) {
		loss := decimal.NewFromFloat(lot.CostBasis).
			Sub(decimal.NewFromFloat(lot.CurrentPrice)).
			Mul(decimal.NewFromFloat(lot.Quantity)).
			Round(2)
		if !loss.GreaterThan(floor) {
			continue
		}

		savings := loss.Mul(rate).Round(2)

		ws, ok := washChecks[lot.Symbol]
		if !ok {
			var err error
			ws, err = o.checkWashSale(ctx, ownerID, lot.Symbol, now)
			if err != nil {
				return nil, err
			}
			washChecks[lot.Symbol] = ws
		}
		if !ws.checked {
			report.WashSaleDataAvailable = false
		}

		opp := Opportunity{
			WashSaleWindowStart: now.AddDate(0, 0, -WashSaleWindowDays),
			WashSaleWindowEnd:   now.AddDate(0, 0, WashSaleWindowDays),
			AcquiredAt:          lot.AcquiredAt,
			Symbol:              lot.Symbol,
			Priority:            PriorityMedium,
			HoldingID:           lot.HoldingID,
			CurrentPrice:        lot.CurrentPrice,
			CostBasis:           lot.CostBasis,
			Quantity:            lot.Quantity,
			UnrealizedLoss:      loss,
			TaxSavings:          savings,
			LongTerm:            lot.IsLongTerm(now),
			WashSaleRisk:        ws.risk,
			WashSaleChecked:     ws.checked,
			Harvestable:         loss.GreaterThan(harvestThreshold),
		}
		if loss.GreaterThan(largeLoss) {
			opp.Priority = PriorityHigh
		}

		report.Opportunities = append(report.Opportunities, opp)
		report.TotalLoss = report.TotalLoss.Add(loss)
		report.TotalTaxSavings = report.TotalTaxSavings.Add(savings)
		if opp.Harvestable {
			report.HarvestableLoss = report.HarvestableLoss.Add(loss)
			report.HarvestableTaxSavings = report.HarvestableTaxSavings.Add(savings)
		}
	}

	if !report.WashSaleDataAvailable {
		report.Limitations = append(report.Limitations, LimitationNoSellHistory)
	}

	o.log.Debug().
		Str("owner_id", ownerID).
		Int("opportunities", len(report.Opportunities)).
		Str("total_tax_savings", report.TotalTaxSavings.StringFixed(2)).
		Msg("Harvest opportunities computed")

	return report, nil
}

// LongTermCandidates lists short-term lots with a gain, with the tax saved by holding to long-term.
func (o *Optimizer) LongTermCandidates(lots []portfolio.Lot, p Params) ([]LongTermCandidate, error) {
	if err := validateRate("short-term rate", p.ShortTermRate); err != nil {
		return nil, err
	}
	if err := validateRate("long-term rate", p.LongTermRate); err != nil {
		return nil, err
	}

	now := o.now()
	shortRate := decimal.NewFromFloat(p.ShortTermRate)
	longRate := decimal.NewFromFloat(p.LongTermRate)

	candidates := []LongTermCandidate{}
	for _, lot := range sortedLots(lots) {
		gain := decimal.NewFromFloat(lot.CurrentPrice).
			Sub(decimal.NewFromFloat(lot.CostBasis)).
			Mul(decimal.NewFromFloat(lot.Quantity)).
			Round(2)
		if !gain.IsPositive() || lot.IsLongTerm(now) {
			continue
		}

		days := lot.HoldingDays(now)
		shortTax := gain.Mul(shortRate).Round(2)
		longTax := gain.Mul(longRate).Round(2)

		candidates = append(candidates, LongTermCandidate{
			AcquiredAt:     lot.AcquiredAt,
			Symbol:         lot.Symbol,
			HoldingID:      lot.HoldingID,
			Quantity:       lot.Quantity,
			HoldingDays:    days,
			DaysToLongTerm: portfolio.LongTermDays - days,
			UnrealizedGain: gain,
			ShortTermTax:   shortTax,
			LongTermTax:    longTax,
			RateDelta:      shortRate.Sub(longRate),
			SavingsIfHeld:  shortTax.Sub(longTax),
		})
	}

	return candidates, nil
}

type washResult struct {
	risk    bool
	checked bool
}

func (o *Optimizer) checkWashSale(ctx context.Context, ownerID, symbol string, now time.Time) (washResult, error) {
	if o.history == nil {
		return washResult{}, nil
	}

	sold, err := o.history.SoldWithin(ctx, ownerID, symbol, now.AddDate(0, 0, -WashSaleWindowDays))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return washResult{}, err
		}
		o.log.Warn().
			Err(err).
			Str("owner_id", ownerID).
			Str("symbol", symbol).
			Msg("Sell history lookup failed, wash-sale risk not verified")
		return washResult{}, nil
	}

	return washResult{risk: sold, checked: true}, nil
}

func sortedLots(lots []portfolio.Lot) []portfolio.Lot {
	sorted := make([]portfolio.Lot, len(lots))
	copy(sorted, lots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		if !sorted[i].AcquiredAt.Equal(sorted[j].AcquiredAt) {
			return sorted[i].AcquiredAt.Before(sorted[j].AcquiredAt)
		}
		return sorted[i].HoldingID < sorted[j].HoldingID
	})
	return sorted
}

func validateRate(name string, rate float64) error {
	if rate < 0 || rate > 1 {
		return domain.ConfigurationError("%s must be within [0, 1], got %v", name, rate)
	}
	return nil
}
