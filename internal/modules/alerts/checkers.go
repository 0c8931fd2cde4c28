package alerts

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/shopspring/decimal"
)

func (e *Evaluator) checkPriceTarget(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(PriceTargetConfig)

	quote, err := pass.Quotes.Quote(ctx, cfg.Symbol)
	if err != nil {
		return Decision{}, err
	}

	hit := quote.Price >= cfg.Target
	if cfg.Direction == DirectionBelow {
		hit = quote.Price <= cfg.Target
	}
	if !hit {
		return Decision{Reason: fmt.Sprintf("%s at %v has not crossed %s %v", cfg.Symbol, quote.Price, cfg.Direction, cfg.Target)}, nil
	}

	price := formatMoney(quote.Price, e.params.Currency)
	target := formatMoney(cfg.Target, e.params.Currency)

	return Decision{
		Triggered: true,
		Title:     fmt.Sprintf("%s %s %s", cfg.Symbol, cfg.Direction, target),
		Message:   fmt.Sprintf("%s is trading at %s, %s your target of %s.", cfg.Symbol, price, cfg.Direction, target),
		Payload: Payload{
			CurrentPrice:  floatPtr(quote.Price),
			Target:        floatPtr(cfg.Target),
			PercentChange: floatPtr(quote.Change24h),
			Direction:     string(cfg.Direction),
			Details:       map[string]any{"symbol": cfg.Symbol},
		},
	}, nil
}

func (e *Evaluator) checkPurchaseTarget(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(PurchaseTargetConfig)

	quote, err := pass.Quotes.Quote(ctx, cfg.Symbol)
	if err != nil {
		return Decision{}, err
	}

	var purchase float64
	if cfg.PurchasePrice != nil {
		purchase = *cfg.PurchasePrice
	} else {
		snap, err := pass.Snapshot(ctx, spec.Rule.OwnerID, e.deps.Portfolio)
		if err != nil {
			return Decision{}, err
		}
		position, held := snap.BySymbol()[cfg.Symbol]
		if !held || position.AverageCost() <= 0 {
			return Decision{}, domain.DataUnavailableError(fmt.Sprintf("no priced holding of %s to derive a purchase price", cfg.Symbol), nil)
		}
		purchase = position.AverageCost()
	}

	change := (quote.Price - purchase) / purchase * 100
	if math.Abs(change) < cfg.TargetPct {
		return Decision{Reason: fmt.Sprintf("%s change %s has not reached %s either way", cfg.Symbol, formatPct(change), formatPct(cfg.TargetPct))}, nil
	}

	verb, direction := "up", DirectionGain
	if change < 0 {
		verb, direction = "down", DirectionLoss
	}

	return Decision{
		Triggered: true,
		Title:     fmt.Sprintf("%s %s %s since purchase", cfg.Symbol, verb, formatPct(math.Abs(change))),
		Message: fmt.Sprintf("%s at %s is %s %s from your purchase price of %s (target %s).",
			cfg.Symbol,
			formatMoney(quote.Price, e.params.Currency),
			verb,
			formatPct(math.Abs(change)),
			formatMoney(purchase, e.params.Currency),
			formatPct(cfg.TargetPct)),
		Payload: Payload{
			CurrentPrice:  floatPtr(quote.Price),
			Target:        floatPtr(cfg.TargetPct),
			PercentChange: floatPtr(change),
			Direction:     string(direction),
			Details: map[string]any{
				"symbol":         cfg.Symbol,
				"purchase_price": purchase,
			},
		},
	}, nil
}

func (e *Evaluator) checkRebalance(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(RebalanceConfig)
	owner := spec.Rule.OwnerID

	snap, err := pass.Snapshot(ctx, owner, e.deps.Portfolio)
	if err != nil {
		return Decision{}, err
	}

	targets := cfg.Targets
	if len(targets) == 0 {
		if e.deps.Targets == nil {
			return Decision{}, domain.ConfigurationError("no allocation targets configured")
		}
		targets, err = e.deps.Targets.Targets(ctx, owner)
		if err != nil {
			return Decision{}, domain.DataUnavailableError("allocation targets", err)
		}
		if len(targets) == 0 {
			return Decision{}, domain.ConfigurationError("owner %s has no allocation targets", owner)
		}
	}

	unheld := make(map[string]bool)
	for _, symbol := range rebalancing.UnheldSymbols(snap.Lots, targets) {
		unheld[symbol] = true
	}
	priced := make([]rebalancing.Target, len(targets))
	for i, t := range targets {
		priced[i] = t
		if unheld[t.Symbol] && t.Price <= 0 {
			if quote, err := pass.Quotes.Quote(ctx, t.Symbol); err == nil {
				priced[i].Price = quote.Price
			}
		}
	}

	params := e.params.Rebalance
	params.ThresholdPct = cfg.ThresholdPct
	plan := e.deps.Planner.Plan(snap.Lots, priced, params)

	if !plan.Needed {
		return Decision{Reason: fmt.Sprintf("max deviation %s within %s", formatPct(plan.MaxDeviation), formatPct(cfg.ThresholdPct))}, nil
	}

	drifted := 0
	for _, a := range plan.Allocations {
		if a.DeviationPct > cfg.ThresholdPct {
			drifted++
		}
	}

	details := map[string]any{
		"trades":         plan.Trades,
		"max_deviation":  plan.MaxDeviation,
		"estimated_cost": plan.EstimatedCost,
		"total_value":    plan.TotalValue,
	}
	if len(plan.Unpriced) > 0 {
		details["unpriced_targets"] = plan.Unpriced
	}
	if len(snap.Unpriced) > 0 {
		details["unpriced_holdings"] = len(snap.Unpriced)
	}

	return Decision{
		Triggered: true,
		Title:     "Portfolio rebalance suggested",
		Message: fmt.Sprintf("%d allocation(s) drifted more than %s from target (max %s). Estimated trading cost %s.",
			drifted, formatPct(cfg.ThresholdPct), formatPct(plan.MaxDeviation),
			formatMoney(plan.EstimatedCost, e.params.Currency)),
		Payload: Payload{
			Target:        floatPtr(cfg.ThresholdPct),
			PercentChange: floatPtr(plan.MaxDeviation),
			Details:       details,
		},
	}, nil
}

func (e *Evaluator) checkTaxOptimization(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(TaxOptimizationConfig)
	owner := spec.Rule.OwnerID

	snap, err := pass.Snapshot(ctx, owner, e.deps.Portfolio)
	if err != nil {
		return Decision{}, err
	}

	params := e.params.Tax
	if cfg.TaxRate != nil {
		params.TaxRate = *cfg.TaxRate
	}

	report, err := e.deps.Harvest.HarvestOpportunities(ctx, owner, snap.Lots, params)
	if err != nil {
		return Decision{}, err
	}

	minSavings := decimal.NewFromFloat(cfg.MinSavings)
	if len(report.Opportunities) == 0 {
		return Decision{Reason: "no lots with a loss above the floor"}, nil
	}
	if report.TotalTaxSavings.LessThan(minSavings) {
		return Decision{Reason: fmt.Sprintf("projected savings %s below minimum %s",
			report.TotalTaxSavings.StringFixed(2), minSavings.StringFixed(2))}, nil
	}

	var washRisk []string
	for _, o := range report.Opportunities {
		if o.WashSaleRisk {
			washRisk = append(washRisk, o.Symbol)
		}
	}

	message := fmt.Sprintf("%d lot(s) could save an estimated %s in taxes (%s unrealized loss).",
		len(report.Opportunities),
		formatMoneyDecimal(report.TotalTaxSavings, e.params.Currency),
		formatMoneyDecimal(report.TotalLoss, e.params.Currency))
	if len(washRisk) > 0 {
		message += fmt.Sprintf(" Wash-sale risk: %s.", strings.Join(washRisk, ", "))
	}
	if !report.WashSaleDataAvailable {
		message += " Wash-sale risk could not be verified."
	}

	savings, _ := report.TotalTaxSavings.Float64()

	return Decision{
		Triggered: true,
		Title:     "Tax-loss harvesting opportunity",
		Message:   message,
		Payload: Payload{
			Target: floatPtr(cfg.MinSavings),
			Details: map[string]any{
				"opportunities":            report.Opportunities,
				"total_tax_savings":        savings,
				"total_loss":               report.TotalLoss.StringFixed(2),
				"harvestable_tax_savings":  report.HarvestableTaxSavings.StringFixed(2),
				"wash_sale_data_available": report.WashSaleDataAvailable,
				"limitations":              report.Limitations,
			},
		},
	}, nil
}

func (e *Evaluator) checkRiskThreshold(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(RiskThresholdConfig)

	snap, err := pass.Snapshot(ctx, spec.Rule.OwnerID, e.deps.Portfolio)
	if err != nil {
		return Decision{}, err
	}
	if snap.TotalInvested <= 0 {
		return Decision{}, domain.DataUnavailableError("no priced holdings to measure drawdown", nil)
	}

	drawdown := math.Max(0, (snap.TotalInvested-snap.TotalValue)/snap.TotalInvested*100)
	details := map[string]any{"drawdown_pct": drawdown}
	var breaches []string
	var notes []string

	if cfg.MaxDrawdownPct != nil && drawdown > *cfg.MaxDrawdownPct {
		breaches = append(breaches, fmt.Sprintf("drawdown %s exceeds %s", formatPct(drawdown), formatPct(*cfg.MaxDrawdownPct)))
	}

	if cfg.MaxVolatilityPct != nil {
		vol, note, err := e.portfolioVolatility(ctx, snap.BySymbol())
		switch {
		case err != nil && cfg.MaxDrawdownPct == nil:
			return Decision{}, err
		case err != nil:
			notes = append(notes, err.Error())
		case note != "":
			notes = append(notes, note)
		default:
			details["volatility_pct"] = vol
			if vol > *cfg.MaxVolatilityPct {
				breaches = append(breaches, fmt.Sprintf("volatility %s exceeds %s", formatPct(vol), formatPct(*cfg.MaxVolatilityPct)))
			}
		}
	}
	if len(notes) > 0 {
		details["notes"] = notes
	}

	if len(breaches) == 0 {
		reason := fmt.Sprintf("drawdown %s within limits", formatPct(drawdown))
		if len(notes) > 0 {
			reason += "; " + strings.Join(notes, "; ")
		}
		return Decision{Reason: reason}, nil
	}

	payload := Payload{PercentChange: floatPtr(-drawdown), Details: details}
	if cfg.MaxDrawdownPct != nil {
		payload.Target = floatPtr(*cfg.MaxDrawdownPct)
	}

	return Decision{
		Triggered: true,
		Title:     "Risk threshold breached",
		Message:   "Portfolio " + strings.Join(breaches, " and ") + ".",
		Payload:   payload,
	}, nil
}

// portfolioVolatility returns annualized volatility in percent, or a note when it cannot be computed.
func (e *Evaluator) portfolioVolatility(ctx context.Context, positions map[string]portfolio.Position) (float64, string, error) {
	if e.deps.Risk == nil {
		return 0, "volatility unavailable: no price history configured", nil
	}

	weights := make(map[string]float64, len(positions))
	for symbol, p := range positions {
		weights[symbol] = p.Value
	}

	metrics, err := e.deps.Risk.PortfolioMetrics(ctx, weights, e.params.Risk)
	if err != nil {
		return 0, "", err
	}
	if !metrics.Available {
		return 0, "volatility unavailable: " + metrics.Reason, nil
	}
	return metrics.AnnualVolatility * 100, "", nil
}

func (e *Evaluator) checkSentiment(ctx context.Context, _ *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(SentimentConfig)
	if e.deps.Sentiment == nil {
		return Decision{}, domain.DataUnavailableError("no sentiment source configured", nil)
	}

	score, err := e.deps.Sentiment.Score(ctx, cfg.Symbol)
	if err != nil {
		return Decision{}, err
	}

	high := 100 - cfg.LowThreshold
	var mood, direction string
	switch {
	case score <= cfg.LowThreshold:
		mood, direction = "fear", string(DirectionBelow)
	case score >= high:
		mood, direction = "greed", string(DirectionAbove)
	default:
		return Decision{Reason: fmt.Sprintf("%s sentiment %.0f is between %.0f and %.0f", cfg.Symbol, score, cfg.LowThreshold, high)}, nil
	}

	return Decision{
		Triggered: true,
		Title:     fmt.Sprintf("Extreme %s in %s", mood, cfg.Symbol),
		Message:   fmt.Sprintf("%s sentiment score is %.0f, signalling extreme %s.", cfg.Symbol, score, mood),
		Payload: Payload{
			Target:    floatPtr(cfg.LowThreshold),
			Direction: direction,
			Details:   map[string]any{"symbol": cfg.Symbol, "score": score, "mood": mood},
		},
	}, nil
}

func (e *Evaluator) checkDCA(_ context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	cfg := spec.Config.(DCAConfig)
	last := spec.Rule.LastTriggeredAt

	if last != nil && pass.Now.Sub(*last) < cfg.Interval {
		return Decision{Reason: fmt.Sprintf("next reminder due %s", last.Add(cfg.Interval).Format("2006-01-02 15:04"))}, nil
	}

	what := "your recurring investment"
	if cfg.Symbol != "" {
		what = fmt.Sprintf("your recurring %s purchase", cfg.Symbol)
	}
	if cfg.Amount != nil {
		what += " of " + formatMoney(*cfg.Amount, e.params.Currency)
	}

	details := map[string]any{"interval_days": cfg.Interval.Hours() / 24}
	if cfg.Symbol != "" {
		details["symbol"] = cfg.Symbol
	}

	return Decision{
		Triggered: true,
		Title:     "DCA reminder",
		Message:   fmt.Sprintf("Time for %s.", what),
		Payload:   Payload{Target: cfg.Amount, Details: details},
	}, nil
}
