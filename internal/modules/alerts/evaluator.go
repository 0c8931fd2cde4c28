package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/risk"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/rs/zerolog"
)

// SnapshotProvider values an owner's holdings.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, ownerID string, quotes domain.QuoteSource) (*portfolio.Snapshot, error)
}

// HarvestAnalyzer computes tax-loss harvesting opportunities.
type HarvestAnalyzer interface {
	HarvestOpportunities(ctx context.Context, ownerID string, lots []portfolio.Lot, p taxlots.Params) (*taxlots.HarvestReport, error)
}

// RebalancePlanner computes allocation drift.
type RebalancePlanner interface {
	Plan(lots []portfolio.Lot, targets []rebalancing.Target, params rebalancing.Params) *rebalancing.Plan
}

// TargetSource supplies stored allocation targets.
type TargetSource interface {
	Targets(ctx context.Context, ownerID string) ([]rebalancing.Target, error)
}

// RiskSource computes portfolio risk statistics.
type RiskSource interface {
	PortfolioMetrics(ctx context.Context, weights map[string]float64, params risk.Params) (risk.Metrics, error)
}

// EvaluatorDeps are the collaborators rule checks read from. Targets, Risk and Sentiment are optional.
type EvaluatorDeps struct {
	Portfolio SnapshotProvider
	Harvest   HarvestAnalyzer
	Planner   RebalancePlanner
	Targets   TargetSource
	Risk      RiskSource
	Sentiment domain.SentimentSource
}

// EvaluatorParams are the externally configured rates and thresholds.
type EvaluatorParams struct {
	Tax       taxlots.Params
	Rebalance rebalancing.Params
	Risk      risk.Params
	Currency  string
}

// Decision is the outcome of checking one rule. Title, Message and Payload are set only when Triggered.
type Decision struct {
	Payload   Payload
	Reason    string
	Title     string
	Message   string
	Triggered bool
}

// Pass is the state shared by every rule evaluated in one pass: one clock reading,
// one price view and at most one snapshot per owner.
type Pass struct {
	Now    time.Time
	Quotes domain.QuoteSource
	ID     string

	mu        sync.Mutex
	snapshots map[string]*snapshotEntry
}

type snapshotEntry struct {
	once sync.Once
	snap *portfolio.Snapshot
	err  error
}

// NewPass creates pass state.
func NewPass(id string, now time.Time, quotes domain.QuoteSource) *Pass {
	return &Pass{
		ID:        id,
		Now:       now,
		Quotes:    quotes,
		snapshots: make(map[string]*snapshotEntry),
	}
}

// Snapshot returns the owner's snapshot, computing it on first use.
func (p *Pass) Snapshot(ctx context.Context, ownerID string, provider SnapshotProvider) (*portfolio.Snapshot, error) {
	p.mu.Lock()
	entry, ok := p.snapshots[ownerID]
	if !ok {
		entry = &snapshotEntry{}
		p.snapshots[ownerID] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		entry.snap, entry.err = provider.Snapshot(ctx, ownerID, p.Quotes)
	})
	return entry.snap, entry.err
}

type checkFunc func(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error)

// Evaluator decides whether a rule fires. It has no side effects.
type Evaluator struct {
	deps     EvaluatorDeps
	params   EvaluatorParams
	checkers map[RuleType]checkFunc
	log      zerolog.Logger
}

// NewEvaluator creates an evaluator with one checker per rule type.
func NewEvaluator(deps EvaluatorDeps, params EvaluatorParams, log zerolog.Logger) *Evaluator {
	if params.Currency == "" {
		params.Currency = "USD"
	}
	e := &Evaluator{
		deps:   deps,
		params: params,
		log:    log.With().Str("component", "alert_evaluator").Logger(),
	}
	e.checkers = map[RuleType]checkFunc{
		RuleTypePriceTarget:        e.checkPriceTarget,
		RuleTypePurchaseTarget:     e.checkPurchaseTarget,
		RuleTypePortfolioRebalance: e.checkRebalance,
		RuleTypeTaxOptimization:    e.checkTaxOptimization,
		RuleTypeRiskThreshold:      e.checkRiskThreshold,
		RuleTypeMarketSentiment:    e.checkSentiment,
		RuleTypeDCAReminder:        e.checkDCA,
	}
	return e
}

// Evaluate checks a parsed rule against the pass state.
func (e *Evaluator) Evaluate(ctx context.Context, pass *Pass, spec RuleSpec) (Decision, error) {
	rule := spec.Rule
	if !rule.Active {
		return Decision{Reason: "rule is inactive"}, nil
	}

	if spec.Cooldown > 0 && rule.LastTriggeredAt != nil {
		if elapsed := pass.Now.Sub(*rule.LastTriggeredAt); elapsed < spec.Cooldown {
			return Decision{Reason: fmt.Sprintf("cooling down for another %s", (spec.Cooldown - elapsed).Round(time.Minute))}, nil
		}
	}

	check, ok := e.checkers[rule.Type]
	if !ok {
		return Decision{}, domain.ConfigurationError("no checker for rule type %q", rule.Type)
	}
	return check(ctx, pass, spec)
}
