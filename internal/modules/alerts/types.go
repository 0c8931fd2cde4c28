// Package alerts evaluates user-defined alert rules against live market and
// portfolio state and fires at-most-once notifications.
package alerts

import (
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
)

// RuleType is the closed set of alert kinds.
type RuleType string

const (
	RuleTypePriceTarget        RuleType = "price_target"
	RuleTypePurchaseTarget     RuleType = "purchase_target"
	RuleTypePortfolioRebalance RuleType = "portfolio_rebalance"
	RuleTypeTaxOptimization    RuleType = "tax_optimization"
	RuleTypeRiskThreshold      RuleType = "risk_threshold"
	RuleTypeMarketSentiment    RuleType = "market_sentiment"
	RuleTypeDCAReminder        RuleType = "dca_reminder"
)

// AllRuleTypes lists every supported type.
var AllRuleTypes = []RuleType{
	RuleTypePriceTarget,
	RuleTypePurchaseTarget,
	RuleTypePortfolioRebalance,
	RuleTypeTaxOptimization,
	RuleTypeRiskThreshold,
	RuleTypeMarketSentiment,
	RuleTypeDCAReminder,
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	for _, known := range AllRuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OneShot rules deactivate when they fire; all others record last_triggered_at and stay active.
func (t RuleType) OneShot() bool {
	return t == RuleTypePriceTarget || t == RuleTypePurchaseTarget
}

// Rule is an owner-defined alert as stored.
type Rule struct {
	CreatedAt       time.Time      `json:"created_at"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	TargetValue     *float64       `json:"target_value,omitempty"`
	Config          map[string]any `json:"config"`
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	Type            RuleType       `json:"type"`
	Symbol          string         `json:"symbol,omitempty"`
	Active          bool           `json:"active"`
}

// Payload carries the values behind a triggered alert.
type Payload struct {
	CurrentPrice  *float64       `json:"currentPrice,omitempty"`
	Target        *float64       `json:"target,omitempty"`
	PercentChange *float64       `json:"percentChange,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	Direction     string         `json:"direction,omitempty"`
}

// TriggeredAlert is created when a rule fires and handed to the notification sink.
type TriggeredAlert struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	RuleID    string    `json:"ruleId"`
	OwnerID   string    `json:"ownerId"`
	Type      RuleType  `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Payload   Payload   `json:"payload"`
}

// Outcome is what happened to one rule in a pass.
type Outcome string

const (
	OutcomeTriggered    Outcome = "triggered"
	OutcomeNotTriggered Outcome = "not_triggered"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped"
)

// RuleResult records the evaluation of one rule.
type RuleResult struct {
	Err       error            `json:"-"`
	RuleID    string           `json:"rule_id"`
	OwnerID   string           `json:"owner_id"`
	Type      RuleType         `json:"type"`
	Outcome   Outcome          `json:"outcome"`
	Reason    string           `json:"reason,omitempty"`
	AlertID   string           `json:"alert_id,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  time.Duration    `json:"duration"`
	Retried   bool             `json:"retried,omitempty"`
	Delivered bool             `json:"delivered"`
}

func (r *RuleResult) setErr(err error) {
	r.Err = domain.NewRuleError(r.RuleID, err)
	r.ErrorKind = domain.KindOf(err)
	r.Error = err.Error()
}

// Summary is returned by every pass, whether or not any rule succeeded.
type Summary struct {
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	PassID           string       `json:"pass_id"`
	Error            string       `json:"error,omitempty"`
	Results          []RuleResult `json:"results"`
	TotalProcessed   int          `json:"total_processed"`
	TriggeredCount   int          `json:"triggered_count"`
	FailedCount      int          `json:"failed_count"`
	DeliveryFailures int          `json:"delivery_failures"`
	NotDispatched    int          `json:"not_dispatched"`
	OracleCalls      int64        `json:"oracle_calls"`
	Skipped          bool         `json:"skipped"`
}
