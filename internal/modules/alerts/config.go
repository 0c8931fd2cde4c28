package alerts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/utils"
)

// Direction qualifies a price or return threshold.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
	DirectionGain  Direction = "gain"
	DirectionLoss  Direction = "loss"
)

// Defaults fill rule fields the owner left unset.
type Defaults struct {
	DCAIntervalDays       int
	SentimentLowThreshold float64
	CooldownHours         float64
	RebalanceThresholdPct float64
}

// DefaultRuleDefaults returns the stock defaults.
func DefaultRuleDefaults() Defaults {
	return Defaults{
		DCAIntervalDays:       7,
		SentimentLowThreshold: 20,
		CooldownHours:         24,
		RebalanceThresholdPct: 5,
	}
}

// RuleConfig is the typed configuration of one rule type.
type RuleConfig interface {
	RuleType() RuleType
}

// RuleSpec is a rule whose raw configuration has been validated.
type RuleSpec struct {
	Config   RuleConfig
	Rule     Rule
	Cooldown time.Duration
}

type PriceTargetConfig struct {
	Symbol    string
	Direction Direction
	Target    float64
}

func (PriceTargetConfig) RuleType() RuleType { return RuleTypePriceTarget }

// PurchaseTargetConfig fires when the absolute return since purchase reaches TargetPct,
// whichever way the price moved. PurchasePrice is nil when the owner's average cost should be used.
type PurchaseTargetConfig struct {
	PurchasePrice *float64
	Symbol        string
	TargetPct     float64
}

func (PurchaseTargetConfig) RuleType() RuleType { return RuleTypePurchaseTarget }

// RebalanceConfig uses stored allocation targets when Targets is empty.
type RebalanceConfig struct {
	Targets      []rebalancing.Target
	ThresholdPct float64
}

func (RebalanceConfig) RuleType() RuleType { return RuleTypePortfolioRebalance }

// TaxOptimizationConfig fires when projected savings reach MinSavings.
type TaxOptimizationConfig struct {
	TaxRate    *float64
	MinSavings float64
}

func (TaxOptimizationConfig) RuleType() RuleType { return RuleTypeTaxOptimization }

// RiskThresholdConfig has at least one of its legs set.
type RiskThresholdConfig struct {
	MaxDrawdownPct   *float64
	MaxVolatilityPct *float64
}

func (RiskThresholdConfig) RuleType() RuleType { return RuleTypeRiskThreshold }

type SentimentConfig struct {
	Symbol       string
	LowThreshold float64
}

func (SentimentConfig) RuleType() RuleType { return RuleTypeMarketSentiment }

type DCAConfig struct {
	Amount   *float64
	Symbol   string
	Interval time.Duration
}

func (DCAConfig) RuleType() RuleType { return RuleTypeDCAReminder }

// ParseRule validates the raw configuration of rule and converts it into the typed config of its type.
// Missing or invalid fields return a domain.ErrConfiguration error.
func ParseRule(rule Rule, defaults Defaults) (RuleSpec, error) {
	if !rule.Type.Valid() {
		return RuleSpec{}, domain.ConfigurationError("unknown rule type %q", rule.Type)
	}

	if raw, bad := rule.Config[invalidConfigKey]; bad {
		return RuleSpec{}, domain.ConfigurationError("rule %s: config is not valid JSON: %v", rule.ID, raw)
	}

	spec := RuleSpec{Rule: rule}
	var err error

	switch rule.Type {
	case RuleTypePriceTarget:
		spec.Config, err = parsePriceTarget(rule)
	case RuleTypePurchaseTarget:
		spec.Config, err = parsePurchaseTarget(rule)
	case RuleTypePortfolioRebalance:
		spec.Config, err = parseRebalance(rule, defaults)
	case RuleTypeTaxOptimization:
		spec.Config, err = parseTaxOptimization(rule)
	case RuleTypeRiskThreshold:
		spec.Config, err = parseRiskThreshold(rule)
	case RuleTypeMarketSentiment:
		spec.Config, err = parseSentiment(rule, defaults)
	case RuleTypeDCAReminder:
		spec.Config, err = parseDCA(rule, defaults)
	}
	if err != nil {
		return RuleSpec{}, fmt.Errorf("%s rule %s: %w", rule.Type, rule.ID, err)
	}

	if !rule.Type.OneShot() && rule.Type != RuleTypeDCAReminder {
		hours, ok, err := floatField(rule.Config, "cooldown_hours")
		if err != nil {
			return RuleSpec{}, fmt.Errorf("%s rule %s: %w", rule.Type, rule.ID, err)
		}
		if !ok {
			hours = defaults.CooldownHours
		}
		if hours < 0 {
			return RuleSpec{}, fmt.Errorf("%s rule %s: %w", rule.Type, rule.ID,
				domain.ConfigurationError("cooldown_hours must not be negative, got %v", hours))
		}
		spec.Cooldown = time.Duration(hours * float64(time.Hour))
	}

	return spec, nil
}

func parsePriceTarget(rule Rule) (PriceTargetConfig, error) {
	symbol, err := requireSymbol(rule)
	if err != nil {
		return PriceTargetConfig{}, err
	}
	if rule.TargetValue == nil {
		return PriceTargetConfig{}, domain.ConfigurationError("target_value is required")
	}
	if *rule.TargetValue <= 0 {
		return PriceTargetConfig{}, domain.ConfigurationError("target_value must be positive, got %v", *rule.TargetValue)
	}

	direction, ok, err := stringField(rule.Config, "direction")
	if err != nil {
		return PriceTargetConfig{}, err
	}
	if !ok {
		return PriceTargetConfig{}, domain.ConfigurationError("direction is required (above or below)")
	}
	dir := Direction(strings.ToLower(direction))
	if dir != DirectionAbove && dir != DirectionBelow {
		return PriceTargetConfig{}, domain.ConfigurationError("direction must be above or below, got %q", direction)
	}

	return PriceTargetConfig{Symbol: symbol, Direction: dir, Target: *rule.TargetValue}, nil
}

func parsePurchaseTarget(rule Rule) (PurchaseTargetConfig, error) {
	symbol, err := requireSymbol(rule)
	if err != nil {
		return PurchaseTargetConfig{}, err
	}

	pct, ok, err := targetOrField(rule, "target_pct")
	if err != nil {
		return PurchaseTargetConfig{}, err
	}
	if !ok {
		return PurchaseTargetConfig{}, domain.ConfigurationError("target_value (percent) is required")
	}
	if pct == 0 {
		return PurchaseTargetConfig{}, domain.ConfigurationError("target percent must not be zero")
	}

	cfg := PurchaseTargetConfig{Symbol: symbol, TargetPct: math.Abs(pct)}

	price, ok, err := floatField(rule.Config, "purchase_price")
	if err != nil {
		return PurchaseTargetConfig{}, err
	}
	if ok {
		if price <= 0 {
			return PurchaseTargetConfig{}, domain.ConfigurationError("purchase_price must be positive, got %v", price)
		}
		cfg.PurchasePrice = &price
	}

	return cfg, nil
}

func parseRebalance(rule Rule, defaults Defaults) (RebalanceConfig, error) {
	threshold, ok, err := targetOrField(rule, "threshold_pct")
	if err != nil {
		return RebalanceConfig{}, err
	}
	if !ok {
		threshold = defaults.RebalanceThresholdPct
	}
	if threshold < 0 || threshold > 100 {
		return RebalanceConfig{}, domain.ConfigurationError("threshold_pct must be within [0, 100], got %v", threshold)
	}

	targets, err := targetsField(rule.Config, "targets")
	if err != nil {
		return RebalanceConfig{}, err
	}

	return RebalanceConfig{Targets: targets, ThresholdPct: threshold}, nil
}

func parseTaxOptimization(rule Rule) (TaxOptimizationConfig, error) {
	minSavings, _, err := targetOrField(rule, "min_savings")
	if err != nil {
		return TaxOptimizationConfig{}, err
	}
	if minSavings < 0 {
		return TaxOptimizationConfig{}, domain.ConfigurationError("min_savings must not be negative, got %v", minSavings)
	}

	cfg := TaxOptimizationConfig{MinSavings: minSavings}

	rate, ok, err := floatField(rule.Config, "tax_rate")
	if err != nil {
		return TaxOptimizationConfig{}, err
	}
	if ok {
		if rate < 0 || rate > 1 {
			return TaxOptimizationConfig{}, domain.ConfigurationError("tax_rate must be within [0, 1], got %v", rate)
		}
		cfg.TaxRate = &rate
	}

	return cfg, nil
}

func parseRiskThreshold(rule Rule) (RiskThresholdConfig, error) {
	var cfg RiskThresholdConfig

	drawdown, ok, err := targetOrField(rule, "max_drawdown_pct")
	if err != nil {
		return cfg, err
	}
	if ok {
		if drawdown <= 0 {
			return cfg, domain.ConfigurationError("max_drawdown_pct must be positive, got %v", drawdown)
		}
		cfg.MaxDrawdownPct = &drawdown
	}

	vol, ok, err := floatField(rule.Config, "max_volatility_pct")
	if err != nil {
		return cfg, err
	}
	if ok {
		if vol <= 0 {
			return cfg, domain.ConfigurationError("max_volatility_pct must be positive, got %v", vol)
		}
		cfg.MaxVolatilityPct = &vol
	}

	if cfg.MaxDrawdownPct == nil && cfg.MaxVolatilityPct == nil {
		return cfg, domain.ConfigurationError("max_drawdown_pct or max_volatility_pct is required")
	}
	return cfg, nil
}

func parseSentiment(rule Rule, defaults Defaults) (SentimentConfig, error) {
	symbol := utils.NormalizeSymbol(rule.Symbol)
	if symbol == "" {
		symbol = domain.MarketSymbol
	}

	low, ok, err := floatField(rule.Config, "low_threshold")
	if err != nil {
		return SentimentConfig{}, err
	}
	if !ok {
		low = defaults.SentimentLowThreshold
	}
	if low < 0 || low >= 50 {
		return SentimentConfig{}, domain.ConfigurationError("low_threshold must be within [0, 50), got %v", low)
	}

	return SentimentConfig{Symbol: symbol, LowThreshold: low}, nil
}

func parseDCA(rule Rule, defaults Defaults) (DCAConfig, error) {
	days, ok, err := floatField(rule.Config, "interval_days")
	if err != nil {
		return DCAConfig{}, err
	}
	if !ok {
		days = float64(defaults.DCAIntervalDays)
	}
	if days <= 0 {
		return DCAConfig{}, domain.ConfigurationError("interval_days must be positive, got %v", days)
	}

	cfg := DCAConfig{
		Symbol:   utils.NormalizeSymbol(rule.Symbol),
		Interval: time.Duration(days * 24 * float64(time.Hour)),
	}

	amount, ok, err := floatField(rule.Config, "amount")
	if err != nil {
		return DCAConfig{}, err
	}
	if ok {
		cfg.Amount = &amount
	}

	return cfg, nil
}

func requireSymbol(rule Rule) (string, error) {
	symbol := utils.NormalizeSymbol(rule.Symbol)
	if symbol == "" {
		s, _, err := stringField(rule.Config, "symbol")
		if err != nil {
			return "", err
		}
		symbol = utils.NormalizeSymbol(s)
	}
	if symbol == "" {
		return "", domain.ConfigurationError("symbol is required")
	}
	return symbol, nil
}

// targetOrField prefers the rule's target_value over config[key].
func targetOrField(rule Rule, key string) (float64, bool, error) {
	if rule.TargetValue != nil {
		return *rule.TargetValue, true, nil
	}
	return floatField(rule.Config, key)
}

// floatField reads a number stored as any JSON-compatible representation.
func floatField(cfg map[string]any, key string) (float64, bool, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, err := toFloat(raw)
	if err != nil {
		return 0, false, domain.ConfigurationError("%s: %v", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, domain.ConfigurationError("%s must be finite", key)
	}
	return v, true, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}

func stringField(cfg map[string]any, key string) (string, bool, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, domain.ConfigurationError("%s: expected a string, got %T", key, raw)
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

// targetsField accepts {"BTC": 20, "VTI": 80} or [{"symbol": "BTC", "pct": 20}, ...].
func targetsField(cfg map[string]any, key string) ([]rebalancing.Target, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var targets []rebalancing.Target
	switch v := raw.(type) {
	case map[string]any:
		for symbol, pctRaw := range v {
			pct, err := toFloat(pctRaw)
			if err != nil {
				return nil, domain.ConfigurationError("%s.%s: %v", key, symbol, err)
			}
			targets = append(targets, rebalancing.Target{Symbol: utils.NormalizeSymbol(symbol), Pct: pct})
		}
	case []any:
		for i, item := range v {
			entry, isMap := item.(map[string]any)
			if !isMap {
				return nil, domain.ConfigurationError("%s[%d]: expected an object", key, i)
			}
			symbol, _, err := stringField(entry, "symbol")
			if err != nil {
				return nil, err
			}
			pct, ok, err := floatField(entry, "pct")
			if err != nil {
				return nil, err
			}
			if symbol == "" || !ok {
				return nil, domain.ConfigurationError("%s[%d]: symbol and pct are required", key, i)
			}
			targets = append(targets, rebalancing.Target{Symbol: utils.NormalizeSymbol(symbol), Pct: pct})
		}
	default:
		return nil, domain.ConfigurationError("%s: expected an object or a list, got %T", key, raw)
	}

	total := 0.0
	for _, t := range targets {
		if t.Pct < 0 || t.Pct > 100 {
			return nil, domain.ConfigurationError("%s: %s percentage must be within [0, 100], got %v", key, t.Symbol, t.Pct)
		}
		total += t.Pct
	}
	if total > 100.0001 {
		return nil, domain.ConfigurationError("%s: percentages sum to %v, more than 100", key, total)
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Symbol < targets[j].Symbol })
	return targets, nil
}
