package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/aristath/sentinel-alerts/internal/pricing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RuleStore is the persistence the pass runner needs.
type RuleStore interface {
	ListActive(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id string) (Rule, error)
	Deactivate(ctx context.Context, id string, at time.Time) error
	AdvanceLastTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) error
}

// AlertRecorder keeps a history of triggered alerts.
type AlertRecorder interface {
	Record(ctx context.Context, alert TriggeredAlert) error
}

// ServiceConfig configures the pass runner.
type ServiceConfig struct {
	Price       pricing.Options
	Defaults    Defaults
	Workers     int
	SinkTimeout time.Duration
}

// Service runs evaluation passes over every active rule.
//
// For a triggered rule the state transition is claimed first, then the alert is recorded,
// then the sink is called. A rule can therefore never notify twice for one trigger, and a
// sink failure never rolls the transition back.
type Service struct {
	rules     RuleStore
	recorder  AlertRecorder
	evaluator *Evaluator
	oracle    domain.PriceOracle
	sink      domain.NotificationSink
	events    *events.Manager
	pool      *workerPool
	locks     *keyedMutex
	cfg       ServiceConfig
	now       domain.Clock
	running   atomic.Bool
	log       zerolog.Logger
}

// NewService creates a new alert service
func NewService(
	rules RuleStore,
	evaluator *Evaluator,
	oracle domain.PriceOracle,
	sink domain.NotificationSink,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		rules:     rules,
		evaluator: evaluator,
		oracle:    oracle,
		sink:      sink,
		pool:      newWorkerPool(cfg.Workers),
		locks:     newKeyedMutex(),
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("service", "alerts").Logger(),
	}
}

// WithRecorder stores every triggered alert before it is delivered.
func (s *Service) WithRecorder(recorder AlertRecorder) *Service {
	s.recorder = recorder
	return s
}

// WithEvents publishes pass and trigger events on manager.
func (s *Service) WithEvents(manager *events.Manager) *Service {
	s.events = manager
	return s
}

// WithClock overrides the pass clock.
func (s *Service) WithClock(clock domain.Clock) *Service {
	s.now = clock
	return s
}

// RunPass evaluates every active rule once. It never returns an error: failures are
// reported per rule in the summary. A call made while another pass is running returns
// immediately with Skipped set.
func (s *Service) RunPass(ctx context.Context) Summary {
	passID := uuid.New().String()
	started := s.now()
	summary := Summary{PassID: passID, StartedAt: started, Results: []RuleResult{}}

	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Str("pass_id", passID).Msg("Evaluation pass already running, skipping")
		summary.Skipped = true
		summary.FinishedAt = s.now()
		s.events.Emit("alerts", &events.PassSkippedData{PassID: passID})
		return summary
	}
	defer s.running.Store(false)

	log := s.log.With().Str("pass_id", passID).Logger()
	log.Info().Msg("Starting evaluation pass")

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load active rules")
		summary.Error = err.Error()
		summary.FinishedAt = s.now()
		return summary
	}
	rules = dedupe(rules)

	memo := pricing.NewMemo(s.oracle, s.cfg.Price, log)
	pass := NewPass(passID, started, memo)

	// Rules already dispatched complete even if the pass is canceled.
	work := context.WithoutCancel(ctx)
	results, notDispatched := s.pool.run(ctx, rules, func(rule Rule) RuleResult {
		return s.processRule(work, pass, rule)
	})

	summary.Results = results
	summary.NotDispatched = notDispatched
	summary.OracleCalls = memo.Stats().OracleCalls
	for _, r := range results {
		summary.TotalProcessed++
		switch r.Outcome {
		case OutcomeTriggered:
			summary.TriggeredCount++
			if !r.Delivered {
				summary.DeliveryFailures++
			}
		case OutcomeFailed:
			summary.FailedCount++
		}
	}
	summary.FinishedAt = s.now()

	log.Info().
		Int("total_processed", summary.TotalProcessed).
		Int("triggered", summary.TriggeredCount).
		Int("failed", summary.FailedCount).
		Int("delivery_failures", summary.DeliveryFailures).
		Int("not_dispatched", summary.NotDispatched).
		Int64("oracle_calls", summary.OracleCalls).
		Dur("duration", summary.FinishedAt.Sub(started)).
		Msg("Evaluation pass completed")

	s.events.Emit("alerts", &events.PassCompletedData{
		PassID:           passID,
		TotalProcessed:   summary.TotalProcessed,
		TriggeredCount:   summary.TriggeredCount,
		FailedCount:      summary.FailedCount,
		DeliveryFailures: summary.DeliveryFailures,
		NotDispatched:    summary.NotDispatched,
		DurationMs:       summary.FinishedAt.Sub(started).Milliseconds(),
	})

	return summary
}

// EvaluateRule evaluates a single rule outside a scheduled pass, with its own price view.
func (s *Service) EvaluateRule(ctx context.Context, ruleID string) RuleResult {
	rule, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		res := RuleResult{RuleID: ruleID, Outcome: OutcomeFailed}
		res.setErr(err)
		return res
	}
	pass := NewPass(uuid.New().String(), s.now(), pricing.NewMemo(s.oracle, s.cfg.Price, s.log))
	return s.processRule(ctx, pass, rule)
}

// processRule evaluates one rule under its lock, retrying once after a state conflict.
func (s *Service) processRule(ctx context.Context, pass *Pass, rule Rule) RuleResult {
	unlock := s.locks.Lock(rule.ID)
	defer unlock()

	started := time.Now()
	res := s.evaluateAndApply(ctx, pass, rule)

	if res.Outcome == OutcomeFailed && errors.Is(res.Err, domain.ErrStateConflict) {
		s.log.Info().Str("rule_id", rule.ID).Msg("State conflict, retrying with a fresh read")
		fresh, err := s.rules.Get(ctx, rule.ID)
		switch {
		case err != nil:
			res.setErr(err)
		case !fresh.Active:
			res = RuleResult{
				RuleID:  rule.ID,
				OwnerID: rule.OwnerID,
				Type:    rule.Type,
				Outcome: OutcomeSkipped,
				Reason:  "deactivated concurrently",
			}
		default:
			res = s.evaluateAndApply(ctx, pass, fresh)
		}
		res.Retried = true
	}

	res.Duration = time.Since(started)

	if res.Err != nil {
		event := s.log.Warn()
		if res.ErrorKind == domain.KindInternal {
			event = s.log.Error()
		}
		event.
			Err(res.Err).
			Str("pass_id", pass.ID).
			Str("rule_id", rule.ID).
			Str("owner_id", rule.OwnerID).
			Str("rule_type", string(rule.Type)).
			Str("error_kind", string(res.ErrorKind)).
			Msg("Rule evaluation problem")
	}

	return res
}

func (s *Service) evaluateAndApply(ctx context.Context, pass *Pass, rule Rule) RuleResult {
	res := RuleResult{
		RuleID:  rule.ID,
		OwnerID: rule.OwnerID,
		Type:    rule.Type,
	}

	if !rule.Active {
		res.Outcome = OutcomeSkipped
		res.Reason = "rule is inactive"
		return res
	}

	spec, err := ParseRule(rule, s.cfg.Defaults)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.setErr(err)
		return res
	}

	decision, err := s.evaluator.Evaluate(ctx, pass, spec)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.setErr(err)
		return res
	}
	if !decision.Triggered {
		res.Outcome = OutcomeNotTriggered
		res.Reason = decision.Reason
		return res
	}

	alert := TriggeredAlert{
		CreatedAt: pass.Now,
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		OwnerID:   rule.OwnerID,
		Type:      rule.Type,
		Title:     decision.Title,
		Message:   decision.Message,
		Payload:   decision.Payload,
	}

	if err := s.claim(ctx, rule, pass.Now); err != nil {
		res.Outcome = OutcomeFailed
		res.setErr(err)
		return res
	}

	res.Outcome = OutcomeTriggered
	res.AlertID = alert.ID
	s.events.Emit("alerts", &events.AlertTriggeredData{
		AlertID:  alert.ID,
		RuleID:   rule.ID,
		OwnerID:  rule.OwnerID,
		RuleType: string(rule.Type),
		Title:    alert.Title,
	})

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, alert); err != nil {
			s.log.Warn().Err(err).Str("rule_id", rule.ID).Str("alert_id", alert.ID).Msg("Failed to record triggered alert")
		}
	}

	if err := s.notify(ctx, alert); err != nil {
		res.setErr(err)
		return res
	}
	res.Delivered = true

	s.log.Info().
		Str("pass_id", pass.ID).
		Str("rule_id", rule.ID).
		Str("owner_id", rule.OwnerID).
		Str("rule_type", string(rule.Type)).
		Str("alert_id", alert.ID).
		Msg("Alert triggered")

	return res
}

// claim applies the rule's state transition for a trigger at now.
func (s *Service) claim(ctx context.Context, rule Rule, now time.Time) error {
	if rule.Type.OneShot() {
		return s.rules.Deactivate(ctx, rule.ID, now)
	}
	return s.rules.AdvanceLastTriggered(ctx, rule.ID, rule.LastTriggeredAt, now)
}

func (s *Service) notify(ctx context.Context, alert TriggeredAlert) error {
	if s.sink == nil {
		return fmt.Errorf("%w: no sink configured", domain.ErrSinkFailure)
	}

	sinkCtx := ctx
	if s.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		sinkCtx, cancel = context.WithTimeout(ctx, s.cfg.SinkTimeout)
		defer cancel()
	}

	if err := s.sink.Notify(sinkCtx, alert.OwnerID, alert.Title, alert.Message, string(alert.Type)); err != nil {
		if errors.Is(err, domain.ErrSinkFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrSinkFailure, err)
	}
	return nil
}

// dedupe drops repeated rule ids, keeping the first occurrence.
func dedupe(rules []Rule) []Rule {
	seen := make(map[string]bool, len(rules))
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}
