package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRuleNotFound is returned by Get for unknown ids.
var ErrRuleNotFound = errors.New("alert rule not found")

// RuleRepository reads alert rules and applies their state transitions.
// Transitions are conditional updates: they only succeed against the state the caller read.
type RuleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{
		db:  db,
		log: log.With().Str("repo", "alert_rule").Logger(),
	}
}

const invalidConfigKey = "_invalid"

const ruleColumns = `id, owner_id, type, symbol, target_value, config, active, last_triggered_at, created_at`

// ListActive returns all active rules ordered by creation.
func (r *RuleRepository) ListActive(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// ListByOwner returns every rule of an owner, active or not.
func (r *RuleRepository) ListByOwner(ctx context.Context, ownerID string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Get returns a fresh read of one rule.
func (r *RuleRepository) Get(ctx context.Context, id string) (Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, fmt.Errorf("%s: %w", id, ErrRuleNotFound)
	}
	return rule, err
}

// Create stores a new active rule. An empty id is replaced with a uuid.
func (r *RuleRepository) Create(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if !rule.Type.Valid() {
		return Rule{}, domain.ConfigurationError("unknown rule type %q", rule.Type)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	if rule.Config == nil {
		rule.Config = map[string]any{}
	}
	rule.Active = true

	config, err := json.Marshal(rule.Config)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to marshal rule config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, owner_id, type, symbol, target_value, config, active, last_triggered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, rule.ID, rule.OwnerID, string(rule.Type), nullString(rule.Symbol), rule.TargetValue,
		string(config), unixOrNil(rule.LastTriggeredAt), rule.CreatedAt.Unix())
	if err != nil {
		return Rule{}, fmt.Errorf("failed to insert rule: %w", err)
	}

	r.log.Info().Str("rule_id", rule.ID).Str("owner_id", rule.OwnerID).Str("rule_type", string(rule.Type)).Msg("Alert rule created")
	return rule, nil
}

// SetActive toggles a rule unconditionally. Used by owners, never by evaluation.
func (r *RuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alert_rules SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRuleNotFound)
	}
	return nil
}

// Deactivate moves an active one-shot rule to inactive, stamping the trigger time.
// Returns domain.ErrStateConflict if the rule is no longer active.
func (r *RuleRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alert_rules SET active = 0, last_triggered_at = ?
		WHERE id = ? AND active = 1
	`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}
	return expectOneRow(res, id)
}

// AdvanceLastTriggered records a recurring trigger. It only applies if last_triggered_at still
// equals prev (nil meaning never triggered) and the rule is active; otherwise domain.ErrStateConflict.
func (r *RuleRepository) AdvanceLastTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) error {
	var res sql.Result
	var err error
	if prev == nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE alert_rules SET last_triggered_at = ?
			WHERE id = ? AND active = 1 AND last_triggered_at IS NULL
		`, at.Unix(), id)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE alert_rules SET last_triggered_at = ?
			WHERE id = ? AND active = 1 AND last_triggered_at = ?
		`, at.Unix(), id, prev.Unix())
	}
	if err != nil {
		return fmt.Errorf("failed to advance rule: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %s changed concurrently: %w", id, domain.ErrStateConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var rule Rule
	var ruleType string
	var symbol, config sql.NullString
	var target sql.NullFloat64
	var active int
	var lastTriggered sql.NullInt64
	var createdAt int64

	if err := row.Scan(&rule.ID, &rule.OwnerID, &ruleType, &symbol, &target, &config, &active, &lastTriggered, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rule{}, err
		}
		return Rule{}, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.Type = RuleType(ruleType)
	rule.Symbol = symbol.String
	rule.Active = active == 1
	rule.CreatedAt = time.Unix(createdAt, 0).UTC()
	if target.Valid {
		v := target.Float64
		rule.TargetValue = &v
	}
	if lastTriggered.Valid {
		t := time.Unix(lastTriggered.Int64, 0).UTC()
		rule.LastTriggeredAt = &t
	}

	rule.Config = map[string]any{}
	if config.Valid && config.String != "" {
		dec := json.NewDecoder(strings.NewReader(config.String))
		dec.UseNumber()
		if err := dec.Decode(&rule.Config); err != nil {
			// ParseRule rejects the rule; the listing still succeeds.
			rule.Config = map[string]any{invalidConfigKey: config.String}
		}
	}

	return rule, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
