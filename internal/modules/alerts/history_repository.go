package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HistoryRepository stores triggered alerts in alerts.db.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new alert history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "alert_history").Logger(),
	}
}

// Record stores a triggered alert.
func (h *HistoryRepository) Record(ctx context.Context, alert TriggeredAlert) error {
	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO triggered_alerts (id, rule_id, owner_id, type, title, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.RuleID, alert.OwnerID, string(alert.Type), alert.Title, alert.Message,
		string(payload), alert.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert triggered alert: %w", err)
	}
	return nil
}

// ListByRule returns the alerts fired by a rule, newest first.
func (h *HistoryRepository) ListByRule(ctx context.Context, ruleID string) ([]TriggeredAlert, error) {
	return h.list(ctx, `WHERE rule_id = ? ORDER BY created_at DESC, id`, ruleID)
}

// ListByOwner returns an owner's alerts, newest first.
func (h *HistoryRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]TriggeredAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	return h.list(ctx, `WHERE owner_id = ? ORDER BY created_at DESC, id LIMIT ?`, ownerID, limit)
}

// PruneOlderThan deletes alerts created before cutoff.
func (h *HistoryRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM triggered_alerts WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune triggered alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		h.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned triggered alerts")
	}
	return n, nil
}

func (h *HistoryRepository) list(ctx context.Context, where string, args ...any) ([]TriggeredAlert, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, rule_id, owner_id, type, title, message, payload, created_at
		FROM triggered_alerts `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggered alerts: %w", err)
	}
	defer rows.Close()

	var alerts []TriggeredAlert
	for rows.Next() {
		var a TriggeredAlert
		var alertType, payload string
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.RuleID, &a.OwnerID, &alertType, &a.Title, &a.Message, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan triggered alert: %w", err)
		}
		a.Type = RuleType(alertType)
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			h.log.Warn().Err(err).Str("alert_id", a.ID).Msg("Unreadable alert payload")
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggered alerts: %w", err)
	}

	return alerts, nil
}
