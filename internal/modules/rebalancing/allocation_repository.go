package rebalancing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// AllocationRepository stores owner target allocations in portfolio.db.
type AllocationRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *sql.DB, log zerolog.Logger) *AllocationRepository {
	return &AllocationRepository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// Targets returns the owner's targets ordered by symbol.
func (r *AllocationRepository) Targets(ctx context.Context, ownerID string) ([]Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, target_pct FROM allocation_targets
		WHERE owner_id = ?
		ORDER BY symbol
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Symbol, &t.Pct); err != nil {
			return nil, fmt.Errorf("failed to scan allocation target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// SetTarget inserts or replaces one target percentage.
func (r *AllocationRepository) SetTarget(ctx context.Context, ownerID, symbol string, pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("target percentage must be within [0, 100], got %v", pct)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO allocation_targets (owner_id, symbol, target_pct) VALUES (?, ?, ?)
		ON CONFLICT(owner_id, symbol) DO UPDATE SET target_pct = excluded.target_pct
	`, ownerID, symbol, pct)
	if err != nil {
		return fmt.Errorf("failed to set allocation target: %w", err)
	}

	r.log.Debug().Str("owner_id", ownerID).Str("symbol", symbol).Float64("pct", pct).Msg("Allocation target set")
	return nil
}
