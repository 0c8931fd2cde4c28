package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// HoldingRepository reads and writes lot records in portfolio.db.
type HoldingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:  db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

// ListByOwner returns the owner's holdings ordered by symbol, then acquisition time.
func (r *HoldingRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, symbol, quantity, cost_basis, acquired_at
		FROM holdings
		WHERE owner_id = ?
		ORDER BY symbol ASC, acquired_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var acquiredAt int64
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Symbol, &h.Quantity, &h.CostBasis, &acquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.AcquiredAt = time.Unix(acquiredAt, 0).UTC()
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// Add inserts a holding and returns its id.
func (r *HoldingRepository) Add(ctx context.Context, h domain.Holding) (int64, error) {
	symbol := strings.ToUpper(strings.TrimSpace(h.Symbol))
	if h.OwnerID == "" || symbol == "" {
		return 0, fmt.Errorf("holding requires owner and symbol")
	}
	if h.Quantity <= 0 {
		return 0, fmt.Errorf("holding quantity must be positive, got %v", h.Quantity)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO holdings (owner_id, symbol, quantity, cost_basis, acquired_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.OwnerID, symbol, h.Quantity, h.CostBasis, h.AcquiredAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert holding: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read holding id: %w", err)
	}

	r.log.Debug().Str("owner_id", h.OwnerID).Str("symbol", symbol).Int64("id", id).Msg("Holding added")
	return id, nil
}

// Owners returns every owner with at least one holding.
func (r *HoldingRepository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM holdings ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// Symbols returns every distinct symbol held by any owner.
func (r *HoldingRepository) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM holdings ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query held symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}
