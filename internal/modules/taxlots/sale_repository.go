package taxlots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// SaleRepository is the sqlite-backed sell history used for wash-sale checks.
type SaleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *sql.DB, log zerolog.Logger) *SaleRepository {
	return &SaleRepository{
		db:  db,
		log: log.With().Str("repo", "sale").Logger(),
	}
}

// SoldWithin implements domain.SellHistory.
func (r *SaleRepository) SoldWithin(ctx context.Context, ownerID, symbol string, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales
		WHERE owner_id = ? AND symbol = ? AND sold_at >= ?
	`, ownerID, symbol, since.Unix()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query sales for %s: %w", symbol, err)
	}
	return count > 0, nil
}

// Record stores a realized sale.
func (r *SaleRepository) Record(ctx context.Context, sale domain.Sale) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales (owner_id, symbol, quantity, price, sold_at)
		VALUES (?, ?, ?, ?, ?)
	`, sale.OwnerID, sale.Symbol, sale.Quantity, sale.Price, sale.SoldAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}
	r.log.Debug().Str("owner_id", sale.OwnerID).Str("symbol", sale.Symbol).Msg("Sale recorded")
	return nil
}
