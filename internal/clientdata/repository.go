// Package clientdata provides persistent caching for PriceOracle responses.
// Quotes are stored as msgpack blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// QuoteRepository provides cache operations for current prices in cache.db.
type QuoteRepository struct {
	db  *sql.DB
	now domain.Clock
}

// NewQuoteRepository creates a new quote cache repository.
func NewQuoteRepository(db *sql.DB) *QuoteRepository {
	return &QuoteRepository{db: db, now: time.Now}
}

// WithClock overrides the clock used for expiry decisions.
func (r *QuoteRepository) WithClock(clock domain.Clock) *QuoteRepository {
	r.now = clock
	return r
}

// Store saves a quote with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *QuoteRepository) Store(ctx context.Context, quote domain.Quote, ttl time.Duration) error {
	data, err := msgpack.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote for %s: %w", quote.Symbol, err)
	}

	expiresAt := r.now().Add(ttl).Unix()

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO current_prices (symbol, data, expires_at) VALUES (?, ?, ?)`,
		quote.Symbol, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store quote for %s: %w", quote.Symbol, err)
	}

	return nil
}

// GetIfFresh returns the cached quote only if expires_at > now.
// Returns nil, nil if the symbol is not cached or the entry expired.
func (r *QuoteRepository) GetIfFresh(ctx context.Context, symbol string) (*domain.Quote, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM current_prices WHERE symbol = ? AND expires_at > ?`,
		symbol, r.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached quote for %s: %w", symbol, err)
	}

	var quote domain.Quote
	if err := msgpack.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode cached quote for %s: %w", symbol, err)
	}

	return &quote, nil
}

// DeleteExpired removes all rows where expires_at <= now.
// Returns the number of rows deleted.
func (r *QuoteRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM current_prices WHERE expires_at <= ?`, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired quotes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for current_prices: %w", err)
	}

	return deleted, nil
}
