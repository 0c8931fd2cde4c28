package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sentinel-alerts/internal/database"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// DailyClose is one closing price. Date is midnight UTC.
type DailyClose struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HistoryRepository provides access to daily closes in history.db.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// Closes returns closes for symbol on or after since, oldest first.
func (h *HistoryRepository) Closes(ctx context.Context, symbol string, since time.Time) ([]DailyClose, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close FROM daily_prices
		WHERE symbol = ? AND date >= ?
		ORDER BY date ASC
	`, symbol, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var closes []DailyClose
	for rows.Next() {
		var date int64
		var c DailyClose
		if err := rows.Scan(&date, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		c.Date = time.Unix(date, 0).UTC()
		closes = append(closes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return closes, nil
}

// RecordSeries upserts a batch of closes for symbol in one transaction, so a
// failed sync never leaves a partially written series. Returns the number stored.
func (h *HistoryRepository) RecordSeries(ctx context.Context, symbol string, bars []domain.DailyBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	err := database.WithTransaction(ctx, h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare close upsert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if _, err := stmt.ExecContext(ctx, symbol, truncateDay(bar.Date).Unix(), bar.Close); err != nil {
				return fmt.Errorf("failed to record close for %s on %s: %w", symbol, bar.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Debug().Str("symbol", symbol).Int("closes", len(bars)).Msg("Recorded daily closes")
	return len(bars), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
