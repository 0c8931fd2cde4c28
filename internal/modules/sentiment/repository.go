// Package sentiment stores externally supplied sentiment readings and serves the latest one.
package sentiment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// Reading is one sentiment score in [0, 100], where 0 is extreme fear and 100 extreme greed.
type Reading struct {
	ObservedAt time.Time `json:"observed_at"`
	Symbol     string    `json:"symbol"`
	Score      float64   `json:"score"`
}

// Repository reads and writes sentiment_scores in portfolio.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new sentiment repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "sentiment").Logger(),
	}
}

// Score implements domain.SentimentSource. An empty symbol reads the market-wide score.
func (r *Repository) Score(ctx context.Context, symbol string) (float64, error) {
	reading, err := r.Latest(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return reading.Score, nil
}

// Latest returns the most recent reading for symbol.
func (r *Repository) Latest(ctx context.Context, symbol string) (Reading, error) {
	symbol = normalize(symbol)

	reading := Reading{Symbol: symbol}
	var observedAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT score, observed_at FROM sentiment_scores
		WHERE symbol = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`, symbol).Scan(&reading.Score, &observedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, domain.DataUnavailableError(fmt.Sprintf("sentiment for %s", symbol), nil)
	}
	if err != nil {
		return Reading{}, domain.DataUnavailableError(fmt.Sprintf("sentiment for %s", symbol), err)
	}

	reading.ObservedAt = time.Unix(observedAt, 0).UTC()
	return reading, nil
}

// Record stores a reading. Scores outside [0, 100] are rejected.
func (r *Repository) Record(ctx context.Context, reading Reading) error {
	if reading.Score < 0 || reading.Score > 100 {
		return fmt.Errorf("sentiment score must be within [0, 100], got %v", reading.Score)
	}
	symbol := normalize(reading.Symbol)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sentiment_scores (symbol, score, observed_at) VALUES (?, ?, ?)
		ON CONFLICT(symbol, observed_at) DO UPDATE SET score = excluded.score
	`, symbol, reading.Score, reading.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record sentiment: %w", err)
	}

	r.log.Debug().Str("symbol", symbol).Float64("score", reading.Score).Msg("Sentiment recorded")
	return nil
}

func normalize(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.MarketSymbol
	}
	return symbol
}
