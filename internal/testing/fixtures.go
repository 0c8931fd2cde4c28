package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
)

// InsertHolding writes a holding row into a portfolio database and returns its id.
func InsertHolding(t *testing.T, db *sql.DB, h domain.Holding) int64 {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO holdings (owner_id, symbol, quantity, cost_basis, acquired_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.OwnerID, h.Symbol, h.Quantity, h.CostBasis, h.AcquiredAt.Unix())
	if err != nil {
		t.Fatalf("Failed to insert holding %s: %v", h.Symbol, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// NewHolding builds a holding acquired daysAgo days before now.
func NewHolding(ownerID, symbol string, quantity, costBasis float64, now time.Time, daysAgo int) domain.Holding {
	return domain.Holding{
		AcquiredAt: now.AddDate(0, 0, -daysAgo),
		OwnerID:    ownerID,
		Symbol:     symbol,
		Quantity:   quantity,
		CostBasis:  costBasis,
	}
}

// InsertSale writes a realized sale into a portfolio database.
func InsertSale(t *testing.T, db *sql.DB, s domain.Sale) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO sales (owner_id, symbol, quantity, price, sold_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.OwnerID, s.Symbol, s.Quantity, s.Price, s.SoldAt.Unix())
	if err != nil {
		t.Fatalf("Failed to insert sale %s: %v", s.Symbol, err)
	}
}

// InsertTarget writes a target allocation percentage.
func InsertTarget(t *testing.T, db *sql.DB, ownerID, symbol string, pct float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT OR REPLACE INTO allocation_targets (owner_id, symbol, target_pct)
		VALUES (?, ?, ?)
	`, ownerID, symbol, pct)
	if err != nil {
		t.Fatalf("Failed to insert target %s: %v", symbol, err)
	}
}

// InsertSentiment writes a sentiment reading.
func InsertSentiment(t *testing.T, db *sql.DB, symbol string, score float64, at time.Time) {
	t.Helper()
	_, err := db.Exec(`
		INSERT OR REPLACE INTO sentiment_scores (symbol, score, observed_at)
		VALUES (?, ?, ?)
	`, symbol, score, at.Unix())
	if err != nil {
		t.Fatalf("Failed to insert sentiment %s: %v", symbol, err)
	}
}

// InsertDailyCloses writes consecutive daily closes for symbol ending at end.
func InsertDailyCloses(t *testing.T, db *sql.DB, symbol string, end time.Time, closes []float64) {
	t.Helper()
	start := end.AddDate(0, 0, -(len(closes) - 1))
	for i, c := range closes {
		day := start.AddDate(0, 0, i)
		date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		if _, err := db.Exec(`
			INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)
		`, symbol, date.Unix(), c); err != nil {
			t.Fatalf("Failed to insert close for %s: %v", symbol, err)
		}
	}
}
