package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var riskNow = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

func newTestCalculator(t *testing.T) (*Calculator, *HistoryRepository, func()) {
	db, cleanup := testutil.NewTestDB(t, "history")
	repo := NewHistoryRepository(db.Conn(), zerolog.Nop())
	calc := NewCalculator(repo, zerolog.Nop()).WithClock(testutil.FixedClock(riskNow))
	return calc, repo, cleanup
}

func TestPortfolioMetrics_InsufficientHistory(t *testing.T) {
	calc, repo, cleanup := newTestCalculator(t)
	defer cleanup()

	testutil.InsertDailyCloses(t, repo.db, "BTC", riskNow, closesFromReturns(100, alternating(10, 0.01)))

	m, err := calc.SymbolMetrics(context.Background(), "BTC", Params{LookbackDays: 90})
	require.NoError(t, err)
	assert.False(t, m.Available)
	assert.Equal(t, 10, m.Observations)
	assert.Contains(t, m.Reason, "insufficient price history")
	assert.Zero(t, m.AnnualVolatility)
}

func TestPortfolioMetrics_SingleSymbol(t *testing.T) {
	calc, repo, cleanup := newTestCalculator(t)
	defer cleanup()

	returns := alternating(40, 0.01)
	testutil.InsertDailyCloses(t, repo.db, "BTC", riskNow, closesFromReturns(100, returns))

	benchReturns := make([]float64, len(returns))
	for i, r := range returns {
		benchReturns[i] = r / 2
	}
	testutil.InsertDailyCloses(t, repo.db, "SPY", riskNow, closesFromReturns(400, benchReturns))

	m, err := calc.SymbolMetrics(context.Background(), "BTC", Params{
		RiskFreeRate:    0.02,
		BenchmarkSymbol: "SPY",
		LookbackDays:    90,
	})
	require.NoError(t, err)
	require.True(t, m.Available)

	assert.Equal(t, 40, m.Observations)
	assert.InDelta(t, AnnualizedVolatility(returns), m.AnnualVolatility, 1e-9)
	assert.InDelta(t, MaxDrawdown(returns), m.MaxDrawdown, 1e-9)
	require.NotNil(t, m.Beta)
	assert.InDelta(t, 2.0, *m.Beta, 1e-6)
}

func TestPortfolioMetrics_AlignsAndWeights(t *testing.T) {
	calc, repo, cleanup := newTestCalculator(t)
	defer cleanup()

	up := make([]float64, 45)
	for i := range up {
		up[i] = 0.01
	}
	testutil.InsertDailyCloses(t, repo.db, "AAA", riskNow, closesFromReturns(100, alternating(45, 0.02)))
	testutil.InsertDailyCloses(t, repo.db, "BBB", riskNow, closesFromReturns(50, up))
	// CCC only covers the last 35 days, so alignment trims the window
	testutil.InsertDailyCloses(t, repo.db, "CCC", riskNow, closesFromReturns(10, up[:34]))

	m, err := calc.PortfolioMetrics(context.Background(), map[string]float64{
		"AAA": 3000,
		"BBB": 1000,
		"CCC": 0,
	}, Params{LookbackDays: 120})
	require.NoError(t, err)
	require.True(t, m.Available)
	assert.Equal(t, 45, m.Observations)
	assert.Nil(t, m.Beta)

	expected := WeightedReturns([][]float64{alternating(45, 0.02), up}, []float64{0.75, 0.25})
	assert.InDelta(t, AnnualizedVolatility(expected), m.AnnualVolatility, 1e-9)
	assert.False(t, math.IsNaN(m.SharpeRatio))

	short, err := calc.PortfolioMetrics(context.Background(), map[string]float64{
		"AAA": 1, "CCC": 1,
	}, Params{LookbackDays: 120})
	require.NoError(t, err)
	assert.True(t, short.Available)
	assert.Equal(t, 34, short.Observations)
}

type failingHistory struct{}

func (failingHistory) Closes(context.Context, string, time.Time) ([]DailyClose, error) {
	return nil, errors.New("database is locked")
}

func TestPortfolioMetrics_HistoryFailure(t *testing.T) {
	calc := NewCalculator(failingHistory{}, zerolog.Nop())

	_, err := calc.SymbolMetrics(context.Background(), "BTC", Params{})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	m, err := calc.PortfolioMetrics(context.Background(), map[string]float64{}, Params{})
	require.NoError(t, err)
	assert.False(t, m.Available)
}

func TestHistoryRepository_Record(t *testing.T) {
	_, repo, cleanup := newTestCalculator(t)
	defer cleanup()

	ctx := context.Background()
	n, err := repo.RecordSeries(ctx, "ETH", []domain.DailyBar{
		{Date: riskNow.Add(15 * time.Hour), Close: 3000},
		{Date: riskNow.AddDate(0, 0, -1), Close: 2900},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same day again: upsert, not a second row.
	_, err = repo.RecordSeries(ctx, "ETH", []domain.DailyBar{{Date: riskNow.Add(20 * time.Hour), Close: 3100}})
	require.NoError(t, err)

	closes, err := repo.Closes(ctx, "ETH", riskNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, 2900.0, closes[0].Close)
	assert.Equal(t, 3100.0, closes[1].Close)
	assert.Equal(t, riskNow, closes[1].Date)
}

func TestHistoryRepository_RecordSeriesIsAtomic(t *testing.T) {
	_, repo, cleanup := newTestCalculator(t)
	defer cleanup()

	ctx := context.Background()
	// SQLite stores NaN as NULL, which the close column rejects.
	_, err := repo.RecordSeries(ctx, "SOL", []domain.DailyBar{
		{Date: riskNow.AddDate(0, 0, -2), Close: 150},
		{Date: riskNow.AddDate(0, 0, -1), Close: math.NaN()},
	})
	require.Error(t, err)

	closes, err := repo.Closes(ctx, "SOL", riskNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, closes)

	n, err := repo.RecordSeries(ctx, "SOL", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
