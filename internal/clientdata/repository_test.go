package clientdata

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteRepository_StoreAndGetIfFresh(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "cache")
	defer cleanup()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	repo := NewQuoteRepository(db.Conn()).WithClock(testutil.FixedClock(now))
	ctx := context.Background()

	quote := domain.Quote{Symbol: "AAPL", Price: 187.5, Change24h: -1.25, FetchedAt: now}
	require.NoError(t, repo.Store(ctx, quote, time.Minute))

	got, err := repo.GetIfFresh(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.InDelta(t, 187.5, got.Price, 1e-9)
	assert.InDelta(t, -1.25, got.Change24h, 1e-9)
	assert.True(t, got.FetchedAt.Equal(now))

	missing, err := repo.GetIfFresh(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQuoteRepository_ExpiredEntries(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "cache")
	defer cleanup()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	repo := NewQuoteRepository(db.Conn()).WithClock(testutil.FixedClock(now))
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, domain.Quote{Symbol: "BTC", Price: 50000}, time.Minute))
	require.NoError(t, repo.Store(ctx, domain.Quote{Symbol: "ETH", Price: 3000}, time.Hour))

	later := NewQuoteRepository(db.Conn()).WithClock(testutil.FixedClock(now.Add(5 * time.Minute)))

	got, err := later.GetIfFresh(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err := later.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	eth, err := later.GetIfFresh(ctx, "ETH")
	require.NoError(t, err)
	require.NotNil(t, eth)
	assert.InDelta(t, 3000.0, eth.Price, 1e-9)
}

func TestCleanupJob_Run(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "cache")
	defer cleanup()

	past := time.Now().Add(-time.Hour)
	repo := NewQuoteRepository(db.Conn()).WithClock(testutil.FixedClock(past))
	require.NoError(t, repo.Store(context.Background(), domain.Quote{Symbol: "SPY", Price: 500}, time.Minute))

	job := NewCleanupJob(NewQuoteRepository(db.Conn()), zerolog.Nop())
	assert.Equal(t, "quote_cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM current_prices`).Scan(&count))
	assert.Equal(t, 0, count)
}
