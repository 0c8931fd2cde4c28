package portfolio

import (
	"context"
	"testing"
	"time"

	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldingRepository_ListByOwner(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "portfolio")
	defer cleanup()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	testutil.InsertHolding(t, db.Conn(), testutil.NewHolding("alice", "MSFT", 2, 300, now, 10))
	testutil.InsertHolding(t, db.Conn(), testutil.NewHolding("alice", "AAPL", 5, 150, now, 20))
	testutil.InsertHolding(t, db.Conn(), testutil.NewHolding("alice", "AAPL", 1, 170, now, 5))
	testutil.InsertHolding(t, db.Conn(), testutil.NewHolding("bob", "TSLA", 3, 200, now, 1))

	repo := NewHoldingRepository(db.Conn(), zerolog.Nop())
	holdings, err := repo.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 3)

	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, 150.0, holdings[0].CostBasis)
	assert.Equal(t, "AAPL", holdings[1].Symbol)
	assert.Equal(t, 170.0, holdings[1].CostBasis)
	assert.Equal(t, "MSFT", holdings[2].Symbol)
	assert.True(t, holdings[0].AcquiredAt.Equal(now.AddDate(0, 0, -20)))
}

func TestHoldingRepository_AddAndOwners(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "portfolio")
	defer cleanup()

	repo := NewHoldingRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	id, err := repo.Add(ctx, testutil.NewHolding("carol", " nvda ", 4, 90, now, 0))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = repo.Add(ctx, testutil.NewHolding("alice", "AAPL", 1, 100, now, 0))
	require.NoError(t, err)

	_, err = repo.Add(ctx, testutil.NewHolding("alice", "AAPL", 0, 100, now, 0))
	assert.Error(t, err)

	holdings, err := repo.ListByOwner(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "NVDA", holdings[0].Symbol)

	owners, err := repo.Owners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, owners)

	symbols, err := repo.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA"}, symbols)
}
