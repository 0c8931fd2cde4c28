package taxlots

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaleRepository_SoldWithin(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "portfolio")
	defer cleanup()

	repo := NewSaleRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, domain.Sale{
		SoldAt: now.AddDate(0, 0, -10), OwnerID: "alice", Symbol: "ETH", Quantity: 1, Price: 2500,
	}))
	testutil.InsertSale(t, db.Conn(), domain.Sale{
		SoldAt: now.AddDate(0, 0, -60), OwnerID: "alice", Symbol: "SOL", Quantity: 5, Price: 150,
	})

	since := now.AddDate(0, 0, -WashSaleWindowDays)

	sold, err := repo.SoldWithin(ctx, "alice", "ETH", since)
	require.NoError(t, err)
	assert.True(t, sold)

	sold, err = repo.SoldWithin(ctx, "alice", "SOL", since)
	require.NoError(t, err)
	assert.False(t, sold)

	sold, err = repo.SoldWithin(ctx, "bob", "ETH", since)
	require.NoError(t, err)
	assert.False(t, sold)
}

func TestOptimizer_WithSaleRepository(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "portfolio")
	defer cleanup()

	testutil.InsertSale(t, db.Conn(), domain.Sale{
		SoldAt: optimizerNow.AddDate(0, 0, -3), OwnerID: "alice", Symbol: "BTC", Quantity: 1, Price: 800,
	})

	opt := newOptimizer(NewSaleRepository(db.Conn(), zerolog.Nop()))
	report, err := opt.HarvestOpportunities(context.Background(), "alice",
		[]portfolio.Lot{lot("BTC", 2, 1000, 700, 100)}, DefaultParams())
	require.NoError(t, err)
	require.Len(t, report.Opportunities, 1)

	assert.True(t, report.Opportunities[0].WashSaleRisk)
	assert.True(t, report.Opportunities[0].WashSaleChecked)
	assert.True(t, report.WashSaleDataAvailable)
}
