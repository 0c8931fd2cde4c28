package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMarketDataClient struct {
	mock.Mock
}

func (m *MockMarketDataClient) GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error) {
	args := m.Called(symbol, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.Snapshot), args.Error(1)
}

func (m *MockMarketDataClient) GetCryptoSnapshot(symbol string, req marketdata.GetCryptoSnapshotRequest) (*marketdata.CryptoSnapshot, error) {
	args := m.Called(symbol, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.CryptoSnapshot), args.Error(1)
}

func (m *MockMarketDataClient) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	args := m.Called(symbol, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marketdata.Bar), args.Error(1)
}

func TestOracle_StockQuote(t *testing.T) {
	client := new(MockMarketDataClient)
	client.On("GetSnapshot", "AAPL", mock.Anything).Return(&marketdata.Snapshot{
		LatestTrade:  &marketdata.Trade{Price: 110},
		PrevDailyBar: &marketdata.Bar{Close: 100},
	}, nil)

	oracle := newOracle(client, Config{}, zerolog.Nop())
	q, err := oracle.GetPrice(context.Background(), "aapl")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 110.0, q.Price)
	assert.InDelta(t, 10.0, q.Change24h, 1e-9)
	client.AssertExpectations(t)
}

func TestOracle_CryptoQuote(t *testing.T) {
	client := new(MockMarketDataClient)
	client.On("GetCryptoSnapshot", "BTC/USD", mock.Anything).Return(&marketdata.CryptoSnapshot{
		LatestTrade: &marketdata.CryptoTrade{Price: 51000},
	}, nil)

	oracle := newOracle(client, Config{Crypto: []string{"btc"}}, zerolog.Nop())
	q, err := oracle.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, 51000.0, q.Price)
	assert.Zero(t, q.Change24h, "no previous bar means no change")
	client.AssertNotCalled(t, "GetSnapshot", mock.Anything, mock.Anything)
}

func TestOracle_Errors(t *testing.T) {
	client := new(MockMarketDataClient)
	client.On("GetSnapshot", "GONE", mock.Anything).Return(nil, errors.New("not found"))
	client.On("GetSnapshot", "EMPTY", mock.Anything).Return(&marketdata.Snapshot{}, nil)

	oracle := newOracle(client, Config{}, zerolog.Nop())

	_, err := oracle.GetPrice(context.Background(), "GONE")
	assert.ErrorContains(t, err, "not found")

	_, err = oracle.GetPrice(context.Background(), "EMPTY")
	assert.ErrorContains(t, err, "no trade")
}

func TestOracle_ContextCancel(t *testing.T) {
	client := new(MockMarketDataClient)
	client.On("GetSnapshot", "SLOW", mock.Anything).
		After(500*time.Millisecond).
		Return(&marketdata.Snapshot{LatestTrade: &marketdata.Trade{Price: 1}}, nil)

	oracle := newOracle(client, Config{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := oracle.GetPrice(ctx, "SLOW")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOracle_DailyCloses(t *testing.T) {
	day := time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC)
	client := new(MockMarketDataClient)
	client.On("GetBars", "SPY", mock.MatchedBy(func(req marketdata.GetBarsRequest) bool {
		return req.TimeFrame == marketdata.OneDay && req.Start.Equal(day)
	})).Return([]marketdata.Bar{
		{Timestamp: day, Close: 500},
		{Timestamp: day.AddDate(0, 0, 1), Close: 505},
	}, nil)

	oracle := newOracle(client, Config{Crypto: []string{"BTC"}}, zerolog.Nop())

	bars, err := oracle.DailyCloses(context.Background(), "spy", day)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 505.0, bars[1].Close)

	_, err = oracle.DailyCloses(context.Background(), "BTC", day)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}
