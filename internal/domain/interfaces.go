package domain

import (
	"context"
	"time"
)

// PriceOracle returns the current price and 24h change for a symbol, or an error.
// Implementations live outside the core; the engine only consumes this contract.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}

// QuoteSource is what pass-scoped consumers read prices from.
// The per-pass memo implements it on top of a PriceOracle.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// NotificationSink delivers a triggered alert. Errors are logged by the caller,
// never retried within the pass.
type NotificationSink interface {
	Notify(ctx context.Context, ownerID, title, body, category string) error
}

// SellHistory answers whether an owner sold a symbol since a point in time.
type SellHistory interface {
	SoldWithin(ctx context.Context, ownerID, symbol string, since time.Time) (bool, error)
}

// SentimentSource returns the latest externally supplied sentiment score in [0, 100].
type SentimentSource interface {
	Score(ctx context.Context, symbol string) (float64, error)
}

// Clock returns the current time. Injected so evaluation is reproducible in tests.
type Clock func() time.Time

// HistoryProvider returns daily closes from an external market data source, oldest first.
type HistoryProvider interface {
	DailyCloses(ctx context.Context, symbol string, start time.Time) ([]DailyBar, error)
}
