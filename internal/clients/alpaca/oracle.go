// Package alpaca adapts the Alpaca market data API to the engine's price contracts.
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// marketDataClient is the subset of *marketdata.Client the oracle uses.
type marketDataClient interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
	GetCryptoSnapshot(symbol string, req marketdata.GetCryptoSnapshotRequest) (*marketdata.CryptoSnapshot, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Config holds Alpaca credentials. Empty credentials use the SDK's environment lookup.
type Config struct {
	APIKey    string
	APISecret string
	// Crypto lists symbols quoted as crypto pairs against CryptoQuote, e.g. BTC -> BTC/USD.
	Crypto      []string
	CryptoQuote string
}

// Oracle implements domain.PriceOracle on Alpaca snapshots.
type Oracle struct {
	client      marketDataClient
	crypto      map[string]bool
	cryptoQuote string
	log         zerolog.Logger
}

// NewOracle creates an oracle backed by the Alpaca market data API.
func NewOracle(cfg Config, log zerolog.Logger) *Oracle {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	return newOracle(client, cfg, log)
}

func newOracle(client marketDataClient, cfg Config, log zerolog.Logger) *Oracle {
	quote := strings.ToUpper(cfg.CryptoQuote)
	if quote == "" {
		quote = "USD"
	}
	crypto := make(map[string]bool, len(cfg.Crypto))
	for _, s := range cfg.Crypto {
		crypto[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &Oracle{
		client:      client,
		crypto:      crypto,
		cryptoQuote: quote,
		log:         log.With().Str("client", "alpaca").Logger(),
	}
}

// GetPrice implements domain.PriceOracle. The 24h change is measured against the previous
// daily close; it is zero when that bar is missing.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(symbol)

	return withContext(ctx, func() (domain.Quote, error) {
		var last, prevClose float64
		if pair, ok := o.cryptoPair(symbol); ok {
			snap, err := o.client.GetCryptoSnapshot(pair, marketdata.GetCryptoSnapshotRequest{})
			if err != nil {
				return domain.Quote{}, fmt.Errorf("alpaca crypto snapshot %s: %w", pair, err)
			}
			if snap == nil || snap.LatestTrade == nil {
				return domain.Quote{}, fmt.Errorf("alpaca returned no trade for %s", pair)
			}
			last = snap.LatestTrade.Price
			if snap.PrevDailyBar != nil {
				prevClose = snap.PrevDailyBar.Close
			}
		} else {
			snap, err := o.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
			if err != nil {
				return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
			}
			if snap == nil || snap.LatestTrade == nil {
				return domain.Quote{}, fmt.Errorf("alpaca returned no trade for %s", symbol)
			}
			last = snap.LatestTrade.Price
			if snap.PrevDailyBar != nil {
				prevClose = snap.PrevDailyBar.Close
			}
		}

		q := domain.Quote{Symbol: symbol, Price: last, FetchedAt: time.Now()}
		if prevClose > 0 {
			q.Change24h = (last - prevClose) / prevClose * 100
		}
		o.log.Debug().Str("symbol", symbol).Float64("price", last).Msg("Fetched quote")
		return q, nil
	})
}

// DailyCloses returns daily closing prices for symbol since start, oldest first.
func (o *Oracle) DailyCloses(ctx context.Context, symbol string, start time.Time) ([]domain.DailyBar, error) {
	symbol = strings.ToUpper(symbol)
	if _, ok := o.cryptoPair(symbol); ok {
		return nil, fmt.Errorf("%w: daily history for crypto symbol %s is not supported", domain.ErrDataUnavailable, symbol)
	}

	return withContext(ctx, func() ([]domain.DailyBar, error) {
		bars, err := o.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
		})
		if err != nil {
			return nil, fmt.Errorf("alpaca bars %s: %w", symbol, err)
		}
		out := make([]domain.DailyBar, 0, len(bars))
		for _, b := range bars {
			out = append(out, domain.DailyBar{Date: b.Timestamp, Close: b.Close})
		}
		return out, nil
	})
}

func (o *Oracle) cryptoPair(symbol string) (string, bool) {
	if strings.Contains(symbol, "/") {
		return symbol, true
	}
	if o.crypto[symbol] {
		return symbol + "/" + o.cryptoQuote, true
	}
	return "", false
}

// withContext runs a blocking SDK call and abandons it when ctx is done.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
