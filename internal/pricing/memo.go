// Package pricing provides the per-pass price memo that sits between the
// evaluation engine and the external PriceOracle.
package pricing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// QuoteCache is an optional persistent cache consulted before the oracle.
type QuoteCache interface {
	GetIfFresh(ctx context.Context, symbol string) (*domain.Quote, error)
	Store(ctx context.Context, quote domain.Quote, ttl time.Duration) error
}

// Options configures a Memo.
type Options struct {
	Timeout time.Duration // per oracle call; zero means no deadline beyond the caller's
	TTL     time.Duration // reuse cached quotes younger than TTL; zero disables the cache
	Cache   QuoteCache
}

// Stats reports how a memo resolved its lookups.
type Stats struct {
	OracleCalls int64
	CacheHits   int64
	Failures    int64
}

type result struct {
	quote domain.Quote
	err   error
}

// Memo memoizes quotes for exactly one evaluation pass.
// Every symbol is fetched at most once, and every rule in the pass sees the
// same price (or the same failure) for it.
type Memo struct {
	oracle domain.PriceOracle
	opts   Options
	group  singleflight.Group

	mu      sync.Mutex
	results map[string]result

	oracleCalls atomic.Int64
	cacheHits   atomic.Int64
	failures    atomic.Int64

	log zerolog.Logger
}

// NewMemo creates a memo for one pass.
func NewMemo(oracle domain.PriceOracle, opts Options, log zerolog.Logger) *Memo {
	return &Memo{
		oracle:  oracle,
		opts:    opts,
		results: make(map[string]result),
		log:     log.With().Str("component", "price_memo").Logger(),
	}
}

// Quote implements domain.QuoteSource.
func (m *Memo) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if symbol == "" {
		return domain.Quote{}, domain.ConfigurationError("empty symbol")
	}

	if r, ok := m.lookup(symbol); ok {
		return r.quote, r.err
	}

	v, _, _ := m.group.Do(symbol, func() (interface{}, error) {
		if r, ok := m.lookup(symbol); ok {
			return r, nil
		}
		r := m.fetch(ctx, symbol)
		m.mu.Lock()
		m.results[symbol] = r
		m.mu.Unlock()
		return r, nil
	})

	r := v.(result)
	return r.quote, r.err
}

// Stats returns lookup counters for the pass summary.
func (m *Memo) Stats() Stats {
	return Stats{
		OracleCalls: m.oracleCalls.Load(),
		CacheHits:   m.cacheHits.Load(),
		Failures:    m.failures.Load(),
	}
}

func (m *Memo) lookup(symbol string) (result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[symbol]
	return r, ok
}

func (m *Memo) fetch(ctx context.Context, symbol string) result {
	useCache := m.opts.Cache != nil && m.opts.TTL > 0

	if useCache {
		cached, err := m.opts.Cache.GetIfFresh(ctx, symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed, using oracle")
		} else if cached != nil {
			m.cacheHits.Add(1)
			return result{quote: *cached}
		}
	}

	callCtx := ctx
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	m.oracleCalls.Add(1)
	quote, err := m.oracle.GetPrice(callCtx, symbol)
	if err != nil {
		m.failures.Add(1)
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("Price lookup failed")
		return result{err: domain.DataUnavailableError(fmt.Sprintf("price for %s", symbol), err)}
	}
	if quote.Price <= 0 {
		m.failures.Add(1)
		return result{err: domain.DataUnavailableError(fmt.Sprintf("non-positive price %v for %s", quote.Price, symbol), nil)}
	}

	quote.Symbol = symbol
	if quote.FetchedAt.IsZero() {
		quote.FetchedAt = time.Now()
	}

	if useCache {
		if err := m.opts.Cache.Store(ctx, quote, m.opts.TTL); err != nil {
			m.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	return result{quote: quote}
}
