// Package risk computes portfolio risk statistics from stored daily closes.
// When history is too short the result says so instead of guessing.
package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/rs/zerolog"
)

// MinObservations is the minimum number of aligned daily returns required for statistics.
const MinObservations = 30

// HistorySource supplies daily closes.
type HistorySource interface {
	Closes(ctx context.Context, symbol string, since time.Time) ([]DailyClose, error)
}

// Params configures a metrics computation.
type Params struct {
	RiskFreeRate    float64
	BenchmarkSymbol string
	LookbackDays    int
}

// Metrics are annualized risk statistics. Fractions, not percentages.
// When Available is false only Reason and Observations are meaningful.
type Metrics struct {
	Reason           string   `json:"reason,omitempty"`
	Beta             *float64 `json:"beta,omitempty"`
	Observations     int      `json:"observations"`
	AnnualVolatility float64  `json:"annual_volatility"`
	SharpeRatio      float64  `json:"sharpe_ratio"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	Available        bool     `json:"available"`
}

// Calculator computes risk metrics for symbols and weighted portfolios.
type Calculator struct {
	history HistorySource
	now     domain.Clock
	log     zerolog.Logger
}

// NewCalculator creates a new risk calculator
func NewCalculator(history HistorySource, log zerolog.Logger) *Calculator {
	return &Calculator{
		history: history,
		now:     time.Now,
		log:     log.With().Str("service", "risk").Logger(),
	}
}

// WithClock overrides the clock that anchors the lookback window.
func (c *Calculator) WithClock(clock domain.Clock) *Calculator {
	c.now = clock
	return c
}

// SymbolMetrics computes metrics for a single symbol.
func (c *Calculator) SymbolMetrics(ctx context.Context, symbol string, params Params) (Metrics, error) {
	return c.PortfolioMetrics(ctx, map[string]float64{symbol: 1}, params)
}

// PortfolioMetrics computes metrics of the weighted portfolio over dates where every symbol has a close.
// Weights are normalized; non-positive weights are ignored.
func (c *Calculator) PortfolioMetrics(ctx context.Context, weights map[string]float64, params Params) (Metrics, error) {
	symbols, normalized := normalizeWeights(weights)
	if len(symbols) == 0 {
		return Metrics{Reason: "no weighted holdings"}, nil
	}

	since := c.now().AddDate(0, 0, -lookback(params))

	closesBySymbol := make(map[string][]DailyClose, len(symbols))
	for _, symbol := range symbols {
		closes, err := c.history.Closes(ctx, symbol, since)
		if err != nil {
			return Metrics{}, domain.DataUnavailableError(fmt.Sprintf("price history for %s", symbol), err)
		}
		closesBySymbol[symbol] = closes
	}

	dates, aligned := align(symbols, closesBySymbol)
	if len(dates) < MinObservations+1 {
		return Metrics{
			Observations: max(len(dates)-1, 0),
			Reason:       fmt.Sprintf("insufficient price history: %d aligned days, need %d", len(dates), MinObservations+1),
		}, nil
	}

	series := make([][]float64, len(symbols))
	for i := range symbols {
		series[i] = SimpleReturns(aligned[i])
	}
	returns := WeightedReturns(series, normalized)

	m := Metrics{
		Observations:     len(returns),
		AnnualVolatility: AnnualizedVolatility(returns),
		SharpeRatio:      SharpeRatio(returns, params.RiskFreeRate),
		MaxDrawdown:      MaxDrawdown(returns),
		Available:        true,
	}

	if params.BenchmarkSymbol != "" {
		if beta, ok := c.beta(ctx, returns, dates, since, params.BenchmarkSymbol); ok {
			m.Beta = &beta
		}
	}

	c.log.Debug().
		Strs("symbols", symbols).
		Int("observations", m.Observations).
		Float64("volatility", m.AnnualVolatility).
		Msg("Risk metrics computed")

	return m, nil
}

func (c *Calculator) beta(ctx context.Context, returns []float64, dates []time.Time, since time.Time, benchmark string) (float64, bool) {
	closes, err := c.history.Closes(ctx, benchmark, since)
	if err != nil {
		c.log.Warn().Err(err).Str("benchmark", benchmark).Msg("Benchmark history unavailable, beta skipped")
		return 0, false
	}

	byDate := make(map[int64]float64, len(closes))
	for _, cl := range closes {
		byDate[cl.Date.Unix()] = cl.Close
	}
	bench := make([]float64, 0, len(dates))
	for _, d := range dates {
		v, ok := byDate[d.Unix()]
		if !ok {
			return 0, false
		}
		bench = append(bench, v)
	}

	return Beta(returns, SimpleReturns(bench))
}

func lookback(params Params) int {
	if params.LookbackDays <= 0 {
		return 2 * TradingDaysPerYear
	}
	return params.LookbackDays
}

func normalizeWeights(weights map[string]float64) ([]string, []float64) {
	var symbols []string
	total := 0.0
	for symbol, w := range weights {
		if w > 0 {
			symbols = append(symbols, symbol)
			total += w
		}
	}
	sort.Strings(symbols)

	normalized := make([]float64, len(symbols))
	for i, symbol := range symbols {
		normalized[i] = weights[symbol] / total
	}
	return symbols, normalized
}

// align keeps only dates on which every symbol has a close.
func align(symbols []string, closesBySymbol map[string][]DailyClose) ([]time.Time, [][]float64) {
	counts := make(map[int64]int)
	values := make([]map[int64]float64, len(symbols))
	for i, symbol := range symbols {
		values[i] = make(map[int64]float64)
		for _, cl := range closesBySymbol[symbol] {
			key := cl.Date.Unix()
			if _, seen := values[i][key]; !seen {
				counts[key]++
			}
			values[i][key] = cl.Close
		}
	}

	var keys []int64
	for key, n := range counts {
		if n == len(symbols) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	dates := make([]time.Time, len(keys))
	aligned := make([][]float64, len(symbols))
	for i := range symbols {
		aligned[i] = make([]float64, len(keys))
	}
	for k, key := range keys {
		dates[k] = time.Unix(key, 0).UTC()
		for i := range symbols {
			aligned[i][k] = values[i][key]
		}
	}
	return dates, aligned
}
