package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// SimpleReturns converts a close series into period returns.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// AnnualizedVolatility is the sample standard deviation of daily returns scaled to a year.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// SharpeRatio uses the annualized mean return in excess of riskFreeRate.
// Zero volatility yields zero.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	vol := AnnualizedVolatility(returns)
	if vol == 0 {
		return 0
	}
	annualReturn := stat.Mean(returns, nil) * TradingDaysPerYear
	return (annualReturn - riskFreeRate) / vol
}

// Beta of asset against benchmark returns of equal length.
func Beta(asset, benchmark []float64) (float64, bool) {
	if len(asset) != len(benchmark) || len(asset) < 2 {
		return 0, false
	}
	variance := stat.Variance(benchmark, nil)
	if variance == 0 {
		return 0, false
	}
	return stat.Covariance(asset, benchmark, nil) / variance, true
}

// MaxDrawdown is the largest peak-to-trough decline of the compounded return curve, as a fraction.
func MaxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		peak = math.Max(peak, equity)
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-equity)/peak)
		}
	}
	return maxDD
}

// WeightedReturns combines aligned per-asset return series with weights that sum to 1.
func WeightedReturns(series [][]float64, weights []float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]float64, len(series[0]))
	for i, s := range series {
		scaled := make([]float64, len(s))
		floats.ScaleTo(scaled, weights[i], s)
		floats.Add(out, scaled)
	}
	return out
}
