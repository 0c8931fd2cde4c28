package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/risk"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/aristath/sentinel-alerts/internal/pricing"
	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type staticHoldings map[string][]domain.Holding

func (s staticHoldings) ListByOwner(_ context.Context, ownerID string) ([]domain.Holding, error) {
	return s[ownerID], nil
}

type staticTargets map[string][]rebalancing.Target

func (s staticTargets) Targets(_ context.Context, ownerID string) ([]rebalancing.Target, error) {
	return s[ownerID], nil
}

// MockRiskSource is a mock implementation of RiskSource
type MockRiskSource struct {
	mock.Mock
}

func (m *MockRiskSource) PortfolioMetrics(ctx context.Context, weights map[string]float64, params risk.Params) (risk.Metrics, error) {
	args := m.Called(ctx, weights, params)
	return args.Get(0).(risk.Metrics), args.Error(1)
}

// MockSentimentSource is a mock implementation of domain.SentimentSource
type MockSentimentSource struct {
	mock.Mock
}

func (m *MockSentimentSource) Score(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

type evalFixture struct {
	oracle    *testutil.MockPriceOracle
	holdings  staticHoldings
	targets   staticTargets
	history   *testutil.MockSellHistory
	risk      *MockRiskSource
	sentiment *MockSentimentSource
	evaluator *Evaluator
}

func newEvalFixture() *evalFixture {
	f := &evalFixture{
		oracle:    testutil.NewMockPriceOracle(),
		holdings:  staticHoldings{},
		targets:   staticTargets{},
		history:   testutil.NewMockSellHistory(),
		risk:      new(MockRiskSource),
		sentiment: new(MockSentimentSource),
	}
	clock := testutil.FixedClock(evalNow)
	f.evaluator = NewEvaluator(EvaluatorDeps{
		Portfolio: portfolio.NewService(f.holdings, zerolog.Nop()).WithClock(clock),
		Harvest:   taxlots.NewOptimizer(f.history, zerolog.Nop()).WithClock(clock),
		Planner:   rebalancing.NewPlanner(zerolog.Nop()),
		Targets:   f.targets,
		Risk:      f.risk,
		Sentiment: f.sentiment,
	}, EvaluatorParams{
		Tax:       taxlots.DefaultParams(),
		Rebalance: rebalancing.Params{FeeRate: rebalancing.DefaultFeeRate},
		Currency:  "USD",
	}, zerolog.Nop())
	return f
}

func (f *evalFixture) pass() *Pass {
	return NewPass("pass-1", evalNow, pricing.NewMemo(f.oracle, pricing.Options{}, zerolog.Nop()))
}

func (f *evalFixture) evaluate(t *testing.T, r Rule) (Decision, error) {
	t.Helper()
	spec, err := ParseRule(r, DefaultRuleDefaults())
	require.NoError(t, err)
	return f.evaluator.Evaluate(context.Background(), f.pass(), spec)
}

func TestEvaluate_PriceTarget(t *testing.T) {
	f := newEvalFixture()
	r := rule(RuleTypePriceTarget, "BTC", floatPtr(50000), map[string]any{"direction": "above"})

	f.oracle.SetPrice("BTC", 49000, -1)
	d, err := f.evaluate(t, r)
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	f.oracle.SetPrice("BTC", 51000, 4.1)
	d, err = f.evaluate(t, r)
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Equal(t, "BTC above $50,000.00", d.Title)
	assert.Equal(t, "BTC is trading at $51,000.00, above your target of $50,000.00.", d.Message)
	assert.Equal(t, 51000.0, *d.Payload.CurrentPrice)
	assert.Equal(t, 4.1, *d.Payload.PercentChange)

	below := rule(RuleTypePriceTarget, "BTC", floatPtr(52000), map[string]any{"direction": "below"})
	d, err = f.evaluate(t, below)
	require.NoError(t, err)
	assert.True(t, d.Triggered)

	f.oracle.SetError("BTC", errors.New("timeout"))
	_, err = f.evaluate(t, r)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestEvaluate_PurchaseTarget(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{
		testutil.NewHolding("alice", "AAPL", 10, 100, evalNow, 100),
		testutil.NewHolding("alice", "AAPL", 10, 140, evalNow, 10),
	}
	f.oracle.SetPrice("AAPL", 144, 0)

	// average cost 120, return +20%
	d, err := f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(20), nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.InDelta(t, 20.0, *d.Payload.PercentChange, 1e-9)
	assert.Equal(t, "AAPL up 20.00% since purchase", d.Title)

	d, err = f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(25), nil))
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	d, err = f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(-10), map[string]any{"purchase_price": 200}))
	require.NoError(t, err)
	assert.True(t, d.Triggered)
	assert.Contains(t, d.Message, "down 28.00%")

	f.oracle.SetPrice("TSLA", 100, 0)
	_, err = f.evaluate(t, rule(RuleTypePurchaseTarget, "TSLA", floatPtr(10), nil))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestEvaluate_PurchaseTargetEitherDirection(t *testing.T) {
	f := newEvalFixture()
	bought := map[string]any{"purchase_price": 200}

	// A positive target still fires on a drop of the same size.
	f.oracle.SetPrice("AAPL", 170, 0)
	d, err := f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(10), bought))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.InDelta(t, -15.0, *d.Payload.PercentChange, 1e-9)
	assert.Equal(t, string(DirectionLoss), d.Payload.Direction)

	// A negative target still fires on a rise.
	f.oracle.SetPrice("AAPL", 240, 0)
	d, err = f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(-10), bought))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.InDelta(t, 20.0, *d.Payload.PercentChange, 1e-9)
	assert.Equal(t, string(DirectionGain), d.Payload.Direction)

	f.oracle.SetPrice("AAPL", 190, 0)
	d, err = f.evaluate(t, rule(RuleTypePurchaseTarget, "AAPL", floatPtr(10), bought))
	require.NoError(t, err)
	assert.False(t, d.Triggered)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestEvaluate_Rebalance(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{
		testutil.NewHolding("alice", "BTC", 27, 100, evalNow, 10),
		testutil.NewHolding("alice", "VTI", 73, 100, evalNow, 10),
	}
	f.oracle.SetPrice("BTC", 100, 0)
	f.oracle.SetPrice("VTI", 100, 0)
	f.targets["alice"] = []rebalancing.Target{{Symbol: "BTC", Pct: 20}, {Symbol: "VTI", Pct: 80}}

	d, err := f.evaluate(t, rule(RuleTypePortfolioRebalance, "", nil, nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.InDelta(t, 7.0, *d.Payload.PercentChange, 1e-9)
	assert.Contains(t, d.Message, "2 allocation(s) drifted more than 5.00%")

	d, err = f.evaluate(t, rule(RuleTypePortfolioRebalance, "", floatPtr(10), nil))
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	f.holdings["bob"] = []domain.Holding{testutil.NewHolding("bob", "VTI", 1, 100, evalNow, 10)}
	bob := rule(RuleTypePortfolioRebalance, "", nil, nil)
	bob.OwnerID = "bob"
	_, err = f.evaluate(t, bob)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEvaluate_RebalanceUnheldTargetUsesQuote(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{testutil.NewHolding("alice", "VTI", 10, 100, evalNow, 10)}
	f.oracle.SetPrice("VTI", 100, 0)
	f.oracle.SetPrice("BND", 50, 0)

	d, err := f.evaluate(t, rule(RuleTypePortfolioRebalance, "", nil, map[string]any{
		"targets": map[string]any{"VTI": 70, "BND": 30},
	}))
	require.NoError(t, err)
	require.True(t, d.Triggered)

	trades := d.Payload.Details["trades"].([]rebalancing.Trade)
	require.Len(t, trades, 2)
	assert.Equal(t, "BND", trades[0].Symbol)
	assert.InDelta(t, 6.0, trades[0].Quantity, 1e-9)
}

func TestEvaluate_TaxOptimization(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{testutil.NewHolding("alice", "BTC", 2, 1000, evalNow, 100)}
	f.oracle.SetPrice("BTC", 700, 0)

	d, err := f.evaluate(t, rule(RuleTypeTaxOptimization, "", nil, map[string]any{"min_savings": 100}))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Equal(t, "1 lot(s) could save an estimated $132.00 in taxes ($600.00 unrealized loss).", d.Message)
	assert.Equal(t, 132.0, d.Payload.Details["total_tax_savings"])

	d, err = f.evaluate(t, rule(RuleTypeTaxOptimization, "", nil, map[string]any{"min_savings": 150}))
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	f.history.AddSale(domain.Sale{OwnerID: "alice", Symbol: "BTC", SoldAt: evalNow.AddDate(0, 0, -5)})
	d, err = f.evaluate(t, rule(RuleTypeTaxOptimization, "", nil, nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Contains(t, d.Message, "Wash-sale risk: BTC.")
}

func TestEvaluate_RiskThreshold(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{testutil.NewHolding("alice", "ETH", 10, 100, evalNow, 30)}
	f.oracle.SetPrice("ETH", 85, 0)

	d, err := f.evaluate(t, rule(RuleTypeRiskThreshold, "", floatPtr(10), nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Equal(t, "Portfolio drawdown 15.00% exceeds 10.00%.", d.Message)

	d, err = f.evaluate(t, rule(RuleTypeRiskThreshold, "", floatPtr(20), nil))
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	f.risk.On("PortfolioMetrics", mock.Anything, map[string]float64{"ETH": 850}, mock.Anything).
		Return(risk.Metrics{Available: true, AnnualVolatility: 0.65, Observations: 200}, nil).Once()
	d, err = f.evaluate(t, rule(RuleTypeRiskThreshold, "", nil, map[string]any{"max_volatility_pct": 50}))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Contains(t, d.Message, "volatility 65.00% exceeds 50.00%")

	f.risk.On("PortfolioMetrics", mock.Anything, mock.Anything, mock.Anything).
		Return(risk.Metrics{Available: false, Reason: "insufficient price history"}, nil).Once()
	d, err = f.evaluate(t, rule(RuleTypeRiskThreshold, "", nil, map[string]any{"max_volatility_pct": 50}))
	require.NoError(t, err)
	assert.False(t, d.Triggered)
	assert.Contains(t, d.Reason, "volatility unavailable")

	f.risk.AssertExpectations(t)
}

func TestEvaluate_Sentiment(t *testing.T) {
	f := newEvalFixture()
	f.sentiment.On("Score", mock.Anything, domain.MarketSymbol).Return(12.0, nil).Once()
	f.sentiment.On("Score", mock.Anything, domain.MarketSymbol).Return(50.0, nil).Once()
	f.sentiment.On("Score", mock.Anything, "BTC").Return(85.0, nil).Once()
	f.sentiment.On("Score", mock.Anything, "ETH").Return(0.0, domain.DataUnavailableError("sentiment for ETH", nil)).Once()

	d, err := f.evaluate(t, rule(RuleTypeMarketSentiment, "", nil, nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Equal(t, "Extreme fear in MARKET", d.Title)

	d, err = f.evaluate(t, rule(RuleTypeMarketSentiment, "", nil, nil))
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	d, err = f.evaluate(t, rule(RuleTypeMarketSentiment, "BTC", nil, nil))
	require.NoError(t, err)
	require.True(t, d.Triggered)
	assert.Equal(t, "Extreme greed in BTC", d.Title)

	_, err = f.evaluate(t, rule(RuleTypeMarketSentiment, "ETH", nil, nil))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	f.sentiment.AssertExpectations(t)
}

func TestEvaluate_DCAReminder(t *testing.T) {
	f := newEvalFixture()

	r := rule(RuleTypeDCAReminder, "BTC", nil, map[string]any{"interval_days": 7, "amount": 100})

	d, err := f.evaluate(t, r)
	require.NoError(t, err)
	assert.True(t, d.Triggered, "never triggered before")
	assert.Equal(t, "Time for your recurring BTC purchase of $100.00.", d.Message)

	sixDays := evalNow.AddDate(0, 0, -6)
	r.LastTriggeredAt = &sixDays
	d, err = f.evaluate(t, r)
	require.NoError(t, err)
	assert.False(t, d.Triggered)

	sevenDays := evalNow.AddDate(0, 0, -7)
	r.LastTriggeredAt = &sevenDays
	d, err = f.evaluate(t, r)
	require.NoError(t, err)
	assert.True(t, d.Triggered)
}

func TestEvaluate_CooldownAndInactive(t *testing.T) {
	f := newEvalFixture()
	f.sentiment.On("Score", mock.Anything, domain.MarketSymbol).Return(5.0, nil)

	r := rule(RuleTypeMarketSentiment, "", nil, map[string]any{"cooldown_hours": 12})
	recent := evalNow.Add(-2 * time.Hour)
	r.LastTriggeredAt = &recent

	d, err := f.evaluate(t, r)
	require.NoError(t, err)
	assert.False(t, d.Triggered)
	assert.Contains(t, d.Reason, "cooling down")

	old := evalNow.Add(-13 * time.Hour)
	r.LastTriggeredAt = &old
	d, err = f.evaluate(t, r)
	require.NoError(t, err)
	assert.True(t, d.Triggered)

	r.Active = false
	d, err = f.evaluate(t, r)
	require.NoError(t, err)
	assert.False(t, d.Triggered)
}

func TestPass_SnapshotComputedOncePerOwner(t *testing.T) {
	f := newEvalFixture()
	f.holdings["alice"] = []domain.Holding{testutil.NewHolding("alice", "BTC", 1, 100, evalNow, 1)}
	f.oracle.SetPrice("BTC", 100, 0)

	pass := f.pass()
	provider := portfolio.NewService(f.holdings, zerolog.Nop())

	first, err := pass.Snapshot(context.Background(), "alice", provider)
	require.NoError(t, err)
	second, err := pass.Snapshot(context.Background(), "alice", provider)
	require.NoError(t, err)

	assert.Same(t, first, second)

	_, err = pass.Snapshot(context.Background(), "nobody", provider)
	assert.ErrorIs(t, err, domain.ErrNoHoldings)
}
