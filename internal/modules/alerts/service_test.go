package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/aristath/sentinel-alerts/internal/modules/portfolio"
	"github.com/aristath/sentinel-alerts/internal/modules/rebalancing"
	"github.com/aristath/sentinel-alerts/internal/modules/taxlots"
	"github.com/aristath/sentinel-alerts/internal/pricing"
	testutil "github.com/aristath/sentinel-alerts/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	mu       sync.Mutex
	now      time.Time
	rules    *RuleRepository
	history  *HistoryRepository
	oracle   *testutil.MockPriceOracle
	sink     *testutil.MockNotificationSink
	holdings staticHoldings
	service  *Service
}

func newServiceFixture(t *testing.T) (*serviceFixture, func()) {
	db, cleanup := testutil.NewTestDB(t, "alerts")

	f := &serviceFixture{
		now:      time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
		rules:    NewRuleRepository(db.Conn(), zerolog.Nop()),
		history:  NewHistoryRepository(db.Conn(), zerolog.Nop()),
		oracle:   testutil.NewMockPriceOracle(),
		sink:     testutil.NewMockNotificationSink(),
		holdings: staticHoldings{},
	}

	evaluator := NewEvaluator(EvaluatorDeps{
		Portfolio: portfolio.NewService(f.holdings, zerolog.Nop()),
		Harvest:   taxlots.NewOptimizer(nil, zerolog.Nop()).WithClock(f.clock),
		Planner:   rebalancing.NewPlanner(zerolog.Nop()),
	}, EvaluatorParams{Tax: taxlots.DefaultParams(), Currency: "USD"}, zerolog.Nop())

	f.service = NewService(f.rules, evaluator, f.oracle, f.sink, ServiceConfig{
		Price:       pricing.Options{Timeout: time.Second},
		Defaults:    DefaultRuleDefaults(),
		Workers:     4,
		SinkTimeout: time.Second,
	}, zerolog.Nop()).WithRecorder(f.history).WithClock(f.clock)

	return f, cleanup
}

func (f *serviceFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *serviceFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *serviceFixture) create(t *testing.T, r Rule) Rule {
	t.Helper()
	if r.OwnerID == "" {
		r.OwnerID = "alice"
	}
	r.CreatedAt = f.clock()
	created, err := f.rules.Create(context.Background(), r)
	require.NoError(t, err)
	return created
}

func TestRunPass_PriceTargetCrossingTriggersOnce(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	r := f.create(t, Rule{ID: "btc-50k", Type: RuleTypePriceTarget, Symbol: "BTC", TargetValue: floatPtr(50000),
		Config: map[string]any{"direction": "above"}})

	f.oracle.SetPrice("BTC", 49000, 0)
	summary := f.service.RunPass(ctx)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 0, summary.TriggeredCount)
	assert.Empty(t, f.sink.Notifications())

	f.advance(5 * time.Minute)
	f.oracle.SetPrice("BTC", 51000, 0)
	summary = f.service.RunPass(ctx)
	assert.Equal(t, 1, summary.TriggeredCount)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Delivered)

	f.advance(5 * time.Minute)
	summary = f.service.RunPass(ctx)
	assert.Equal(t, 0, summary.TotalProcessed)

	notifications := f.sink.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "alice", notifications[0].OwnerID)
	assert.Equal(t, string(RuleTypePriceTarget), notifications[0].Category)

	got, err := f.rules.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	recorded, err := f.history.ListByRule(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.NotEmpty(t, summary.PassID)
}

func TestRunPass_Idempotent(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder, Config: map[string]any{"interval_days": 7}})
	f.create(t, Rule{ID: "eth", Type: RuleTypePriceTarget, Symbol: "ETH", TargetValue: floatPtr(3000),
		Config: map[string]any{"direction": "below"}})
	f.oracle.SetPrice("ETH", 2500, 0)

	first := f.service.RunPass(ctx)
	assert.Equal(t, 2, first.TriggeredCount)

	second := f.service.RunPass(ctx)
	assert.Equal(t, 0, second.TriggeredCount)
	assert.Len(t, f.sink.Notifications(), 2)
}

func TestRunPass_DCAInterval(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder, Config: map[string]any{"interval_days": 7}})

	assert.Equal(t, 1, f.service.RunPass(ctx).TriggeredCount)

	f.advance(6 * 24 * time.Hour)
	assert.Equal(t, 0, f.service.RunPass(ctx).TriggeredCount)

	f.advance(24 * time.Hour)
	assert.Equal(t, 1, f.service.RunPass(ctx).TriggeredCount)

	got, err := f.rules.Get(ctx, "dca")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, f.clock(), *got.LastTriggeredAt)
	assert.Len(t, f.sink.Notifications(), 2)
}

func TestRunPass_ResilientToBadRules(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	f.create(t, Rule{ID: "no-target", Type: RuleTypePriceTarget, Symbol: "BTC", Config: map[string]any{"direction": "above"}})
	f.create(t, Rule{ID: "no-price", Type: RuleTypePriceTarget, Symbol: "GONE", TargetValue: floatPtr(1),
		Config: map[string]any{"direction": "above"}})
	f.create(t, Rule{ID: "no-holdings", Type: RuleTypeRiskThreshold, TargetValue: floatPtr(10)})
	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})
	f.oracle.SetError("GONE", errors.New("delisted"))

	summary := f.service.RunPass(ctx)
	assert.Equal(t, 4, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TriggeredCount)
	assert.Equal(t, 3, summary.FailedCount)

	kinds := map[string]domain.ErrorKind{}
	for _, r := range summary.Results {
		kinds[r.RuleID] = r.ErrorKind
	}
	assert.Equal(t, domain.KindConfiguration, kinds["no-target"])
	assert.Equal(t, domain.KindDataUnavailable, kinds["no-price"])
	assert.Equal(t, domain.KindDataUnavailable, kinds["no-holdings"])
	assert.Empty(t, kinds["dca"])

	got, err := f.rules.Get(ctx, "no-target")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestRunPass_SinkFailureKeepsTransition(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	f.create(t, Rule{ID: "btc", Type: RuleTypePriceTarget, Symbol: "BTC", TargetValue: floatPtr(100),
		Config: map[string]any{"direction": "above"}})
	f.oracle.SetPrice("BTC", 200, 0)
	f.sink.SetError(errors.New("smtp down"))

	summary := f.service.RunPass(ctx)
	assert.Equal(t, 1, summary.TriggeredCount)
	assert.Equal(t, 1, summary.DeliveryFailures)
	assert.Equal(t, 0, summary.FailedCount)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, domain.KindSinkFailure, summary.Results[0].ErrorKind)
	assert.ErrorIs(t, summary.Results[0].Err, domain.ErrSinkFailure)

	got, err := f.rules.Get(ctx, "btc")
	require.NoError(t, err)
	assert.False(t, got.Active)

	f.sink.SetError(nil)
	summary = f.service.RunPass(ctx)
	assert.Equal(t, 0, summary.TotalProcessed)
	assert.Len(t, f.sink.Notifications(), 1)

	recorded, err := f.history.ListByRule(ctx, "btc")
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
}

func TestRunPass_OneOracleCallPerSymbol(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		f.create(t, Rule{ID: id, Type: RuleTypePriceTarget, Symbol: "BTC", TargetValue: floatPtr(100000),
			Config: map[string]any{"direction": "above"}})
	}
	f.oracle.SetPrice("BTC", 60000, 0)
	f.oracle.SetDelay(10 * time.Millisecond)

	summary := f.service.RunPass(context.Background())
	assert.Equal(t, 5, summary.TotalProcessed)
	assert.Equal(t, int64(1), summary.OracleCalls)
	assert.Equal(t, 1, f.oracle.Calls("BTC"))
}

func TestRunPass_OverlappingCallIsSkipped(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	f.create(t, Rule{ID: "slow", Type: RuleTypePriceTarget, Symbol: "BTC", TargetValue: floatPtr(1),
		Config: map[string]any{"direction": "above"}})
	f.oracle.SetPrice("BTC", 2, 0)
	f.oracle.SetDelay(200 * time.Millisecond)

	done := make(chan Summary)
	go func() { done <- f.service.RunPass(context.Background()) }()

	require.Eventually(t, f.service.running.Load, time.Second, time.Millisecond)
	overlapping := f.service.RunPass(context.Background())
	assert.True(t, overlapping.Skipped)
	assert.Zero(t, overlapping.TotalProcessed)

	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.TriggeredCount)
	assert.Len(t, f.sink.Notifications(), 1)
}

func TestRunPass_CanceledBeforeStart(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := f.service.RunPass(ctx)
	assert.Zero(t, summary.TriggeredCount)
	assert.Empty(t, f.sink.Notifications())
	assert.False(t, f.service.running.Load())
}

// conflictingStore simulates another writer changing a rule between read and claim.
type conflictingStore struct {
	*RuleRepository
	once sync.Once
	race func(ctx context.Context, rule string)
}

func (c *conflictingStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	c.once.Do(func() { c.race(ctx, id) })
	return c.RuleRepository.Deactivate(ctx, id, at)
}

func (c *conflictingStore) AdvanceLastTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) error {
	c.once.Do(func() { c.race(ctx, id) })
	return c.RuleRepository.AdvanceLastTriggered(ctx, id, prev, at)
}

func TestRunPass_StateConflictOnOneShotIsSkipped(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	f.create(t, Rule{ID: "btc", Type: RuleTypePriceTarget, Symbol: "BTC", TargetValue: floatPtr(1),
		Config: map[string]any{"direction": "above"}})
	f.oracle.SetPrice("BTC", 2, 0)

	f.service.rules = &conflictingStore{
		RuleRepository: f.rules,
		race: func(ctx context.Context, id string) {
			require.NoError(t, f.rules.Deactivate(ctx, id, f.clock()))
		},
	}

	summary := f.service.RunPass(context.Background())
	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeSkipped, summary.Results[0].Outcome)
	assert.True(t, summary.Results[0].Retried)
	assert.Zero(t, summary.TriggeredCount)
	assert.Empty(t, f.sink.Notifications())
}

func TestRunPass_StateConflictOnRecurringIsRetried(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})

	f.service.rules = &conflictingStore{
		RuleRepository: f.rules,
		race: func(ctx context.Context, id string) {
			require.NoError(t, f.rules.AdvanceLastTriggered(ctx, id, nil, f.clock()))
		},
	}

	summary := f.service.RunPass(context.Background())
	require.Len(t, summary.Results, 1)
	assert.Equal(t, OutcomeNotTriggered, summary.Results[0].Outcome)
	assert.True(t, summary.Results[0].Retried)
	assert.Empty(t, f.sink.Notifications())
}

// duplicatingStore lists every active rule twice.
type duplicatingStore struct {
	*RuleRepository
}

func (d duplicatingStore) ListActive(ctx context.Context) ([]Rule, error) {
	rules, err := d.RuleRepository.ListActive(ctx)
	return append(rules, rules...), err
}

func TestRunPass_DeduplicatesRules(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})
	f.service.rules = duplicatingStore{f.rules}

	summary := f.service.RunPass(context.Background())
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TriggeredCount)
	assert.Len(t, f.sink.Notifications(), 1)
}

func TestRunPass_EmitsEvents(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()

	manager := events.NewManager(zerolog.Nop())
	var seen []events.EventType
	manager.SubscribeAll(func(e events.Event) { seen = append(seen, e.Type) })
	f.service.WithEvents(manager)

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})
	f.service.RunPass(context.Background())

	assert.Equal(t, []events.EventType{events.AlertTriggered, events.PassCompleted}, seen)
}

func TestEvaluateRule(t *testing.T) {
	f, cleanup := newServiceFixture(t)
	defer cleanup()
	ctx := context.Background()

	f.create(t, Rule{ID: "dca", Type: RuleTypeDCAReminder})

	res := f.service.EvaluateRule(ctx, "dca")
	assert.Equal(t, OutcomeTriggered, res.Outcome)
	assert.NotEmpty(t, res.AlertID)

	res = f.service.EvaluateRule(ctx, "dca")
	assert.Equal(t, OutcomeNotTriggered, res.Outcome)

	res = f.service.EvaluateRule(ctx, "missing")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrRuleNotFound)
}
