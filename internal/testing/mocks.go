package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/sentinel-alerts/internal/domain"
)

// MockPriceOracle is a concurrency-safe in-memory PriceOracle.
type MockPriceOracle struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
	errs   map[string]error
	delay  time.Duration
	calls  map[string]int
}

// NewMockPriceOracle creates an oracle with no prices.
func NewMockPriceOracle() *MockPriceOracle {
	return &MockPriceOracle{
		quotes: make(map[string]domain.Quote),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetPrice sets the price returned for symbol.
func (m *MockPriceOracle) SetPrice(symbol string, price, change24h float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = domain.Quote{Symbol: symbol, Price: price, Change24h: change24h}
	delete(m.errs, symbol)
}

// SetError makes lookups of symbol fail with err.
func (m *MockPriceOracle) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SetDelay makes every lookup block for d or until the context is done.
func (m *MockPriceOracle) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times symbol was looked up.
func (m *MockPriceOracle) Calls(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[symbol]
}

// GetPrice implements domain.PriceOracle.
func (m *MockPriceOracle) GetPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	m.mu.Lock()
	m.calls[symbol]++
	delay := m.delay
	quote, ok := m.quotes[symbol]
	err := m.errs[symbol]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Quote{}, err
	}
	if !ok {
		return domain.Quote{}, fmt.Errorf("no price for %s", symbol)
	}
	quote.FetchedAt = time.Now()
	return quote, nil
}

// Quote lets the oracle stand in for a domain.QuoteSource without memoization.
func (m *MockPriceOracle) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return m.GetPrice(ctx, symbol)
}

// Notification is one call recorded by MockNotificationSink.
type Notification struct {
	OwnerID  string
	Title    string
	Body     string
	Category string
}

// MockNotificationSink records notifications and can be told to fail.
type MockNotificationSink struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
}

// NewMockNotificationSink creates an empty sink.
func NewMockNotificationSink() *MockNotificationSink {
	return &MockNotificationSink{}
}

// SetError makes every Notify call fail with err.
func (m *MockNotificationSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Notify implements domain.NotificationSink. Failed deliveries are still recorded.
func (m *MockNotificationSink) Notify(_ context.Context, ownerID, title, body, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, Notification{
		OwnerID:  ownerID,
		Title:    title,
		Body:     body,
		Category: category,
	})
	return m.err
}

// Notifications returns a copy of the recorded notifications.
func (m *MockNotificationSink) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// MockSellHistory is an in-memory domain.SellHistory.
type MockSellHistory struct {
	mu    sync.RWMutex
	sales []domain.Sale
	err   error
}

// NewMockSellHistory creates an empty sell history.
func NewMockSellHistory() *MockSellHistory {
	return &MockSellHistory{}
}

// AddSale records a sale.
func (m *MockSellHistory) AddSale(sale domain.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, sale)
}

// SetError makes lookups fail with err.
func (m *MockSellHistory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SoldWithin implements domain.SellHistory.
func (m *MockSellHistory) SoldWithin(_ context.Context, ownerID, symbol string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return false, m.err
	}
	for _, s := range m.sales {
		if s.OwnerID == ownerID && s.Symbol == symbol && !s.SoldAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) domain.Clock {
	return func() time.Time { return t }
}
