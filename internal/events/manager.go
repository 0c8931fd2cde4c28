package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event represents a system event
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
}

// Handler receives emitted events. Handlers run synchronously on the emitting goroutine.
type Handler func(Event)

// Manager handles event emission, logging and fan-out to subscribers
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	now      func() time.Time
	log      zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		now:      time.Now,
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers h for one event type.
func (m *Manager) Subscribe(eventType EventType, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], h)
}

// SubscribeAll registers h for every event type.
func (m *Manager) SubscribeAll(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = append(m.all, h)
}

// Emit logs the event and hands it to every matching subscriber.
// A panicking handler is logged and does not affect the others.
func (m *Manager) Emit(module string, data EventData) {
	if m == nil || data == nil {
		return
	}

	event := Event{
		Timestamp: m.now(),
		Data:      data,
		Type:      data.EventType(),
		Module:    module,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to marshal event")
	} else {
		m.log.Debug().
			Str("event_type", string(event.Type)).
			Str("module", module).
			RawJSON("event", eventJSON).
			Msg("Event emitted")
	}

	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.handlers[event.Type])+len(m.all))
	handlers = append(handlers, m.handlers[event.Type]...)
	handlers = append(handlers, m.all...)
	m.mu.RUnlock()

	for _, h := range handlers {
		m.dispatch(h, event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]any) {
	if err == nil {
		return
	}
	m.Emit(module, &ErrorEventData{Error: err.Error(), Context: context})
}

func (m *Manager) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}
