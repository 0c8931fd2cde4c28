// Package notification provides NotificationSink implementations for triggered alerts.
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/sentinel-alerts/internal/domain"
	"github.com/aristath/sentinel-alerts/internal/events"
	"github.com/rs/zerolog"
)

// LogSink writes every notification to the structured log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink that only logs.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "log_sink").Logger()}
}

// Notify implements domain.NotificationSink.
func (s *LogSink) Notify(_ context.Context, ownerID, title, body, category string) error {
	s.log.Info().
		Str("owner_id", ownerID).
		Str("category", category).
		Str("title", title).
		Msg(body)
	return nil
}

// MultiSink delivers to every configured sink. Delivery counts as failed if any sink fails;
// the remaining sinks are still called.
type MultiSink struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink domain.NotificationSink
}

// NewMultiSink creates an empty fan-out sink.
func NewMultiSink() *MultiSink {
	return &MultiSink{}
}

// Add registers sink under name. Names appear in delivery errors.
func (m *MultiSink) Add(name string, sink domain.NotificationSink) *MultiSink {
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
	return m
}

// Len returns the number of registered sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Notify implements domain.NotificationSink.
func (m *MultiSink) Notify(ctx context.Context, ownerID, title, body, category string) error {
	if len(m.sinks) == 0 {
		return fmt.Errorf("%w: no sinks configured", domain.ErrSinkFailure)
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Notify(ctx, ownerID, title, body, category); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrSinkFailure, errors.Join(errs...))
	}
	return nil
}

// ObservedSink emits a delivery event for every Notify call of the wrapped sink.
type ObservedSink struct {
	name   string
	sink   domain.NotificationSink
	events *events.Manager
}

// Observe wraps sink so that deliveries are published on manager.
func Observe(name string, sink domain.NotificationSink, manager *events.Manager) *ObservedSink {
	return &ObservedSink{name: name, sink: sink, events: manager}
}

// Notify implements domain.NotificationSink.
func (o *ObservedSink) Notify(ctx context.Context, ownerID, title, body, category string) error {
	err := o.sink.Notify(ctx, ownerID, title, body, category)

	data := &events.DeliveryData{
		OwnerID:  ownerID,
		Category: category,
		Title:    title,
		Sink:     o.name,
	}
	if err != nil {
		data.Error = err.Error()
	}
	o.events.Emit("notification", data)

	return err
}
