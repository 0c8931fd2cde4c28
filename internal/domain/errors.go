package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for rule evaluation. Every failure is contained at single-rule granularity.
var (
	ErrDataUnavailable = errors.New("data unavailable")
	ErrConfiguration   = errors.New("configuration error")
	ErrStateConflict   = errors.New("state conflict")
	ErrSinkFailure     = errors.New("notification sink failure")
	ErrNoHoldings      = errors.New("no holdings")
)

// ErrorKind classifies a rule failure for summaries and logs.
type ErrorKind string

const (
	KindDataUnavailable ErrorKind = "data_unavailable"
	KindConfiguration   ErrorKind = "configuration_error"
	KindStateConflict   ErrorKind = "state_conflict"
	KindSinkFailure     ErrorKind = "sink_failure"
	KindInternal        ErrorKind = "internal"
)

// KindOf maps an error onto the taxonomy. Missing holdings count as unavailable data.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrStateConflict):
		return KindStateConflict
	case errors.Is(err, ErrSinkFailure):
		return KindSinkFailure
	case errors.Is(err, ErrDataUnavailable), errors.Is(err, ErrNoHoldings):
		return KindDataUnavailable
	default:
		return KindInternal
	}
}

// RuleError is a failure attributed to one alert rule.
type RuleError struct {
	RuleID string
	Kind   ErrorKind
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s [%s]: %v", e.RuleID, e.Kind, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// NewRuleError wraps err for ruleID, classifying it with KindOf.
func NewRuleError(ruleID string, err error) *RuleError {
	return &RuleError{RuleID: ruleID, Kind: KindOf(err), Err: err}
}

// ConfigurationError builds an error wrapping ErrConfiguration.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// DataUnavailableError wraps cause as ErrDataUnavailable, keeping cause in the chain.
func DataUnavailableError(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrDataUnavailable, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, what, cause)
}
