package radwatch

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the radwatch package.
var (
	// ErrEngineClosed is returned when operations are attempted on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrNonMonotonicTimestamp is returned when a reading is older than (or
	// duplicates) the last accepted reading for its metric.
	ErrNonMonotonicTimestamp = errors.New("non-monotonic timestamp")

	// ErrNonFiniteValue is returned when a reading value is NaN or infinite.
	ErrNonFiniteValue = errors.New("non-finite value")

	// ErrUnknownMetric is returned for readings or queries on an unrecognized metric.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrConfigOutOfRange is returned when Configure is called with an
	// out-of-range option. The previous configuration is retained.
	ErrConfigOutOfRange = errors.New("configuration option out of range")

	// ErrNoForecast is returned when a forecast is requested for a metric
	// with no observed readings.
	ErrNoForecast = errors.New("no forecast state for metric")

	// ErrSettingsNotFound is returned by SettingsStore.Load when no options
	// have been saved for the requested device.
	ErrSettingsNotFound = errors.New("settings not found")
)

// IngestErrorType categorizes reading ingestion failures.
type IngestErrorType int

const (
	// IngestErrorTypeUnknown is an unclassified ingestion error.
	IngestErrorTypeUnknown IngestErrorType = iota
	// IngestErrorTypeNonMonotonic indicates a reading older than the last accepted one.
	IngestErrorTypeNonMonotonic
	// IngestErrorTypeNonFinite indicates a NaN or infinite value.
	IngestErrorTypeNonFinite
	// IngestErrorTypeUnknownMetric indicates an unrecognized metric kind.
	IngestErrorTypeUnknownMetric
	// IngestErrorTypeClosed indicates the engine has been closed.
	IngestErrorTypeClosed
)

// IngestError provides detailed information about a rejected reading.
// A rejected reading never mutates engine state.
type IngestError struct {
	Type    IngestErrorType
	Message string
	Reading Reading
	Cause   error
}

func (e *IngestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (metric=%s ts=%d): %v", e.Message, e.Reading.Metric, e.Reading.TimestampMs, e.Cause)
	}
	return fmt.Sprintf("%s (metric=%s ts=%d)", e.Message, e.Reading.Metric, e.Reading.TimestampMs)
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for IngestError.
func (e *IngestError) Is(target error) bool {
	switch e.Type {
	case IngestErrorTypeNonMonotonic:
		return target == ErrNonMonotonicTimestamp
	case IngestErrorTypeNonFinite:
		return target == ErrNonFiniteValue
	case IngestErrorTypeUnknownMetric:
		return target == ErrUnknownMetric
	case IngestErrorTypeClosed:
		return target == ErrEngineClosed
	}
	return false
}

// newIngestError creates a new IngestError.
func newIngestError(errType IngestErrorType, message string, r Reading, cause error) *IngestError {
	return &IngestError{
		Type:    errType,
		Message: message,
		Reading: r,
		Cause:   cause,
	}
}

// ConfigError describes an invalid configuration option passed to Configure
// or New. The field name refers to the option as spelled in Options/Config.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigOutOfRange
}

// newConfigError creates a new ConfigError.
func newConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}
