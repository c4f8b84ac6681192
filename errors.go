package mtt

import (
	"fmt"

	"github.com/pkg/errors"
)

// DomainError is returned when a measurement model is undefined for a given state,
// e.g. a camera projection of a point with zero forward range.
type DomainError struct {
	// Sensor is the ID of the sensor whose model failed
	Sensor string
	// Op is the failed operation
	Op string
	// Msg describes the failure
	Msg string
}

// Error implements error interface
func (e *DomainError) Error() string {
	return fmt.Sprintf("domain error: sensor %q: %s: %s", e.Sensor, e.Op, e.Msg)
}

// NumericalError is returned when a covariance matrix can not be inverted
// or loses positive semi-definiteness beyond tolerance.
type NumericalError struct {
	// Op is the failed operation
	Op string
	// Err is the underlying error
	Err error
}

// Error implements error interface
func (e *NumericalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("numerical error: %s", e.Op)
	}
	return fmt.Sprintf("numerical error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NumericalError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned when components are wired with mismatched dimensions
// or invalid parameters.
type ConfigurationError struct {
	// Msg describes the failure
	Msg string
}

// Error implements error interface
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// NewDomainError returns new DomainError
func NewDomainError(sensor, op, format string, args ...interface{}) error {
	return &DomainError{Sensor: sensor, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NewNumericalError returns new NumericalError
func NewNumericalError(op string, err error) error {
	return &NumericalError{Op: op, Err: err}
}

// NewConfigurationError returns new ConfigurationError
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsDomain returns true if err or any error it wraps is a DomainError
func IsDomain(err error) bool {
	var e *DomainError
	return errors.As(err, &e)
}

// IsNumerical returns true if err or any error it wraps is a NumericalError
func IsNumerical(err error) bool {
	var e *NumericalError
	return errors.As(err, &e)
}

// IsConfiguration returns true if err or any error it wraps is a ConfigurationError
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
