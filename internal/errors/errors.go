// Package errors provides custom error types for backtest failures.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDataNotFound      = errors.New("data not found")
	ErrDatabaseError     = errors.New("database error")
	ErrPriceMissing      = errors.New("option price missing")
	ErrNoExpiry          = errors.New("no expiry on or after date")
	ErrNoStrikesInRange  = errors.New("no strikes in delta range")
	ErrIVNotFound        = errors.New("implied volatility not found")
	ErrInvalidDeltaRange = errors.New("target delta outside delta range")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Day processing stages reported by DayError.
const (
	StageExpiry  = "expiry"
	StageFetch   = "fetch"
	StageAtm     = "atm"
	StageEntry   = "entry"
	StageSegment = "segment"
	StageWrite   = "write"
)

// DayError records a trading day that could not be simulated.
type DayError struct {
	Date  time.Time
	Stage string
	Err   error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("day %s failed at %s: %v", e.Date.Format("2006-01-02"), e.Stage, e.Err)
}

func (e *DayError) Unwrap() error {
	return e.Err
}

// NewDayError creates a new DayError.
func NewDayError(date time.Time, stage string, err error) *DayError {
	return &DayError{
		Date:  date,
		Stage: stage,
		Err:   err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
