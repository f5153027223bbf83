package strategy

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized transport failure taxonomy.
type ErrorCategory string

const (
	// ErrorTimeout means the external check exceeded its deadline.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData means the response could not be parsed.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage means the external service is unavailable or refused the query.
	ErrorOutage ErrorCategory = "outage"

	// ErrorInternal indicates an unexpected local error.
	ErrorInternal ErrorCategory = "internal"
)

// Error is a transport failure during Verify. It never settles a request.
type Error struct {
	Category   ErrorCategory
	StrategyID string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("strategy %s [%s]: %s: %v", e.StrategyID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("strategy %s [%s]: %s", e.StrategyID, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds a categorized transport error.
func NewError(category ErrorCategory, strategyID, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		StrategyID: strategyID,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorOutage,
	}
}

// IsRetryable reports whether re-triggering the check may succeed.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the category, defaulting to ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return ErrorInternal
}
