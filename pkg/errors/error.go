// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized by the component that raises them:
//   - General errors (1-99): Unknown and internal errors
//   - Configuration errors (1100-1199): Invalid node or strategy configuration
//   - Key errors (1200-1299): Cache key parsing
//   - Node state machine errors (1300-1399): Invalid transitions, failed actions
//   - Strategy graph errors (1400-1499): Topology, init/stop timeouts, crashed tasks
//   - Transport errors (1500-1599): Event and command delivery
//   - Virtual trading system errors (1600-1699): Orders, positions and margin
//   - Cache errors (1700-1799): Cache keys and ordering
//   - Strategy errors (1800-1899): Strategy instances and replay
//   - Persistence errors (1900-1999): Ledger and history sources
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeOrderNotFound, "order %d not found", orderID)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to execute query", originalErr)
//
//	// Attach data the caller can act on
//	err := errors.New(errors.ErrCodeMarginNotEnough, "margin not enough").
//		WithDetail("required", 100.0).
//		WithDetail("available", 50.0)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeOrderNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Details carries the values a caller needs to act on the error,
	// e.g. the requested and available margin.
	Details map[string]any
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
		Details: nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
		Details: nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: nil,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
		Details: nil,
	}
}

// WithDetail attaches a key/value pair to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value

	return e
}

// Detail returns the detail stored under key.
func (e *Error) Detail(key string) (any, bool) {
	if e.Details == nil {
		return nil, false
	}

	v, ok := e.Details[key]

	return v, ok
}

// FullCode returns the component-prefixed code, e.g. VIRTUAL_TRADING_SYSTEM_1604.
func (e *Error) FullCode() string {
	return e.Code.String()
}

// Title returns the short human-readable title of the error code in the given language.
func (e *Error) Title(lang Language) string {
	return TitleOf(e.Code, lang)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// ChainHasCode reports whether any coded error in the cause chain has the given code.
func ChainHasCode(err error, code ErrorCode) bool {
	for _, c := range CodeChain(err) {
		if c == code {
			return true
		}
	}

	return false
}

// CodeChain returns the codes of every *Error in err's cause chain, outermost first.
// Errors that are not *Error are skipped but do not stop the walk.
func CodeChain(err error) []ErrorCode {
	var codes []ErrorCode

	for err != nil {
		var e *Error
		if ok := errors.As(err, &e); !ok {
			break
		}

		codes = append(codes, e.Code)
		err = e.Cause
	}

	return codes
}

// FullCodeChain is CodeChain rendered with component prefixes.
func FullCodeChain(err error) []string {
	codes := CodeChain(err)
	out := make([]string, 0, len(codes))

	for _, c := range codes {
		out = append(out, c.String())
	}

	return out
}

// InsufficientDataError represents an error when there is not enough data
// for a calculation (e.g., an indicator window longer than the cached bars).
type InsufficientDataError struct {
	Required int    // Minimum data points required
	Actual   int    // Actual data points available
	Key      string // Optional: cache key context
	Message  string // Human-readable message
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(required, actual int, key, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Key:      key,
		Message:  message,
	}
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, key, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Key:      key,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
// It uses errors.As to check the error chain.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}
