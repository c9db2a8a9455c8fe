// Package coordinatorerrs defines the typed, caller-facing error shapes of
// spec §7. Validation errors are surfaced to whoever called into the core
// (the excluded HTTP layer maps them to status codes); they never cause a
// competition state change.
package coordinatorerrs

import "fmt"

// Code is the HTTP-shaped classification a caller maps to a status code.
// The core itself never imports net/http; it only hands back this code.
type Code int

const (
	// CodeValidation covers malformed input: bad pubkey, bad preimage,
	// amount mismatch, ticket not reserved by the caller, too-late-to-sign.
	CodeValidation Code = 400
	// CodeNotFound covers unknown competition/ticket/entry ids.
	CodeNotFound Code = 404
	// CodeConflict covers competition-full and similar state conflicts.
	CodeConflict Code = 409
	// CodeInternal is everything else.
	CodeInternal Code = 500
)

// ValidationError is returned by request-shaped operations (ticket
// reservation, payout claim) when the caller's input itself is the
// problem, as opposed to a failure of the underlying system.
type ValidationError struct {
	Code    Code
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation builds a 400-classified error.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound builds a 404-classified error.
func NewNotFound(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict builds a 409-classified error.
func NewConflict(format string, args ...any) *ValidationError {
	return &ValidationError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}
