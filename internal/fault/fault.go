// Package fault defines the error categories shared across services so
// handlers can map failures to HTTP statuses without string matching.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict signals a duplicate of something that must be unique,
	// e.g. a second open attendance record for the same participant+meeting.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState signals an operation that is not valid for the
	// entity's current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidInput signals malformed caller input such as a leave time
	// before the join time.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPrecondition signals a violated precondition, e.g. issuing a card
	// for a record that never completed.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConfiguration signals missing or unusable required configuration.
	// Raised at construction time, never deferred to first use.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound signals an unknown identifier. Public endpoints must keep
	// this distinguishable from validation failures.
	ErrNotFound = errors.New("not found")

	// ErrAuth signals rejected credentials against the external meeting host.
	ErrAuth = errors.New("host authentication failed")

	// ErrHostUnavailable signals the external meeting host timed out or
	// answered with a server error after retries were exhausted.
	ErrHostUnavailable = errors.New("meeting host unavailable")
)

// Errorf wraps a category error with context, keeping it errors.Is-matchable.
func Errorf(category error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, category)...)
}

// HTTPStatus maps a fault category to a response status. Unrecognized
// errors map to 500 so nothing leaks as a silent success.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrPrecondition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, ErrHostUnavailable):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
