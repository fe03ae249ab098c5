package signer

import (
	"errors"
	"fmt"
)

// ErrSignerUnreachable is returned when the signer cannot be contacted:
// the connection failed, the request timed out, or the circuit breaker is
// open after repeated failures.
var ErrSignerUnreachable = errors.New("signer unreachable")

// StatusError is returned when the signer answered but rejected the request,
// for example because the user declined it or the payload was malformed.
type StatusError struct {
	Operation string
	Code      int
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("signer %s: status %d", e.Operation, e.Code)
	}
	return fmt.Sprintf("signer %s: status %d: %s", e.Operation, e.Code, e.Body)
}
