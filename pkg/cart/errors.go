package cart

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated indicates a missing or rejected auth token. Callers
// should prompt for login rather than retry.
var ErrUnauthenticated = errors.New("not logged in")

// NetworkError is a transient transport or server failure.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError reports malformed input rejected by the client or server.
type ValidationError struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"error"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsNetwork reports whether err is a transient network failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
