package supplier

import (
	"errors"
	"fmt"
)

// ErrTokenExpired is returned when the supplier rejects the cached access token.
var ErrTokenExpired = errors.New("supplier access token expired")

// APIError is a non-2xx response or a result=false business error.
type APIError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("supplier %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supplier %s: code %d: %s", e.Op, e.Code, e.Message)
}

// TransientError wraps failures worth retrying: timeouts, network errors, 5xx
// and token expiry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("supplier %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
