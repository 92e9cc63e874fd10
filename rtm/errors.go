package rtm

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when a call requiring a credential is
// attempted without one, or when the credential was replaced while the
// call was in flight. Callers may retry once after re-authenticating.
var ErrNotAuthenticated = errors.New("not authenticated: no valid credential")

// Service error codes we react to specially. The full code list is
// defined by the service; everything else is surfaced verbatim.
const (
	codeInvalidAuthToken = 98
	codeLoginFailed      = 100
)

// ServiceError is a rejection from the service itself: the request was
// delivered and the service refused it. Not retried automatically.
type ServiceError struct {
	Code int
	Msg  string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %d: %s", e.Code, e.Msg)
}

// TransportError wraps a network-level failure (connect, timeout, bad
// status). Safe to retry with backoff; the client already did so before
// returning one of these.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports a failed or denied authentication handshake. The
// session that produced it must be restarted from scratch.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthExpired reports whether err indicates the stored credential is no
// longer accepted by the service, meaning a fresh handshake is needed.
func IsAuthExpired(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code == codeInvalidAuthToken || se.Code == codeLoginFailed
	}
	return false
}
