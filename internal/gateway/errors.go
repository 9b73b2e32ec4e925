// errors.go - Failure classes for outbound commands
package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotAuthenticated means no session token is stored.
var ErrNotAuthenticated = errors.New("not logged in")

// RemoteRejectedError is a non-2xx answer from the remote service. Any
// status is treated as a reason to log in again; the service does not
// reliably tell an expired session apart from other failures.
type RemoteRejectedError struct {
	Status     int
	StatusText string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.StatusText)
}

// TransportError wraps a network or decoding failure. It says nothing about
// the session, so it never triggers a login.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newRemoteRejected(resp *http.Response) *RemoteRejectedError {
	return &RemoteRejectedError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
}

// needsLogin reports whether err should send the user through the login
// prompt before a retry.
func needsLogin(err error) bool {
	var rejected *RemoteRejectedError
	return errors.Is(err, ErrNotAuthenticated) || errors.As(err, &rejected)
}
