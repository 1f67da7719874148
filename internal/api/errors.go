package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches rejections with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedResponse matches responses whose JSON does not fit the
	// expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectionError means the server answered but refused the request, either
// with a non-2xx status or with success set to false.
type RejectionError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

// Error returns the server message verbatim when there is one.
func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: rejected with status %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func (e *RejectionError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
