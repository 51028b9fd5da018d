package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRejected        = errors.New("request rejected")
	ErrInvalidResponse = errors.New("invalid server response")
)

// StatusError is a non-2xx answer from the backend. It unwraps to
// ErrUnauthorized (401), ErrUnavailable (408, 429, 5xx) or ErrRejected (any
// other status), so callers can classify it with errors.Is.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests, e.Code >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
