package event

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches an HTTPError for a missing event.
var ErrNotFound = errors.New("event: not found")

// ErrorInfo is the error body the backend sends.
type ErrorInfo struct {
	Message string `json:"message"`
}

// HTTPError captures an unexpected status code and the response body.
type HTTPError struct {
	StatusCode int
	Info       ErrorInfo
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e.Info.Message != "" {
		return fmt.Sprintf("event: status %d: %s", e.StatusCode, e.Info.Message)
	}
	return fmt.Sprintf("event: unexpected status %d", e.StatusCode)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Message returns the backend's message carried by err, or fallback.
func Message(err error, fallback string) string {
	var he *HTTPError
	if errors.As(err, &he) && he.Info.Message != "" {
		return he.Info.Message
	}
	return fallback
}
