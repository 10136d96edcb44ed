package query

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("query: client closed")

// FetchError reports a failed load of Key.
type FetchError struct {
	Key Key
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("query: fetching %s: %v", e.Key.Display(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError reports a failed update, delete or create. The cache is
// left consistent with the backend's last acknowledged state.
type MutationError struct {
	Op  string
	Key Key
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("query: %s %s: %v", e.Op, e.Key.Display(), e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
