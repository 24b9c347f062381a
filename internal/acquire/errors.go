package acquire

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("io error")
	// ErrNetwork is matched by every *NetworkError.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is matched by a *NetworkError whose reason is ReasonTimeout.
	ErrTimeout = errors.New("request timed out")

	errInvalidUTF8 = errors.New("file is not valid UTF-8 text")
)

// IOError reports a filesystem failure while reading, scanning or writing
// element set files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Reason classifies a network failure.
type Reason int

const (
	// ReasonTransport covers connection, HTTP status and body errors.
	ReasonTransport Reason = iota
	// ReasonTimeout means the request exceeded the configured timeout.
	ReasonTimeout
)

func (r Reason) String() string {
	if r == ReasonTimeout {
		return "timeout"
	}
	return "transport"
}

// NetworkError reports a failed download.
type NetworkError struct {
	Reason Reason
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Reason == ReasonTimeout {
		return fmt.Sprintf("download %s: request timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	if e.Reason == ReasonTimeout {
		return []error{ErrNetwork, ErrTimeout, e.Err}
	}
	return []error{ErrNetwork, e.Err}
}
