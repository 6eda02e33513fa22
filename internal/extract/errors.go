package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/company-aggregator/internal/resilience"
)

// ErrorKind classifies why an extraction failed.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindTransport   ErrorKind = "transport"
	KindMalformed   ErrorKind = "malformed"
	KindSchema      ErrorKind = "schema"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindPrompt      ErrorKind = "prompt"
	KindCanceled    ErrorKind = "canceled"
)

// ExtractionError is the only error type returned by Client.Extract.
type ExtractionError struct {
	Backend string
	Model   string
	Kind    ErrorKind
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s (%s) %s: %v", e.Backend, e.Model, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StatusError carries the HTTP status of a failed backend call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// ErrEmptyResponse is returned by a backend that answered without content.
var ErrEmptyResponse = errors.New("backend returned no content")

// withStatus tags err with status and marks it transient when retryable.
func withStatus(err error, status int) error {
	if status == 0 {
		return err
	}
	return resilience.FromStatus(&StatusError{StatusCode: status, Err: err}, status)
}

// kindOf maps a backend call error onto an ErrorKind.
func kindOf(err error) ErrorKind {
	var se *StatusError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmptyResponse):
		return KindMalformed
	case errors.As(err, &se) && resilience.IsAuthHTTPStatus(se.StatusCode):
		return KindAuth
	default:
		return KindTransport
	}
}
