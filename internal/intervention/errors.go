package intervention

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrorKind classifies an InterventionError.
type ErrorKind string

const (
	ErrorCancelled ErrorKind = "cancelled"
	ErrorGeneral   ErrorKind = "general"
)

// ErrCancelled is returned by operators when the human aborts the request.
var ErrCancelled = errors.New("human input was cancelled")

// ErrBusy is returned when a request arrives while another one is outstanding.
var ErrBusy = errors.New("another intervention request is pending")

// InterventionError is returned whenever a request does not produce operator input.
type InterventionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *InterventionError) Error() string {
	if e == nil {
		return "intervention error"
	}
	msg := fmt.Sprintf("intervention error (%s): %s", e.Kind, e.Message)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *InterventionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Cancelled reports whether the operator aborted.
func (e *InterventionError) Cancelled() bool {
	return e != nil && e.Kind == ErrorCancelled
}

func classify(err error) *InterventionError {
	var ie *InterventionError
	if errors.As(err, &ie) {
		return ie
	}
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		return &InterventionError{Kind: ErrorCancelled, Message: "human input was cancelled", Err: err}
	default:
		return &InterventionError{Kind: ErrorGeneral, Message: "failed to obtain human input", Err: err}
	}
}
