package agent

import (
	"errors"
	"fmt"
)

// ToolExecutionError reports a tool call that failed and could not be recovered.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

var (
	// ErrNotResumable is returned by Resume for sessions that are not awaiting clarification.
	ErrNotResumable = errors.New("session is not awaiting clarification")
	// ErrNoGuidance is returned by Resume when neither the caller nor the operator supplied text.
	ErrNoGuidance = errors.New("no clarification guidance available")
)
