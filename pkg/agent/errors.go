package agent

import (
	"errors"
	"fmt"
)

// ErrLoopLimit is returned when the model keeps requesting tools past the
// configured number of request rounds.
var ErrLoopLimit = errors.New("max turns reached before assistant produced a final response")

// TransportError wraps a failed exchange with the completion endpoint:
// network failures, non-2xx statuses and unusable payloads.
type TransportError struct {
	// StatusCode is the HTTP status when the endpoint answered, otherwise 0.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion request failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrEmptyPrompt is returned when Run or Chat receives only whitespace.
var ErrEmptyPrompt = errors.New("user input is required")
