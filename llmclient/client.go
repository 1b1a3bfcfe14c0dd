package llmclient

import (
	"context"
	"errors"
)

// Client is the LLM provider contract. Implementations may be stateful
// about connections/credentials but must be stateless about conversation
// context — Generate receives the full message list on every call.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// TransientError marks a failure Generate's caller should retry (rate
// limits, timeouts, transport resets). Errors not wrapped as TransientError
// are treated as terminal and surface directly as RunFailure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
