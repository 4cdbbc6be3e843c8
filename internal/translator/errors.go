package translator

import (
	"errors"
	"fmt"
)

// FailureKind classifies a transient remote failure.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureUnavailable FailureKind = "unavailable"
)

// RemoteError indicates a transient failure that can be retried.
type RemoteError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, truncate(e.Message, 200))
	}
	return fmt.Sprintf("%s: %s", e.Kind, truncate(e.Message, 200))
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

// IsRateLimited reports whether err signals a rate-limit / resource-exhausted response.
func IsRateLimited(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.Kind == FailureRateLimited
}

// IsUnavailable reports whether err signals a server error or timeout.
func IsUnavailable(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.Kind == FailureUnavailable
}

// RateLimited builds a rate-limit RemoteError.
func RateLimited(status int, msg string, err error) error {
	return &RemoteError{Kind: FailureRateLimited, StatusCode: status, Message: msg, Err: err}
}

// Unavailable builds a server-error/timeout RemoteError.
func Unavailable(status int, msg string, err error) error {
	return &RemoteError{Kind: FailureUnavailable, StatusCode: status, Message: msg, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
