package gateway

import (
	"errors"
	"fmt"
)

// FailureKind classifies a remote failure so callers can decide whether a
// retry is worthwhile.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureNetwork     FailureKind = "network"
	FailureMalformed   FailureKind = "malformed_response"
	FailureAuth        FailureKind = "auth"
)

// RemoteError wraps a failure from the GitHub API with its classification.
type RemoteError struct {
	Kind FailureKind
	Op   string // operation that failed, e.g. "fetch repositories"
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying with backoff.
// Rate limits and network blips are transient; auth failures and malformed
// responses are not.
func (e *RemoteError) Transient() bool {
	return e.Kind == FailureRateLimited || e.Kind == FailureNetwork
}

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient()
}

func remoteErr(kind FailureKind, op string, err error) *RemoteError {
	return &RemoteError{Kind: kind, Op: op, Err: err}
}
