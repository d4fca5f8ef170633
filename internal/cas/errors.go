package cas

import (
	"context"
	"errors"
)

// Error kinds. Every error returned by Service carries exactly one of these
// (or a context error) and can be tested with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvariantViolation     = errors.New("invariant violation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStorageIO              = errors.New("storage I/O failure")
	ErrValidation             = errors.New("validation failure")
)

var kinds = []error{
	ErrNotFound,
	ErrInvariantViolation,
	ErrConcurrentModification,
	ErrValidation,
	ErrStorageIO,
}

// OpError reports the failed operation and the kind of failure.
// Its message never includes digests or reference counts; the underlying
// cause is reachable through Unwrap for logging.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Detail returns the underlying cause, for logs only.
func (e *OpError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// KindOf returns the error kind carried by err. Unclassified errors are
// treated as storage failures, since they come from the underlying stores.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrStorageIO
}

// opError wraps err as an OpError for op, keeping an existing OpError's kind.
func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) {
		if existing.Op == op {
			return existing
		}
		return &OpError{Op: op, Kind: existing.Kind, Err: existing}
	}
	return &OpError{Op: op, Kind: KindOf(err), Err: err}
}

// IsRetryable reports whether err is a storage failure worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err) == ErrStorageIO
}
