// Package errkind defines the error taxonomy shared by the reputation engine.
//
// Every failure surfaced by the ledger, the producers and the aggregator carries
// exactly one kind. Callers branch with errors.Is on the sentinel kinds.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	// ErrNotFound reports a missing user, badge, job or request. Fatal, never retried.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSource reports an idempotency violation; the work was already done.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrTransient reports store contention or a timeout. Retryable.
	ErrTransient = errors.New("transient failure")
	// ErrValidation reports malformed input. Rejected, never coerced.
	ErrValidation = errors.New("validation failed")
)

// Error carries the operation, the kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap annotates err with op and kind. A nil err yields nil.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// New builds an error of the given kind with a message.
func New(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or nil when err carries none of the sentinels.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrDuplicateSource, ErrTransient, ErrValidation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Name returns a short label for the kind of err, used for logs and metric labels.
func Name(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrDuplicateSource:
		return "duplicate_source"
	case ErrTransient:
		return "transient"
	case ErrValidation:
		return "validation_failed"
	default:
		if err == nil {
			return ""
		}
		return "internal"
	}
}

// IsRetryable reports whether err may succeed when attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
