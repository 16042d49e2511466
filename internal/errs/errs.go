// Package errs implements the error taxonomy of spec.md §7: UserError,
// ConflictError, IntegrityError, and InternalError, generalized from the
// teacher's per-command sentinel error structs (cmd/errors.go) into a
// shared taxonomy the engine packages all return through.
package errs

import (
	"errors"
	"fmt"
)

// UserError is recoverable and user-visible: uncommitted changes before
// merge, an invalid committish, conflicting flags, an empty commit message,
// no sequencer in progress.
type UserError struct {
	Msg string
}

func (e *UserError) Error() string { return e.Msg }

func NewUserError(format string, args ...any) *UserError {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError is a UserError that also carries a status rendering; the
// sequencer leaves its SequencerState in place when returning one.
type ConflictError struct {
	Msg    string
	Status any // *meta.RepoStatus; kept untyped to avoid an import cycle
}

func (e *ConflictError) Error() string { return e.Msg }

func NewConflictError(status any, format string, args ...any) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...), Status: status}
}

// IntegrityError is fatal to the current operation: a missing object or a
// missing synthetic ref required for a merge.
type IntegrityError struct {
	Msg string
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func NewIntegrityError(err error, format string, args ...any) *IntegrityError {
	return &IntegrityError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// InternalError signals a broken invariant or implementation bug. Callers
// abort with a diagnostic rather than attempting recovery.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// IsUser/IsConflict/IsIntegrity/IsInternal let command-boundary code decide
// how to render and exit without importing the concrete types everywhere.
func IsUser(err error) bool {
	var u *UserError
	if errors.As(err, &u) {
		return true
	}
	var c *ConflictError
	return errors.As(err, &c)
}

func IsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	ok := errors.As(err, &c)
	return c, ok
}

func IsIntegrity(err error) bool {
	var i *IntegrityError
	return errors.As(err, &i)
}

func IsInternal(err error) bool {
	var i *InternalError
	return errors.As(err, &i)
}
