// Package common holds types shared across the access control service's
// components: the typed error taxonomy of spec §7 and small helpers used
// at module boundaries.
package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an ACSError the way spec §7 enumerates them. The RPC
// edge (pkg/rpc) maps each Kind to a wire error code.
type Kind string

const (
	KindInvalidArgument    Kind = "InvalidArgument"
	KindNameEmpty          Kind = "NameEmpty"
	KindEdgeKindError      Kind = "EdgeKindError"
	KindPermInvalid        Kind = "PermInvalid"
	KindTranslationError   Kind = "TranslationError"
	KindCycleError         Kind = "CycleError"
	KindIdConflict         Kind = "IdConflict"
	KindNotFound           Kind = "NotFound"
	KindAlreadyAssigned    Kind = "AlreadyAssigned"
	KindBufferFull         Kind = "BufferFull"
	KindDeadlineExceeded   Kind = "DeadlineExceeded"
	KindCancelled          Kind = "Cancelled"
	KindCancelledAfterCmt  Kind = "CancelledAfterCommit"
	KindPersistenceError   Kind = "PersistenceError"
	KindAuditIntegrityFail Kind = "AuditIntegrityFailure"
	KindAccessDenied       Kind = "AccessDenied"
	KindAccessViolation    Kind = "AccessViolationDetected"
	KindAuditInvalid       Kind = "AuditInvalid"
	KindBulkPartial        Kind = "BulkPartial"
	KindInternal           Kind = "Internal"
)

// ACSError is the typed error every handler, graph operation, and store
// call returns in place of a bare error, so that the RPC edge and the
// access log can attach a stable reason code (mirrors the teacher's
// PolicyError, generalized from a single reason-code enum to the full
// taxonomy spec §7 names).
type ACSError struct {
	Kind  Kind
	Msg   string
	cause error
}

// New creates an ACSError with the given kind and message.
func New(kind Kind, msg string) *ACSError {
	return &ACSError{Kind: kind, Msg: msg}
}

// Newf creates an ACSError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *ACSError {
	return &ACSError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a Kind, preserving it as the
// cause for errors.Is/errors.As and %+v stack traces via pkg/errors.
func Wrap(kind Kind, cause error, msg string) *ACSError {
	return &ACSError{Kind: kind, Msg: msg, cause: errors.Wrap(cause, msg)}
}

func (e *ACSError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *ACSError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *ACSError with the same Kind, so
// callers can write errors.Is(err, common.New(common.KindNotFound, "")).
func (e *ACSError) Is(target error) bool {
	t, ok := target.(*ACSError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retriable reports whether the caller may safely retry the operation
// after backoff, per spec §7's propagation policy.
func (e *ACSError) Retriable() bool {
	switch e.Kind {
	case KindBufferFull, KindDeadlineExceeded:
		return true
	default:
		return false
	}
}

// AsACSError extracts an *ACSError from err, wrapping it as Internal if
// it isn't already one.
func AsACSError(err error) *ACSError {
	if err == nil {
		return nil
	}
	var acsErr *ACSError
	if errors.As(err, &acsErr) {
		return acsErr
	}
	return Wrap(KindInternal, err, "unexpected error")
}
