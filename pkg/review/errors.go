package review

import (
	"errors"
	"fmt"
)

// ErrorCode identifies which review invariant a failed operation violated.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeDocumentNotFound
	CodeOwnerNotFound
	CodeBatchNotFound
	CodeInvalidTransition
	CodeMissingReason
	CodeInvalidDeadline
	CodeInvalidState
	CodeInvalidRequest
	CodeForbidden
	CodeConcurrencyConflict
)

var codeNames = map[ErrorCode]string{
	CodeNone:                "NONE",
	CodeDocumentNotFound:    "DOCUMENT_NOT_FOUND",
	CodeOwnerNotFound:       "OWNER_NOT_FOUND",
	CodeBatchNotFound:       "BATCH_NOT_FOUND",
	CodeInvalidTransition:   "INVALID_TRANSITION",
	CodeMissingReason:       "MISSING_REASON",
	CodeInvalidDeadline:     "INVALID_DEADLINE",
	CodeInvalidState:        "INVALID_STATE",
	CodeInvalidRequest:      "INVALID_REQUEST",
	CodeForbidden:           "FORBIDDEN",
	CodeConcurrencyConflict: "CONCURRENCY_CONFLICT",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// Error is the typed failure every review operation returns.
type Error struct {
	Code    ErrorCode
	Subject string // document, owner or batch id the failure is about
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Subject != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Subject)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so callers can use errors.Is(err, review.ErrMissingReason).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrDocumentNotFound    = &Error{Code: CodeDocumentNotFound, Message: "document not found"}
	ErrOwnerNotFound       = &Error{Code: CodeOwnerNotFound, Message: "owner not found"}
	ErrBatchNotFound       = &Error{Code: CodeBatchNotFound, Message: "batch not found"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrMissingReason       = &Error{Code: CodeMissingReason, Message: "rejection reason is required"}
	ErrInvalidDeadline     = &Error{Code: CodeInvalidDeadline, Message: "invalid resubmission deadline"}
	ErrInvalidState        = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrInvalidRequest      = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConcurrencyConflict = &Error{Code: CodeConcurrencyConflict, Message: "concurrent update conflict"}
)

func newError(code ErrorCode, subject, format string, args ...interface{}) *Error {
	return &Error{Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// NotFound builders are used by store implementations.
func DocumentNotFound(id string) *Error {
	return &Error{Code: CodeDocumentNotFound, Subject: id, Message: "document not found"}
}

func OwnerNotFound(id string) *Error {
	return &Error{Code: CodeOwnerNotFound, Subject: id, Message: "owner not found"}
}

func BatchNotFound(id string) *Error {
	return &Error{Code: CodeBatchNotFound, Subject: id, Message: "batch not found"}
}

// Conflict wraps a storage-level lock or serialization failure.
func Conflict(subject string, err error) *Error {
	return &Error{Code: CodeConcurrencyConflict, Subject: subject, Message: "concurrent update conflict", Err: err}
}

// InvalidRequest reports a malformed request caught at the boundary.
func InvalidRequest(format string, args ...interface{}) *Error {
	return newError(CodeInvalidRequest, "", format, args...)
}

// CodeOf returns the review code carried by err, or CodeNone.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}

// IsConflict reports whether err is a retryable concurrency conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConcurrencyConflict
}
