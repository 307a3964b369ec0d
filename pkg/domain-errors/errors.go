// Package domainerrors defines the coded error type shared across services.
//
// Services return these so callers (and the HTTP layer) can branch on a stable
// code instead of string matching. Stores and adapters return sentinel errors
// from pkg/platform/sentinel; services translate them into coded errors at the
// boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. Codes are part of the public contract:
// handlers map them to transport responses and clients decide retry behavior
// from them.
type Code string

const (
	// CodeInvalidInput marks caller errors: malformed or missing fields.
	// Not retryable without correcting the request.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks an absent resource.
	CodeNotFound Code = "not_found"
	// CodeForbidden marks an authorization failure. Never retried.
	CodeForbidden Code = "forbidden"
	// CodeConflict marks a write that collided with existing state.
	CodeConflict Code = "conflict"

	// CodeNoFeatureDetected marks a sample from which no usable features
	// could be extracted. The caller should resubmit a better sample.
	CodeNoFeatureDetected Code = "no_feature_detected"
	// CodeEnrollmentFailed marks a failed biometric enrollment.
	CodeEnrollmentFailed Code = "enrollment_failed"
	// CodeTemplateNotFound marks a lookup of a template ID that does not exist.
	CodeTemplateNotFound Code = "template_not_found"
	// CodeNoEnrollment marks verification against a (did, modality) pair that
	// has no active enrollment.
	CodeNoEnrollment Code = "no_enrollment"

	// CodeAnchorCommitFailed marks a ledger write that did not confirm.
	// Off-chain state has not advanced; safe to retry with backoff.
	CodeAnchorCommitFailed Code = "anchor_commit_failed"
	// CodeAnchorTimeout marks a ledger confirmation wait that exceeded its
	// deadline. Off-chain state has not advanced; safe to retry.
	CodeAnchorTimeout Code = "anchor_timeout"
	// CodeAnchorInconsistent marks a local match whose on-chain commitment
	// disagrees with the freshly derived one. Signals tampering or a stale
	// anchor; never auto-retried and never reported as a plain non-match.
	CodeAnchorInconsistent Code = "anchor_inconsistent"

	// CodeUnavailable marks a temporarily unavailable dependency.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Use New or Wrap to construct.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is already
// coded, the outer code wins but the chain is preserved for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal if
// the error is not coded.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
