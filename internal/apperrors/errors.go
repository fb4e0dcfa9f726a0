// Package apperrors carries the typed failures returned by the policy and
// workflow packages. Every business failure has a Kind and a stable Reason so
// clients can branch without matching on messages.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind is the failure class.
type Kind string

const (
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindConflict     Kind = "CONFLICT"
	KindInternal     Kind = "INTERNAL"
)

// Reason is a machine-readable cause code.
type Reason string

const (
	ReasonNone Reason = ""

	// Authorization denials
	ReasonOutOfClub        Reason = "out-of-club"
	ReasonRoleEscalation   Reason = "role-escalation"
	ReasonProtectedRole    Reason = "protected-role"
	ReasonInsufficientRole Reason = "insufficient-role"
	ReasonNoMatchingRule   Reason = "no-matching-rule"
	ReasonSelfModification Reason = "self-modification"
	ReasonNotAssignee      Reason = "not-assignee"
	ReasonGlobalTask       Reason = "global-requires-superadmin"

	// Event workflow
	ReasonNotPublished      Reason = "not-published"
	ReasonAtCapacity        Reason = "at-capacity"
	ReasonAlreadyRegistered Reason = "already-registered"
	ReasonNotRegistered     Reason = "not-registered"

	// Task workflow
	ReasonIllegalAssigneeTransition Reason = "illegal-transition-for-assignee"
	ReasonVerifiedImmutable         Reason = "verified-immutable"
	ReasonNotCompleted              Reason = "task-not-completed"

	// Accounts
	ReasonEmailTaken Reason = "email-taken"

	// Storage
	ReasonContention Reason = "contention"
)

// Error is the typed failure.
type Error struct {
	Kind     Kind
	Reason   Reason
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Reason != ReasonNone {
		return string(e.Kind) + "(" + string(e.Reason) + "): " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind, and on Reason when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Reason == ReasonNone || e.Reason == t.Reason
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(reason Reason, message string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason, Message: message}
}

func Conflict(reason Reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

// NotFound reports a missing entity of the given kind.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Message:  entity + " not found",
		Metadata: map[string]string{"entity": entity, "id": id},
	}
}

// Validation reports a malformed payload field.
func Validation(field, message string) *Error {
	return &Error{
		Kind:     KindValidation,
		Message:  message,
		Metadata: map[string]string{"field": field},
	}
}

// Internal wraps an infrastructure failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err. Non-typed errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf extracts the Reason of err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// HTTPStatus maps a Kind onto the response status used by the HTTP layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
