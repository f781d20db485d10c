package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError so callers can branch without reading messages.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindAuthorizationDenied Kind = "AUTHORIZATION_DENIED"
	KindLimitExceeded       Kind = "LIMIT_EXCEEDED"
	KindConflict            Kind = "CONFLICT"
	KindNotFound            Kind = "NOT_FOUND"
	KindAlreadyTerminal     Kind = "ALREADY_TERMINAL"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindOverlap             Kind = "OVERLAP"
	KindInvalidRange        Kind = "INVALID_RANGE"
	KindPersistenceTimeout  Kind = "PERSISTENCE_TIMEOUT"
	KindInternal            Kind = "INTERNAL"
)

// DenyReason is the reason code attached to an AuthorizationDenied error.
type DenyReason string

const (
	ReasonNotYourChild          DenyReason = "NotYourChild"
	ReasonInvalidRecipientRole  DenyReason = "InvalidRecipientRole"
	ReasonNoMatchingPayment     DenyReason = "NoMatchingPayment"
	ReasonRefundExceedsOriginal DenyReason = "RefundExceedsOriginal"
	ReasonAccountInactive       DenyReason = "AccountInactive"
	ReasonUnsupportedKind       DenyReason = "UnsupportedKind"
	ReasonNoLimitConfigured     DenyReason = "NoLimitConfigured"
	ReasonNotPermitted          DenyReason = "NotPermitted"
)

// AppError is the single error type services return to their callers.
type AppError struct {
	Kind    Kind
	Reason  DenyReason
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same kind, so the sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks. Only the Kind is compared.
var (
	ErrValidation          = &AppError{Kind: KindValidation, Message: "validation error"}
	ErrAuthorizationDenied = &AppError{Kind: KindAuthorizationDenied, Message: "authorization denied"}
	ErrLimitExceeded       = &AppError{Kind: KindLimitExceeded, Message: "spending limit exceeded"}
	ErrConflict            = &AppError{Kind: KindConflict, Message: "concurrent modification"}
	ErrNotFound            = &AppError{Kind: KindNotFound, Message: "resource not found"}
	ErrAlreadyTerminal     = &AppError{Kind: KindAlreadyTerminal, Message: "transaction already terminal"}
	ErrInvalidTransition   = &AppError{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrOverlap             = &AppError{Kind: KindOverlap, Message: "limit window overlaps an active window"}
	ErrInvalidRange        = &AppError{Kind: KindInvalidRange, Message: "start is after end"}
	ErrPersistenceTimeout  = &AppError{Kind: KindPersistenceTimeout, Message: "persistence timed out"}
	ErrInternal            = &AppError{Kind: KindInternal, Message: "internal error"}
)

// New builds an AppError of the given kind.
func New(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an AppError of the given kind around a lower level error.
func Wrap(kind Kind, err error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewValidation is shorthand for a Validation error.
func NewValidation(format string, args ...any) *AppError {
	return New(KindValidation, format, args...)
}

// NewNotFound is shorthand for a NotFound error naming the missing resource.
func NewNotFound(resource, id string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// Denied builds an AuthorizationDenied error carrying its reason code.
func Denied(reason DenyReason, format string, args ...any) *AppError {
	return &AppError{Kind: KindAuthorizationDenied, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// NewLimitExceeded reports the tightest window that rejected a payment.
func NewLimitExceeded(windowID, windowKind, remaining string) *AppError {
	return &AppError{
		Kind:    KindLimitExceeded,
		Message: fmt.Sprintf("amount exceeds remaining capacity %s of %s window %s", remaining, windowKind, windowID),
		Details: map[string]any{
			"windowId":  windowID,
			"kind":      windowKind,
			"remaining": remaining,
		},
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ReasonOf returns the deny reason carried by err, if any.
func ReasonOf(err error) DenyReason {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

// IsRetriable reports whether the caller may safely retry the whole operation.
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindPersistenceTimeout:
		return true
	default:
		return false
	}
}
