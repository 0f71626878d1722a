package domain

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a rejection. Every expected failure crossing the
// service boundary carries one of these, never a bare error string.
type ErrorKind string

const (
	ErrMissingTransactionID ErrorKind = "MissingTransactionId"
	ErrMissingDonorAddress  ErrorKind = "MissingDonorAddress"
	ErrChallengeNotFound    ErrorKind = "ChallengeNotFound"
	ErrChallengeExists      ErrorKind = "ChallengeExists"
	ErrDuplicateTransaction ErrorKind = "DuplicateTransaction"
	ErrChallengeNotActive   ErrorKind = "ChallengeNotActive"
	ErrChallengeExpired     ErrorKind = "ChallengeExpired"
	ErrGoalAlreadyReached   ErrorKind = "GoalAlreadyReached"
	ErrInvalidTransition    ErrorKind = "InvalidTransition"
	ErrInvalidRequest       ErrorKind = "InvalidRequest"

	ErrTransactionNotFound ErrorKind = "TransactionNotFound"
	ErrInvalidOutputs      ErrorKind = "InvalidOutputs"
	ErrNoVaultOutput       ErrorKind = "NoVaultOutput"
	ErrAmountUnavailable   ErrorKind = "AmountUnavailable"
)

// Error is a typed rejection with enough structured detail for a caller to
// self-diagnose (e.g. the vault script expected vs the scripts found).
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the rejection kind, if err is (or wraps) a domain Error.
func KindOf(err error) (ErrorKind, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
