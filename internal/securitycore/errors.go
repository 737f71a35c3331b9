// Package securitycore defines the error taxonomy shared by every
// registry in the security core (audit, identity, rbac, apikey, sso,
// team, threat, compliance).
package securitycore

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure a registry returns to its
// caller. Kinds are sealed: callers switch on Kind rather than string
// matching a message.
type Kind string

const (
	NotFound         Kind = "not_found"
	AlreadyExists    Kind = "already_exists"
	InvalidArgument  Kind = "invalid_argument"
	PermissionDenied Kind = "permission_denied"
	Expired          Kind = "expired"
	ChainBroken      Kind = "chain_broken"
	LimitExceeded    Kind = "limit_exceeded"
	Blocked          Kind = "blocked"
	Upstream         Kind = "upstream"
)

// Error is the concrete error type every registry returns. Context
// carries structured detail (the field name, the offending id) for
// callers that want to log or translate it without parsing Message.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach a wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping a lower-level
// cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// With attaches structured context and returns the receiver for
// chaining: securitycore.New(NotFound, "role").With("role_name", name).
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string, 2)
	}
	e.Context[key] = value
	return e
}

// Is reports whether err carries the given Kind, unwrapping through
// wrapped causes the way errors.Is does for sentinel values.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}
