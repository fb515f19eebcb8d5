package core

import (
	"errors"
	"fmt"
	"strings"
)

// AuthErrorKind classifies identity failures.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthEmailInUse         AuthErrorKind = "email_in_use"
	AuthUnauthenticated    AuthErrorKind = "unauthenticated"
)

// AuthError is a sign-in, sign-up or session failure. It is shown to the
// user as is and never retried automatically.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	msg := e.Message()
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message is the user-facing text for the error kind.
func (e *AuthError) Message() string {
	switch e.Kind {
	case AuthInvalidCredentials:
		return "invalid email or password"
	case AuthEmailInUse:
		return "email already registered"
	default:
		return "authentication required"
	}
}

// NewAuthError creates an AuthError of the given kind.
func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// IsAuthKind reports whether err is an AuthError of the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// WriteError wraps a failed create, update or delete against the record
// store. Nothing local changes when it is returned.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s record: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FieldError is a validation failure bound to one input field.
type FieldError struct {
	Field string `json:"field"`
	Err   error  `json:"-"`
}

func (f FieldError) Error() string {
	return f.Field + ": " + f.Err.Error()
}

// ValidationError collects every invalid field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field string, err error) {
	e.Fields = append(e.Fields, FieldError{Field: field, Err: err})
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is match the sentinel of any failed field.
func (e *ValidationError) Is(target error) bool {
	for _, f := range e.Fields {
		if errors.Is(f.Err, target) {
			return true
		}
	}
	return false
}

// Messages maps field names to their first error message.
func (e *ValidationError) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Err.Error()
		}
	}
	return out
}
