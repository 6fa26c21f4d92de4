package client

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Sentinels matched through (*Error).Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("server unavailable")
)

// Error is returned by every Client operation. Status is 0 when no response
// was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Errors  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if msg := e.Display(""); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUnauthorized:
		return e.Kind == KindAuth
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindNetwork
	}
	return false
}

// HasResponse reports whether the server answered at all.
func (e *Error) HasResponse() bool { return e.Status != 0 }

// Display returns the message to show to a user: the field errors joined by
// spaces, else the server message, else fallback.
func (e *Error) Display(fallback string) string {
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, " ")
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// KindOf returns the Kind carried by err, or KindUnknown when err is not a
// client error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func kindForStatus(status int) Kind {
	switch status {
	case 400, 409, 422:
		return KindValidation
	case 401, 403:
		return KindAuth
	case 404:
		return KindNotFound
	default:
		return KindUnknown
	}
}
