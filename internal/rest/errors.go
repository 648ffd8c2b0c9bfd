package rest

import (
	"errors"
	"fmt"
)

// Kind classifies a failed call to the backend.
type Kind int

const (
	// KindTransport covers unreachable hosts, timeouts and non-2xx responses.
	KindTransport Kind = iota + 1
	// KindApplication covers 2xx responses whose status is not "success"
	// or whose body cannot be decoded.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method that fails.
type Error struct {
	Op         string
	Kind       Kind
	HTTPStatus int
	Status     string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s failure (http %d): %s", e.Op, e.Kind, e.HTTPStatus, msg)
	}
	return fmt.Sprintf("%s: %s failure: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport wraps a network-level failure.
func Transport(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

// HTTPFailure reports a non-2xx response.
func HTTPFailure(op string, httpStatus int, status, message string) *Error {
	return &Error{Op: op, Kind: KindTransport, HTTPStatus: httpStatus, Status: status, Message: message}
}

// Application reports a response whose status discriminator is not "success".
func Application(op, status, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("status %q", status)
	}
	return &Error{Op: op, Kind: KindApplication, Status: status, Message: message}
}

// Malformed reports a response body that could not be decoded.
func Malformed(op string, err error) *Error {
	return &Error{Op: op, Kind: KindApplication, Message: "malformed response", Err: err}
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	return hasKind(err, KindTransport)
}

// IsApplication reports whether err is an application-level failure.
func IsApplication(err error) bool {
	return hasKind(err, KindApplication)
}

func hasKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
