package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers and clients.
type Kind string

const (
	UnsafeFileType            Kind = "UnsafeFileType"
	UnsupportedFileType       Kind = "UnsupportedFileType"
	PayloadTooLarge           Kind = "PayloadTooLarge"
	StorageFailure            Kind = "StorageFailure"
	UpstreamUnreachable       Kind = "UpstreamUnreachable"
	UpstreamError             Kind = "UpstreamError"
	UpstreamEmptyResponse     Kind = "UpstreamEmptyResponse"
	UpstreamMalformedResponse Kind = "UpstreamMalformedResponse"
)

// HTTPStatus returns the status an HTTP handler should answer with for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case UnsafeFileType, UnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case UpstreamUnreachable, UpstreamError, UpstreamEmptyResponse, UpstreamMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Upstream reports whether the kind describes a webhook failure.
func (k Kind) Upstream() bool {
	switch k {
	case UpstreamUnreachable, UpstreamError, UpstreamEmptyResponse, UpstreamMalformedResponse:
		return true
	}
	return false
}

// Error is the structured error value used across the relay.
// StatusCode and Body are only set for upstream responses.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
