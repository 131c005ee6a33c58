package telemetry

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any error returned by the
// gpu and host packages.
var (
	ErrCommandUnavailable = errors.New("command unavailable")
	ErrUnexpectedFormat   = errors.New("unexpected format")
	ErrMalformedLine      = errors.New("malformed line")
	ErrParseFailure       = errors.New("parse failure")
	ErrSensorUnavailable  = errors.New("sensor unavailable")
	ErrNotSampled         = errors.New("waiting for first sample")
)

// Error is a classified telemetry failure. Field names the metric involved,
// if any; Err carries the underlying cause.
type Error struct {
	Kind  error
	Field string
	Err   error
}

// NewError builds an Error of the given kind.
func NewError(kind error, field string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind of err, or nil when err is not a
// telemetry failure.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrCommandUnavailable,
		ErrUnexpectedFormat,
		ErrMalformedLine,
		ErrParseFailure,
		ErrSensorUnavailable,
		ErrNotSampled,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
