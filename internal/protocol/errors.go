package protocol

import (
	"errors"
	"fmt"
)

// Common codec errors.
var (
	ErrEmptyFrame   = errors.New("protocol: empty frame")
	ErrUnknownKind  = errors.New("protocol: unrecognized message discriminator")
	ErrFrameTooLong = errors.New("protocol: frame exceeds size limit")
	ErrTrailingData = errors.New("protocol: trailing bytes after message")
)

// ValidationError reports the first field of a Message that cannot be
// encoded. No bytes are produced when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: invalid field %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError reports a frame that could not be turned into a Message.
type DecodeError struct {
	Format Format
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: decode %s frame: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: decode %s frame: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a failure of the underlying serializer after
// validation succeeded.
type EncodeError struct {
	Format Format
	Kind   Kind
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("protocol: encode %s as %s: %v", e.Kind, e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
