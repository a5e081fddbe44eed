package msgpack

import (
	"errors"
	"fmt"
)

// ErrInvalidData is returned when the byte stream does not conform to the
// MessagePack spec or does not match the structure the caller expected
// (e.g. a map header was expected but an array header was found).
var ErrInvalidData = errors.New("msgpack: invalid data")

// ErrUnexpectedEOF is returned by the buffered reader when a complete
// structure was promised but the span ended early.
var ErrUnexpectedEOF = errors.New("msgpack: unexpected end of buffer")

// TypeMismatchError reports that the lead byte did not match the token
// kind the caller asked to read.
type TypeMismatchError struct {
	Want Type
	Got  byte
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("msgpack: expected %s, got lead byte 0x%02x", e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error { return ErrInvalidData }

// ExtensionMismatchError reports that an extension's type code did not
// match what the caller asked for.
type ExtensionMismatchError struct {
	Want ExtensionCode
	Got  ExtensionCode
}

func (e *ExtensionMismatchError) Error() string {
	return fmt.Sprintf("msgpack: expected extension code %d, got %d", e.Want, e.Got)
}

func (e *ExtensionMismatchError) Unwrap() error { return ErrInvalidData }
