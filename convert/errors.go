package convert

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors matching the engine's error taxonomy. Use errors.Is to
// check for these; PathError and BuildError wrap them with the location
// breadcrumb propagation requires.
var (
	ErrInvalidData               = errors.New("invalid data")
	ErrDepthExceeded              = errors.New("depth exceeded")
	ErrMissingRequiredProperty    = errors.New("missing required property")
	ErrDisallowedNullValue        = errors.New("disallowed null value")
	ErrDoublePropertyAssignment   = errors.New("double property assignment")
	ErrUnknownUnionDiscriminator  = errors.New("unknown union discriminator")
	ErrUnsupportedOperation       = errors.New("unsupported operation")
	ErrCancelled                  = context.Canceled
	ErrConfigurationError         = errors.New("configuration error")
)

// PathError wraps a sentinel error with a breadcrumb identifying where in
// the object graph the failure occurred: property name, parameter name,
// union case, or collection index. Converters append one PathError frame
// per level of nesting as the error propagates back up; the top-level
// facade attaches the operation name and stops wrapping.
//
// Grounded on cereal/errors.go's TransformError (Err/Field/Cause shape),
// generalized from "field transform failed" to "converter failed at this
// path segment".
type PathError struct {
	Err     error  // one of the sentinel errors above
	Segment string // e.g. `.Seeds`, `[2]`, `(Horse)`
	Cause   error  // the next-innermost error, nil at the innermost frame
}

func (e *PathError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Segment, e.Err.Error(), e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Segment, e.Err.Error())
}

func (e *PathError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Err
}

// WrapPath prepends segment to err's breadcrumb. If err is cancellation,
// it is returned unwrapped: cancellation is never wrapped.
func WrapPath(segment string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	sentinel := err
	var pe *PathError
	if errors.As(err, &pe) {
		return &PathError{Err: pe.Err, Segment: segment, Cause: err}
	}
	return &PathError{Err: sentinel, Segment: segment, Cause: nil}
}

// MissingProperties reports every required constructor parameter left
// unset after an object's map/array was fully consumed.
type MissingProperties struct {
	Names []string
}

func (e *MissingProperties) Error() string {
	return fmt.Sprintf("missing required propert%s: %v", plural(len(e.Names)), e.Names)
}

func (e *MissingProperties) Unwrap() error { return ErrMissingRequiredProperty }

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// BuildError represents a build-time configuration failure raised by the
// converter builder: duplicate union aliases, an unregistered custom
// converter, an unused-data bucket that is not a map, ambiguous duck-typed
// cases, or a shape kind that cannot be serialized. The shape provider's
// own checks (mixed key indexes, more than one unused-data bucket) return
// plain errors from package shape, not a BuildError.
//
// Grounded on cereal/errors.go's ConfigError (Err/Field/Algorithm shape).
type BuildError struct {
	Err    error
	Type   string
	Detail string
}

func (e *BuildError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s for %s: %s", e.Err.Error(), e.Type, e.Detail)
	}
	return fmt.Sprintf("%s for %s", e.Err.Error(), e.Type)
}

func (e *BuildError) Unwrap() error { return e.Err }

func newBuildError(typeName, detail string) error {
	return &BuildError{Err: ErrConfigurationError, Type: typeName, Detail: detail}
}
