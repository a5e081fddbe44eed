package shapepack

import "github.com/zoobzio/shapepack/convert"

// Sentinel errors re-exported from convert so callers never need to import
// the converter package directly to use errors.Is/errors.As against them.
var (
	ErrInvalidData               = convert.ErrInvalidData
	ErrDepthExceeded              = convert.ErrDepthExceeded
	ErrMissingRequiredProperty    = convert.ErrMissingRequiredProperty
	ErrDisallowedNullValue        = convert.ErrDisallowedNullValue
	ErrDoublePropertyAssignment   = convert.ErrDoublePropertyAssignment
	ErrUnknownUnionDiscriminator  = convert.ErrUnknownUnionDiscriminator
	ErrUnsupportedOperation       = convert.ErrUnsupportedOperation
	ErrCancelled                  = convert.ErrCancelled
	ErrConfigurationError         = convert.ErrConfigurationError
)

// PathError and BuildError are re-exported as type aliases so a caller can
// type-switch on them without importing convert.
type PathError = convert.PathError
type BuildError = convert.BuildError
type MissingProperties = convert.MissingProperties
