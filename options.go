package shapepack

import (
	"reflect"

	"github.com/zoobzio/shapepack/convert"
	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// Option configures a Serializer at construction time. Grounded on cereal's
// Processor construction style, generalized to an immutable, copy-on-write
// options struct assembled through a functional-options list: applying a
// different set of Options always produces a fresh *Serializer with its own
// *convert.Cache, never a mutation of one already in use.
type Option func(*options)

type options struct {
	policy    *convert.Policy
	provider  *shape.Provider
	factories map[string]func(*shape.Shape) (convert.Converter, error)
}

func newOptions() *options {
	return &options{
		policy:    convert.DefaultPolicy(),
		provider:  shape.NewProvider(),
		factories: make(map[string]func(*shape.Shape) (convert.Converter, error)),
	}
}

// WithMaxDepth overrides the recursion cap a call fails past.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.policy.MaxDepth = n }
}

// WithMaxAsyncBuffer sets the byte budget DeserializeFrom buffers before
// deciding between the sync and async decode paths.
func WithMaxAsyncBuffer(n int) Option {
	return func(o *options) { o.policy.MaxAsyncBuffer = n }
}

// WithPreserveReferences turns on object-graph reference preservation
// for the given lifetime.
func WithPreserveReferences(mode convert.ReferencePreservationMode) Option {
	return func(o *options) { o.policy.PreserveReferences = mode }
}

// WithPropertyNamingPolicy installs a declared-name -> wire-name mapping,
// skipped for properties carrying an explicit wire name attribute.
func WithPropertyNamingPolicy(fn convert.NamingPolicy) Option {
	return func(o *options) { o.policy.NamingPolicy = fn }
}

// WithComparer stores c as Policy.Comparer. The built-in dictionary
// converter does not consult it: decoded maps use Go's own key equality.
func WithComparer(c convert.Comparer) Option {
	return func(o *options) { o.policy.Comparer = c }
}

// WithPerfOverSchemaStability prefers array/integer encodings over the
// more stable map/name encodings.
func WithPerfOverSchemaStability(b bool) Option {
	return func(o *options) { o.policy.PerfOverSchemaStability = b }
}

// WithIgnoreKeyAttributes forces map form even for types whose members
// declare key indexes.
func WithIgnoreKeyAttributes(b bool) Option {
	return func(o *options) { o.policy.IgnoreKeyAttributes = b }
}

// WithSerializeEnumValuesByName switches enum encoding to name-by-default
// rather than ordinal.
func WithSerializeEnumValuesByName(b bool) Option {
	return func(o *options) { o.policy.SerializeEnumByName = b }
}

// WithSerializeDefaultValues sets the default-value emission bitset.
func WithSerializeDefaultValues(flags convert.DefaultValuesSerialize) Option {
	return func(o *options) { o.policy.SerializeDefaults = flags }
}

// WithDeserializeDefaultValues sets read-side leniency toward absent or
// null values.
func WithDeserializeDefaultValues(flags convert.DefaultValuesDeserialize) Option {
	return func(o *options) { o.policy.DeserializeDefaults = flags }
}

// WithInternStrings turns on decoded-string interning.
func WithInternStrings(b bool) Option {
	return func(o *options) { o.policy.InternStrings = b }
}

// WithExtensionTypeCodes overrides the default extension-code assignments
// for named extension kinds. Of the built-in converters only reference-ID
// tokens (the "refid" entry) read their code from this table; big.Int and
// time.Time always use msgpack.ExtBigInt and msgpack.ExtDate.
func WithExtensionTypeCodes(codes map[string]msgpack.ExtensionCode) Option {
	return func(o *options) {
		merged := make(map[string]msgpack.ExtensionCode, len(o.policy.ExtensionCodes)+len(codes))
		for k, v := range o.policy.ExtensionCodes {
			merged[k] = v
		}
		for k, v := range codes {
			merged[k] = v
		}
		o.policy.ExtensionCodes = merged
	}
}

// WithUseDiscriminatorObjects switches union wire shape from the default
// two-element array to a single-entry discriminator object.
func WithUseDiscriminatorObjects(b bool) Option {
	return func(o *options) { o.policy.UseDiscriminatorObjects = b }
}

// WithDisableHardwareAcceleration opts out of any SIMD primitive-array
// fast path a Writer/Reader implementation offers.
func WithDisableHardwareAcceleration(b bool) Option {
	return func(o *options) { o.policy.DisableHardwareAcceleration = b }
}

// WithMultiDimensionalArrayFormat stores the nested vs flat layout choice
// in Policy.MultiDimensionalArrayFormat. No built-in converter reads it:
// enumerables are always written as a single array of their elements.
func WithMultiDimensionalArrayFormat(f convert.MultiDimensionalArrayFormat) Option {
	return func(o *options) { o.policy.MultiDimensionalArrayFormat = f }
}

// WithDuckTypedUnions enables the experimental no-discriminator union
// variant for every union the provider resolves, in addition to any
// union individually marked duck-typed at registration.
func WithDuckTypedUnions(b bool) Option {
	return func(o *options) { o.policy.DuckTypedUnions = b }
}

// WithShapeProvider swaps the default reflection-based shape.Provider for
// a caller-supplied one, e.g. a code-generated provider that avoids
// reflection entirely.
func WithShapeProvider(p *shape.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithConverterFactory registers a named custom converter factory,
// consulted first in the builder's resolution order for any
// shape whose type or member attribute names it.
func WithConverterFactory(name string, factory func(s *shape.Shape) (convert.Converter, error)) Option {
	return func(o *options) { o.factories[name] = factory }
}

// WithDerivedTypeUnion registers base as a polymorphic union at
// construction time on the Serializer's provider. The registration
// replaces any union registered earlier for the same type; its cases are
// not merged with the earlier ones. An empty cases slice disables union
// framing, so base is (de)serialized by its own structural converter.
func WithDerivedTypeUnion(base reflect.Type, cases []shape.UnionCase, caseIndex func(reflect.Value) int) Option {
	return func(o *options) { o.provider.RegisterUnion(base, cases, caseIndex) }
}

// WithEnum registers t as a named enum.
func WithEnum(t reflect.Type, members []shape.EnumMember, caseDistinguished bool) Option {
	return func(o *options) { o.provider.RegisterEnum(t, members, caseDistinguished) }
}

// WithSurrogate registers t as routed through a secondary surrogate type.
func WithSurrogate(t, surrogateType reflect.Type, marshal, unmarshal func(reflect.Value) reflect.Value) Option {
	return func(o *options) { o.provider.RegisterSurrogate(t, surrogateType, marshal, unmarshal) }
}
