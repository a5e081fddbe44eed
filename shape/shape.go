// Package shape defines the metadata contract the converter builder
// consumes for every concrete user type, plus one concrete,
// reflection-based provider so the engine can be exercised without a
// hand-authored shape for every type under test.
//
// The contract is intentionally data-only: a Shape never touches the wire
// format or any serializer policy. It exists so the visitor in package
// convert can be driven by something other than direct reflection calls
// scattered through the converter family, the same separation cereal drew
// between its Processor (orchestration) and its reflection-built field
// plans (registry.go).
package shape

import "reflect"

// Kind discriminates the shape of a type, mirroring the builder's one-handler-
// per-kind visitor dispatch.
type Kind int

const (
	KindPrimitive Kind = iota
	KindObject
	KindUnion
	KindEnum
	KindOptional
	KindDictionary
	KindEnumerable
	KindSurrogate
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindObject:
		return "object"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindOptional:
		return "optional"
	case KindDictionary:
		return "dictionary"
	case KindEnumerable:
		return "enumerable"
	case KindSurrogate:
		return "surrogate"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Identity is the comparable cache key: two Shapes describing the same Go type from
// the same Provider must compare equal so the ConverterCache treats them
// as the same cache entry, while shapes sourced from different providers
// are kept distinct even for the same reflect.Type.
type Identity struct {
	typ      reflect.Type
	provider uintptr
}

// Shape is the metadata tree node the builder visits. Exactly one of the
// Kind-specific accessor groups below is meaningful for a given Shape,
// selected by Kind.
type Shape struct {
	Kind Kind
	Type reflect.Type
	id   Identity

	// Provider is the Provider that produced this Shape. The converter
	// builder uses it to resolve child types (property types, union case
	// types, element/key/value types) to their own Shape on demand,
	// keeping shape construction itself non-recursive.
	Provider *Provider

	// KindObject
	Object *ObjectShape
	// KindUnion
	Union *UnionShape
	// KindEnum
	Enum *EnumShape
	// KindOptional
	Optional *OptionalShape
	// KindDictionary
	Dictionary *DictionaryShape
	// KindEnumerable
	Enumerable *EnumerableShape
	// KindSurrogate
	Surrogate *SurrogateShape

	// Attributes carries member-level directives read off struct tags:
	// custom converter name, default value literal, ignore-nulls, key
	// index, comparer selection, property name override.
	Attributes Attributes
}

// ID returns the shape's cache identity.
func (s Shape) ID() Identity { return s.id }

// Attributes holds the subset of struct-tag directives the builder reads
// when resolving a member.
type Attributes struct {
	NameOverride    string
	KeyIndex        int
	HasKeyIndex     bool
	CustomConverter string
	DefaultLiteral  string
	HasDefault      bool
	IgnoreNulls     bool
	Comparer        string
	Unused          bool // marks the at-most-one unused-data bucket
}

// ObjectShape describes a map- or array-shaped user type.
type ObjectShape struct {
	Properties  []Property
	Constructor *Constructor
	// UnusedDataIndex is the index into Properties of the unused-data
	// bucket, or -1 if the type declares none.
	UnusedDataIndex int
}

// Property describes one serializable member.
type Property struct {
	Name       string
	Type       reflect.Type
	Attributes Attributes
	Getter     func(obj reflect.Value) reflect.Value
	Setter     func(obj reflect.Value, v reflect.Value)
	// ShouldSerialize, if non-nil, overrides the default-value policy for
	// this property (e.g. a hand-written `ShouldSerializeX() bool`).
	ShouldSerialize func(obj reflect.Value) bool
}

// Constructor describes the single constructor the shape provider elects
// to use for deserialization.
type Constructor struct {
	Parameters []Parameter
	// Invoke builds a new T from positionally-ordered argument values.
	// Slots the caller never set are passed as the zero reflect.Value and
	// leave the field at its zero value; a parameter's declared default is
	// substituted by the caller before Invoke runs.
	Invoke func(args []reflect.Value) reflect.Value
}

// Parameter describes one constructor parameter.
type Parameter struct {
	Name         string
	Type         reflect.Type
	Position     int
	Required     bool
	HasDefault   bool
	Default      reflect.Value
	NonNullable  bool
}

// UnionShape describes a polymorphic base type and its declared derived
// cases.
type UnionShape struct {
	Cases []UnionCase
	// CaseIndex returns the index into Cases matching value's runtime
	// type, or -1 if value is exactly the base type, or -2 if it is an
	// undeclared derivative.
	CaseIndex func(value reflect.Value) int
	// DuckTyped marks the experimental no-discriminator variant.
	DuckTyped bool
}

// UnionCase describes one derived type of a union. Its Shape is resolved
// lazily by the converter builder via Provider.For(Type) rather than
// embedded eagerly, so a union whose case type transitively refers back to
// the base never forces an infinite shape tree.
type UnionCase struct {
	IntAlias    int64
	StringAlias string
	HasIntAlias bool
	Type        reflect.Type
}

// EnumShape describes an enumeration's named members.
type EnumShape struct {
	Members         []EnumMember
	CaseDistinguished bool // disables case-insensitive name matching
	Underlying      reflect.Kind
}

// EnumMember pairs a declared name with its underlying ordinal value.
type EnumMember struct {
	Name  string
	Value int64
}

// OptionalShape describes a nullable wrapper around an element type
// (pointer, or a language-level optional type). ElementType is resolved
// lazily via Provider.For, same reasoning as UnionCase.
type OptionalShape struct {
	ElementType reflect.Type
	IsNil       func(v reflect.Value) bool
	Unwrap      func(v reflect.Value) reflect.Value
	Wrap        func(v reflect.Value) reflect.Value
	WrapNil     func() reflect.Value
}

// ConstructionStrategy selects how a collection is built during
// deserialization.
type ConstructionStrategy int

const (
	// ConstructNone marks a serialize-only collection shape.
	ConstructNone ConstructionStrategy = iota
	// ConstructMutable default-constructs then appends/inserts.
	ConstructMutable
	// ConstructParameterized constructs from a materialized slice/map in
	// one call (e.g. a constructor taking a slice).
	ConstructParameterized
)

// DictionaryShape describes a key/value container.
type DictionaryShape struct {
	KeyType, ValueType reflect.Type
	Strategy           ConstructionStrategy
	Enumerate          func(dict reflect.Value, yield func(k, v reflect.Value) bool)
	New                func(sizeHint int) reflect.Value
	Insert             func(dict reflect.Value, k, v reflect.Value)
	FromPairs          func(pairs []KVPair) reflect.Value
}

// KVPair is one decoded key/value pair for ConstructParameterized
// dictionaries.
type KVPair struct {
	Key, Value reflect.Value
}

// EnumerableShape describes a sequence container.
type EnumerableShape struct {
	ElementType reflect.Type
	Rank        int // 1 for a flat sequence, >1 for a multi-dimensional array
	Strategy    ConstructionStrategy
	Enumerate   func(seq reflect.Value, yield func(v reflect.Value) bool)
	New         func(sizeHint int) reflect.Value
	Append      func(seq reflect.Value, v reflect.Value) reflect.Value
	FromSlice   func(elems []reflect.Value) reflect.Value
}

// SurrogateShape describes a marshal/unmarshal pair routing T's
// (de)serialization through a secondary type S. SurrogateType is
// resolved lazily via Provider.For, same reasoning as UnionCase.
type SurrogateShape struct {
	SurrogateType reflect.Type
	Marshal       func(v reflect.Value) reflect.Value
	Unmarshal     func(s reflect.Value) reflect.Value
}
