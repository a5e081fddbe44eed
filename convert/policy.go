package convert

import "github.com/zoobzio/shapepack/msgpack"

// ReferencePreservationMode controls reference-preservation lifetime.
type ReferencePreservationMode int

const (
	ReferenceOff ReferencePreservationMode = iota
	ReferencePerCall
	ReferenceCrossCall
)

// DefaultValuesSerialize is a bitset controlling when a property is
// emitted on write.
type DefaultValuesSerialize uint8

const (
	SerializeDefaultNever DefaultValuesSerialize = 0
	SerializeDefaultAlways DefaultValuesSerialize = 1 << iota
	SerializeDefaultValueTypes
	SerializeDefaultReferenceTypes
	SerializeDefaultRequired
)

func (f DefaultValuesSerialize) has(bit DefaultValuesSerialize) bool { return f&bit != 0 }

// DefaultValuesDeserialize is a bitset controlling read-side leniency
// toward absent or null values.
type DefaultValuesDeserialize uint8

const (
	DeserializeDefaultStrict DefaultValuesDeserialize = 0
	AllowNullValuesForNonNullableProperties DefaultValuesDeserialize = 1 << iota
	AllowMissingValuesForRequiredProperties
)

func (f DefaultValuesDeserialize) has(bit DefaultValuesDeserialize) bool { return f&bit != 0 }

// MultiDimensionalArrayFormat selects the wire layout for
// multi-dimensional arrays.
type MultiDimensionalArrayFormat int

const (
	MultiDimNested MultiDimensionalArrayFormat = iota
	MultiDimFlat
)

// NamingPolicy maps a declared member name to its wire name. Skipped when the member has an explicit wire
// name from an attribute.
type NamingPolicy func(declared string) string

// Comparer supplies equality for a keyed collection. It is carried in the
// Policy only: the built-in dictionary converter always uses Go map key
// equality, whether or not a Comparer is set.
type Comparer interface {
	Equal(a, b any) bool
}

// Policy bundles every serializer-wide option the builder and the
// converter family consult. It is immutable once attached to a
// Cache; changing any field requires constructing a new Policy and a new
// Cache.
type Policy struct {
	MultiDimensionalArrayFormat MultiDimensionalArrayFormat
	NamingPolicy                NamingPolicy
	Comparer                    Comparer
	PerfOverSchemaStability     bool
	IgnoreKeyAttributes         bool
	SerializeEnumByName         bool
	SerializeDefaults           DefaultValuesSerialize
	DeserializeDefaults         DefaultValuesDeserialize
	PreserveReferences          ReferencePreservationMode
	InternStrings               bool
	ExtensionCodes              map[string]msgpack.ExtensionCode
	UseDiscriminatorObjects     bool
	DisableHardwareAcceleration bool
	MaxAsyncBuffer              int
	MaxDepth                    int
	DuckTypedUnions             bool
}

// DefaultPolicy returns the engine's out-of-the-box configuration: map-
// form objects, array-form unions, no reference preservation, required
// properties strictly enforced, depth capped at 64.
func DefaultPolicy() *Policy {
	return &Policy{
		MultiDimensionalArrayFormat: MultiDimNested,
		SerializeDefaults:           SerializeDefaultValueTypes | SerializeDefaultRequired,
		MaxAsyncBuffer:              1 << 16,
		MaxDepth:                    64,
		ExtensionCodes: map[string]msgpack.ExtensionCode{
			"guid":    msgpack.ExtGUID,
			"bigint":  msgpack.ExtBigInt,
			"decimal": msgpack.ExtDecimal,
			"int128":  msgpack.ExtInt128,
			"uint128": msgpack.ExtUint128,
			"refid":   msgpack.ExtReferenceID,
			"float16": msgpack.ExtFloat16,
			"date":    msgpack.ExtDate,
		},
	}
}

func (p *Policy) extCode(name string, fallback msgpack.ExtensionCode) msgpack.ExtensionCode {
	if p.ExtensionCodes == nil {
		return fallback
	}
	if c, ok := p.ExtensionCodes[name]; ok {
		return c
	}
	return fallback
}
