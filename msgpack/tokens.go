// Package msgpack implements the MessagePack binary codec: a low-level
// reader/writer over byte sequences that encodes and decodes the wire
// tokens (nil, bool, ints, floats, str, bin, array/map headers, extension)
// without any knowledge of the higher-level converter/shape machinery that
// sits on top of it.
package msgpack

// Token prefix bytes, per the MessagePack specification.
const (
	tagNil = 0xc0
	// 0xc1 unused
	tagFalse = 0xc2
	tagTrue  = 0xc3

	tagBin8  = 0xc4
	tagBin16 = 0xc5
	tagBin32 = 0xc6

	tagExt8  = 0xc7
	tagExt16 = 0xc8
	tagExt32 = 0xc9

	tagFloat32 = 0xca
	tagFloat64 = 0xcb

	tagUint8  = 0xcc
	tagUint16 = 0xcd
	tagUint32 = 0xce
	tagUint64 = 0xcf

	tagInt8  = 0xd0
	tagInt16 = 0xd1
	tagInt32 = 0xd2
	tagInt64 = 0xd3

	tagFixExt1  = 0xd4
	tagFixExt2  = 0xd5
	tagFixExt4  = 0xd6
	tagFixExt8  = 0xd7
	tagFixExt16 = 0xd8

	tagStr8  = 0xd9
	tagStr16 = 0xda
	tagStr32 = 0xdb

	tagArray16 = 0xdc
	tagArray32 = 0xdd

	tagMap16 = 0xde
	tagMap32 = 0xdf

	// fixint positive: 0x00-0x7f
	// fixint negative: 0xe0-0xff (-32..-1)
	fixintNegMin = -32

	// fixstr: 0xa0-0xbf, length 0-31
	tagFixStrMin = 0xa0
	tagFixStrMax = 0xbf

	// fixarray: 0x90-0x9f, length 0-15
	tagFixArrayMin = 0x90
	tagFixArrayMax = 0x9f

	// fixmap: 0x80-0x8f, length 0-15
	tagFixMapMin = 0x80
	tagFixMapMax = 0x8f
)

// Type identifies the category of the next value on the wire, as reported
// by TryPeekNextType. It never implies a specific width.
type Type int

const (
	TypeUnknown Type = iota
	TypeNil
	TypeBool
	TypeInt
	TypeUint
	TypeFloat
	TypeStr
	TypeBin
	TypeArray
	TypeMap
	TypeExtension
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "str"
	case TypeBin:
		return "bin"
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	case TypeExtension:
		return "extension"
	default:
		return "unknown"
	}
}

// typeOfLeadByte classifies a lead byte without consuming anything. It is
// shared by the buffered and streaming readers' peek operations.
func typeOfLeadByte(b byte) Type {
	switch {
	case b <= 0x7f:
		return TypeInt
	case b >= fixintNegAsByte:
		return TypeInt
	case b >= tagFixMapMin && b <= tagFixMapMax:
		return TypeMap
	case b >= tagFixArrayMin && b <= tagFixArrayMax:
		return TypeArray
	case b >= tagFixStrMin && b <= tagFixStrMax:
		return TypeStr
	}
	switch b {
	case tagNil:
		return TypeNil
	case tagFalse, tagTrue:
		return TypeBool
	case tagBin8, tagBin16, tagBin32:
		return TypeBin
	case tagExt8, tagExt16, tagExt32,
		tagFixExt1, tagFixExt2, tagFixExt4, tagFixExt8, tagFixExt16:
		return TypeExtension
	case tagFloat32, tagFloat64:
		return TypeFloat
	case tagUint8, tagUint16, tagUint32, tagUint64:
		return TypeUint
	case tagInt8, tagInt16, tagInt32, tagInt64:
		return TypeInt
	case tagStr8, tagStr16, tagStr32:
		return TypeStr
	case tagArray16, tagArray32:
		return TypeArray
	case tagMap16, tagMap32:
		return TypeMap
	}
	return TypeUnknown
}

// fixintNegAsByte is 0xe0, the first byte of the negative-fixint range,
// expressed as an untyped constant so the comparison above reads cleanly.
const fixintNegAsByte = 0xe0

// ExtensionCode identifies an extension type on the wire. Codes are
// configurable so the engine can avoid
// colliding with extension codes used by other ecosystems sharing the
// same transport.
type ExtensionCode int8

// Default extension codes for the built-in extension types the converter
// family installs. Policy.ExtensionCodes (set through
// WithExtensionTypeCodes) holds overrides by name, but of the built-in
// converters only reference-ID tokens read their code from it; ExtBigInt
// and ExtDate are always used as-is.
const (
	ExtGUID ExtensionCode = 1
	ExtBigInt ExtensionCode = 2
	ExtDecimal ExtensionCode = 3
	ExtInt128 ExtensionCode = 4
	ExtUint128 ExtensionCode = 5
	ExtReferenceID ExtensionCode = 6
	ExtFloat16 ExtensionCode = 7
	ExtDate    ExtensionCode = 8
)
