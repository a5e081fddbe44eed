package convert

import (
	"math/big"
	"reflect"
	"time"

	"github.com/zoobzio/shapepack/msgpack"
)

// primitiveConverter implements Converter for one entry of the closed,
// concrete-type-keyed primitive table. writeFn/readAsyncFn hold the
// type-specific wire logic; Read is derived from ReadAsync via
// readBuffered so every primitive shares one suspension-aware
// implementation.
type primitiveConverter struct {
	name      string
	writeFn   func(w *msgpack.Writer, v reflect.Value) error
	readAsync func(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error)
	schema    map[string]any
}

func (c *primitiveConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.writeFn(w, v)
}

func (c *primitiveConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *primitiveConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *primitiveConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	return c.readAsync(ctx, sr, fetch)
}

func (c *primitiveConverter) PreferAsync() bool          { return false }
func (c *primitiveConverter) JSONSchema() map[string]any { return c.schema }

// internableStringConverter is the string entry's own Converter, kept
// separate from the generic primitiveConverter because string interning
// needs ctx on both the write and read side: on write, a string already
// emitted in this call is replaced by a reference-ID extension token
// when both InternStrings and reference preservation are on; on read,
// a decoded string is folded into the per-call intern table, and a
// reference token resolves to the same instance a previous occurrence
// produced rather than allocating again.
type internableStringConverter struct {
	schema map[string]any
}

func (c *internableStringConverter) dedupes(ctx *Context) bool {
	return ctx.Policy.InternStrings && ctx.Policy.PreserveReferences != ReferenceOff
}

func (c *internableStringConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	s := v.String()
	if c.dedupes(ctx) {
		if id, seen := ctx.RecordWrittenString(s); seen {
			w.WriteExtension(ctx.Policy.extCode("refid", msgpack.ExtReferenceID), encodeRefID(id))
			return nil
		}
	}
	w.WriteStr(s)
	return nil
}

func (c *internableStringConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *internableStringConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *internableStringConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	if c.dedupes(ctx) {
		if t, ok := sr.TryPeekNextType(); ok && t == msgpack.TypeExtension {
			code, payloadLen, err := tryExtHeader(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			if code != ctx.Policy.extCode("refid", msgpack.ExtReferenceID) {
				return reflect.Value{}, ErrInvalidData
			}
			payload, err := tryExtPayload(ctx, sr, fetch, payloadLen)
			if err != nil {
				return reflect.Value{}, err
			}
			id := decodeRefID(payload)
			if s, ok := ctx.ResolveReadString(id); ok {
				return reflect.ValueOf(s), nil
			}
			return reflect.Value{}, ErrInvalidData
		}
	}
	s, err := tryStr(ctx, sr, fetch, sr.TryReadStr)
	if err != nil {
		return reflect.Value{}, wrapInvalid(err)
	}
	if ctx.Policy.InternStrings {
		s = ctx.InternString(s)
	}
	if c.dedupes(ctx) {
		ctx.RecordReadString(ctx.nextReadRefID(), s)
	}
	return reflect.ValueOf(s), nil
}

func (c *internableStringConverter) PreferAsync() bool          { return false }
func (c *internableStringConverter) JSONSchema() map[string]any { return c.schema }

// readBuffered derives a buffered Read from an async-style ReadAsync by
// feeding the reader's entire remaining window into a fresh StreamReader
// and driving it with eofFetch: any needs_more_bytes result becomes
// ErrUnexpectedEOF, since no more bytes will ever arrive in buffered mode.
func readBuffered(ctx *Context, r *msgpack.Reader, readAsync func(*Context, *msgpack.StreamReader, FetchFunc) (reflect.Value, error)) (reflect.Value, error) {
	sr := msgpack.NewStreamReader()
	sr.Feed(r.Remaining())
	v, err := readAsync(ctx, sr, eofFetch)
	if err != nil {
		return reflect.Value{}, err
	}
	r.Advance(sr.Consumed())
	return v, nil
}

func asyncOf(attempt func(sr *msgpack.StreamReader) (reflect.Value, bool, error)) func(*Context, *msgpack.StreamReader, FetchFunc) (reflect.Value, error) {
	return func(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
		var result reflect.Value
		err := pump(ctx, sr, fetch, func() (bool, error) {
			v, ok, err := attempt(sr)
			if ok {
				result = v
			}
			return ok, err
		})
		return result, err
	}
}

var (
	bigIntType    = reflect.TypeFor[big.Int]()
	durationType  = reflect.TypeFor[time.Duration]()
	timeValueType = reflect.TypeFor[time.Time]()
	byteSliceTy   = reflect.TypeFor[[]byte]()
	rawMsgType    = reflect.TypeFor[RawMessage]()
)

// RawMessage carries already-encoded MessagePack bytes verbatim, for the
// "raw passthrough" primitive converter.
type RawMessage []byte

// PrimitiveTable returns the closed, concrete-type-keyed table of
// primitive converters. Visitor.build consults it before any other
// resolution step after custom converters.
func PrimitiveTable() map[reflect.Type]Converter {
	t := make(map[reflect.Type]Converter)

	t[reflect.TypeFor[bool]()] = &primitiveConverter{
		name: "bool",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteBool(v.Bool())
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadBool()
			return reflect.ValueOf(v), ok, wrapInvalid(err)
		}),
		schema: map[string]any{"type": "boolean"},
	}

	addSignedInt(t, reflect.TypeFor[int8](), "int8")
	addSignedInt(t, reflect.TypeFor[int16](), "int16")
	addSignedInt(t, reflect.TypeFor[int32](), "int32")
	addSignedInt(t, reflect.TypeFor[int64](), "int64")
	addSignedInt(t, reflect.TypeFor[int](), "int")
	addUnsignedInt(t, reflect.TypeFor[uint8](), "uint8")
	addUnsignedInt(t, reflect.TypeFor[uint16](), "uint16")
	addUnsignedInt(t, reflect.TypeFor[uint32](), "uint32")
	addUnsignedInt(t, reflect.TypeFor[uint64](), "uint64")
	addUnsignedInt(t, reflect.TypeFor[uint](), "uint")

	t[reflect.TypeFor[float32]()] = &primitiveConverter{
		name: "float32",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteFloat32(float32(v.Float()))
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadFloat32()
			return reflect.ValueOf(v), ok, wrapInvalid(err)
		}),
		schema: map[string]any{"type": "number", "format": "float"},
	}
	t[reflect.TypeFor[float64]()] = &primitiveConverter{
		name: "float64",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteFloat64(v.Float())
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadFloat64()
			return reflect.ValueOf(v), ok, wrapInvalid(err)
		}),
		schema: map[string]any{"type": "number", "format": "double"},
	}

	t[reflect.TypeFor[string]()] = &internableStringConverter{
		schema: map[string]any{"type": "string"},
	}

	t[byteSliceTy] = &primitiveConverter{
		name: "bytes",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteBin(v.Bytes())
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadBin()
			return reflect.ValueOf(v), ok, wrapInvalid(err)
		}),
		schema: map[string]any{"type": "string", "format": "binary"},
	}

	t[rawMsgType] = &primitiveConverter{
		name: "raw",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteRaw(v.Bytes())
			return nil
		},
		readAsync: func(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
			start := sr.Consumed()
			if err := trySkip(ctx, sr, fetch); err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(RawMessage(sr.Captured(start, sr.Consumed()))), nil
		},
		schema: map[string]any{},
	}

	t[timeValueType] = timeConverter()
	t[durationType] = durationConverter()
	t[bigIntType] = bigIntConverter()

	return t
}

func addSignedInt(t map[reflect.Type]Converter, typ reflect.Type, name string) {
	t[typ] = &primitiveConverter{
		name: name,
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteInt(v.Int())
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadInt()
			if !ok || err != nil {
				return reflect.Value{}, ok, wrapInvalid(err)
			}
			rv := reflect.New(typ).Elem()
			rv.SetInt(v)
			return rv, true, nil
		}),
		schema: map[string]any{"type": "integer"},
	}
}

func addUnsignedInt(t map[reflect.Type]Converter, typ reflect.Type, name string) {
	t[typ] = &primitiveConverter{
		name: name,
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteUint(v.Uint())
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadUint()
			if !ok || err != nil {
				return reflect.Value{}, ok, wrapInvalid(err)
			}
			rv := reflect.New(typ).Elem()
			rv.SetUint(v)
			return rv, true, nil
		}),
		schema: map[string]any{"type": "integer", "minimum": 0},
	}
}

// timeConverter encodes time.Time as an extension payload of a unix
// second count plus a nanosecond remainder. The
// engine installs its own ExtDate code rather than reusing the `-1`
// wire-level timestamp extension some implementations reserve. The code is
// always msgpack.ExtDate: the "date" entry of Policy.ExtensionCodes is not
// consulted here, and bigIntConverter likewise always uses ExtBigInt.
func timeConverter() Converter {
	return &primitiveConverter{
		name: "time.Time",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			t := v.Interface().(time.Time).UTC()
			payload := make([]byte, 12)
			putInt64(payload[:8], t.Unix())
			putUint32(payload[8:], uint32(t.Nanosecond()))
			w.WriteExtension(msgpack.ExtDate, payload)
			return nil
		},
		readAsync: func(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
			code, payloadLen, err := tryExtHeader(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			if code != msgpack.ExtDate {
				return reflect.Value{}, ErrInvalidData
			}
			payload, err := tryExtPayload(ctx, sr, fetch, payloadLen)
			if err != nil {
				return reflect.Value{}, err
			}
			if len(payload) != 12 {
				return reflect.Value{}, ErrInvalidData
			}
			sec := getInt64(payload[:8])
			nsec := getUint32(payload[8:])
			t := time.Unix(sec, int64(nsec)).UTC()
			return reflect.ValueOf(t), nil
		},
		schema: map[string]any{"type": "string", "format": "date-time"},
	}
}

func durationConverter() Converter {
	return &primitiveConverter{
		name: "time.Duration",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			w.WriteInt(int64(v.Interface().(time.Duration)))
			return nil
		},
		readAsync: asyncOf(func(sr *msgpack.StreamReader) (reflect.Value, bool, error) {
			v, ok, err := sr.TryReadInt()
			if !ok || err != nil {
				return reflect.Value{}, ok, wrapInvalid(err)
			}
			return reflect.ValueOf(time.Duration(v)), true, nil
		}),
		schema: map[string]any{"type": "integer", "format": "duration-nanoseconds"},
	}
}

// bigIntConverter encodes math/big.Int as two's-complement big-endian
// bytes in an extension payload.
func bigIntConverter() Converter {
	return &primitiveConverter{
		name: "big.Int",
		writeFn: func(w *msgpack.Writer, v reflect.Value) error {
			bi := v.Interface().(big.Int)
			w.WriteExtension(msgpack.ExtBigInt, twosComplementBytes(&bi))
			return nil
		},
		readAsync: func(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
			code, payloadLen, err := tryExtHeader(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			if code != msgpack.ExtBigInt {
				return reflect.Value{}, ErrInvalidData
			}
			payload, err := tryExtPayload(ctx, sr, fetch, payloadLen)
			if err != nil {
				return reflect.Value{}, err
			}
			bi := fromTwosComplementBytes(payload)
			return reflect.ValueOf(*bi), nil
		},
		schema: map[string]any{"type": "string", "format": "bigint"},
	}
}

func twosComplementBytes(bi *big.Int) []byte {
	if bi.Sign() >= 0 {
		b := bi.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	nBits := bi.BitLen() + 1
	nBytes := (nBits + 7) / 8
	twosComp := new(big.Int).Add(bi, new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8)))
	b := twosComp.Bytes()
	for len(b) < nBytes {
		b = append([]byte{0}, b...)
	}
	return b
}

func fromTwosComplementBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	bi := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		bi.Sub(bi, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	if bi.Sign() == 0 {
		return new(big.Int)
	}
	return bi
}

func putInt64(b []byte, v int64) { putUint64(b, uint64(v)) }
func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}
func getInt64(b []byte) int64 { return int64(getUint64(b)) }
func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func wrapInvalid(err error) error {
	if err == nil {
		return nil
	}
	return err
}
