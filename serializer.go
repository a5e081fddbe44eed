// Package shapepack serializes Go values to and from MessagePack using a
// shape-directed converter built once per type and cached for reuse.
//
// # Shape discovery
//
// A type's wire layout comes from its Shape: a reflection-derived tree for
// ordinary structs, slices, and maps, plus three directives that need an
// explicit registration because Go carries no attribute mechanism capable
// of stating them on the type itself — derived-type unions, named enums,
// and surrogate marshal/unmarshal pairs. Struct fields opt into wire
// behavior through the `msgpack` tag:
//
//	type Order struct {
//	    ID    string  `msgpack:"id"`
//	    Total float64 `msgpack:"total,omitempty"`
//	    Extra map[string]any `msgpack:",unused"`
//	}
//
// # Basic usage
//
//	s, _ := shapepack.NewSerializer[Order]()
//	data, _ := s.Serialize(ctx, order)
//	out, _ := s.Deserialize(ctx, data)
//
// # Streaming
//
//	err := s.SerializeTo(ctx, w, order)
//	out, err := s.DeserializeFrom(ctx, r)
//
// DeserializeFrom buffers up to WithMaxAsyncBuffer bytes and takes the fast
// sync path when the whole payload fits; otherwise it switches to
// cooperative async decoding that suspends at each `needs_more_bytes`
// boundary rather than blocking a goroutine per in-flight call.
//
// # Configuration
//
// Every Serializer is built from an immutable Option list — WithMaxDepth,
// WithPreserveReferences, WithPropertyNamingPolicy, WithConverterFactory,
// WithDerivedTypeUnion, and the rest in options.go. Changing configuration
// means constructing a new Serializer; the converter cache is never
// mutated in place.
package shapepack

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"time"

	"github.com/zoobzio/shapepack/convert"
	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// Serializer (de)serializes values of type T, memoizing the converter built
// for T's shape (and every shape it transitively refers to) across calls.
// Grounded on cereal/processor.go's Processor[T]: a generic facade wrapping
// a per-instance cache, constructed once and reused across many calls.
type Serializer[T any] struct {
	cache    *convert.Cache
	provider *shape.Provider
	policy   *convert.Policy
	typ      reflect.Type

	// refState is non-nil only under ReferenceCrossCall: the same
	// ReferenceState is then handed to every call's Context so pointers
	// and interned strings seen in one call keep resolving across later
	// ones, instead of each call starting with an empty reference graph.
	refState *convert.ReferenceState
}

// NewSerializer builds a Serializer for T from the given Options.
func NewSerializer[T any](opts ...Option) (*Serializer[T], error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	typ := reflect.TypeFor[T]()
	cache := convert.NewCache(o.policy)
	for name, factory := range o.factories {
		cache.RegisterConverterFactory(name, factory)
	}

	s := &Serializer[T]{cache: cache, provider: o.provider, policy: o.policy, typ: typ}
	if o.policy.PreserveReferences == convert.ReferenceCrossCall {
		s.refState = convert.NewReferenceState()
	}

	// Resolving T's shape and building its converter up front turns a
	// configuration mistake (mixed key indexes, duplicate union aliases,
	// more than one unused-data bucket) into a construction-time error
	// instead of a surprise on the first call.
	if _, err := s.converter(); err != nil {
		return nil, err
	}
	emitSerializerBuilt(typ.String())
	return s, nil
}

func (s *Serializer[T]) newContext(ctx context.Context) *convert.Context {
	if s.refState != nil {
		return convert.NewContextWithState(ctx, s.policy, s.refState)
	}
	return convert.NewContext(ctx, s.policy)
}

func (s *Serializer[T]) converter() (convert.Converter, error) {
	sh, err := s.provider.For(s.typ)
	if err != nil {
		return nil, err
	}
	if _, cached := s.cache.Get(sh); !cached {
		emitCacheMiss(s.typ.String())
	}
	return s.cache.GetOrBuild(sh)
}

// Serialize writes v to a MessagePack-encoded byte slice, buffering the
// whole result in memory.
func (s *Serializer[T]) Serialize(ctx context.Context, v T) ([]byte, error) {
	return s.serialize(ctx, v, false)
}

// SerializeAsync is Serialize's cooperative-suspension sibling. In this
// engine write-side suspension only matters for a downstream writer that
// applies backpressure; the payload is still built in memory first and
// then handed to WriteAsync, which every converter here treats as
// equivalent to Write.
func (s *Serializer[T]) SerializeAsync(ctx context.Context, v T) ([]byte, error) {
	return s.serialize(ctx, v, true)
}

// SerializeTo encodes v and writes the result to w in one call.
func (s *Serializer[T]) SerializeTo(ctx context.Context, w io.Writer, v T) error {
	data, err := s.Serialize(ctx, v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *Serializer[T]) serialize(ctx context.Context, v T, async bool) ([]byte, error) {
	shapeName := s.typ.String()
	emitSerializeStart(shapeName, async)
	began := time.Now()

	conv, err := s.converter()
	if err != nil {
		emitSerializeComplete(shapeName, async, 0, time.Since(began), err)
		return nil, err
	}

	w := msgpack.NewWriter(256)
	cctx := s.newContext(ctx)
	rv := reflect.ValueOf(v)

	writeFn := conv.Write
	if async {
		writeFn = conv.WriteAsync
	}
	if err := writeFn(cctx, w, rv); err != nil {
		op := "serialize"
		if async {
			op = "serializeAsync"
		}
		err = convert.WrapPath(op, err)
		emitSerializeComplete(shapeName, async, w.Len(), time.Since(began), err)
		return nil, err
	}

	emitSerializeComplete(shapeName, async, w.Len(), time.Since(began), nil)
	return w.Bytes(), nil
}

// Deserialize decodes a complete MessagePack payload already held in
// memory.
func (s *Serializer[T]) Deserialize(ctx context.Context, data []byte) (T, error) {
	var zero T
	shapeName := s.typ.String()
	emitDeserializeStart(shapeName, false)
	began := time.Now()

	conv, err := s.converter()
	if err != nil {
		emitDeserializeComplete(shapeName, false, 0, time.Since(began), err)
		return zero, err
	}

	r := msgpack.NewReader(data)
	cctx := s.newContext(ctx)
	rv, err := conv.Read(cctx, r)
	if err != nil {
		err = convert.WrapPath("deserialize", err)
		emitDeserializeComplete(shapeName, false, r.Pos(), time.Since(began), err)
		return zero, err
	}

	emitDeserializeComplete(shapeName, false, r.Pos(), time.Since(began), nil)
	out, _ := rv.Interface().(T)
	return out, nil
}

// DeserializeFrom reads a MessagePack payload from r, choosing between the
// sync and async decode paths per the async buffer threshold: up to
// Policy.MaxAsyncBuffer bytes are read up front; if that exhausts r, the
// fast buffered path runs directly on what was read, otherwise decoding
// switches to the cooperative async path for the remainder.
func (s *Serializer[T]) DeserializeFrom(ctx context.Context, r io.Reader) (T, error) {
	var zero T
	budget := s.policy.MaxAsyncBuffer
	if budget <= 0 {
		budget = 1 << 16
	}
	buf := make([]byte, budget)
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		// The budget filled without hitting EOF: more data may remain, so
		// fall through to the suspension-aware path for the rest.
		return s.deserializeStreaming(ctx, io.MultiReader(bytes.NewReader(buf[:n]), r))
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return s.Deserialize(ctx, buf[:n])
	default:
		return zero, err
	}
}

func (s *Serializer[T]) deserializeStreaming(ctx context.Context, r io.Reader) (T, error) {
	var zero T
	shapeName := s.typ.String()
	emitDeserializeStart(shapeName, true)
	began := time.Now()

	conv, err := s.converter()
	if err != nil {
		emitDeserializeComplete(shapeName, true, 0, time.Since(began), err)
		return zero, err
	}

	sr := msgpack.NewStreamReader()
	cctx := s.newContext(ctx)
	chunk := make([]byte, 4096)
	fetch := func(*convert.Context) ([]byte, error) {
		n, rerr := r.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			return out, nil
		}
		if rerr != nil {
			return nil, rerr
		}
		return nil, io.EOF
	}

	rv, err := conv.ReadAsync(cctx, sr, fetch)
	if err != nil {
		err = convert.WrapPath("deserializeAsync", err)
		emitDeserializeComplete(shapeName, true, sr.Consumed(), time.Since(began), err)
		return zero, err
	}

	emitDeserializeComplete(shapeName, true, sr.Consumed(), time.Since(began), nil)
	out, _ := rv.Interface().(T)
	return out, nil
}

// JSONSchema returns the JSON-schema fragment describing T's wire shape,
// built from the same converter family used to encode/decode it.
func (s *Serializer[T]) JSONSchema() (map[string]any, error) {
	conv, err := s.converter()
	if err != nil {
		return nil, err
	}
	return conv.JSONSchema(), nil
}
