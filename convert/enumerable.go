package convert

import (
	"reflect"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// enumerableConverter implements the sequence container form: one
// array header followed by that many elements. Neither
// EnumerableShape.Rank nor Policy.MultiDimensionalArrayFormat is read:
// every shape, including one a hand-written shape.Provider declares with
// Rank>1, is written as a single array of the elements its Enumerate
// yields. The reflection-based provider never produces Rank>1 (Go has no
// built-in rectangular multi-dim array type distinct from nested slices);
// see DESIGN.md.
type enumerableConverter struct {
	elemConv Converter
	shape    *shape.EnumerableShape
}

func (v *Visitor) buildEnumerable(s *shape.Shape) (Converter, error) {
	elemConv, err := v.resolveChild(s, s.Enumerable.ElementType)
	if err != nil {
		return nil, err
	}
	return &enumerableConverter{elemConv: elemConv, shape: s.Enumerable}, nil
}

func (c *enumerableConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Exit()

	w.WriteArrayHeader(v.Len())
	var outerErr error
	i := 0
	c.shape.Enumerate(v, func(elem reflect.Value) bool {
		if err := c.elemConv.Write(ctx, w, elem); err != nil {
			outerErr = WrapPath("["+itoa(i)+"]", err)
			return false
		}
		i++
		return true
	})
	return outerErr
}

func (c *enumerableConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *enumerableConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *enumerableConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	if err := ctx.Enter(); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.Exit()

	count, err := tryInt(ctx, sr, fetch, sr.TryReadArrayHeader)
	if err != nil {
		return reflect.Value{}, err
	}

	if c.shape.Strategy == shape.ConstructParameterized {
		elems := make([]reflect.Value, 0, count)
		for i := 0; i < count; i++ {
			v, err := c.elemConv.ReadAsync(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, WrapPath("["+itoa(i)+"]", err)
			}
			elems = append(elems, v)
		}
		return c.shape.FromSlice(elems), nil
	}

	seq := c.shape.New(count)
	for i := 0; i < count; i++ {
		v, err := c.elemConv.ReadAsync(ctx, sr, fetch)
		if err != nil {
			return reflect.Value{}, WrapPath("["+itoa(i)+"]", err)
		}
		seq = c.shape.Append(seq, v)
	}
	return seq, nil
}

func (c *enumerableConverter) PreferAsync() bool { return false }

func (c *enumerableConverter) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": c.elemConv.JSONSchema()}
}
