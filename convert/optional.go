package convert

import (
	"reflect"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// optionalConverter wraps an element converter with nil handling: writes
// nil when the value is absent, otherwise delegates to the element
// converter; on read, a nil token yields the wrapped zero/nil form
// without ever invoking the element converter.
type optionalConverter struct {
	elem    Converter
	isNil   func(reflect.Value) bool
	unwrap  func(reflect.Value) reflect.Value
	wrap    func(reflect.Value) reflect.Value
	wrapNil func() reflect.Value
}

func (v *Visitor) buildOptional(s *shape.Shape) (Converter, error) {
	elemConv, err := v.resolveChild(s, s.Optional.ElementType)
	if err != nil {
		return nil, err
	}
	return &optionalConverter{
		elem:    elemConv,
		isNil:   s.Optional.IsNil,
		unwrap:  s.Optional.Unwrap,
		wrap:    s.Optional.Wrap,
		wrapNil: s.Optional.WrapNil,
	}, nil
}

func (c *optionalConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if c.isNil(v) {
		w.WriteNil()
		return nil
	}
	return c.elem.Write(ctx, w, c.unwrap(v))
}

func (c *optionalConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *optionalConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	if t, ok := r.TryPeekNextType(); ok && t == msgpack.TypeNil {
		if err := r.ReadNil(); err != nil {
			return reflect.Value{}, err
		}
		return c.wrapNil(), nil
	}
	inner, err := c.elem.Read(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.wrap(inner), nil
}

func (c *optionalConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	t, ok := sr.TryPeekNextType()
	if !ok {
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return reflect.Value{}, err
		}
		return c.ReadAsync(ctx, sr, fetch)
	}
	if t == msgpack.TypeNil {
		if _, err := tryBool(ctx, sr, fetch, func() (bool, bool, error) {
			ok, err := sr.TryReadNil()
			return false, ok, err
		}); err != nil {
			return reflect.Value{}, err
		}
		return c.wrapNil(), nil
	}
	inner, err := c.elem.ReadAsync(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.wrap(inner), nil
}

func (c *optionalConverter) PreferAsync() bool { return c.elem.PreferAsync() }

func (c *optionalConverter) JSONSchema() map[string]any {
	return map[string]any{"oneOf": []any{map[string]any{"type": "null"}, c.elem.JSONSchema()}}
}
