package convert

import (
	"reflect"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// surrogateConverter routes a type through a secondary surrogate type: T is never inspected directly,
// only via Marshal(T) -> S on write and Unmarshal(S) -> T on read,
// routed through S's own converter. This is how the engine supports
// types it has no structural way to walk (e.g. a third-party type with
// unexported fields) without the caller writing a full Converter by hand.
type surrogateConverter struct {
	surrogate Converter
	marshal   func(reflect.Value) reflect.Value
	unmarshal func(reflect.Value) reflect.Value
}

func (v *Visitor) buildSurrogate(s *shape.Shape) (Converter, error) {
	sg := s.Surrogate
	surrogateConv, err := v.resolveChild(s, sg.SurrogateType)
	if err != nil {
		return nil, err
	}
	return &surrogateConverter{
		surrogate: surrogateConv,
		marshal:   sg.Marshal,
		unmarshal: sg.Unmarshal,
	}, nil
}

func (c *surrogateConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.surrogate.Write(ctx, w, c.marshal(v))
}

func (c *surrogateConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.surrogate.WriteAsync(ctx, w, c.marshal(v))
}

func (c *surrogateConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	v, err := c.surrogate.Read(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.unmarshal(v), nil
}

func (c *surrogateConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	v, err := c.surrogate.ReadAsync(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	return c.unmarshal(v), nil
}

func (c *surrogateConverter) PreferAsync() bool          { return c.surrogate.PreferAsync() }
func (c *surrogateConverter) JSONSchema() map[string]any { return c.surrogate.JSONSchema() }
