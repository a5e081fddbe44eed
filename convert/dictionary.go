package convert

import (
	"reflect"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// dictionaryConverter implements the map-keyed container form: a
// msgpack map header followed by that many (key, value) pairs, in
// whatever order Enumerate yields them.
type dictionaryConverter struct {
	keyConv, valConv Converter
	shape            *shape.DictionaryShape
}

func (v *Visitor) buildDictionary(s *shape.Shape) (Converter, error) {
	d := s.Dictionary
	keyConv, err := v.resolveChild(s, d.KeyType)
	if err != nil {
		return nil, err
	}
	valConv, err := v.resolveChild(s, d.ValueType)
	if err != nil {
		return nil, err
	}
	return &dictionaryConverter{keyConv: keyConv, valConv: valConv, shape: d}, nil
}

func (c *dictionaryConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Exit()

	n := v.Len()
	w.WriteMapHeader(n)
	var outerErr error
	c.shape.Enumerate(v, func(k, val reflect.Value) bool {
		if err := c.keyConv.Write(ctx, w, k); err != nil {
			outerErr = err
			return false
		}
		if err := c.valConv.Write(ctx, w, val); err != nil {
			outerErr = WrapPath("["+formatKey(k)+"]", err)
			return false
		}
		return true
	})
	return outerErr
}

func (c *dictionaryConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *dictionaryConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *dictionaryConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	if err := ctx.Enter(); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.Exit()

	count, err := tryInt(ctx, sr, fetch, sr.TryReadMapHeader)
	if err != nil {
		return reflect.Value{}, err
	}

	if c.shape.Strategy == shape.ConstructParameterized {
		pairs := make([]shape.KVPair, 0, count)
		for i := 0; i < count; i++ {
			k, err := c.keyConv.ReadAsync(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := c.valConv.ReadAsync(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			pairs = append(pairs, shape.KVPair{Key: k, Value: val})
		}
		return c.shape.FromPairs(pairs), nil
	}

	dict := c.shape.New(count)
	for i := 0; i < count; i++ {
		k, err := c.keyConv.ReadAsync(ctx, sr, fetch)
		if err != nil {
			return reflect.Value{}, err
		}
		val, err := c.valConv.ReadAsync(ctx, sr, fetch)
		if err != nil {
			return reflect.Value{}, WrapPath("["+formatKey(k)+"]", err)
		}
		c.shape.Insert(dict, k, val)
	}
	return dict, nil
}

func (c *dictionaryConverter) PreferAsync() bool { return false }

func (c *dictionaryConverter) JSONSchema() map[string]any {
	return map[string]any{"type": "object", "additionalProperties": c.valConv.JSONSchema()}
}

func formatKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return ""
}
