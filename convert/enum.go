package convert

import (
	"reflect"
	"strings"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// enumConverter implements enum wire encoding: a value is written either as its
// underlying ordinal (default, narrowest int encoding) or as its
// declared name (Policy.SerializeEnumByName), and read leniently from
// either form regardless of which one wrote it, so a schema change from
// by-name to by-ordinal (or vice versa) never breaks an existing reader.
type enumConverter struct {
	typ       reflect.Type
	byName    bool
	caseFold  bool
	toName    map[int64]string
	toValue   map[string]int64
}

func (v *Visitor) buildEnum(s *shape.Shape) (Converter, error) {
	e := s.Enum
	toName := make(map[int64]string, len(e.Members))
	toValue := make(map[string]int64, len(e.Members))
	for _, m := range e.Members {
		toName[m.Value] = m.Name
		key := m.Name
		if !e.CaseDistinguished {
			key = strings.ToLower(key)
		}
		toValue[key] = m.Value
	}
	return &enumConverter{
		typ:      s.Type,
		byName:   v.policy.SerializeEnumByName,
		caseFold: !e.CaseDistinguished,
		toName:   toName,
		toValue:  toValue,
	}, nil
}

func (c *enumConverter) ordinalOf(v reflect.Value) int64 {
	if v.Kind() >= reflect.Uint && v.Kind() <= reflect.Uint64 {
		return int64(v.Uint())
	}
	return v.Int()
}

func (c *enumConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	ord := c.ordinalOf(v)
	if c.byName {
		if name, ok := c.toName[ord]; ok {
			w.WriteStr(name)
			return nil
		}
	}
	w.WriteInt(ord)
	return nil
}

func (c *enumConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *enumConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *enumConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	t, ok := sr.TryPeekNextType()
	if !ok {
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return reflect.Value{}, err
		}
		return c.ReadAsync(ctx, sr, fetch)
	}
	rv := reflect.New(c.typ).Elem()
	setOrdinal := func(ord int64) {
		if rv.Kind() >= reflect.Uint && rv.Kind() <= reflect.Uint64 {
			rv.SetUint(uint64(ord))
			return
		}
		rv.SetInt(ord)
	}
	if t == msgpack.TypeStr {
		name, err := tryStr(ctx, sr, fetch, sr.TryReadStr)
		if err != nil {
			return reflect.Value{}, err
		}
		key := name
		if c.caseFold {
			key = strings.ToLower(key)
		}
		ord, ok := c.toValue[key]
		if !ok {
			return reflect.Value{}, ErrUnknownUnionDiscriminator
		}
		setOrdinal(ord)
		return rv, nil
	}
	ord, err := tryInt(ctx, sr, fetch, func() (int, bool, error) {
		v, ok, err := sr.TryReadInt()
		return int(v), ok, err
	})
	if err != nil {
		return reflect.Value{}, err
	}
	setOrdinal(int64(ord))
	return rv, nil
}

func (c *enumConverter) PreferAsync() bool { return false }

func (c *enumConverter) JSONSchema() map[string]any {
	names := make([]string, 0, len(c.toValue))
	for name := range c.toValue {
		names = append(names, name)
	}
	if c.byName {
		return map[string]any{"type": "string", "enum": names}
	}
	return map[string]any{"type": "integer"}
}
