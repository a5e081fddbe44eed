package convert

import (
	"reflect"
	"sort"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// objectProperty is one resolved member: the shape.Property plus its
// already-built child Converter, so encode/decode never re-resolves a
// property's converter per call.
type objectProperty struct {
	shape.Property
	conv Converter
	// declIndex is this property's index in the constructor's parameter
	// list, fixed at build time and independent of the wire-order sort
	// array-form encoding applies below.
	declIndex int
}

// objectConverter implements both the map-form and array-form object
// encodings behind one Converter. The form is fixed at build time: array
// form is chosen when Policy.PerfOverSchemaStability asks for it
// everywhere, or when any member carries an explicit key:N tag (unless
// Policy.IgnoreKeyAttributes forces map form regardless) trading
// forward/backward schema evolvability for a smaller wire size and no
// name hashing on read.
type objectConverter struct {
	typ       reflect.Type
	props     []objectProperty
	ctor      *shape.Constructor
	unusedIdx int
	arrayForm bool
	policy    *Policy
}

func (v *Visitor) buildObject(s *shape.Shape) (Converter, error) {
	o := s.Object
	props := make([]objectProperty, len(o.Properties))
	for i, p := range o.Properties {
		conv, err := v.resolveProperty(s, p)
		if err != nil {
			return nil, err
		}
		props[i] = objectProperty{Property: p, conv: conv, declIndex: i}
	}

	if o.UnusedDataIndex >= 0 && o.Properties[o.UnusedDataIndex].Type.Kind() != reflect.Map {
		return nil, newBuildError(s.Type.String(), "unused-data bucket must be a map type")
	}

	hasKeyIndex := false
	if !v.policy.IgnoreKeyAttributes {
		for _, p := range props {
			if p.Attributes.HasKeyIndex {
				hasKeyIndex = true
				break
			}
		}
	}

	arrayForm := v.policy.PerfOverSchemaStability || hasKeyIndex
	if arrayForm {
		sorted := make([]objectProperty, len(props))
		copy(sorted, props)
		sort.SliceStable(sorted, func(i, j int) bool {
			return keyIndexOf(sorted[i].Property, v.policy) < keyIndexOf(sorted[j].Property, v.policy)
		})
		props = sorted
	}

	return &objectConverter{
		typ:       s.Type,
		props:     props,
		ctor:      o.Constructor,
		unusedIdx: o.UnusedDataIndex,
		arrayForm: arrayForm,
		policy:    v.policy,
	}, nil
}

func keyIndexOf(p shape.Property, policy *Policy) int {
	return p.Attributes.KeyIndex
}

func (c *objectConverter) wireName(p shape.Property) string {
	if p.Attributes.NameOverride != "" {
		return p.Attributes.NameOverride
	}
	if c.policy.NamingPolicy != nil {
		return c.policy.NamingPolicy(p.Name)
	}
	return p.Name
}

func (c *objectConverter) shouldSerialize(p objectProperty, v reflect.Value) bool {
	if p.ShouldSerialize != nil {
		return p.ShouldSerialize(v)
	}
	fv := p.Getter(v)
	isDefault := fv.IsZero()
	if p.Attributes.HasDefault {
		if def := c.ctor.Parameters[p.declIndex].Default; def.IsValid() {
			isDefault = reflect.DeepEqual(fv.Interface(), def.Interface())
		}
	}
	if !isDefault {
		return true
	}
	flags := c.policy.SerializeDefaults
	if flags.has(SerializeDefaultAlways) {
		return true
	}
	if flags.has(SerializeDefaultRequired) && !p.Attributes.HasDefault {
		return true
	}
	isValueType := p.Type.Kind() != reflect.Ptr && p.Type.Kind() != reflect.Map && p.Type.Kind() != reflect.Slice
	if isValueType && flags.has(SerializeDefaultValueTypes) {
		return true
	}
	if !isValueType && flags.has(SerializeDefaultReferenceTypes) {
		return true
	}
	return false
}

func (c *objectConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Exit()

	if c.arrayForm {
		return c.writeArray(ctx, w, v)
	}
	return c.writeMap(ctx, w, v)
}

func (c *objectConverter) writeMap(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	type kv struct {
		name string
		prop objectProperty
	}
	var emit []kv
	for _, p := range c.props {
		if p.Attributes.Unused {
			continue
		}
		if c.shouldSerialize(p, v) {
			emit = append(emit, kv{name: c.wireName(p.Property), prop: p})
		}
	}
	w.WriteMapHeader(len(emit))
	for _, e := range emit {
		w.WriteStr(e.name)
		fv := e.prop.Getter(v)
		if err := e.prop.conv.Write(ctx, w, fv); err != nil {
			return WrapPath("."+e.name, err)
		}
	}
	return nil
}

func (c *objectConverter) writeArray(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	w.WriteArrayHeader(len(c.props))
	for _, p := range c.props {
		fv := p.Getter(v)
		if err := p.conv.Write(ctx, w, fv); err != nil {
			return WrapPath("."+p.Name, err)
		}
	}
	return nil
}

func (c *objectConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *objectConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *objectConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	if err := ctx.Enter(); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.Exit()

	if c.arrayForm {
		return c.readArray(ctx, sr, fetch)
	}
	return c.readMap(ctx, sr, fetch)
}

func (c *objectConverter) readMap(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	count, err := tryInt(ctx, sr, fetch, sr.TryReadMapHeader)
	if err != nil {
		return reflect.Value{}, err
	}

	byName := make(map[string]objectProperty, len(c.props))
	for _, p := range c.props {
		if !p.Attributes.Unused {
			byName[c.wireName(p.Property)] = p
		}
	}

	args := make([]reflect.Value, len(c.props))
	set := make([]bool, len(c.props))
	var unusedBucket map[string]reflect.Value
	if c.unusedIdx >= 0 {
		unusedBucket = make(map[string]reflect.Value)
	}

	for i := 0; i < count; i++ {
		name, err := tryStr(ctx, sr, fetch, sr.TryReadStr)
		if err != nil {
			return reflect.Value{}, err
		}
		p, ok := byName[name]
		if !ok {
			if unusedBucket != nil {
				v, err := c.readUnusedValue(ctx, sr, fetch)
				if err != nil {
					return reflect.Value{}, err
				}
				unusedBucket[name] = v
				continue
			}
			if err := trySkip(ctx, sr, fetch); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		if set[p.declIndex] {
			return reflect.Value{}, WrapPath("."+name, ErrDoublePropertyAssignment)
		}
		skip, err := c.checkDisallowedNull(ctx, sr, fetch, p, "."+name)
		if err != nil {
			return reflect.Value{}, err
		}
		if skip {
			set[p.declIndex] = true
			continue
		}
		v, err := p.conv.ReadAsync(ctx, sr, fetch)
		if err != nil {
			return reflect.Value{}, WrapPath("."+name, err)
		}
		args[p.declIndex] = v
		set[p.declIndex] = true
	}

	return c.finish(args, set, unusedBucket)
}

// checkDisallowedNull peeks the upcoming token ahead of a declared
// non-nullable property (anything whose Go type isn't a pointer, since
// only pointer types resolve to KindOptional in this provider). A nil
// token there is consumed and reported as skip=true, set=true (the
// property keeps its Go zero value; a declared default is not
// substituted, since finish only fills unset properties) when
// AllowNullValuesForNonNullableProperties is set; otherwise it fails fast
// with ErrDisallowedNullValue rather than handing the nil token to a
// converter that doesn't expect one.
func (c *objectConverter) checkDisallowedNull(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, p objectProperty, path string) (bool, error) {
	if p.Type.Kind() == reflect.Ptr {
		return false, nil
	}
	t, err := peekNextType(ctx, sr, fetch)
	if err != nil {
		return false, err
	}
	if t != msgpack.TypeNil {
		return false, nil
	}
	if !c.policy.DeserializeDefaults.has(AllowNullValuesForNonNullableProperties) {
		return false, WrapPath(path, ErrDisallowedNullValue)
	}
	if _, err := tryBool(ctx, sr, fetch, func() (bool, bool, error) {
		ok, err := sr.TryReadNil()
		return false, ok, err
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *objectConverter) readArray(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	count, err := tryInt(ctx, sr, fetch, sr.TryReadArrayHeader)
	if err != nil {
		return reflect.Value{}, err
	}

	args := make([]reflect.Value, len(c.props))
	set := make([]bool, len(c.props))
	for i := 0; i < count && i < len(c.props); i++ {
		p := c.props[i]
		skip, err := c.checkDisallowedNull(ctx, sr, fetch, p, "["+itoa(i)+"]")
		if err != nil {
			return reflect.Value{}, err
		}
		if skip {
			set[p.declIndex] = true
			continue
		}
		v, err := p.conv.ReadAsync(ctx, sr, fetch)
		if err != nil {
			return reflect.Value{}, WrapPath("["+itoa(i)+"]", err)
		}
		args[p.declIndex] = v
		set[p.declIndex] = true
	}
	for i := len(c.props); i < count; i++ {
		if err := trySkip(ctx, sr, fetch); err != nil {
			return reflect.Value{}, err
		}
	}

	return c.finish(args, set, nil)
}

func (c *objectConverter) readUnusedValue(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	start := sr.Consumed()
	if err := trySkip(ctx, sr, fetch); err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(RawMessage(sr.Captured(start, sr.Consumed()))), nil
}

func (c *objectConverter) finish(args []reflect.Value, set []bool, unused map[string]reflect.Value) (reflect.Value, error) {
	var missing []string
	var unusedType reflect.Type
	for _, p := range c.props {
		if p.Attributes.Unused {
			unusedType = p.Type
			continue
		}
		if !set[p.declIndex] {
			if p.Attributes.HasDefault {
				if def := c.ctor.Parameters[p.declIndex].Default; def.IsValid() {
					args[p.declIndex] = def
				}
				continue
			}
			if !isRequired(p, c.policy) {
				continue
			}
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return reflect.Value{}, &MissingProperties{Names: missing}
	}

	if c.unusedIdx >= 0 && unused != nil && unusedType != nil {
		m := reflect.MakeMapWithSize(unusedType, len(unused))
		for k, v := range unused {
			m.SetMapIndex(reflect.ValueOf(k), v)
		}
		args[c.unusedIdx] = m
		set[c.unusedIdx] = true
	}

	return c.ctor.Invoke(args), nil
}

func isRequired(p objectProperty, policy *Policy) bool {
	if policy.DeserializeDefaults.has(AllowMissingValuesForRequiredProperties) {
		return false
	}
	return true
}

func (c *objectConverter) PreferAsync() bool { return false }

func (c *objectConverter) JSONSchema() map[string]any {
	props := make(map[string]any, len(c.props))
	var required []string
	for _, p := range c.props {
		if p.Attributes.Unused {
			continue
		}
		props[c.wireName(p.Property)] = p.conv.JSONSchema()
		if !p.Attributes.HasDefault {
			required = append(required, c.wireName(p.Property))
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
