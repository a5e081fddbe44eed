package shape

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/vmihailenco/tagparser/v2"
)

// Provider derives Shapes from Go reflect.Type values. Struct/slice/map/
// pointer shapes are discovered automatically; unions, named enums, and
// surrogates require one explicit registration call because Go's type
// system has no
// attribute mechanism able to carry that information on the type itself.
//
// Grounded in cereal/registry.go's getOrBuildPlans: a read-mostly cache
// guarded by sync.RWMutex with a double-checked write path, keyed here by
// reflect.Type instead of a generic type parameter since shapes are
// resolved dynamically as the builder walks a type graph.
type Provider struct {
	mu     sync.RWMutex
	shapes map[reflect.Type]*Shape

	regMu      sync.RWMutex
	unions     map[reflect.Type]*UnionShape
	enums      map[reflect.Type]*EnumShape
	surrogates map[reflect.Type]*SurrogateShape
	converters map[reflect.Type]string
}

// NewProvider returns an empty Provider.
func NewProvider() *Provider {
	return &Provider{
		shapes:     make(map[reflect.Type]*Shape),
		unions:     make(map[reflect.Type]*UnionShape),
		enums:      make(map[reflect.Type]*EnumShape),
		surrogates: make(map[reflect.Type]*SurrogateShape),
		converters: make(map[reflect.Type]string),
	}
}

// Default is the package-level provider used by For / RegisterUnion /
// RegisterEnum / RegisterSurrogate when callers don't need an isolated
// registry (tests typically construct their own via NewProvider to avoid
// cross-test registration leakage).
var Default = NewProvider()

// For resolves T's Shape using the Default provider.
func For[T any]() (*Shape, error) {
	return Default.For(reflect.TypeFor[T]())
}

// RegisterUnion declares base as a polymorphic union with the given cases
// on the Default provider.
func RegisterUnion(base reflect.Type, cases []UnionCase, caseIndex func(reflect.Value) int) {
	Default.RegisterUnion(base, cases, caseIndex)
}

// RegisterEnum declares t as a named enum on the Default provider.
func RegisterEnum(t reflect.Type, members []EnumMember, caseDistinguished bool) {
	Default.RegisterEnum(t, members, caseDistinguished)
}

// RegisterSurrogate declares t as routed through a surrogate type on the
// Default provider.
func RegisterSurrogate(t, surrogateType reflect.Type, marshal, unmarshal func(reflect.Value) reflect.Value) {
	Default.RegisterSurrogate(t, surrogateType, marshal, unmarshal)
}

// RegisterUnion declares base as a polymorphic union on p.
func (p *Provider) RegisterUnion(base reflect.Type, cases []UnionCase, caseIndex func(reflect.Value) int) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.unions[base] = &UnionShape{Cases: cases, CaseIndex: caseIndex}
	p.invalidate(base)
}

// RegisterEnum declares t as a named enum on p.
func (p *Provider) RegisterEnum(t reflect.Type, members []EnumMember, caseDistinguished bool) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.enums[t] = &EnumShape{Members: members, CaseDistinguished: caseDistinguished, Underlying: t.Kind()}
	p.invalidate(t)
}

// RegisterSurrogate declares t as routed through surrogateType on p.
func (p *Provider) RegisterSurrogate(t, surrogateType reflect.Type, marshal, unmarshal func(reflect.Value) reflect.Value) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.surrogates[t] = &SurrogateShape{SurrogateType: surrogateType, Marshal: marshal, Unmarshal: unmarshal}
	p.invalidate(t)
}

// RegisterConverter designates a custom converter (by name, resolved by
// the caller's converter registry) for all values of type t, the
// member/type-attribute half of the resolution order's first step.
func (p *Provider) RegisterConverter(t reflect.Type, converterName string) {
	p.regMu.Lock()
	defer p.regMu.Unlock()
	p.converters[t] = converterName
	p.invalidate(t)
}

func (p *Provider) invalidate(t reflect.Type) {
	p.mu.Lock()
	delete(p.shapes, t)
	p.mu.Unlock()
}

// For resolves t's Shape, building and caching it on first use.
// "Shape identity equals cache key", repeated calls for the same
// reflect.Type on the same Provider return the identical *Shape pointer.
func (p *Provider) For(t reflect.Type) (*Shape, error) {
	p.mu.RLock()
	if s, ok := p.shapes[t]; ok {
		p.mu.RUnlock()
		return s, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.shapes[t]; ok {
		return s, nil
	}

	s, err := p.build(t)
	if err != nil {
		return nil, err
	}
	p.shapes[t] = s
	return s, nil
}

func (p *Provider) identity(t reflect.Type) Identity {
	return Identity{typ: t, provider: reflect.ValueOf(p).Pointer()}
}

var (
	timeType      = reflect.TypeFor[time.Time]()
	byteSliceType = reflect.TypeFor[[]byte]()
)

func (p *Provider) build(t reflect.Type) (*Shape, error) {
	p.regMu.RLock()
	// A surrogate registration takes priority over a union registration on
	// the same type: routing a value through a secondary type and treating
	// it as a polymorphic base at once can't be reconciled into one wire
	// encoding, so the union declaration is ignored in favor of the
	// surrogate rather than guessing which one the caller meant.
	if sg, ok := p.surrogates[t]; ok {
		p.regMu.RUnlock()
		return &Shape{Kind: KindSurrogate, Type: t, id: p.identity(t), Provider: p, Surrogate: sg}, nil
	}
	if u, ok := p.unions[t]; ok {
		p.regMu.RUnlock()
		return &Shape{Kind: KindUnion, Type: t, id: p.identity(t), Provider: p, Union: u}, nil
	}
	if e, ok := p.enums[t]; ok {
		p.regMu.RUnlock()
		return &Shape{Kind: KindEnum, Type: t, id: p.identity(t), Provider: p, Enum: e}, nil
	}
	custom, hasCustom := p.converters[t]
	p.regMu.RUnlock()

	return p.buildStructural(t, hasCustom, custom)
}

// BaseShape resolves t's structural Shape (primitive, optional, dictionary,
// enumerable, object, or function) the same way build does, but never
// routes through a union registration on t even when one exists. A
// union's declared base type always yields KindUnion from For/build, so a
// union converter that needs a converter for "exactly the base type, no
// derived case" value asks for this instead.
func (p *Provider) BaseShape(t reflect.Type) (*Shape, error) {
	p.regMu.RLock()
	custom, hasCustom := p.converters[t]
	p.regMu.RUnlock()

	return p.buildStructural(t, hasCustom, custom)
}

func (p *Provider) buildStructural(t reflect.Type, hasCustom bool, custom string) (*Shape, error) {
	base := &Shape{Type: t, id: p.identity(t), Provider: p}
	if hasCustom {
		base.Attributes.CustomConverter = custom
	}

	if isPrimitiveType(t) {
		base.Kind = KindPrimitive
		return base, nil
	}

	switch t.Kind() {
	case reflect.Ptr:
		elem := t.Elem()
		base.Kind = KindOptional
		base.Optional = &OptionalShape{
			ElementType: elem,
			IsNil:       func(v reflect.Value) bool { return v.IsNil() },
			Unwrap:      func(v reflect.Value) reflect.Value { return v.Elem() },
			Wrap: func(v reflect.Value) reflect.Value {
				p := reflect.New(elem)
				p.Elem().Set(v)
				return p
			},
			WrapNil: func() reflect.Value { return reflect.Zero(t) },
		}
		return base, nil

	case reflect.Map:
		base.Kind = KindDictionary
		base.Dictionary = &DictionaryShape{
			KeyType:   t.Key(),
			ValueType: t.Elem(),
			Strategy:  ConstructMutable,
			Enumerate: func(dict reflect.Value, yield func(k, v reflect.Value) bool) {
				iter := dict.MapRange()
				for iter.Next() {
					if !yield(iter.Key(), iter.Value()) {
						return
					}
				}
			},
			New: func(sizeHint int) reflect.Value {
				return reflect.MakeMapWithSize(t, sizeHint)
			},
			Insert: func(dict reflect.Value, k, v reflect.Value) {
				dict.SetMapIndex(k, v)
			},
		}
		return base, nil

	case reflect.Slice, reflect.Array:
		// t == byteSliceType never reaches here: isPrimitiveType routes it
		// to KindPrimitive above, matching the bin8/16/32 fast path.
		base.Kind = KindEnumerable
		base.Enumerable = &EnumerableShape{
			ElementType: t.Elem(),
			Rank:        1,
			Strategy:    ConstructMutable,
			Enumerate: func(seq reflect.Value, yield func(v reflect.Value) bool) {
				for i := 0; i < seq.Len(); i++ {
					if !yield(seq.Index(i)) {
						return
					}
				}
			},
			New: func(sizeHint int) reflect.Value {
				return reflect.MakeSlice(reflect.SliceOf(t.Elem()), 0, sizeHint)
			},
			Append: func(seq, v reflect.Value) reflect.Value {
				return reflect.Append(seq, v)
			},
			FromSlice: func(elems []reflect.Value) reflect.Value {
				out := reflect.MakeSlice(reflect.SliceOf(t.Elem()), len(elems), len(elems))
				for i, e := range elems {
					out.Index(i).Set(e)
				}
				return out
			},
		}
		return base, nil

	case reflect.Struct:
		obj, err := p.buildObject(t)
		if err != nil {
			return nil, err
		}
		base.Kind = KindObject
		base.Object = obj
		return base, nil

	case reflect.Func:
		base.Kind = KindFunction
		return base, nil
	}

	return nil, fmt.Errorf("shape: unsupported type %s", t)
}

func isPrimitiveType(t reflect.Type) bool {
	if t == timeType || t == byteSliceType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	}
	return false
}

// buildObject reflects over a struct's exported fields, reading msgpack
// wire tags via tagparser, repurposed here from field-transform
// directives to wire directives: name override, key:N index, omitempty,
// unused. Unexported fields and
// fields tagged `msgpack:"-"` are skipped.
func (p *Provider) buildObject(t reflect.Type) (*ObjectShape, error) {
	obj := &ObjectShape{UnusedDataIndex: -1}
	seenKeyIndex := false
	seenNoKeyIndex := false

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" && !f.Anonymous {
			continue // unexported
		}
		tagStr := f.Tag.Get("msgpack")
		if tagStr == "-" {
			continue
		}

		tag := tagparser.Parse(tagStr)
		attrs := Attributes{NameOverride: tag.Name}
		name := f.Name
		if tag.Name != "" {
			name = tag.Name
		}
		if tag.HasOption("omitempty") {
			attrs.IgnoreNulls = true
		}
		if v, ok := tag.Options["unused"]; ok && (len(v) == 0 || v[0] != "false") {
			attrs.Unused = true
		}
		if v, ok := tag.Options["key"]; ok && len(v) > 0 {
			var idx int
			if _, err := fmt.Sscanf(v[0], "%d", &idx); err == nil {
				attrs.KeyIndex = idx
				attrs.HasKeyIndex = true
				seenKeyIndex = true
			}
		} else {
			seenNoKeyIndex = true
		}
		if v, ok := tag.Options["converter"]; ok && len(v) > 0 {
			attrs.CustomConverter = v[0]
		}
		if v, ok := tag.Options["default"]; ok && len(v) > 0 {
			attrs.DefaultLiteral = v[0]
			attrs.HasDefault = true
		}
		if v, ok := tag.Options["comparer"]; ok && len(v) > 0 {
			attrs.Comparer = v[0]
		}

		if attrs.Unused {
			if obj.UnusedDataIndex != -1 {
				return nil, fmt.Errorf("shape: %s declares more than one unused-data bucket", t)
			}
			obj.UnusedDataIndex = len(obj.Properties)
		}

		idx := i
		obj.Properties = append(obj.Properties, Property{
			Name:       name,
			Type:       f.Type,
			Attributes: attrs,
			Getter: func(o reflect.Value) reflect.Value {
				return o.Field(idx)
			},
			Setter: func(o reflect.Value, v reflect.Value) {
				o.Field(idx).Set(v)
			},
		})
	}

	if seenKeyIndex && seenNoKeyIndex {
		return nil, fmt.Errorf("shape: %s mixes members with and without explicit key indexes", t)
	}

	params := make([]Parameter, len(obj.Properties))
	for i, prop := range obj.Properties {
		params[i] = Parameter{
			Name:        prop.Name,
			Type:        prop.Type,
			Position:    i,
			Required:    !prop.Attributes.HasDefault,
			HasDefault:  prop.Attributes.HasDefault,
			NonNullable: prop.Type.Kind() != reflect.Ptr,
		}
		// This reflected provider has no separate parameterized-constructor
		// declaration distinct from the struct itself, so the only default
		// source above the platform (zero-value) default is the member's
		// own `default:` tag literal. The precedence this provider needs to
		// honor collapses to attribute-then-platform; a provider that also
		// exposed a real constructor-declared default would check that
		// first.
		if prop.Attributes.HasDefault {
			params[i].Default = parseDefaultLiteral(prop.Attributes.DefaultLiteral, prop.Type)
		}
	}
	obj.Constructor = &Constructor{
		Parameters: params,
		Invoke: func(args []reflect.Value) reflect.Value {
			out := reflect.New(t).Elem()
			for i, a := range args {
				if a.IsValid() {
					out.Field(i).Set(a)
				}
			}
			return out
		},
	}

	return obj, nil
}
