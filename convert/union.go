package convert

import (
	"reflect"
	"sort"
	"strings"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// unionCase pairs one declared derived case with its resolved converter.
type unionCase struct {
	shape.UnionCase
	conv Converter
}

// unionConverter implements polymorphic union wire encoding: a
// [discriminator, payload] pair by default, or a single-entry map
// {discriminator: payload} when Policy.UseDiscriminatorObjects is set.
// The discriminator is a string or int alias naming a registered case, or
// nil when the value is exactly the base type with no case of its own.
// DuckTyped unions skip the discriminator entirely and pick a case by
// structural match on read, trading ambiguity for a smaller wire size.
type unionConverter struct {
	base       Converter // converter for the base type's own shape, used when CaseIndex returns -1; nil if the base type has no shape of its own (e.g. an interface)
	cases      []unionCase
	caseIndex  func(reflect.Value) int
	duckTyped  bool
	useObjects bool // write/read the discriminator-object form instead of the array form
}

func (v *Visitor) buildUnion(s *shape.Shape) (Converter, error) {
	u := s.Union
	// An empty case list disables the union: the base type's own converter
	// is used directly, with no discriminator framing.
	if len(u.Cases) == 0 {
		base, err := v.buildUnionBase(s)
		if err != nil {
			return nil, err
		}
		if base == nil {
			return nil, newBuildError(s.Type.String(), "union with no cases has no base converter")
		}
		if rc, ok := base.(*referenceConverter); ok {
			base = rc.inner // build wraps the result again
		}
		return base, nil
	}
	cases := make([]unionCase, len(u.Cases))
	seenInt := make(map[int64]bool, len(u.Cases))
	seenStr := make(map[string]bool, len(u.Cases))
	for i, uc := range u.Cases {
		if uc.HasIntAlias {
			if seenInt[uc.IntAlias] {
				return nil, newBuildError(s.Type.String(), "duplicate union alias "+itoa(int(uc.IntAlias)))
			}
			seenInt[uc.IntAlias] = true
		} else {
			if seenStr[uc.StringAlias] {
				return nil, newBuildError(s.Type.String(), "duplicate union alias \""+uc.StringAlias+"\"")
			}
			seenStr[uc.StringAlias] = true
		}
		conv, err := v.resolveChild(s, uc.Type)
		if err != nil {
			return nil, err
		}
		cases[i] = unionCase{UnionCase: uc, conv: conv}
	}

	duckTyped := u.DuckTyped || v.policy.DuckTypedUnions
	if duckTyped {
		if err := checkDuckTypedAmbiguity(s, cases); err != nil {
			return nil, err
		}
	}

	base, err := v.buildUnionBase(s)
	if err != nil {
		return nil, err
	}

	return &unionConverter{
		base:       base,
		cases:      cases,
		caseIndex:  u.CaseIndex,
		duckTyped:  duckTyped,
		useObjects: v.policy.UseDiscriminatorObjects,
	}, nil
}

// buildUnionBase resolves a converter for s.Type's own structural shape,
// used when CaseIndex reports -1 for a value that is exactly the base
// type rather than one of its registered cases. A registered union's own
// Shape always reports KindUnion (RegisterUnion wins the Kind decision in
// Provider.build/For), so this goes through Provider.BaseShape to get the
// structural shape instead. The result is built directly through v.build
// rather than the shared Cache: the base shape carries the same Identity
// as the union's own Shape (same type, same provider), and inserting it
// under that key would collide with the union converter being built for
// that very identity.
//
// Interface-typed bases (the common Go encoding of a polymorphic base:
// the union type itself, with concrete struct cases) have no structural
// shape of their own — an interface value is always one of its concrete
// cases, never "exactly" the interface — so base stays nil for those,
// and a value CaseIndex can't place reports ErrUnknownUnionDiscriminator
// same as before.
func (v *Visitor) buildUnionBase(s *shape.Shape) (Converter, error) {
	if s.Type.Kind() == reflect.Interface {
		return nil, nil
	}
	baseShape, err := s.Provider.BaseShape(s.Type)
	if err != nil {
		return nil, err
	}
	return v.build(baseShape)
}

// checkDuckTypedAmbiguity rejects a duck-typed union where two object-shaped
// cases share the same set of required (no-default) property names: on read,
// readDuckTyped picks the first case whose converter decodes the bytes
// without error, so two structurally identical cases make that choice
// arbitrary rather than meaningful.
func checkDuckTypedAmbiguity(s *shape.Shape, cases []unionCase) error {
	signatures := make([]string, 0, len(cases))
	for _, uc := range cases {
		childShape, err := s.Provider.For(uc.Type)
		if err != nil {
			return err
		}
		if childShape.Kind != shape.KindObject {
			continue
		}
		names := make([]string, 0, len(childShape.Object.Properties))
		for _, p := range childShape.Object.Properties {
			if !p.Attributes.HasDefault {
				names = append(names, p.Name)
			}
		}
		sort.Strings(names)
		signatures = append(signatures, strings.Join(names, "\x00"))
	}
	for i := 0; i < len(signatures); i++ {
		for j := i + 1; j < len(signatures); j++ {
			if signatures[i] == signatures[j] {
				return newBuildError(s.Type.String(), "duck-typed union cases have ambiguous structure: identical required-property sets")
			}
		}
	}
	return nil
}

func (c *unionConverter) findCase(v reflect.Value) (int, error) {
	idx := c.caseIndex(v)
	if idx == -1 {
		return -1, nil
	}
	if idx < 0 || idx >= len(c.cases) {
		return -1, ErrUnknownUnionDiscriminator
	}
	return idx, nil
}

func (c *unionConverter) aliasOf(uc unionCase) (string, int64, bool) {
	if uc.HasIntAlias {
		return "", uc.IntAlias, true
	}
	return uc.StringAlias, 0, false
}

func (c *unionConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Exit()

	idx, err := c.findCase(v)
	if err != nil {
		return err
	}

	var uc *unionCase
	conv := c.base
	if idx != -1 {
		uc = &c.cases[idx]
		conv = uc.conv
	} else if c.base == nil {
		return ErrUnknownUnionDiscriminator
	}

	if c.duckTyped {
		return conv.Write(ctx, w, v)
	}

	if c.useObjects {
		w.WriteMapHeader(1)
		c.writeDiscToken(w, uc)
		return WrapPath("(union)", conv.Write(ctx, w, v))
	}

	w.WriteArrayHeader(2)
	c.writeDiscToken(w, uc)
	return WrapPath("(union)", conv.Write(ctx, w, v))
}

// writeDiscToken writes the discriminator token identifying uc: its
// string or int alias, or nil when uc is nil (the base-type case).
func (c *unionConverter) writeDiscToken(w *msgpack.Writer, uc *unionCase) {
	if uc == nil {
		w.WriteNil()
		return
	}
	name, intAlias, isInt := c.aliasOf(*uc)
	if isInt {
		w.WriteInt(intAlias)
		return
	}
	w.WriteStr(name)
}

func (c *unionConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *unionConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	return readBuffered(ctx, r, c.ReadAsync)
}

func (c *unionConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	if err := ctx.Enter(); err != nil {
		return reflect.Value{}, err
	}
	defer ctx.Exit()

	if c.duckTyped {
		return c.readDuckTyped(ctx, sr, fetch)
	}

	if c.useObjects {
		return c.readObjectForm(ctx, sr, fetch)
	}

	n, err := tryInt(ctx, sr, fetch, sr.TryReadArrayHeader)
	if err != nil {
		return reflect.Value{}, err
	}
	if n != 2 {
		return reflect.Value{}, ErrInvalidData
	}

	conv, err := c.readDiscriminator(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	return conv.ReadAsync(ctx, sr, fetch)
}

// readObjectForm decodes the discriminator-object wire form: a
// single-entry map of {discriminator: payload}, so the case (and so its
// converter) is always known before the payload needs decoding.
func (c *unionConverter) readObjectForm(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	n, err := tryInt(ctx, sr, fetch, sr.TryReadMapHeader)
	if err != nil {
		return reflect.Value{}, err
	}
	if n != 1 {
		return reflect.Value{}, ErrInvalidData
	}

	conv, err := c.readDiscriminator(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	return conv.ReadAsync(ctx, sr, fetch)
}

// readDiscriminator reads one discriminator token (str alias, int alias,
// or nil for the base-type case) and resolves it to the matching case's
// converter, or the base converter for nil.
func (c *unionConverter) readDiscriminator(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (Converter, error) {
	t, err := peekNextType(ctx, sr, fetch)
	if err != nil {
		return nil, err
	}

	if t == msgpack.TypeNil {
		if _, err := tryBool(ctx, sr, fetch, func() (bool, bool, error) {
			ok, err := sr.TryReadNil()
			return false, ok, err
		}); err != nil {
			return nil, err
		}
		if c.base == nil {
			return nil, ErrUnknownUnionDiscriminator
		}
		return c.base, nil
	}

	if t == msgpack.TypeStr {
		name, err := tryStr(ctx, sr, fetch, sr.TryReadStr)
		if err != nil {
			return nil, err
		}
		for i := range c.cases {
			if !c.cases[i].HasIntAlias && c.cases[i].StringAlias == name {
				return c.cases[i].conv, nil
			}
		}
		return nil, ErrUnknownUnionDiscriminator
	}

	alias, err := tryInt(ctx, sr, fetch, func() (int, bool, error) {
		v, ok, err := sr.TryReadInt()
		return int(v), ok, err
	})
	if err != nil {
		return nil, err
	}
	for i := range c.cases {
		if c.cases[i].HasIntAlias && c.cases[i].IntAlias == int64(alias) {
			return c.cases[i].conv, nil
		}
	}
	return nil, ErrUnknownUnionDiscriminator
}

// readDuckTyped tries each declared case's converter in turn against an
// independent snapshot of the remaining bytes and keeps the first that
// decodes without error — an experimental form, since structurally
// similar cases make the first-match choice ambiguous.
func (c *unionConverter) readDuckTyped(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	start := sr.Consumed()
	for {
		ok, err := sr.TrySkipOneStructure()
		if err != nil {
			return reflect.Value{}, err
		}
		if ok {
			break
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return reflect.Value{}, err
		}
	}
	raw := sr.Captured(start, sr.Consumed())

	for _, uc := range c.cases {
		trial := msgpack.NewStreamReader()
		trial.Feed(raw)
		v, err := uc.conv.ReadAsync(ctx, trial, eofFetch)
		if err == nil {
			return v, nil
		}
	}
	return reflect.Value{}, ErrUnknownUnionDiscriminator
}

func (c *unionConverter) PreferAsync() bool { return false }

func (c *unionConverter) JSONSchema() map[string]any {
	variants := make([]any, 0, len(c.cases))
	for _, uc := range c.cases {
		variants = append(variants, uc.conv.JSONSchema())
	}
	return map[string]any{"oneOf": variants}
}
