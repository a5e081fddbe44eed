package convert

import (
	"reflect"
	"testing"

	"github.com/zoobzio/shapepack/internal/testutil"
	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

type shapeIface interface {
	isShape()
}

type circle struct {
	Radius float64 `msgpack:"radius"`
}

func (circle) isShape() {}

type square struct {
	Side float64 `msgpack:"side"`
}

func (square) isShape() {}

func shapeCases() []shape.UnionCase {
	return []shape.UnionCase{
		{StringAlias: "circle", Type: reflect.TypeOf(circle{})},
		{StringAlias: "square", Type: reflect.TypeOf(square{})},
	}
}

func shapeCaseIndex(v reflect.Value) int {
	switch v.Type() {
	case reflect.TypeOf(circle{}):
		return 0
	case reflect.TypeOf(square{}):
		return 1
	default:
		return -2
	}
}

func buildUnionConverter(t *testing.T, policy *Policy) Converter {
	t.Helper()
	provider := shape.NewProvider()
	provider.RegisterUnion(reflect.TypeFor[shapeIface](), shapeCases(), shapeCaseIndex)
	return buildConverter(t, policy, provider, reflect.TypeFor[shapeIface]())
}

func TestUnionConverterArrayFormRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildUnionConverter(t, policy)

	in := circle{Radius: 3.5}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out, ok := got.Interface().(circle)
	if !ok || out != in {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	for frag := 1; frag <= len(payload); frag++ {
		v := readFragmented(t, policy, conv, testutil.Fragment(payload, frag))
		out, ok := v.Interface().(circle)
		if !ok || out != in {
			t.Fatalf("frag=%d round trip = %#v, want %#v", frag, v.Interface(), in)
		}
	}
}

func TestUnionConverterObjectFormRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	policy.UseDiscriminatorObjects = true
	conv := buildUnionConverter(t, policy)

	in := square{Side: 4}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out, ok := got.Interface().(square)
	if !ok || out != in {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	for frag := 1; frag <= len(payload); frag++ {
		v := readFragmented(t, policy, conv, testutil.Fragment(payload, frag))
		out, ok := v.Interface().(square)
		if !ok || out != in {
			t.Fatalf("frag=%d round trip = %#v, want %#v", frag, v.Interface(), in)
		}
	}
}

// TestUnionConverterObjectFormIsSingleKeyMap pins the discriminator-object
// wire form to a single-entry map of {discriminator: payload}, not a
// two-entry {"$type": alias, "$value": payload} map.
func TestUnionConverterObjectFormIsSingleKeyMap(t *testing.T) {
	policy := DefaultPolicy()
	policy.UseDiscriminatorObjects = true
	conv := buildUnionConverter(t, policy)

	_, payload := roundTrip(t, policy, conv, reflect.ValueOf(square{Side: 4}))

	r := msgpack.NewReader(payload)
	n, err := r.ReadMapHeader()
	if err != nil {
		t.Fatalf("ReadMapHeader: %v", err)
	}
	if n != 1 {
		t.Fatalf("map has %d entries, want 1 (single-key discriminator map)", n)
	}
	key, err := r.ReadStr()
	if err != nil {
		t.Fatalf("ReadStr: %v", err)
	}
	if key != "square" {
		t.Fatalf("discriminator key = %q, want %q", key, "square")
	}
	inner, err := r.ReadMapHeader()
	if err != nil {
		t.Fatalf("ReadMapHeader (payload): %v", err)
	}
	if inner != 1 {
		t.Fatalf("payload map has %d entries, want 1 (square.side)", inner)
	}
}

// TestUnionConverterDiscriminatorSymmetry checks that the same value
// decodes to the same result whether written in array form
// ([alias, payload]) or discriminator-object form ({alias: payload}).
func TestUnionConverterDiscriminatorSymmetry(t *testing.T) {
	arrayPolicy := DefaultPolicy()
	arrayConv := buildUnionConverter(t, arrayPolicy)
	in := square{Side: 9}
	fromArray, _ := roundTrip(t, arrayPolicy, arrayConv, reflect.ValueOf(in))

	objectPolicy := DefaultPolicy()
	objectPolicy.UseDiscriminatorObjects = true
	objectConv := buildUnionConverter(t, objectPolicy)
	fromObject, _ := roundTrip(t, objectPolicy, objectConv, reflect.ValueOf(in))

	a, ok := fromArray.Interface().(square)
	if !ok {
		t.Fatalf("array form decoded to %T, want square", fromArray.Interface())
	}
	b, ok := fromObject.Interface().(square)
	if !ok {
		t.Fatalf("object form decoded to %T, want square", fromObject.Interface())
	}
	if a != b {
		t.Fatalf("array form = %+v, object form = %+v, want equal", a, b)
	}
}

// vehicle/car give the union a concrete struct base type (rather than
// shapeIface's interface base) so a value that is exactly the base type,
// with no case of its own, has a real shape to round trip through.
type vehicle struct {
	Label string `msgpack:"label"`
}

type car struct {
	Label  string `msgpack:"label"`
	Wheels int    `msgpack:"wheels"`
}

func vehicleCases() []shape.UnionCase {
	return []shape.UnionCase{
		{StringAlias: "car", Type: reflect.TypeOf(car{})},
	}
}

func vehicleCaseIndex(v reflect.Value) int {
	switch v.Type() {
	case reflect.TypeOf(car{}):
		return 0
	case reflect.TypeOf(vehicle{}):
		return -1
	default:
		return -2
	}
}

func buildVehicleConverter(t *testing.T, policy *Policy) Converter {
	t.Helper()
	provider := shape.NewProvider()
	provider.RegisterUnion(reflect.TypeOf(vehicle{}), vehicleCases(), vehicleCaseIndex)
	return buildConverter(t, policy, provider, reflect.TypeOf(vehicle{}))
}

func TestUnionConverterBaseTypeArrayFormRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildVehicleConverter(t, policy)

	in := vehicle{Label: "glider"}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out, ok := got.Interface().(vehicle)
	if !ok || out != in {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	r := msgpack.NewReader(payload)
	n, err := r.ReadArrayHeader()
	if err != nil {
		t.Fatalf("ReadArrayHeader: %v", err)
	}
	if n != 2 {
		t.Fatalf("array has %d entries, want 2", n)
	}
	if err := r.ReadNil(); err != nil {
		t.Fatalf("ReadNil (discriminator): %v, want nil token", err)
	}
}

func TestUnionConverterBaseTypeObjectFormRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	policy.UseDiscriminatorObjects = true
	conv := buildVehicleConverter(t, policy)

	in := vehicle{Label: "glider"}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out, ok := got.Interface().(vehicle)
	if !ok || out != in {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	r := msgpack.NewReader(payload)
	n, err := r.ReadMapHeader()
	if err != nil {
		t.Fatalf("ReadMapHeader: %v", err)
	}
	if n != 1 {
		t.Fatalf("map has %d entries, want 1", n)
	}
	if err := r.ReadNil(); err != nil {
		t.Fatalf("ReadNil (discriminator key): %v, want nil token", err)
	}
}

func TestUnionConverterInterfaceBaseHasNoBaseConverter(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildUnionConverter(t, policy)
	uc, ok := conv.(*unionConverter)
	if !ok {
		t.Fatalf("converter is %T, want *unionConverter", conv)
	}
	if uc.base != nil {
		t.Fatalf("base = %v, want nil (shapeIface is an interface, never exactly its own value)", uc.base)
	}
}

func TestUnionConverterDuckTypedSelectsByStructure(t *testing.T) {
	policy := DefaultPolicy()
	policy.DuckTypedUnions = true
	conv := buildUnionConverter(t, policy)

	in := square{Side: 7.25}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out, ok := got.Interface().(square)
	if !ok || out != in {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	for frag := 1; frag <= len(payload); frag++ {
		v := readFragmented(t, policy, conv, testutil.Fragment(payload, frag))
		out, ok := v.Interface().(square)
		if !ok || out != in {
			t.Fatalf("frag=%d round trip = %#v, want %#v", frag, v.Interface(), in)
		}
	}
}

func TestUnionConverterUnknownDiscriminator(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildUnionConverter(t, policy)

	uc, ok := conv.(*unionConverter)
	if !ok {
		t.Fatalf("converter is %T, want *unionConverter", conv)
	}

	type triangle struct {
		Base float64 `msgpack:"base"`
	}
	if _, err := uc.findCase(reflect.ValueOf(triangle{})); err == nil {
		t.Fatalf("expected error from undeclared case discriminator check")
	}
}

func TestUnionConverterDuckTypedAmbiguousCasesIsBuildError(t *testing.T) {
	type circleAlike struct {
		Radius float64 `msgpack:"radius"`
	}

	policy := DefaultPolicy()
	policy.DuckTypedUnions = true
	provider := shape.NewProvider()
	cases := []shape.UnionCase{
		{StringAlias: "circle", Type: reflect.TypeOf(circle{})},
		{StringAlias: "circleAlike", Type: reflect.TypeOf(circleAlike{})},
	}
	provider.RegisterUnion(reflect.TypeFor[shapeIface](), cases, shapeCaseIndex)

	s, err := provider.For(reflect.TypeFor[shapeIface]())
	if err != nil {
		t.Fatalf("provider.For: %v", err)
	}
	if _, err := NewCache(policy).GetOrBuild(s); err == nil {
		t.Fatalf("expected a build error for duck-typed cases sharing the required property set {radius}")
	}
}

func TestUnionConverterDuplicateAliasIsBuildError(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	cases := []shape.UnionCase{
		{StringAlias: "circle", Type: reflect.TypeOf(circle{})},
		{StringAlias: "circle", Type: reflect.TypeOf(square{})},
	}
	provider.RegisterUnion(reflect.TypeFor[shapeIface](), cases, shapeCaseIndex)

	s, err := provider.For(reflect.TypeFor[shapeIface]())
	if err != nil {
		t.Fatalf("provider.For: %v", err)
	}
	if _, err := NewCache(policy).GetOrBuild(s); err == nil {
		t.Fatalf("expected a build error for a union with two cases sharing the alias %q", "circle")
	}
}
