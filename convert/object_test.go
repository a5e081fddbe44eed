package convert

import (
	"errors"
	"reflect"
	"testing"

	"github.com/zoobzio/shapepack/internal/testutil"
	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

type horse struct {
	Name  string `msgpack:"name"`
	Seeds int    `msgpack:"seeds,omitempty"`
}

type horseWithBucket struct {
	Name  string         `msgpack:"name"`
	Extra map[string]any `msgpack:",unused"`
}

type horseKeyed struct {
	Name  string `msgpack:"name,key:0"`
	Seeds int    `msgpack:"seeds,key:1"`
}

func TestObjectConverterMapFormRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(horse{}))

	in := horse{Name: "Secretariat", Seeds: 18}
	got, _ := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(horse)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestObjectConverterAsyncParity(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(horse{}))

	in := horse{Name: "Secretariat", Seeds: 18}
	_, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))

	for n := 1; n <= len(payload); n++ {
		chunks := testutil.Fragment(payload, n)
		got := readFragmented(t, policy, conv, chunks)
		out := got.Interface().(horse)
		if out != in {
			t.Fatalf("n=%d fragmented round trip = %+v, want %+v", n, out, in)
		}
	}
}

func TestObjectConverterUnknownKeyCapturedInUnusedBucket(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildConverter(t, policy, shape.NewProvider(), reflect.TypeOf(horseWithBucket{}))

	// Hand-craft a wire map carrying a field the type never declared
	// ("breed") alongside the one it does, simulating a newer writer's
	// payload reaching an older reader.
	w := msgpack.NewWriter(32)
	w.WriteMapHeader(2)
	w.WriteStr("name")
	w.WriteStr("Man O' War")
	w.WriteStr("breed")
	w.WriteStr("Thoroughbred")

	ctx := NewContext(nil, policy)
	got, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := got.Interface().(horseWithBucket)
	if out.Name != "Man O' War" {
		t.Fatalf("Name = %q, want Man O' War", out.Name)
	}
	if out.Extra["breed"] == nil {
		t.Fatalf("Extra bucket missing breed key: %+v", out.Extra)
	}
}

func TestObjectConverterRequiredMissing(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()

	// A required-property type whose shape declares no default: encode a
	// bare empty map and confirm decode reports the missing property.
	type strict struct {
		Name string `msgpack:"name"`
	}
	conv := buildConverter(t, policy, provider, reflect.TypeOf(strict{}))

	w := msgpack.NewWriter(8)
	w.WriteMapHeader(0)
	ctx := NewContext(nil, policy)
	_, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	var mp *MissingProperties
	if !errors.As(err, &mp) {
		t.Fatalf("Read() err = %v, want *MissingProperties", err)
	}
	if len(mp.Names) != 1 || mp.Names[0] != "name" {
		t.Fatalf("MissingProperties.Names = %v, want [name]", mp.Names)
	}
}

func TestObjectConverterMissingPropertyTakesDeclaredDefault(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()

	type withDefault struct {
		Name  string `msgpack:"name"`
		Seeds int    `msgpack:"seeds,default:7"`
	}
	conv := buildConverter(t, policy, provider, reflect.TypeOf(withDefault{}))

	w := msgpack.NewWriter(16)
	w.WriteMapHeader(1)
	w.WriteStr("name")
	w.WriteStr("Affirmed")
	ctx := NewContext(nil, policy)
	got, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := got.Interface().(withDefault)
	if out.Seeds != 7 {
		t.Fatalf("Seeds = %d, want 7 (the tag's declared default, not the zero value)", out.Seeds)
	}
}

func TestObjectConverterValueMatchingDeclaredDefaultIsOmitted(t *testing.T) {
	policy := DefaultPolicy()
	// SerializeDefaultValueTypes (the default) always emits value-type
	// fields regardless of their current value; narrow the policy to just
	// SerializeDefaultRequired so a value matching its declared default can
	// actually be omitted, exercising the comparison this test targets.
	policy.SerializeDefaults = SerializeDefaultRequired
	provider := shape.NewProvider()

	type withDefault struct {
		Name  string `msgpack:"name"`
		Seeds int    `msgpack:"seeds,default:7"`
	}
	conv := buildConverter(t, policy, provider, reflect.TypeOf(withDefault{}))

	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(withDefault{Name: "Affirmed", Seeds: 7}))
	r := msgpack.NewReader(payload)
	n, err := r.ReadMapHeader()
	if err != nil {
		t.Fatalf("ReadMapHeader: %v", err)
	}
	if n != 1 {
		t.Fatalf("map has %d entries, want 1 (seeds==7 matches its declared default and should be omitted)", n)
	}
	out := got.Interface().(withDefault)
	if out.Seeds != 7 {
		t.Fatalf("Seeds = %d, want 7 (decoded back from the omitted default)", out.Seeds)
	}
}

func TestObjectConverterNullForNonNullablePropertyIsDisallowedByDefault(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildConverter(t, policy, shape.NewProvider(), reflect.TypeOf(horse{}))

	w := msgpack.NewWriter(16)
	w.WriteMapHeader(1)
	w.WriteStr("name")
	w.WriteNil()

	ctx := NewContext(nil, policy)
	_, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	if !errors.Is(err, ErrDisallowedNullValue) {
		t.Fatalf("err = %v, want ErrDisallowedNullValue", err)
	}
}

func TestObjectConverterNullForNonNullablePropertyAllowedByPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.DeserializeDefaults = AllowNullValuesForNonNullableProperties
	conv := buildConverter(t, policy, shape.NewProvider(), reflect.TypeOf(horse{}))

	// seeds declares no default, so it must be present for the read to
	// succeed; only name carries the null under test.
	w := msgpack.NewWriter(16)
	w.WriteMapHeader(2)
	w.WriteStr("name")
	w.WriteNil()
	w.WriteStr("seeds")
	w.WriteInt(3)

	ctx := NewContext(nil, policy)
	got, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := got.Interface().(horse)
	if out.Name != "" {
		t.Fatalf("Name = %q, want empty string (the platform zero value substituted for the disallowed null)", out.Name)
	}
}

func TestObjectConverterDoubleAssignment(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildConverter(t, policy, shape.NewProvider(), reflect.TypeOf(horse{}))

	w := msgpack.NewWriter(16)
	w.WriteMapHeader(2)
	w.WriteStr("name")
	w.WriteStr("A")
	w.WriteStr("name")
	w.WriteStr("B")

	ctx := NewContext(nil, policy)
	_, err := conv.Read(ctx, msgpack.NewReader(w.Bytes()))
	if !errors.Is(err, ErrDoublePropertyAssignment) {
		t.Fatalf("err = %v, want ErrDoublePropertyAssignment", err)
	}
}

func TestObjectConverterArrayForm(t *testing.T) {
	policy := DefaultPolicy()
	policy.PerfOverSchemaStability = true
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(horseKeyed{}))

	in := horseKeyed{Name: "Affirmed", Seeds: 3}
	got, _ := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(horseKeyed)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

// TestObjectConverterKeyIndexSelectsArrayFormUnderDefaultPolicy pins array
// form to key:N tags alone: horseKeyed carries key:0/key:1 on every member,
// so it must encode as an array even though PerfOverSchemaStability is
// left at its default (false).
func TestObjectConverterKeyIndexSelectsArrayFormUnderDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(horseKeyed{}))

	in := horseKeyed{Name: "Affirmed", Seeds: 3}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(horseKeyed)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}

	r := msgpack.NewReader(payload)
	if _, err := r.ReadArrayHeader(); err != nil {
		t.Fatalf("ReadArrayHeader: %v, want array form from key:N tags alone", err)
	}
}

// TestObjectConverterIgnoreKeyAttributesForcesMapForm confirms
// Policy.IgnoreKeyAttributes suppresses the key:N-driven array form even
// though every member carries a key index.
func TestObjectConverterIgnoreKeyAttributesForcesMapForm(t *testing.T) {
	policy := DefaultPolicy()
	policy.IgnoreKeyAttributes = true
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(horseKeyed{}))

	in := horseKeyed{Name: "Affirmed", Seeds: 3}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(horseKeyed)
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}

	r := msgpack.NewReader(payload)
	if _, err := r.ReadMapHeader(); err != nil {
		t.Fatalf("ReadMapHeader: %v, want map form with IgnoreKeyAttributes set", err)
	}
}
