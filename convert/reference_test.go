package convert

import (
	"context"
	"reflect"
	"testing"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

type sharedMapHolder struct {
	A map[string]int `msgpack:"a"`
	B map[string]int `msgpack:"b"`
}

func TestReferenceConverterSharedMapIdentity(t *testing.T) {
	policy := DefaultPolicy()
	policy.PreserveReferences = ReferencePerCall
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(sharedMapHolder{}))

	shared := map[string]int{"x": 1, "y": 2}
	in := sharedMapHolder{A: shared, B: shared}

	w := msgpack.NewWriter(64)
	ctx := NewContext(context.Background(), policy)
	if err := conv.Write(ctx, w, reflect.ValueOf(in)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := msgpack.NewReader(w.Bytes())
	readCtx := NewContext(context.Background(), policy)
	got, err := conv.Read(readCtx, r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	out := got.Interface().(sharedMapHolder)

	if out.A["x"] != 1 || out.B["y"] != 2 {
		t.Fatalf("decoded maps wrong content: A=%v B=%v", out.A, out.B)
	}
	if reflect.ValueOf(out.A).Pointer() != reflect.ValueOf(out.B).Pointer() {
		t.Fatalf("A and B decoded to distinct map instances, want shared identity")
	}
}

func TestReferenceConverterOffDoesNotShareIdentity(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	conv := buildConverter(t, policy, provider, reflect.TypeOf(sharedMapHolder{}))

	shared := map[string]int{"x": 1}
	in := sharedMapHolder{A: shared, B: shared}

	got, _ := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(sharedMapHolder)
	if out.A["x"] != 1 || out.B["x"] != 1 {
		t.Fatalf("decoded maps wrong content: A=%v B=%v", out.A, out.B)
	}
}
