package convert

import (
	"reflect"
	"testing"

	"github.com/zoobzio/shapepack/internal/testutil"
	"github.com/zoobzio/shapepack/shape"
)

func TestDictionaryConverterRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	provider := shape.NewProvider()
	typ := reflect.TypeOf(map[string]int{})
	conv := buildConverter(t, policy, provider, typ)

	in := map[string]int{"a": 1, "b": 2, "c": 3}
	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(map[string]int)
	if len(out) != len(in) {
		t.Fatalf("got %d entries, want %d", len(out), len(in))
	}
	for k, v := range in {
		if out[k] != v {
			t.Fatalf("out[%q] = %d, want %d", k, out[k], v)
		}
	}

	for frag := 1; frag <= len(payload); frag++ {
		v := readFragmented(t, policy, conv, testutil.Fragment(payload, frag))
		fout := v.Interface().(map[string]int)
		if len(fout) != len(in) {
			t.Fatalf("frag=%d got %d entries, want %d", frag, len(fout), len(in))
		}
	}
}

func TestDictionaryConverterEmpty(t *testing.T) {
	policy := DefaultPolicy()
	conv := buildConverter(t, policy, shape.NewProvider(), reflect.TypeOf(map[string]int{}))

	in := map[string]int{}
	got, _ := roundTrip(t, policy, conv, reflect.ValueOf(in))
	out := got.Interface().(map[string]int)
	if len(out) != 0 {
		t.Fatalf("got %d entries, want 0", len(out))
	}
}
