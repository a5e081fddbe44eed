package shape

import (
	"reflect"
	"testing"
)

type surrogateUnionBase struct {
	V int
}

func TestProviderSurrogateTakesPriorityOverUnion(t *testing.T) {
	p := NewProvider()
	typ := reflect.TypeFor[surrogateUnionBase]()

	p.RegisterSurrogate(typ, reflect.TypeFor[int](),
		func(v reflect.Value) reflect.Value { return reflect.ValueOf(int(v.FieldByName("V").Int())) },
		func(v reflect.Value) reflect.Value {
			out := reflect.New(typ).Elem()
			out.FieldByName("V").SetInt(v.Int())
			return out
		})
	p.RegisterUnion(typ, []UnionCase{{StringAlias: "only", Type: typ}}, func(reflect.Value) int { return 0 })

	s, err := p.For(typ)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if s.Kind != KindSurrogate {
		t.Fatalf("Kind = %v, want KindSurrogate: a surrogate registration must win over a union registration on the same type", s.Kind)
	}
}

func TestProviderMixedKeyIndexesIsError(t *testing.T) {
	type mixed struct {
		A int `msgpack:"a,key:0"`
		B int `msgpack:"b"`
	}
	p := NewProvider()
	if _, err := p.For(reflect.TypeFor[mixed]()); err == nil {
		t.Fatalf("expected an error for a struct mixing members with and without explicit key indexes")
	}
}

func TestProviderBuildObjectAppliesDefaultLiteral(t *testing.T) {
	type withDefault struct {
		Seeds int `msgpack:"seeds,default:7"`
	}
	p := NewProvider()
	s, err := p.For(reflect.TypeFor[withDefault]())
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	param := s.Object.Constructor.Parameters[0]
	if !param.HasDefault {
		t.Fatalf("Parameters[0].HasDefault = false, want true")
	}
	if !param.Default.IsValid() || param.Default.Int() != 7 {
		t.Fatalf("Parameters[0].Default = %v, want 7", param.Default)
	}
}

func TestProviderDuplicateUnusedBucketIsError(t *testing.T) {
	type dup struct {
		A map[string]any `msgpack:",unused"`
		B map[string]any `msgpack:",unused"`
	}
	p := NewProvider()
	if _, err := p.For(reflect.TypeFor[dup]()); err == nil {
		t.Fatalf("expected an error for a struct declaring more than one unused-data bucket")
	}
}
