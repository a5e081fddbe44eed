package convert

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/zoobzio/shapepack/msgpack"
	"github.com/zoobzio/shapepack/shape"
)

// buildConverter resolves t's shape on the given provider and builds its
// converter on a fresh cache bound to policy, failing the test on error.
func buildConverter(t *testing.T, policy *Policy, provider *shape.Provider, typ reflect.Type) Converter {
	t.Helper()
	s, err := provider.For(typ)
	if err != nil {
		t.Fatalf("provider.For(%s): %v", typ, err)
	}
	cache := NewCache(policy)
	conv, err := cache.GetOrBuild(s)
	if err != nil {
		t.Fatalf("GetOrBuild(%s): %v", typ, err)
	}
	return conv
}

// roundTrip writes v through conv and reads it back via the buffered path,
// returning the decoded reflect.Value and the encoded bytes.
func roundTrip(t *testing.T, policy *Policy, conv Converter, v reflect.Value) (reflect.Value, []byte) {
	t.Helper()
	w := msgpack.NewWriter(64)
	ctx := NewContext(context.Background(), policy)
	if err := conv.Write(ctx, w, v); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := msgpack.NewReader(w.Bytes())
	ctx2 := NewContext(context.Background(), policy)
	got, err := conv.Read(ctx2, r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return got, w.Bytes()
}

// readFragmented decodes chunks through conv's ReadAsync, feeding the
// first chunk up front and one more chunk per fetch, exercising the
// async-parity property.
func readFragmented(t *testing.T, policy *Policy, conv Converter, chunks [][]byte) reflect.Value {
	t.Helper()
	sr := msgpack.NewStreamReader()
	ci := 0
	fetch := func(*Context) ([]byte, error) {
		if ci >= len(chunks) {
			return nil, io.EOF
		}
		c := chunks[ci]
		ci++
		return c, nil
	}
	if len(chunks) > 0 {
		sr.Feed(chunks[0])
		ci = 1
	}
	ctx := NewContext(context.Background(), policy)
	v, err := conv.ReadAsync(ctx, sr, fetch)
	if err != nil {
		t.Fatalf("ReadAsync (fragmented): %v", err)
	}
	return v
}
