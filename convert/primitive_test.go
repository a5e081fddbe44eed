package convert

import (
	"context"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/shapepack/internal/testutil"
	"github.com/zoobzio/shapepack/msgpack"
)

func primitiveRoundTripCase(t *testing.T, typ reflect.Type, in any) {
	t.Helper()
	policy := DefaultPolicy()
	table := PrimitiveTable()
	conv, ok := table[typ]
	if !ok {
		t.Fatalf("no primitive converter registered for %s", typ)
	}

	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(in))
	if !reflect.DeepEqual(got.Interface(), in) {
		t.Fatalf("round trip = %#v, want %#v", got.Interface(), in)
	}

	for frag := 1; frag <= len(payload); frag++ {
		v := readFragmented(t, policy, conv, testutil.Fragment(payload, frag))
		if !reflect.DeepEqual(v.Interface(), in) {
			t.Fatalf("frag=%d round trip = %#v, want %#v", frag, v.Interface(), in)
		}
	}
}

func TestPrimitiveConverterBool(t *testing.T) {
	primitiveRoundTripCase(t, reflect.TypeFor[bool](), true)
	primitiveRoundTripCase(t, reflect.TypeFor[bool](), false)
}

func TestPrimitiveConverterSignedInts(t *testing.T) {
	primitiveRoundTripCase(t, reflect.TypeFor[int8](), int8(-12))
	primitiveRoundTripCase(t, reflect.TypeFor[int16](), int16(-1000))
	primitiveRoundTripCase(t, reflect.TypeFor[int32](), int32(-100000))
	primitiveRoundTripCase(t, reflect.TypeFor[int64](), int64(-5000000000))
	primitiveRoundTripCase(t, reflect.TypeFor[int](), -7)
}

func TestPrimitiveConverterUnsignedInts(t *testing.T) {
	primitiveRoundTripCase(t, reflect.TypeFor[uint8](), uint8(200))
	primitiveRoundTripCase(t, reflect.TypeFor[uint16](), uint16(60000))
	primitiveRoundTripCase(t, reflect.TypeFor[uint32](), uint32(4000000000))
	primitiveRoundTripCase(t, reflect.TypeFor[uint64](), uint64(18000000000000000000))
	primitiveRoundTripCase(t, reflect.TypeFor[uint](), uint(9))
}

func TestPrimitiveConverterFloats(t *testing.T) {
	primitiveRoundTripCase(t, reflect.TypeFor[float32](), float32(3.5))
	primitiveRoundTripCase(t, reflect.TypeFor[float64](), 2.71828)
}

func TestPrimitiveConverterString(t *testing.T) {
	primitiveRoundTripCase(t, reflect.TypeFor[string](), "man o' war")
	primitiveRoundTripCase(t, reflect.TypeFor[string](), "")
}

func TestPrimitiveConverterBytes(t *testing.T) {
	primitiveRoundTripCase(t, byteSliceTy, []byte{1, 2, 3, 4})
}

func TestPrimitiveConverterRawMessage(t *testing.T) {
	policy := DefaultPolicy()
	table := PrimitiveTable()
	conv := table[rawMsgType]

	strConv := table[reflect.TypeFor[string]()]
	_, inner := roundTrip(t, policy, strConv, reflect.ValueOf("secretariat"))

	got, payload := roundTrip(t, policy, conv, reflect.ValueOf(RawMessage(inner)))
	out := got.Interface().(RawMessage)
	if !reflect.DeepEqual([]byte(out), inner) {
		t.Fatalf("raw payload = %v, want %v", []byte(out), inner)
	}
	if !reflect.DeepEqual(payload, inner) {
		t.Fatalf("raw passthrough wrote %v, want verbatim %v", payload, inner)
	}
}

func TestPrimitiveConverterTime(t *testing.T) {
	in := time.Date(2024, 3, 15, 9, 30, 0, 123000, time.UTC)
	primitiveRoundTripCase(t, timeValueType, in)
}

func TestPrimitiveConverterDuration(t *testing.T) {
	primitiveRoundTripCase(t, durationType, 90*time.Second)
}

func TestPrimitiveConverterBigInt(t *testing.T) {
	positive := big.Int{}
	positive.SetString("123456789012345678901234567890", 10)
	primitiveRoundTripCase(t, bigIntType, positive)

	negative := big.Int{}
	negative.SetString("-987654321098765432109876543210", 10)
	primitiveRoundTripCase(t, bigIntType, negative)

	primitiveRoundTripCase(t, bigIntType, big.Int{})
}

func TestInternableStringConverterDedupesRepeatedWrites(t *testing.T) {
	policy := DefaultPolicy()
	policy.InternStrings = true
	policy.PreserveReferences = ReferencePerCall
	conv := PrimitiveTable()[reflect.TypeFor[string]()]

	w := msgpack.NewWriter(64)
	ctx := NewContext(context.Background(), policy)
	if err := conv.Write(ctx, w, reflect.ValueOf("repeated-value")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	firstLen := w.Len()
	if err := conv.Write(ctx, w, reflect.ValueOf("repeated-value")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	secondLen := w.Len() - firstLen
	if secondLen >= firstLen {
		t.Fatalf("second occurrence wrote %d bytes, want fewer than first occurrence's %d (expected a reference token)", secondLen, firstLen)
	}

	r := msgpack.NewReader(w.Bytes())
	readCtx := NewContext(context.Background(), policy)
	first, err := conv.Read(readCtx, r)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	second, err := conv.Read(readCtx, r)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if first.String() != "repeated-value" || second.String() != "repeated-value" {
		t.Fatalf("got %q, %q, want both %q", first.String(), second.String(), "repeated-value")
	}
}

func TestInternableStringConverterOffWritesPlainTwice(t *testing.T) {
	policy := DefaultPolicy()
	conv := PrimitiveTable()[reflect.TypeFor[string]()]

	w := msgpack.NewWriter(64)
	ctx := NewContext(context.Background(), policy)
	if err := conv.Write(ctx, w, reflect.ValueOf("same")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	firstLen := w.Len()
	if err := conv.Write(ctx, w, reflect.ValueOf("same")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if w.Len()-firstLen != firstLen {
		t.Fatalf("with interning off, second occurrence should re-encode identically to the first")
	}
}
