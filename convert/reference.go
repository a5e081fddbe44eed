package convert

import (
	"io"
	"reflect"

	"github.com/zoobzio/shapepack/msgpack"
)

// referenceConverter wraps a composite converter with reference-
// preservation bookkeeping. On write, a pointer-identified value
// seen before is replaced by a reference-ID extension token instead of
// being re-encoded; on read, the first occurrence is recorded under its
// ID so a later reference token resolves to the same instance.
//
// Only composite kinds are ever wrapped (see Visitor.wrapReferences);
// value kinds have no stable identity to key the reference map by.
type referenceConverter struct {
	inner Converter
	kind  reflect.Kind
}

func (c *referenceConverter) identity(v reflect.Value) (uintptr, bool) {
	switch c.kind {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	default:
		if !v.CanAddr() {
			return 0, false
		}
		return v.Addr().Pointer(), true
	}
}

func (c *referenceConverter) Write(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	if ptr, ok := c.identity(v); ok {
		if id, seen := ctx.RecordWrite(ptr); seen {
			w.WriteExtension(ctx.Policy.extCode("refid", msgpack.ExtReferenceID), encodeRefID(id))
			return nil
		}
	}
	return c.inner.Write(ctx, w, v)
}

func (c *referenceConverter) WriteAsync(ctx *Context, w *msgpack.Writer, v reflect.Value) error {
	return c.Write(ctx, w, v)
}

func (c *referenceConverter) Read(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	if t, ok := r.TryPeekNextType(); ok && t == msgpack.TypeExtension {
		return c.readReference(ctx, r)
	}
	v, err := c.inner.Read(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}
	if _, ok := c.identity(v); ok {
		ctx.RecordRead(ctx.nextReadRefID(), v)
	}
	return v, nil
}

func (c *referenceConverter) readReference(ctx *Context, r *msgpack.Reader) (reflect.Value, error) {
	code, payloadLen, err := r.ReadExtensionHeader()
	if err != nil {
		return reflect.Value{}, err
	}
	if code != ctx.Policy.extCode("refid", msgpack.ExtReferenceID) {
		return reflect.Value{}, ErrInvalidData
	}
	payload, err := r.ReadExtensionPayload(payloadLen)
	if err != nil {
		return reflect.Value{}, err
	}
	id := decodeRefID(payload)
	if v, ok := ctx.ResolveRead(id); ok {
		return v, nil
	}
	v, err := c.inner.Read(ctx, r)
	if err != nil {
		return reflect.Value{}, err
	}
	ctx.RecordRead(id, v)
	return v, nil
}

func (c *referenceConverter) ReadAsync(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (reflect.Value, error) {
	t, err := peekNextType(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	if t == msgpack.TypeExtension {
		code, payloadLen, ok, err := sr.TryReadExtensionHeader()
		if !ok {
			if err != nil {
				return reflect.Value{}, err
			}
			if err := pumpWait(ctx, sr, fetch); err != nil {
				return reflect.Value{}, err
			}
			return c.ReadAsync(ctx, sr, fetch)
		}
		if code == ctx.Policy.extCode("refid", msgpack.ExtReferenceID) {
			payload, ok, err := sr.TryReadExtensionPayload(payloadLen)
			for !ok || err != nil {
				if err != nil {
					return reflect.Value{}, err
				}
				if err := pumpWait(ctx, sr, fetch); err != nil {
					return reflect.Value{}, err
				}
				payload, ok, err = sr.TryReadExtensionPayload(payloadLen)
			}
			id := decodeRefID(payload)
			if v, ok := ctx.ResolveRead(id); ok {
				return v, nil
			}
			v, err := c.inner.ReadAsync(ctx, sr, fetch)
			if err != nil {
				return reflect.Value{}, err
			}
			ctx.RecordRead(id, v)
			return v, nil
		}
		return reflect.Value{}, ErrInvalidData
	}
	v, err := c.inner.ReadAsync(ctx, sr, fetch)
	if err != nil {
		return reflect.Value{}, err
	}
	if _, ok := c.identity(v); ok {
		ctx.RecordRead(ctx.nextReadRefID(), v)
	}
	return v, nil
}

func (c *referenceConverter) PreferAsync() bool          { return c.inner.PreferAsync() }
func (c *referenceConverter) JSONSchema() map[string]any { return c.inner.JSONSchema() }

func encodeRefID(id int) []byte {
	b := make([]byte, 4)
	putUint32(b, uint32(id))
	return b
}

func decodeRefID(b []byte) int {
	if len(b) != 4 {
		return 0
	}
	return int(getUint32(b))
}

// pumpWait is the single-suspension-point helper shared by ReadAsync
// implementations that need one more Feed before retrying a TryRead
// call, without the full attempt-loop structure of pump (used when the
// retry itself must re-dispatch rather than loop on one attempt).
func pumpWait(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}
	data, err := fetch(ctx)
	if err == io.EOF {
		return msgpack.ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	sr.Feed(data)
	return nil
}
