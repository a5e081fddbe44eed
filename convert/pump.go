package convert

import (
	"io"

	"github.com/zoobzio/shapepack/msgpack"
)

// FetchFunc supplies more bytes to a StreamReader when a decode attempt
// reports it needs them. It returns io.EOF when the underlying byte
// source is exhausted. This is the "async byte-source adapter" the design
// notes call for: a converter's ReadAsync never
// blocks directly on I/O, it only asks the pump for more bytes.
type FetchFunc func(ctx *Context) ([]byte, error)

// pump drives a StreamReader-based decode attempt to completion,
// suspending at each needs_more_bytes result by calling fetch and
// checking cancellation first. attempt returns (ok, err): ok=false and
// err=nil means "needs more data, call again after Feed".
//
// The same helper backs both the true async path (fetch awaits a real
// byte source) and the buffered sync path (fetch always returns io.EOF,
// since the caller already fed the whole payload up front) — one
// implementation of suspension, per the design note's "compose with an
// async byte-source adapter that drives them."
func pump(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, attempt func() (bool, error)) error {
	for {
		ok, err := attempt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
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
	}
}

// eofFetch is the FetchFunc used by the buffered sync path: the whole
// payload was already fed into the StreamReader, so any needs_more_bytes
// result means the buffer was simply incomplete.
func eofFetch(*Context) ([]byte, error) { return nil, io.EOF }
