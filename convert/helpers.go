package convert

import (
	"strconv"

	"github.com/zoobzio/shapepack/msgpack"
)

// tryInt retries an int-returning TryRead* method against sr until it
// succeeds or fails outright, suspending via pumpWait on each
// needs-more-bytes result. Shared by every composite converter's header
// reads (map/array counts).
func tryInt(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, try func() (int, bool, error)) (int, error) {
	for {
		v, ok, err := try()
		if err != nil {
			return 0, err
		}
		if ok {
			return v, nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return 0, err
		}
	}
}

// tryStr retries a string-returning TryRead* method the same way as
// tryInt, used for map-form object keys.
func tryStr(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, try func() (string, bool, error)) (string, error) {
	for {
		v, ok, err := try()
		if err != nil {
			return "", err
		}
		if ok {
			return v, nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return "", err
		}
	}
}

// tryBool retries a bool-returning TryRead* method the same way as
// tryInt, used for nil tokens where only the ok/needs-more signal
// matters.
func tryBool(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, try func() (bool, bool, error)) (bool, error) {
	for {
		v, ok, err := try()
		if err != nil {
			return false, err
		}
		if ok {
			return v, nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return false, err
		}
	}
}

// trySkip retries TrySkipOneStructure until one complete value has been
// discarded, used for unknown map keys and excess array slots.
func trySkip(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) error {
	for {
		ok, err := sr.TrySkipOneStructure()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return err
		}
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

// peekNextType blocks until at least one byte of the next token is
// available and returns its type without consuming it. Shared by callers
// that need to branch on the upcoming token (a nil check ahead of a
// non-nullable property, a union discriminator's str-vs-int form) before
// committing to a read.
func peekNextType(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (msgpack.Type, error) {
	t, ok := sr.TryPeekNextType()
	for !ok {
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return 0, err
		}
		t, ok = sr.TryPeekNextType()
	}
	return t, nil
}

// tryExtHeader and tryExtPayload retry their single TryRead* call in
// isolation, the same one-atomic-step-at-a-time discipline tryInt/tryStr
// use. Extension-backed primitives (big.Int, time.Time, raw passthrough)
// read header then payload as two separate retry loops rather than one
// combined attempt, since re-invoking a combined attempt after the
// header already succeeded would re-parse the next token as a header.
func tryExtHeader(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc) (msgpack.ExtensionCode, int, error) {
	for {
		code, payloadLen, ok, err := sr.TryReadExtensionHeader()
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return code, payloadLen, nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return 0, 0, err
		}
	}
}

func tryExtPayload(ctx *Context, sr *msgpack.StreamReader, fetch FetchFunc, n int) ([]byte, error) {
	for {
		payload, ok, err := sr.TryReadExtensionPayload(n)
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}
		if err := pumpWait(ctx, sr, fetch); err != nil {
			return nil, err
		}
	}
}
