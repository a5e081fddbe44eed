package msgpack

// StreamReader decodes MessagePack tokens from a byte source that may
// deliver data in arbitrary fragments. Every TryRead method returns either
// ok (the decoded value, with the cursor advanced) or needsMore (the
// cursor is left untouched; the caller must Feed more bytes and retry),
// streaming mode. The reader never returns a partially
// consumed token: advancement happens only on the ok path.
//
// A StreamReader is not safe for concurrent use; the async converter
// family drives one at a time per in-flight (de)serialization, matching
// a single-threaded-per-call scheduling model.
type StreamReader struct {
	buf  []byte
	pos  int
	base int // bytes dropped from the front of buf by Feed's compaction
}

// NewStreamReader returns an empty StreamReader ready to Feed.
func NewStreamReader() *StreamReader {
	return &StreamReader{}
}

// Feed appends newly arrived bytes to the reader's window, compacting
// already-consumed bytes first so the buffer does not grow without bound
// across a long-running async read.
func (s *StreamReader) Feed(data []byte) {
	if s.pos > 0 {
		s.base += s.pos
		s.buf = append(s.buf[:0], s.buf[s.pos:]...)
		s.pos = 0
	}
	s.buf = append(s.buf, data...)
}

// Buffered reports how many unconsumed bytes are currently available.
func (s *StreamReader) Buffered() int { return len(s.buf) - s.pos }

// Consumed reports the cursor position, i.e. how many bytes have been
// committed by successful TryRead calls since construction.
func (s *StreamReader) Consumed() int { return s.base + s.pos }

func (s *StreamReader) window() []byte { return s.buf[s.pos:] }

// Captured returns a copy of the bytes consumed between two Consumed()
// offsets. Feed drops the bytes before the cursor, so start must be no
// earlier than the cursor position at any Feed between the two
// observations (true for a start taken right before a skip loop, since a
// failed skip attempt never advances the cursor). Used by the raw
// passthrough converter to materialize the exact wire bytes of one
// skipped structure.
func (s *StreamReader) Captured(start, end int) []byte {
	out := make([]byte, end-start)
	copy(out, s.buf[start-s.base:end-s.base])
	return out
}

// TryPeekNextType reports the next token's category without consuming
// anything; ok is false only when the window is currently empty.
func (s *StreamReader) TryPeekNextType() (t Type, ok bool) {
	w := s.window()
	if len(w) == 0 {
		return TypeUnknown, false
	}
	return typeOfLeadByte(w[0]), true
}

// TryReadNil attempts to consume a nil token.
func (s *StreamReader) TryReadNil() (ok bool, err error) {
	n, st := decodeNil(s.window())
	return s.commit(n, st, err)
}

func (s *StreamReader) commit(n int, st decodeStatus, _ error) (bool, error) {
	switch st {
	case statusOK:
		s.pos += n
		return true, nil
	case statusNeedsMore:
		return false, nil
	default:
		return false, ErrInvalidData
	}
}

// TryReadBool attempts to consume a boolean token.
func (s *StreamReader) TryReadBool() (v bool, ok bool, err error) {
	val, n, st := decodeBool(s.window())
	ok, err = s.commit(n, st, nil)
	return val, ok, err
}

// TryReadInt attempts to consume a signed integer token.
func (s *StreamReader) TryReadInt() (v int64, ok bool, err error) {
	val, n, st := decodeInt(s.window())
	ok, err = s.commit(n, st, nil)
	return val, ok, err
}

// TryReadUint attempts to consume an unsigned integer token.
func (s *StreamReader) TryReadUint() (v uint64, ok bool, err error) {
	val, n, st := decodeUint(s.window())
	ok, err = s.commit(n, st, nil)
	return val, ok, err
}

// TryReadFloat32 attempts to consume a float32 token.
func (s *StreamReader) TryReadFloat32() (v float32, ok bool, err error) {
	val, n, st := decodeFloat32(s.window())
	ok, err = s.commit(n, st, nil)
	return val, ok, err
}

// TryReadFloat64 attempts to consume a float64 token.
func (s *StreamReader) TryReadFloat64() (v float64, ok bool, err error) {
	val, n, st := decodeFloat64(s.window())
	ok, err = s.commit(n, st, nil)
	return val, ok, err
}

// TryReadStr attempts to consume a complete str token (header and
// contents). Unlike a header-only peek, this never returns a length
// without also having every content byte available.
func (s *StreamReader) TryReadStr() (v string, ok bool, err error) {
	strLen, hdr, st := decodeStrHeader(s.window())
	if st == statusInvalid {
		return "", false, ErrInvalidData
	}
	if st == statusNeedsMore {
		return "", false, nil
	}
	w := s.window()
	if len(w) < hdr+strLen {
		return "", false, nil
	}
	out := string(w[hdr : hdr+strLen])
	s.pos += hdr + strLen
	return out, true, nil
}

// TryReadBin attempts to consume a complete bin token.
func (s *StreamReader) TryReadBin() (v []byte, ok bool, err error) {
	binLen, hdr, st := decodeBinHeader(s.window())
	if st == statusInvalid {
		return nil, false, ErrInvalidData
	}
	if st == statusNeedsMore {
		return nil, false, nil
	}
	w := s.window()
	if len(w) < hdr+binLen {
		return nil, false, nil
	}
	out := make([]byte, binLen)
	copy(out, w[hdr:hdr+binLen])
	s.pos += hdr + binLen
	return out, true, nil
}

// TryReadArrayHeader attempts to consume an array header.
func (s *StreamReader) TryReadArrayHeader() (count int, ok bool, err error) {
	c, hdr, st := decodeArrayHeader(s.window())
	ok, err = s.commit(hdr, st, nil)
	return c, ok, err
}

// TryReadMapHeader attempts to consume a map header.
func (s *StreamReader) TryReadMapHeader() (count int, ok bool, err error) {
	c, hdr, st := decodeMapHeader(s.window())
	ok, err = s.commit(hdr, st, nil)
	return c, ok, err
}

// TryReadExtensionHeader attempts to consume an extension header, leaving
// the payload unread (mirroring Reader.ReadExtensionHeader).
func (s *StreamReader) TryReadExtensionHeader() (code ExtensionCode, payloadLen int, ok bool, err error) {
	c, pl, hdr, st := decodeExtHeader(s.window())
	ok, err = s.commit(hdr, st, nil)
	return c, pl, ok, err
}

// TryReadExtensionPayload attempts to consume exactly n payload bytes
// following a header read via TryReadExtensionHeader.
func (s *StreamReader) TryReadExtensionPayload(n int) (v []byte, ok bool, err error) {
	w := s.window()
	if len(w) < n {
		return nil, false, nil
	}
	out := make([]byte, n)
	copy(out, w[:n])
	s.pos += n
	return out, true, nil
}

// TrySkipOneStructure attempts to advance past exactly one complete value.
func (s *StreamReader) TrySkipOneStructure() (ok bool, err error) {
	n, st := skipOne(s.window())
	return s.commit(n, st, nil)
}
