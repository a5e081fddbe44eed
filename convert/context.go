package convert

import (
	"context"
	"reflect"
)

// ReferenceState holds the reference-preservation and string-interning
// bookkeeping a Context threads through one call: which pointers/strings
// have been seen, and what they decoded to. A Context normally owns a
// private ReferenceState created fresh per top-level call; in cross-call
// reference preservation mode the same ReferenceState is reused across
// many Contexts so a pointer or interned string seen in an earlier call
// keeps resolving to the same reference ID and canonical instance in a
// later one.
type ReferenceState struct {
	writeRefs   map[uintptr]int
	readRefs    map[int]reflect.Value
	strRefs     map[string]int
	readStrRefs map[int]string
	nextRefID   int
	nextReadID  int
	interned    map[string]string
}

// NewReferenceState returns an empty ReferenceState, for a Serializer to
// hold and reuse across calls when PreserveReferences is ReferenceCrossCall.
func NewReferenceState() *ReferenceState {
	return &ReferenceState{}
}

// Context is the per-call state threaded through every converter
// invocation: depth accounting, cancellation,
// the shape provider driving this call, the extension-type-code table,
// and (when reference preservation is enabled) the reference graph.
//
// A Context is created at the top of each top-level Serialize/Deserialize
// call and discarded at return, except the reference map in cross-call
// mode.
type Context struct {
	Ctx      context.Context
	Depth    int
	MaxDepth int

	Policy *Policy

	refs *ReferenceState
}

// NewContext creates a fresh per-call Context with its own private
// ReferenceState. std is the surrounding context.Context used for
// cancellation.
func NewContext(std context.Context, policy *Policy) *Context {
	return NewContextWithState(std, policy, &ReferenceState{})
}

// NewContextWithState creates a per-call Context backed by state. Passing
// the same ReferenceState instance to successive calls carries reference
// and intern bookkeeping across them, which is what cross-call reference
// preservation lifetime requires; a fresh ReferenceState each time is
// equivalent to per-call.
func NewContextWithState(std context.Context, policy *Policy, state *ReferenceState) *Context {
	if std == nil {
		std = context.Background()
	}
	if state == nil {
		state = &ReferenceState{}
	}
	return &Context{Ctx: std, MaxDepth: policy.MaxDepth, Policy: policy, refs: state}
}

// Enter increments the depth counter for one converter recursion and
// fails with ErrDepthExceeded once the configured maximum is passed.
func (c *Context) Enter() error {
	c.Depth++
	if c.Depth > c.MaxDepth {
		return ErrDepthExceeded
	}
	return nil
}

// Exit undoes one Enter. Converters call Enter/Exit in a defer pair
// around their recursive work.
func (c *Context) Exit() { c.Depth-- }

// CheckCancelled reports ErrCancelled if the call's context has been
// cancelled; every suspension point checks for cancellation
// before awaiting.
func (c *Context) CheckCancelled() error {
	select {
	case <-c.Ctx.Done():
		return c.Ctx.Err()
	default:
		return nil
	}
}

// RecordWrite registers ptr (the address backing a reference type) as
// seen during this write. It returns (id, true) if ptr was already
// recorded — the caller should emit a reference token instead of the
// payload — or (id, false) on first sight, where id is the new ID to
// remember for future re-encounters.
func (c *Context) RecordWrite(ptr uintptr) (id int, seen bool) {
	s := c.refs
	if s.writeRefs == nil {
		s.writeRefs = make(map[uintptr]int)
	}
	if id, ok := s.writeRefs[ptr]; ok {
		return id, true
	}
	s.nextRefID++
	id = s.nextRefID
	s.writeRefs[ptr] = id
	return id, false
}

// nextReadRefID assigns the next sequential id to a freshly decoded,
// identity-eligible value on the read side. Write and read traverse the
// same graph in the same order, so a counter that advances once per
// first-occurrence value on each side stays in lockstep without the id
// itself ever needing to cross the wire for first occurrences.
func (c *Context) nextReadRefID() int {
	c.refs.nextReadID++
	return c.refs.nextReadID
}

// RecordRead registers a freshly decoded object under id so a later
// reference token resolves to the same instance.
func (c *Context) RecordRead(id int, v reflect.Value) {
	s := c.refs
	if s.readRefs == nil {
		s.readRefs = make(map[int]reflect.Value)
	}
	s.readRefs[id] = v
}

// ResolveRead returns the object previously recorded under id.
func (c *Context) ResolveRead(id int) (reflect.Value, bool) {
	v, ok := c.refs.readRefs[id]
	return v, ok
}

// InternString returns the canonical instance of s if one has already
// been decoded in this scope, recording s as canonical otherwise.
func (c *Context) InternString(s string) string {
	st := c.refs
	if st.interned == nil {
		st.interned = make(map[string]string)
	}
	if canon, ok := st.interned[s]; ok {
		return canon
	}
	st.interned[s] = s
	return s
}

// RecordWrittenString registers s as emitted during this write so that,
// with both string interning and reference preservation enabled, a
// repeated string can be replaced by a reference token instead of being
// re-encoded.
func (c *Context) RecordWrittenString(s string) (id int, seen bool) {
	st := c.refs
	if st.strRefs == nil {
		st.strRefs = make(map[string]int)
	}
	if id, ok := st.strRefs[s]; ok {
		return id, true
	}
	st.nextRefID++
	id = st.nextRefID
	st.strRefs[s] = id
	return id, false
}

// RecordReadString registers a freshly decoded string under id so a
// later reference token resolves to the same content without
// re-reading it from the wire.
func (c *Context) RecordReadString(id int, s string) {
	st := c.refs
	if st.readStrRefs == nil {
		st.readStrRefs = make(map[int]string)
	}
	st.readStrRefs[id] = s
}

// ResolveReadString returns the string previously recorded under id.
func (c *Context) ResolveReadString(id int) (string, bool) {
	s, ok := c.refs.readStrRefs[id]
	return s, ok
}
