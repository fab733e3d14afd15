// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici


// String is length-prefixed byte data. It carries a lookup-lookaside cache
// (§3, §4.5): the last Map that satisfied a lookup keyed by this string,
// the slot index, and the generation counter the cache was stamped with.
// Per Design Note "Lookaside cache vs. maps", this is a deliberate
// mutable field riding on an otherwise-immutable atomic object — the
// alternative thread-local-cache design the note suggests is left for a
// future port; this one matches the original's actual behavior.
type String struct {
	Header
	Bytes []byte

	lookasideMap  *Map
	lookasideSlot int
	lookasideGen  uint64
}

func newStringType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "string",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr {
			s := o.(*String)
			return uintptr(40 + len(s.Bytes))
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			as, bs := a.(*String), b.(*String)
			return string(as.Bytes) == string(bs.Bytes)
		},
		Hash: func(o Object) uint64 {
			return fnv1a(o.(*String).Bytes)
		},
		Copy: func(rt *Runtime, o Object) Object {
			s := o.(*String)
			cp := make([]byte, len(s.Bytes))
			copy(cp, s.Bytes)
			return &String{Bytes: cp}
		},
		ObjName: func(o Object) string {
			s := o.(*String)
			if len(s.Bytes) > 32 {
				return "\"" + string(s.Bytes[:32]) + "...\""
			}
			return "\"" + string(s.Bytes) + "\""
		},
	}
}

func fnv1a(b []byte) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime
	}
	return h
}

// NewString returns a fresh, caller-owned String copying s.
func (rt *Runtime) NewString(s string) *String {
	b := make([]byte, len(s))
	copy(b, s)
	o := &String{Bytes: b}
	o.tcode = TCodeString
	o.nrefs = 1
	rt.allocRaw(len(b))
	rt.allocTyped(uintptr(40+len(b)), o)
	return o
}

// String implements fmt.Stringer for convenience in diagnostics; it is not
// part of the object model dispatch (that's TypeDescriptor.ObjName).
func (s *String) String() string { return string(s.Bytes) }

// Key returns the interned String for s. Map key lookup compares keys by
// pointer (§4.5 "Key equality is pointer equality because strings are
// interned"), so any code that builds a key string on the fly — rather
// than receiving one already atomic from a compiled code array — must
// route it through Key, or an otherwise-equal key would never match.
func (rt *Runtime) Key(s string) *String {
	return rt.Atom(rt.NewString(s), true).(*String)
}

// lookasideValid reports whether the cached (map, slot) is still usable:
// the recorded generation must equal the Runtime's current vsver.
func (s *String) lookasideValid(rt *Runtime) bool {
	return s.lookasideMap != nil && s.lookasideGen == rt.vsver
}

func (s *String) setLookaside(rt *Runtime, m *Map, slot int) {
	s.lookasideMap = m
	s.lookasideSlot = slot
	s.lookasideGen = rt.vsver
}

func (s *String) clearLookaside() {
	s.lookasideMap = nil
	s.lookasideGen = 0
}
