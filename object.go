// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"sync/atomic"
	"unsafe"
)

// identityOf returns an address-derived value unique to this object
// instance, for types (maps, funcs, methods, ptrs, handles) that hash and
// compare by reference identity rather than by content.
func identityOf(o Object) uintptr {
	return uintptr(unsafe.Pointer(o.header()))
}

// Flag bits live in the lower nibble of Header.flags; the upper nibble is
// reserved for per-type use (matching the original object header ABI,
// which packed MARK/ATOM/SUPER alongside type-specific bits in one byte).
const (
	FlagMark  uint8 = 1 << 0 // set by the collector's mark phase
	FlagAtom  uint8 = 1 << 1 // interned: present once in the atom pool, immutable
	FlagSuper uint8 = 1 << 2 // object carries a super pointer (maps)
	FlagOld   uint8 = 1 << 3 // set after a sweep survives; reserved, never cleared
)

// Header is the uniform object header every heap-managed value embeds, in
// declaration order matching the four-byte ABI of the original design:
// tcode, flags, nrefs, leafz.
type Header struct {
	tcode uint8
	flags uint8
	nrefs uint8
	leafz uint8
}

// Tcode reports the type code indexing the owning Runtime's type table.
func (h *Header) Tcode() uint8 { return h.tcode }

// Flags returns the current flag bitfield.
func (h *Header) Flags() uint8 { return h.flags }

func (h *Header) hasFlag(f uint8) bool { return h.flags&f != 0 }
func (h *Header) setFlag(f uint8)      { h.flags |= f }
func (h *Header) clearFlag(f uint8)    { h.flags &^= f }

// IsAtom reports whether the object is interned (immutable, pool-resident).
func (h *Header) IsAtom() bool { return h.hasFlag(FlagAtom) }

// Leafz returns the fast-path leaf size: if nonzero, the object occupies
// exactly that many bytes and references no other objects, letting the
// collector skip a type-specific mark and account the size directly.
func (h *Header) Leafz() uint8 { return h.leafz }

// Nrefs is the short external-reference guard: the count of references held
// from outside the managed object graph (embedder/C roots). It is not a
// full reference count — only code that holds a root pointer increments it.
func (h *Header) Nrefs() uint8 { return h.nrefs }

// Bump adjusts nrefs by delta, saturating at [0,255]. Embedder constructors
// return objects with nrefs=1; Close/drop-ref decrements back to 0.
func (h *Header) Bump(delta int) {
	n := int(h.nrefs) + delta
	switch {
	case n < 0:
		n = 0
	case n > 255:
		n = 255
	}
	h.nrefs = uint8(n)
}

// Object is implemented by every heap-managed value. Concrete types embed
// Header and satisfy Object by exposing it; all type-specific behavior is
// reached indirectly through the owning Runtime's type table, never via a
// type switch on Object itself — this is what lets RegisterType add new
// kinds at run time without touching this file.
type Object interface {
	header() *Header
}

func (h *Header) header() *Header { return h }

// Iterator drives a single forall traversal; Advance reports whether key/
// value were populated for another step.
type Iterator interface {
	Advance(rt *Runtime) (key, value Object, ok bool, err error)
}

// Capability is a bitmask of optional per-type operations. Attempting an
// operation a type doesn't declare raises a typed type-mismatch error
// rather than panicking or silently no-opping.
type Capability uint16

const (
	CapForall Capability = 1 << iota
	CapCall
	CapObjName
	CapFetch
	CapAssign
	CapSuper
	CapSave
	CapSortPointers // ptr targets must survive rehash: never cache raw slots
)

// Has reports whether cap is present in the set.
func (c Capability) Has(cap Capability) bool { return c&cap != 0 }

// MarkFunc marks o and everything reachable from it, setting FlagMark
// idempotently, and returns the number of bytes attributable to the
// subtree (used only to tune the GC threshold heuristic).
type MarkFunc func(rt *Runtime, o Object) uintptr

// FreeFunc releases any resources o owns beyond the Go garbage collector's
// reach (native handles, compiled regexps). It never touches other managed
// objects — by the time it runs, the sweep has already decided they're
// unreachable on their own.
type FreeFunc func(rt *Runtime, o Object)

// CmpFunc reports value equality, the basis for atom-pool dedup. Per
// Invariant A/B, cmp(a,b)==0 must imply hash(a)==hash(b) for every type.
type CmpFunc func(a, b Object) bool

// HashFunc computes a's hash. Must stay stable for the lifetime of an atom
// (Invariant B): a type must not mutate hash-affecting state once atomic.
type HashFunc func(o Object) uint64

// CopyFunc returns a fresh, non-atomic, independently-owned copy of o.
type CopyFunc func(rt *Runtime, o Object) Object

// FetchFunc looks up key on o, walking o's super chain if it has one.
type FetchFunc func(rt *Runtime, o Object, key Object) (Object, error)

// AssignFunc assigns val to key on o, following the Map assignment policy
// (lookaside fast path, base probe, super walk, base insert) for types that
// support it; non-aggregate types return a typed error.
type AssignFunc func(rt *Runtime, o Object, key, val Object) error

// CallFunc invokes o as a callable, with an optional bound subject (method
// dispatch) and already-evaluated argument objects.
type CallFunc func(rt *Runtime, o Object, subject Object, args []Object) (Object, error)

// ForallFunc returns an Iterator over o's elements, the mechanism behind
// scripted `forall` loops over maps/arrays/strings.
type ForallFunc func(rt *Runtime, o Object) (Iterator, error)

// ObjNameFunc renders a short description of o for error messages.
type ObjNameFunc func(o Object) string

// SaveFunc and RestoreFunc implement the archive protocol body for a type;
// see archive.go for the ref-header/cycle-tracking machinery that wraps
// these per-type bodies.
type SaveFunc func(rt *Runtime, w *archiveWriter, o Object) error
type RestoreFunc func(rt *Runtime, r *archiveReader) (Object, error)

// TypeDescriptor is the process-independent (well, Runtime-independent)
// description of one object kind: human name plus the function-pointer
// table every operation dispatches through, mirroring how the original
// per-type operation vector worked and how the Go runtime's own `_type`
// carries an `equal` func pointer alongside size/kind (see
// _examples/erlangtui-go1.17.13/src/runtime/type.go).
type TypeDescriptor struct {
	Tcode uint8
	Name  string
	Caps  Capability

	Mark        MarkFunc
	Free        FreeFunc
	Cmp         CmpFunc
	Hash        HashFunc
	Copy        CopyFunc
	Fetch       FetchFunc
	Assign      AssignFunc
	FetchSuper  FetchFunc
	AssignSuper AssignFunc
	FetchBase   FetchFunc
	AssignBase  AssignFunc
	Call        CallFunc
	Forall      ForallFunc
	ObjName     ObjNameFunc
	Save        SaveFunc
	Restore     RestoreFunc
}

// builtin type codes, assigned in object.c's bootstrap order (see
// SPEC_FULL.md §3): anything registered later via RegisterType receives a
// tcode starting at firstDynamicTcode.
const (
	TCodeInt uint8 = iota
	TCodeFloat
	TCodeNull
	TCodeString
	TCodeRegexp
	TCodeArray
	TCodeMap
	TCodeFunc
	TCodeCFunc
	TCodeMethod
	TCodePtr
	TCodeHandle
	TCodeOp
	TCodePC
	TCodeMark
	TCodeCatcher
	firstDynamicTcode
)

// typeTable owns the process-... well, Runtime-wide array of type
// descriptors and hands out new tcodes for dynamically registered types.
type typeTable struct {
	descs []*TypeDescriptor
	next  uint32 // atomic counter seeding new tcodes past firstDynamicTcode
}

func newTypeTable() *typeTable {
	t := &typeTable{descs: make([]*TypeDescriptor, firstDynamicTcode, 64)}
	atomic.StoreUint32(&t.next, uint32(firstDynamicTcode))
	return t
}

func (t *typeTable) register(tcode uint8, d *TypeDescriptor) {
	d.Tcode = tcode
	t.descs[tcode] = d
}

// registerDynamic appends d with a freshly assigned tcode and returns it.
func (t *typeTable) registerDynamic(d *TypeDescriptor) uint8 {
	n := atomic.AddUint32(&t.next, 1) - 1
	if int(n) >= len(t.descs) {
		grown := make([]*TypeDescriptor, n+1, (n+1)*2)
		copy(grown, t.descs)
		t.descs = grown
	}
	tc := uint8(n)
	d.Tcode = tc
	t.descs[tc] = d
	return tc
}

func (t *typeTable) lookup(tcode uint8) *TypeDescriptor {
	if int(tcode) >= len(t.descs) {
		return nil
	}
	return t.descs[tcode]
}

// typeOf is the one place an Object's tcode byte turns back into its
// TypeDescriptor; every other file dispatches through this.
func (rt *Runtime) typeOf(o Object) *TypeDescriptor {
	return rt.types.lookup(o.header().tcode)
}

// objName renders a short description of o, falling back to the type's
// bare name when the type doesn't implement ObjName.
func (rt *Runtime) objName(o Object) string {
	td := rt.typeOf(o)
	if td == nil {
		return "<unregistered>"
	}
	if td.Caps.Has(CapObjName) && td.ObjName != nil {
		return td.ObjName(o)
	}
	return td.Name
}
