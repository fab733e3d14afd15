// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

// Array is a circular-buffer stack/vector (§4.6): base..limit is the
// backing store, bot is the logical first element, top is one past the
// logical last. bot can be greater than top when the live span wraps
// around the end of the buffer, which is what lets push/pop/rpush/rpop
// all run in amortized O(1) without shifting elements.
type Array struct {
	Header
	base []Object
	bot  int
	top  int
}

const arrayInitialCap = 8

func newArrayType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "array",
		Caps: CapObjName | CapForall,
		Mark: func(rt *Runtime, o Object) uintptr {
			a := o.(*Array)
			n := uintptr(32 + len(a.base)*8)
			a.forEachLive(func(v Object) {
				if v != nil {
					n += rt.markObject(v)
				}
			})
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			aa, bb := a.(*Array), b.(*Array)
			if aa.Len() != bb.Len() {
				return false
			}
			return aa == bb // arrays intern by identity only, like maps
		},
		Hash: func(o Object) uint64 {
			return hashInt64(int64(identityOf(o.(*Array))))
		},
		Copy: func(rt *Runtime, o Object) Object {
			a := o.(*Array)
			cp := rt.NewArray(a.Len())
			a.forEachLive(func(v Object) { cp.pushUnchecked(v) })
			return cp
		},
		ObjName: func(o Object) string { return "array" },
		Forall:  (*Runtime).arrayForall,
	}
}

// NewArray allocates an empty array with at least cap slots reserved.
func (rt *Runtime) NewArray(cap int) *Array {
	if cap < arrayInitialCap {
		cap = arrayInitialCap
	}
	o := &Array{base: make([]Object, cap)}
	o.tcode = TCodeArray
	o.nrefs = 1
	rt.allocRaw(cap * 8)
	rt.allocTyped(32, o)
	return o
}

// Len reports the number of live elements, accounting for wraparound.
func (a *Array) Len() int {
	if a.top >= a.bot {
		return a.top - a.bot
	}
	return len(a.base) - a.bot + a.top
}

func (a *Array) cap() int { return len(a.base) }

func (a *Array) forEachLive(fn func(Object)) {
	n := a.Len()
	i := a.bot
	for k := 0; k < n; k++ {
		fn(a.base[i])
		i++
		if i == len(a.base) {
			i = 0
		}
	}
}

// stkPushChk ensures room for n more elements, growing (by 1.5x steps) the
// backing store and re-linearizing bot..top to start at 0 if needed. This
// mirrors the original's stk_push_chk: callers that need to push several
// elements call it once up front rather than re-checking per push.
func (rt *Runtime) stkPushChk(a *Array, n int) {
	if a.Len()+n < a.cap()-1 {
		return
	}
	newCap := a.cap() + a.cap()/2 // grow by 1.5x per the circular-buffer design
	for a.Len()+n >= newCap-1 {
		newCap += newCap / 2
	}
	nb := make([]Object, newCap)
	i := 0
	a.forEachLive(func(v Object) { nb[i] = v; i++ })
	a.base = nb
	a.bot = 0
	a.top = i
	rt.allocRaw((newCap - a.cap()) * 8)
}

// pushCk rejects mutation of an atomic array with an atomicity error
// instead of panicking.
func (a *Array) pushCk(rt *Runtime) error {
	if a.hasFlag(FlagAtom) {
		return rt.atomicityViolation("push", a)
	}
	return nil
}

// Push appends to the logical top (index len-1 becomes v), growing first
// if necessary.
func (rt *Runtime) Push(a *Array, v Object) error {
	if err := a.pushCk(rt); err != nil {
		return err
	}
	rt.stkPushChk(a, 1)
	a.base[a.top] = v
	a.top++
	if a.top == len(a.base) {
		a.top = 0
	}
	return nil
}

// pushUnchecked skips the atomicity guard, for internal use (Copy) on an
// array that was just allocated and cannot yet be atomic.
func (a *Array) pushUnchecked(v Object) {
	if a.Len()+1 >= a.cap()-1 {
		nb := make([]Object, a.cap()+a.cap()/2)
		i := 0
		a.forEachLive(func(e Object) { nb[i] = e; i++ })
		a.base = nb
		a.bot = 0
		a.top = i
	}
	a.base[a.top] = v
	a.top++
	if a.top == len(a.base) {
		a.top = 0
	}
}

// Pop removes and returns the top (last-pushed) element; ok is false on
// an empty array.
func (rt *Runtime) Pop(a *Array) (Object, bool, error) {
	if a.hasFlag(FlagAtom) {
		return nil, false, rt.atomicityViolation("pop", a)
	}
	if a.Len() == 0 {
		return nil, false, nil
	}
	if a.top == 0 {
		a.top = len(a.base) - 1
	} else {
		a.top--
	}
	v := a.base[a.top]
	a.base[a.top] = nil
	return v, true, nil
}

// RPush prepends to the logical bottom (the "r" — reverse — ops operate
// on the other end of the stack, per the original's rpush/rpop).
func (rt *Runtime) RPush(a *Array, v Object) error {
	if err := a.pushCk(rt); err != nil {
		return err
	}
	rt.stkPushChk(a, 1)
	if a.bot == 0 {
		a.bot = len(a.base) - 1
	} else {
		a.bot--
	}
	a.base[a.bot] = v
	return nil
}

// RPop removes and returns the bottom (first-pushed) element.
func (rt *Runtime) RPop(a *Array) (Object, bool, error) {
	if a.hasFlag(FlagAtom) {
		return nil, false, rt.atomicityViolation("rpop", a)
	}
	if a.Len() == 0 {
		return nil, false, nil
	}
	v := a.base[a.bot]
	a.base[a.bot] = nil
	a.bot++
	if a.bot == len(a.base) {
		a.bot = 0
	}
	return v, true, nil
}

// Get returns the i'th live element (0-based from the bottom), or nil if
// out of range.
func (a *Array) Get(i int) Object {
	if i < 0 || i >= a.Len() {
		return nil
	}
	idx := a.bot + i
	if idx >= len(a.base) {
		idx -= len(a.base)
	}
	return a.base[idx]
}

// Set overwrites the i'th live element.
func (rt *Runtime) Set(a *Array, i int, v Object) error {
	if a.hasFlag(FlagAtom) {
		return rt.atomicityViolation("assign", a)
	}
	if i < 0 || i >= a.Len() {
		return rt.outOfRange("array index", i, a.Len())
	}
	idx := a.bot + i
	if idx >= len(a.base) {
		idx -= len(a.base)
	}
	a.base[idx] = v
	return nil
}

type arrayIter struct {
	a   *Array
	pos int
}

func (it *arrayIter) Advance(rt *Runtime) (Object, Object, bool, error) {
	if it.pos >= it.a.Len() {
		return nil, nil, false, nil
	}
	v := it.a.Get(it.pos)
	k := rt.NewInt(int64(it.pos))
	it.pos++
	return k, v, true, nil
}

func (rt *Runtime) arrayForall(o Object) (Iterator, error) {
	return &arrayIter{a: o.(*Array)}, nil
}
