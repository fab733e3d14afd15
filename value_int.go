// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

// Int is a 64-bit signed integer value. Small integers (smallIntMin..max)
// are pre-interned at Runtime startup so the common case of comparing or
// reusing them never touches the allocator.
type Int struct {
	Header
	Value int64
}

const (
	smallIntMin = 0
	smallIntMax = 255
)

func newIntType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "int",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr { return 24 },
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			ai, bi := a.(*Int), b.(*Int)
			return ai.Value == bi.Value
		},
		Hash: func(o Object) uint64 {
			return hashInt64(o.(*Int).Value)
		},
		Copy: func(rt *Runtime, o Object) Object {
			return &Int{Value: o.(*Int).Value}
		},
		ObjName: func(o Object) string { return "int" },
	}
}

func hashInt64(v int64) uint64 {
	u := uint64(v)
	// splitmix64 finalizer: cheap, well-distributed, branch-free.
	u ^= u >> 30
	u *= 0xbf58476d1ce4e5b9
	u ^= u >> 27
	u *= 0x94d049bb133111eb
	u ^= u >> 31
	return u
}

// NewInt returns an interned Int for small values (the inline cache) and a
// fresh caller-owned Int (nrefs=1, not yet atomic) otherwise.
func (rt *Runtime) NewInt(v int64) *Int {
	if v >= smallIntMin && v <= smallIntMax {
		return rt.smallInts[v]
	}
	o := &Int{Value: v}
	o.tcode = TCodeInt
	o.leafz = 24
	o.nrefs = 1
	rt.allocTyped(24, o)
	return o
}

func (rt *Runtime) initSmallInts() {
	done := rt.acct.suppressCollectFn()
	defer done()
	for i := range rt.smallInts {
		o := &Int{Value: int64(i)}
		o.tcode = TCodeInt
		o.leafz = 24
		o.nrefs = 1
		o.flags = FlagAtom
		rt.registerObject(o)
		rt.smallInts[i] = o
		idx, _ := rt.atomProbeFrom(rt.types.lookup(TCodeInt), o, hashInt64(int64(i)))
		rt.atoms.insertAt(idx, o)
		rt.growAtomsIfNeeded()
	}
}
