// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

// Null is the single process-wide (here: per-Runtime) sentinel that also
// represents boolean false. Every Runtime owns exactly one instance,
// pre-interned, reachable via Runtime.Null().
type Null struct {
	Header
}

func newNullType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "NULL",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr { return 8 },
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a == b },
		Hash: func(o Object) uint64 { return 0xdeadbeef },
		Copy: func(rt *Runtime, o Object) Object { return o }, // singleton, copy is identity
		ObjName: func(o Object) string {
			return "NULL"
		},
	}
}

func (rt *Runtime) initNull() {
	o := &Null{}
	o.tcode = TCodeNull
	o.leafz = 8
	o.nrefs = 1
	o.flags = FlagAtom
	rt.registerObject(o)
	rt.nullObj = o
	idx, _ := rt.atomProbeFrom(rt.types.lookup(TCodeNull), o, 0xdeadbeef)
	rt.atoms.insertAt(idx, o)
}

// Null returns the Runtime's sentinel null/false value.
func (rt *Runtime) Null() *Null { return rt.nullObj }

// Truthy reports whether o is neither nil, the Null sentinel, nor a zero
// int/float — the script-level truthiness test used by IF/IFELSE/ANDAND.
func (rt *Runtime) Truthy(o Object) bool {
	switch v := o.(type) {
	case nil:
		return false
	case *Null:
		return false
	case *Int:
		return v.Value != 0
	case *Float:
		return v.Value != 0
	default:
		return true
	}
}
