// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "math"

// Float is an IEEE-754 double value.
type Float struct {
	Header
	Value float64
}

func newFloatType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "float",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr { return 24 },
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			return a.(*Float).Value == b.(*Float).Value
		},
		Hash: func(o Object) uint64 {
			return hashInt64(int64(math.Float64bits(o.(*Float).Value)))
		},
		Copy: func(rt *Runtime, o Object) Object {
			return &Float{Value: o.(*Float).Value}
		},
		ObjName: func(o Object) string { return "float" },
	}
}

// NewFloat returns a fresh, caller-owned Float.
func (rt *Runtime) NewFloat(v float64) *Float {
	o := &Float{Value: v}
	o.tcode = TCodeFloat
	o.leafz = 24
	o.nrefs = 1
	rt.allocTyped(24, o)
	return o
}
