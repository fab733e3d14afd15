// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSmallIntsInterned(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewInt(42)
	b := rt.NewInt(42)
	require.Same(t, a, b)
	require.True(t, a.IsAtom())
}

func TestLargeIntsNotAutoInterned(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewInt(100000)
	b := rt.NewInt(100000)
	require.NotSame(t, a, b)
	require.False(t, a.IsAtom())
}

func TestAtomCollapsesEqualValues(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewInt(100000)
	b := rt.NewInt(100000)
	aa := rt.Atom(a, true)
	bb := rt.Atom(b, true)
	require.Same(t, aa, bb)
}

func TestFloatValue(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	f := rt.NewFloat(3.25)
	require.Equal(t, 3.25, f.Value)
	require.Equal(t, "float", rt.objName(f))
}

func TestNullIsSingletonAndFalsy(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	n1 := rt.Null()
	n2 := rt.Null()
	require.Same(t, n1, n2)
	require.False(t, rt.Truthy(n1))
	require.False(t, rt.Truthy(nil))
	require.True(t, rt.Truthy(rt.NewInt(1)))
	require.False(t, rt.Truthy(rt.NewInt(0)))
}

func TestStringKeyInterning(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.Key("hello")
	b := rt.Key("hello")
	require.Same(t, a, b)
}

func TestStringLookasideRoundTrip(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	k := rt.Key("name")
	require.NoError(t, rt.mapAssignBase(m, k, rt.NewInt(5)))
	require.True(t, k.lookasideValid(rt))

	v, err := rt.mapFetch(m, k)
	require.NoError(t, err)
	require.Equal(t, int64(5), v.(*Int).Value)
}
