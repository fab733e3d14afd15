// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTripScalars(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	for _, v := range []Object{rt.NewInt(42), rt.NewFloat(3.5), rt.NewString("hi"), rt.Null()} {
		var buf bytes.Buffer
		require.NoError(t, rt.Save(&buf, v))
		got, err := rt.Restore(&buf, nil)
		require.NoError(t, err)
		require.True(t, rt.typeOf(v).Cmp(v, got))
	}
}

func TestArchiveRoundTripRegexp(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`\d+`, RegexpCaseless)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, re))

	restored, err := rt.Restore(&buf, nil)
	require.NoError(t, err)
	rre, ok := restored.(*Regexp)
	require.True(t, ok)
	require.Equal(t, re.Pattern, rre.Pattern)
	require.Equal(t, re.Options, rre.Options)
}

// TestArchiveRoundTripRepeatedRegexp covers the same atomic regexp value
// appearing twice in one archived graph: since Regexp is not ref-tracked,
// the writer must emit its full body both times rather than a back-
// reference the reader never registered an id for.
func TestArchiveRoundTripRepeatedRegexp(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`\d+`, 0)
	require.NoError(t, err)
	atom := rt.Atom(re, true)

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, atom))
	require.NoError(t, rt.Push(a, atom))

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, a))

	restored, err := rt.Restore(&buf, nil)
	require.NoError(t, err)
	ra := restored.(*Array)
	require.Equal(t, 2, ra.Len())
	r0 := ra.Get(0).(*Regexp)
	r1 := ra.Get(1).(*Regexp)
	require.Equal(t, r0.Pattern, r1.Pattern)
}

func TestArchiveRoundTripArray(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, rt.NewInt(1)))
	require.NoError(t, rt.Push(a, rt.NewInt(2)))
	require.NoError(t, rt.Push(a, rt.NewString("three")))

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, a))

	restored, err := rt.Restore(&buf, nil)
	require.NoError(t, err)
	ra, ok := restored.(*Array)
	require.True(t, ok)
	require.Equal(t, 3, ra.Len())
	require.Equal(t, int64(1), ra.Get(0).(*Int).Value)
	require.Equal(t, int64(2), ra.Get(1).(*Int).Value)
	require.Equal(t, "three", ra.Get(2).(*String).String())
}

// TestArchiveCycleSelfReferentialMap covers M["self"] = M: the restored map's
// "self" slot must come back pointer-equal to the map itself, not a copy,
// which only works because the reader publishes a shell under the object's
// id before filling it in.
func TestArchiveCycleSelfReferentialMap(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	k := rt.Key("self")
	require.NoError(t, rt.mapAssignBase(m, k, m))

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, m))

	restored, err := rt.Restore(&buf, nil)
	require.NoError(t, err)
	rm, ok := restored.(*Map)
	require.True(t, ok)

	selfVal, err := rt.mapFetch(rm, rt.Key("self"))
	require.NoError(t, err)
	require.Same(t, rm, selfVal)
}

func TestArchiveMapWithSuper(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	base := rt.NewMap()
	require.NoError(t, rt.mapAssignBase(base, rt.Key("greeting"), rt.NewString("hi")))
	derived := rt.NewMapWithSuper(base)
	require.NoError(t, rt.mapAssignBase(derived, rt.Key("own"), rt.NewInt(1)))

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, derived))

	restored, err := rt.Restore(&buf, nil)
	require.NoError(t, err)
	rd := restored.(*Map)

	v, err := rt.mapFetch(rd, rt.Key("greeting"))
	require.NoError(t, err)
	require.Equal(t, "hi", v.(*String).String())
}

func TestArchiveCFuncRequiresScope(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	cf := rt.NewCFunc("double", func(rt *Runtime, subject Object, args []Object) (Object, error) {
		return rt.Null(), nil
	})

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, cf))

	_, err := rt.Restore(&buf, nil)
	require.Error(t, err)
}

func TestArchiveCFuncResolvesFromScope(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	cf := rt.NewCFunc("double", func(rt *Runtime, subject Object, args []Object) (Object, error) {
		return rt.Null(), nil
	})
	scope := rt.NewMap()
	require.NoError(t, rt.mapAssignBase(scope, rt.Key("double"), cf))

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf, cf))

	restored, err := rt.Restore(&buf, scope)
	require.NoError(t, err)
	require.Same(t, cf, restored)
}
