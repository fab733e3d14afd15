// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapAssignFetch(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	k := rt.Key("x")
	require.NoError(t, rt.mapAssign(m, k, rt.NewInt(10)))

	v, err := rt.mapFetch(m, k)
	require.NoError(t, err)
	require.Equal(t, int64(10), v.(*Int).Value)
}

func TestMapInheritanceFetchWalksSuper(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	base := rt.NewMap()
	require.NoError(t, rt.mapAssignBase(base, rt.Key("greeting"), rt.NewString("hi")))

	derived := rt.NewMapWithSuper(base)
	v, err := rt.mapFetch(derived, rt.Key("greeting"))
	require.NoError(t, err)
	require.Equal(t, "hi", v.(*String).String())
}

func TestMapAssignPrefersExistingSuperSlot(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	base := rt.NewMap()
	k := rt.Key("counter")
	require.NoError(t, rt.mapAssignBase(base, k, rt.NewInt(1)))

	derived := rt.NewMapWithSuper(base)
	require.NoError(t, rt.mapAssign(derived, k, rt.NewInt(2)))

	v, _ := rt.mapFetchBase(base, k)
	require.Equal(t, int64(2), v.(*Int).Value)

	ownVal, _ := rt.mapFetchBase(derived, k)
	require.Nil(t, ownVal)
}

// TestMapFetchSuperLookasideSurvivesSmallerBase covers a large super (class)
// map with many slots and a small derived (instance) map inheriting from
// it: a lookaside stamped during the super-chain walk must stay valid for
// the map that actually owns the slot, not index past the end of the
// smaller base's own (much shorter) slot table on a later fetch.
func TestMapFetchSuperLookasideSurvivesSmallerBase(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	class := rt.NewMap()
	for i := 0; i < 200; i++ {
		require.NoError(t, rt.mapAssignBase(class, rt.Key(string(rune('a'+i%26))+string(rune('0'+i/26))), rt.NewInt(int64(i))))
	}
	require.NoError(t, rt.mapAssignBase(class, rt.Key("greeting"), rt.NewString("hi")))

	instance := rt.NewMapWithSuper(class)

	v, err := rt.mapFetch(instance, rt.Key("greeting"))
	require.NoError(t, err)
	require.Equal(t, "hi", v.(*String).String())

	// Re-fetch from the same small instance: must not panic indexing into
	// instance's own (much smaller) slot table using an index sized for
	// class's slot table.
	v2, err := rt.mapFetch(instance, rt.Key("greeting"))
	require.NoError(t, err)
	require.Equal(t, "hi", v2.(*String).String())
}

func TestMapAssignInsertsLocalWhenAbsentFromSuper(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	base := rt.NewMap()
	derived := rt.NewMapWithSuper(base)
	k := rt.Key("local")
	require.NoError(t, rt.mapAssign(derived, k, rt.NewInt(9)))

	v, _ := rt.mapFetchBase(derived, k)
	require.Equal(t, int64(9), v.(*Int).Value)
}

func TestMapDeleteKeyPreservesProbeClosure(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	keys := []string{"a", "b", "c", "d", "e"}
	for i, k := range keys {
		require.NoError(t, rt.mapAssignBase(m, rt.Key(k), rt.NewInt(int64(i))))
	}
	require.NoError(t, rt.DeleteKey(m, rt.Key("b")))

	for i, k := range keys {
		if k == "b" {
			continue
		}
		v, err := rt.mapFetch(m, rt.Key(k))
		require.NoError(t, err)
		require.Equal(t, int64(i), v.(*Int).Value)
	}
}

func TestMapGrowRehashesLiveEntries(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	for i := 0; i < 50; i++ {
		require.NoError(t, rt.mapAssignBase(m, rt.Key(string(rune('a'+i%26))+string(rune('0'+i/26))), rt.NewInt(int64(i))))
	}
	require.Equal(t, 50, m.count)
}

func TestMapAtomRejectsAssign(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	m.setFlag(FlagAtom)
	err := rt.mapAssign(m, rt.Key("x"), rt.NewInt(1))
	require.Error(t, err)
	k, _ := ErrorKind(err)
	require.Equal(t, KindAtomicityViolation, k)
}

func TestMapForall(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	m := rt.NewMap()
	require.NoError(t, rt.mapAssignBase(m, rt.Key("a"), rt.NewInt(1)))
	require.NoError(t, rt.mapAssignBase(m, rt.Key("b"), rt.NewInt(2)))

	it, err := rt.mapForall(m)
	require.NoError(t, err)
	sum := int64(0)
	for {
		_, v, ok, err := it.Advance(rt)
		require.NoError(t, err)
		if !ok {
			break
		}
		sum += v.(*Int).Value
	}
	require.Equal(t, int64(3), sum)
}
