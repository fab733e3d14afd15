// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArrayPushPop(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, rt.NewInt(1)))
	require.NoError(t, rt.Push(a, rt.NewInt(2)))
	require.NoError(t, rt.Push(a, rt.NewInt(3)))
	require.Equal(t, 3, a.Len())

	v, ok, err := rt.Pop(a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), v.(*Int).Value)
	require.Equal(t, 2, a.Len())
}

func TestArrayRPushRPop(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, rt.NewInt(2)))
	require.NoError(t, rt.RPush(a, rt.NewInt(1)))
	require.Equal(t, int64(1), a.Get(0).(*Int).Value)
	require.Equal(t, int64(2), a.Get(1).(*Int).Value)

	v, ok, err := rt.RPop(a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), v.(*Int).Value)
}

func TestArrayGrowsPast1Point5x(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	startCap := a.cap()
	for i := 0; i < 100; i++ {
		require.NoError(t, rt.Push(a, rt.NewInt(int64(i))))
	}
	require.Equal(t, 100, a.Len())
	require.Greater(t, a.cap(), startCap)
	for i := 0; i < 100; i++ {
		require.Equal(t, int64(i), a.Get(i).(*Int).Value)
	}
}

func TestArraySetOutOfRange(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, rt.NewInt(1)))
	err := rt.Set(a, 5, rt.NewInt(9))
	require.Error(t, err)
	k, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindOutOfRange, k)
}

func TestArrayPopOnAtomicRejected(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewArray(0)
	require.NoError(t, rt.Push(a, rt.NewInt(1)))
	a.setFlag(FlagAtom)
	_, _, err := rt.Pop(a)
	require.Error(t, err)
	k, _ := ErrorKind(err)
	require.Equal(t, KindAtomicityViolation, k)
}
