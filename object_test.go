// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderFlags(t *testing.T) {
	var h Header
	require.False(t, h.IsAtom())
	h.setFlag(FlagAtom)
	require.True(t, h.IsAtom())
	h.clearFlag(FlagAtom)
	require.False(t, h.IsAtom())
}

func TestHeaderBumpSaturates(t *testing.T) {
	var h Header
	h.Bump(300)
	require.Equal(t, uint8(255), h.Nrefs())
	h.Bump(-1000)
	require.Equal(t, uint8(0), h.Nrefs())
}

func TestIdentityOfDistinctInstances(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a := rt.NewMap()
	b := rt.NewMap()
	require.NotEqual(t, identityOf(a), identityOf(b))
	require.Equal(t, identityOf(a), identityOf(a))
}

func TestCapabilityHas(t *testing.T) {
	c := CapFetch | CapAssign
	require.True(t, c.Has(CapFetch))
	require.True(t, c.Has(CapAssign))
	require.False(t, c.Has(CapCall))
}

func TestTypeOfDispatch(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	i := rt.NewInt(7)
	td := rt.typeOf(i)
	require.Equal(t, "int", td.Name)
	require.Equal(t, TCodeInt, td.Tcode)
}

func TestRegisterDynamicType(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	tc := rt.RegisterType(&TypeDescriptor{Name: "widget"})
	require.GreaterOrEqual(t, int(tc), int(firstDynamicTcode))
	require.Equal(t, "widget", rt.types.lookup(tc).Name)
}
