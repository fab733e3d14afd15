// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegexpMatchSimple(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`\d+`, 0)
	require.NoError(t, err)

	start, end, matched, err := rt.Match(re, "order 42 shipped")
	require.NoError(t, err)
	require.True(t, matched)
	require.Equal(t, "42", "order 42 shipped"[start:end])
}

func TestRegexpNoMatch(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`\d+`, 0)
	require.NoError(t, err)

	_, _, matched, err := rt.Match(re, "no digits here")
	require.NoError(t, err)
	require.False(t, matched)
}

func TestRegexpCaselessOption(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`hello`, RegexpCaseless)
	require.NoError(t, err)

	_, _, matched, err := rt.Match(re, "HELLO world")
	require.NoError(t, err)
	require.True(t, matched)
}

// TestRegexpBackreference exercises a construct RE2 cannot express at all,
// grounding the choice of regexp2 over the standard library's regexp.
func TestRegexpBackreference(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	re, err := rt.NewRegexp(`(\w+) \1`, 0)
	require.NoError(t, err)

	_, _, matched, err := rt.Match(re, "hello hello world")
	require.NoError(t, err)
	require.True(t, matched)

	_, _, matched2, err := rt.Match(re, "hello world")
	require.NoError(t, err)
	require.False(t, matched2)
}

func TestRegexpInvalidPatternErrors(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	_, err := rt.NewRegexp(`(unclosed`, 0)
	require.Error(t, err)
}

func TestRegexpAtomCollapsesEqualPatterns(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	a, err := rt.NewRegexp(`\d+`, 0)
	require.NoError(t, err)
	b, err := rt.NewRegexp(`\d+`, 0)
	require.NoError(t, err)
	require.NotSame(t, a, b)

	aa := rt.Atom(a, true)
	bb := rt.Atom(b, true)
	require.Same(t, aa, bb)
}
