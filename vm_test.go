// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmetic(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	code := []Object{rt.NewInt(1), rt.NewInt(2), rt.BinopOp(BinAdd, false)}
	res, err := rt.Evaluate(code)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.(*Int).Value)
}

func TestEvaluateEmptyCodeYieldsNull(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	res, err := rt.Evaluate(nil)
	require.NoError(t, err)
	require.Same(t, rt.Null(), res)
}

func TestEvaluateIfTrueBranch(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	ifOp := rt.NewOp(OpIf, 0)
	ifOp.Body = []Object{rt.NewInt(99)}

	code := []Object{rt.NewInt(1), ifOp}
	res, err := rt.Evaluate(code)
	require.NoError(t, err)
	require.Equal(t, int64(99), res.(*Int).Value)
}

func TestEvaluateIfFalseBranchSkipsBody(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	ifOp := rt.NewOp(OpIf, 0)
	ifOp.Body = []Object{rt.NewInt(99)}

	code := []Object{rt.NewInt(0), ifOp, rt.NewInt(7)}
	res, err := rt.Evaluate(code)
	require.NoError(t, err)
	require.Equal(t, int64(7), res.(*Int).Value)
}

func TestEvaluateIfElse(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	ifElseOp := rt.NewOp(OpIfElse, 0)
	ifElseOp.Body = []Object{rt.NewInt(1)}
	ifElseOp.Else = []Object{rt.NewInt(2)}

	res, err := rt.Evaluate([]Object{rt.NewInt(0), ifElseOp})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.(*Int).Value)
}

func TestEvaluateLoopBreak(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	loopOp := rt.NewOp(OpLoop, 0)
	loopOp.Body = []Object{rt.NewOp(OpBreak, 0)}

	code := []Object{loopOp, rt.NewInt(5)}
	res, err := rt.Evaluate(code)
	require.NoError(t, err)
	require.Equal(t, int64(5), res.(*Int).Value)
}

func TestEvaluateSwitch(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	sw := rt.NewOp(OpSwitch, 0)
	sw.Cases = map[int64]int{2: 0}
	sw.Body = []Object{rt.NewInt(200)}
	sw.Else = []Object{rt.NewInt(999)}

	res, err := rt.Evaluate([]Object{rt.NewInt(2), sw})
	require.NoError(t, err)
	require.Equal(t, int64(200), res.(*Int).Value)

	res2, err := rt.Evaluate([]Object{rt.NewInt(3), sw})
	require.NoError(t, err)
	require.Equal(t, int64(999), res2.(*Int).Value)
}

func TestEvaluateCatcherRecoversError(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	handler := rt.NewCFunc("onerror", func(rt *Runtime, subject Object, args []Object) (Object, error) {
		return rt.NewInt(-1), nil
	})

	catcher := rt.newCatcher(0, 0, 0, handler)
	divByZero := rt.NewOp(OpBinop, 0)
	divByZero.Bin = BinDiv

	ec := rt.newExecContext()
	ec.xs = append(ec.xs, rt.newMark(), catcher, rt.newPC([]Object{
		rt.NewInt(1), rt.NewInt(0), divByZero,
	}))
	err := rt.runExec(ec)
	require.NoError(t, err)
	require.Equal(t, int64(-1), ec.os[len(ec.os)-1].(*Int).Value)
}

func TestInstructionsExecutedCounts(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	ec := rt.newExecContext()
	ec.xs = append(ec.xs, rt.newMark(), rt.newPC([]Object{
		rt.NewInt(1), rt.NewInt(2), rt.BinopOp(BinAdd, false),
	}))
	require.NoError(t, rt.runExec(ec))
	// 3 code elements each cost a push-from-PC step plus a pop step (the
	// binop's pop doubles as its own execution), then the PC and Mark
	// frames themselves each cost one more pop: (3*2) + 2 = 8.
	require.Equal(t, uint64(8), ec.InstructionsExecuted())
}

// TestOpSuperCallResolvesOneLevelUp confirms super.method() finds the
// base's implementation rather than looping back into the override that
// shadows it on the same map.
func TestOpSuperCallResolvesOneLevelUp(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	base := rt.NewMap()
	greetBase := rt.NewCFunc("greetBase", func(rt *Runtime, subject Object, args []Object) (Object, error) {
		return rt.NewString("base"), nil
	})
	require.NoError(t, rt.mapAssignBase(base, rt.Key("greet"), greetBase))

	derived := rt.NewMapWithSuper(base)
	greetDerived := rt.NewCFunc("greetDerived", func(rt *Runtime, subject Object, args []Object) (Object, error) {
		return rt.NewString("derived"), nil
	})
	require.NoError(t, rt.mapAssignBase(derived, rt.Key("greet"), greetDerived))

	ec := rt.newExecContext()
	ec.os = append(ec.os, rt.NewInt(0), rt.Key("greet"), derived)
	require.NoError(t, rt.opSuperCall(ec))
	require.Equal(t, "base", ec.os[len(ec.os)-1].(*String).String())
}

func TestOpSuperCallUndefinedNameWhenNoSuperHasIt(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	derived := rt.NewMap() // no Super at all
	ec := rt.newExecContext()
	ec.os = append(ec.os, rt.NewInt(0), rt.Key("greet"), derived)
	err := rt.opSuperCall(ec)
	require.Error(t, err)
	k, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindUndefinedName, k)
}

func TestOpAssignToNameThenNameLValue(t *testing.T) {
	rt := NewRuntime()
	defer rt.Uninit()

	code := []Object{
		rt.Key("x"), rt.NewInt(5), rt.NewOp(OpAssignToName, 0),
		rt.NewOp(OpPop, 0),
		rt.Key("x"), rt.NewOp(OpNameLValue, 0),
	}
	ec := rt.newExecContext()
	ec.vs = append(ec.vs, rt.NewMap())
	ec.xs = append(ec.xs, rt.newMark(), rt.newPC(code))
	require.NoError(t, rt.runExec(ec))
	require.Equal(t, int64(5), ec.os[len(ec.os)-1].(*Int).Value)
}
