// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runtime is the single encapsulated interpreter handle §9's "Global
// mutable state" design note calls for: every piece of process-wide state
// the original kept as C globals (vsver, the atom table, small_ints, the
// all-objects list, the per-thread exec list, the error buffer) lives here
// instead, so a process can host more than one independent interpreter.
type Runtime struct {
	mu sync.Mutex

	id uuid.UUID

	types *typeTable
	atoms *atomPool
	acct  *accountant

	allObjects []Object
	execList   []*ExecContext

	smallInts [256]*Int
	nullObj   *Null
	binops    binopCache

	vsver uint64

	thread  *ThreadGroup
	signals *SignalBridge

	log *zap.Logger

	lastErr error

	maxRecursionDepth int
	recursionDepth    int

	atExit []func()
}

// NewRuntime builds a ready-to-use interpreter: the type table, atom pool,
// small-int cache, null singleton, cached binop singletons, thread group,
// and signal bridge are all wired up before returning (§6 init()).
func NewRuntime(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	rt := &Runtime{
		id:                uuid.New(),
		types:             newTypeTable(),
		atoms:             newAtomPool(),
		acct:              newAccountant(),
		log:               cfg.logger,
		maxRecursionDepth: cfg.maxRecursionDepth,
		signals:           newSignalBridge(),
	}
	if cfg.gcThreshold > 0 {
		rt.acct.threshold = cfg.gcThreshold
	}
	rt.thread = newThreadGroup(&rt.mu, cfg.maxThreads)

	rt.registerBuiltinTypes()

	done := rt.acct.suppressCollectFn()
	rt.initSmallInts()
	rt.initNull()
	rt.initBinops()
	done()

	rt.startSignalBridge()

	if rt.log != nil {
		rt.log.Info("runtime initialized",
			zap.String("id", rt.id.String()),
			zap.Uint64("gc_threshold", rt.acct.threshold),
		)
	}
	return rt
}

func (rt *Runtime) registerBuiltinTypes() {
	rt.types.register(TCodeInt, newIntType())
	rt.types.register(TCodeFloat, newFloatType())
	rt.types.register(TCodeNull, newNullType())
	rt.types.register(TCodeString, newStringType())
	rt.types.register(TCodeRegexp, newRegexpType())
	rt.types.register(TCodeArray, newArrayType())
	rt.types.register(TCodeMap, newMapType())
	rt.types.register(TCodeFunc, newFuncType())
	rt.types.register(TCodeCFunc, newCFuncType())
	rt.types.register(TCodeMethod, newMethodType())
	rt.types.register(TCodePtr, newPtrType())
	rt.types.register(TCodeHandle, newHandleType())
	rt.types.register(TCodeOp, newOpType())
	rt.types.register(TCodePC, newPCType())
	rt.types.register(TCodeMark, newMarkType())
	rt.types.register(TCodeCatcher, newCatcherType())
}

// RegisterType plugs in a new type at runtime, returning the tcode it was
// assigned (§4.1, §6 register_type).
func (rt *Runtime) RegisterType(d *TypeDescriptor) uint8 {
	return rt.types.registerDynamic(d)
}

// AtExit registers a callback run once, in LIFO order, during Uninit.
func (rt *Runtime) AtExit(fn func()) {
	rt.atExit = append(rt.atExit, fn)
}

// Uninit drains AtExit callbacks, waits for outstanding threads, runs a
// final collection, and stops the signal bridge (§6 uninit()).
func (rt *Runtime) Uninit() {
	for i := len(rt.atExit) - 1; i >= 0; i-- {
		rt.atExit[i]()
	}
	rt.mu.Lock()
	rt.Wait()
	rt.collectLocked()
	rt.mu.Unlock()
	rt.stopSignalBridge()
	if rt.log != nil {
		_ = rt.log.Sync()
	}
}

// NewMap/NewArray/NewFunc/etc. constructors live alongside their types
// (omap.go, array.go, function.go); Runtime just owns the dispatch below.

// Fetch looks up key on o following the type's full fetch protocol (§4.1).
func (rt *Runtime) Fetch(o Object, key Object) (Object, error) {
	td := rt.typeOf(o)
	if td == nil || !td.Caps.Has(CapFetch) || td.Fetch == nil {
		return nil, rt.typeMismatchf("fetch", o)
	}
	return td.Fetch(rt, o, key)
}

// Assign writes key=val on o following the type's full assignment policy.
func (rt *Runtime) Assign(o Object, key, val Object) error {
	td := rt.typeOf(o)
	if td == nil || !td.Caps.Has(CapAssign) || td.Assign == nil {
		return rt.typeMismatchf("assign", o)
	}
	return td.Assign(rt, o, key, val)
}

// FetchBase/AssignBase/FetchSuper/AssignSuper bypass the full policy to
// touch exactly one level, for callers (the engine, archiver) that need
// base-only or super-only semantics explicitly.
func (rt *Runtime) FetchBase(o Object, key Object) (Object, error) {
	td := rt.typeOf(o)
	if td == nil || td.FetchBase == nil {
		return nil, rt.typeMismatchf("fetch_base", o)
	}
	return td.FetchBase(rt, o, key)
}

func (rt *Runtime) AssignBase(o Object, key, val Object) error {
	td := rt.typeOf(o)
	if td == nil || td.AssignBase == nil {
		return rt.typeMismatchf("assign_base", o)
	}
	return td.AssignBase(rt, o, key, val)
}

func (rt *Runtime) FetchSuper(o Object, key Object) (Object, error) {
	td := rt.typeOf(o)
	if td == nil || td.FetchSuper == nil {
		return nil, rt.typeMismatchf("fetch_super", o)
	}
	return td.FetchSuper(rt, o, key)
}

func (rt *Runtime) AssignSuper(o Object, key, val Object) error {
	td := rt.typeOf(o)
	if td == nil || td.AssignSuper == nil {
		return rt.typeMismatchf("assign_super", o)
	}
	return td.AssignSuper(rt, o, key, val)
}

// Call is the marshalled embedder call entry point (§6 call()): invoke
// callable with an optional subject and already-built argument objects.
func (rt *Runtime) Call(callable Object, subject Object, args []Object) (Object, error) {
	td := rt.typeOf(callable)
	if td == nil || !td.Caps.Has(CapCall) || td.Call == nil {
		return nil, rt.typeMismatchf("call", callable)
	}
	rt.recursionDepth++
	defer func() { rt.recursionDepth-- }()
	if rt.maxRecursionDepth > 0 && rt.recursionDepth > rt.maxRecursionDepth {
		return nil, newError(KindResourceExhaustion, "recursion depth exceeded (%d)", rt.maxRecursionDepth)
	}
	return td.Call(rt, callable, subject, args)
}

// Evaluate runs a pre-built code array to completion in a fresh exec
// context and returns the final operand-stack top (§6 evaluate()).
func (rt *Runtime) Evaluate(code []Object) (Object, error) {
	ec := rt.newExecContext()
	ec.xs = append(ec.xs, rt.newMark())
	ec.xs = append(ec.xs, rt.newPC(code))
	if err := rt.runExec(ec); err != nil {
		return nil, err
	}
	if ec.err != nil {
		return nil, ec.err
	}
	if len(ec.os) == 0 {
		return rt.Null(), nil
	}
	return ec.os[len(ec.os)-1], nil
}

// LastError returns the most recent error recorded by a caught unwind
// (§4.10's per-thread error cell, simplified to one Runtime-wide cell
// since catchers already run under the global mutex).
func (rt *Runtime) LastError() error { return rt.lastErr }
