// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ThreadGroup holds the concurrency bookkeeping shared by every exec
// context spawned via Go: a condition variable parked on the Runtime's
// single global mutex (§5 "Parallel OS threads... sharing a single global
// mutex"), an errgroup tracking live goroutines, and a semaphore capping
// how many may run at once.
type ThreadGroup struct {
	cond *sync.Cond
	grp  *errgroup.Group
	sem  *semaphore.Weighted
}

func newThreadGroup(mu sync.Locker, maxThreads int64) *ThreadGroup {
	return &ThreadGroup{
		cond: sync.NewCond(mu),
		grp:  &errgroup.Group{},
		sem:  semaphore.NewWeighted(maxThreads),
	}
}

// Enter reacquires the global mutex on behalf of ec, the counterpart to
// Leave. Unlike the original's stack-swap dance, ec's stacks are fields on
// the struct itself, so there is nothing to swap into a cached global —
// acquiring the mutex is the whole of it.
func (rt *Runtime) Enter(ec *ExecContext) {
	rt.mu.Lock()
}

// Leave releases the global mutex; the caller promises not to touch any
// managed object until the matching Enter returns. Used around blocking
// I/O in cfunc implementations.
func (rt *Runtime) Leave(ec *ExecContext) {
	rt.mu.Unlock()
}

// Yield releases and reimmediately reacquires the mutex, giving another
// thread a chance to run; a no-op inside a critical section.
func (rt *Runtime) Yield(ec *ExecContext) {
	if ec.critDepth > 0 {
		return
	}
	rt.thread.cond.Broadcast()
	rt.mu.Unlock()
	rt.mu.Lock()
}

// WaitFor blocks ec on obj (§5 waitfor): record obj, release the mutex,
// block on the shared condition variable, and on wakeup reacquire and
// clear the wait-for slot. Spurious wakeups are allowed; callers loop on
// their own wait condition, exactly as Wakeup's doc warns.
func (rt *Runtime) WaitFor(ec *ExecContext, obj Object) error {
	if ec.critDepth > 0 {
		return rt.atomicityViolation("waitfor", obj)
	}
	ec.waitFor = obj
	for ec.waitFor != nil {
		rt.thread.cond.Wait()
	}
	if ec.err != nil {
		err := ec.err
		ec.err = nil
		return err
	}
	return nil
}

// Wakeup walks the exec list, clearing the wait-for slot of any thread
// waiting on obj and broadcasting so they re-check.
func (rt *Runtime) Wakeup(obj Object) {
	for _, e := range rt.execList {
		if e.waitFor == obj {
			e.waitFor = nil
		}
	}
	rt.thread.cond.Broadcast()
}

// threadHandle is the native payload behind the *Handle a Go call returns
// to script code, letting callers waitfor() on "the thread finishing".
type threadHandle struct {
	ec *ExecContext
}

// Go implements §5's go(callable, args...): allocate a new exec, and
// launch a host goroutine that acquires the mutex, runs the call, records
// the outcome, wakes any waiters on the returned handle, and releases the
// mutex. Returns a *Handle identifying the spawned thread.
func (rt *Runtime) Go(callable Object, args []Object) (*Handle, error) {
	if err := rt.thread.sem.Acquire(context.Background(), 1); err != nil {
		return nil, wrapError(KindResourceExhaustion, err, "thread limit")
	}

	ec := rt.newExecContext()
	ec.threadName = rt.objName(callable)
	handle := rt.NewHandle("thread", &threadHandle{ec: ec}, nil)
	if rt.log != nil {
		rt.log.Debug("thread spawned", zap.String("thread_id", ec.id.String()), zap.String("callable", ec.threadName))
	}

	rt.thread.grp.Go(func() error {
		defer rt.thread.sem.Release(1)
		rt.mu.Lock()
		defer rt.mu.Unlock()

		td := rt.typeOf(callable)
		var res Object
		var err error
		if td.Caps.Has(CapCall) && td.Call != nil {
			res, err = td.Call(rt, callable, nil, args)
		} else {
			err = rt.typeMismatchf("go", callable)
		}

		if err != nil {
			ec.state = StateFailed
			ec.err = err
			if rt.log != nil {
				rt.log.Warn("thread failed", zap.String("thread_id", ec.id.String()), zap.Error(err))
			}
		} else {
			ec.state = StateReturned
			ec.result = res
			if rt.log != nil {
				rt.log.Debug("thread returned", zap.String("thread_id", ec.id.String()))
			}
		}
		rt.dropExecContext(ec)
		rt.Wakeup(handle)
		return nil
	})

	return handle, nil
}

// Wait blocks the caller (which must hold rt.mu, i.e. be inside an
// Enter/Leave bracket) until every goroutine launched via Go has returned.
// Primarily for orderly Runtime shutdown (Uninit), not script-visible.
func (rt *Runtime) Wait() error {
	rt.mu.Unlock()
	err := rt.thread.grp.Wait()
	rt.mu.Lock()
	return err
}
