// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "sync/atomic"

// Default and minimum GC threshold, matching the original's 256 KiB floor
// and "max(floor, 1.5 * live bytes)" growth rule.
const (
	defaultGCThreshold uint64 = 256 * 1024
	gcThresholdFactor         = 3 // threshold = live*3/2, kept as integer math
)

// accountant tracks bytes attributed to live objects and decides when the
// allocator should trigger a synchronous collection before returning a new
// object to its caller. It is the Go-idiomatic stand-in for the original's
// global byte counter plus per-size free lists: Go's own allocator already
// supplies the free lists, so this type only does the accounting and
// threshold policy the spec requires as observable behavior.
type accountant struct {
	bytes     uint64 // accumulated bytes since the last collection
	threshold uint64 // current GC trigger threshold
	suppress  int32  // supress_collect: >0 disables synchronous GC
}

func newAccountant() *accountant {
	return &accountant{threshold: defaultGCThreshold}
}

// suppressCollectFn disables GC-on-allocate for the duration of a delicate
// section (atom-pool growth, object construction before registration, the
// archiver's record step) and returns a function that re-enables it. These
// sections must not themselves allocate in a way that could re-enter a
// sweep mid-construction.
func (a *accountant) suppressCollectFn() func() {
	atomic.AddInt32(&a.suppress, 1)
	return func() { atomic.AddInt32(&a.suppress, -1) }
}

func (a *accountant) suppressed() bool {
	return atomic.LoadInt32(&a.suppress) > 0
}

// charge adds n bytes to the running total and reports whether the
// threshold has been breached and a synchronous collection should run
// before the caller's allocation is handed back.
func (a *accountant) charge(n uintptr) bool {
	total := atomic.AddUint64(&a.bytes, uint64(n))
	if a.suppressed() {
		return false
	}
	return total > a.threshold
}

// settle is called after a collection with the freshly measured live-byte
// total; it resets the running counter and recomputes the threshold.
func (a *accountant) settle(liveBytes uint64) {
	atomic.StoreUint64(&a.bytes, 0)
	next := liveBytes * gcThresholdFactor / 2
	if next < defaultGCThreshold {
		next = defaultGCThreshold
	}
	atomic.StoreUint64(&a.threshold, next)
}

// allocTyped is the "typed" allocation path (§4.2): it charges the
// accountant for sz bytes and runs a synchronous GC first if that breaches
// the threshold. The actual memory comes from Go's allocator (via the
// caller's `new`/composite literal) — this only enforces the spec's
// threshold-triggered-GC contract and object bookkeeping.
func (rt *Runtime) allocTyped(sz uintptr, o Object) {
	if rt.acct.charge(sz) {
		rt.collectLocked()
	}
	rt.registerObject(o)
}

// allocRaw is the "raw bytes" path (§4.2), used by types that own a
// variable-size buffer (string bytes, array backing store, map slot
// table) in addition to their fixed struct.
func (rt *Runtime) allocRaw(n int) {
	if rt.acct.charge(uintptr(n)) {
		rt.collectLocked()
	}
}
