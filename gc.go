// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "go.uber.org/zap"

// registerObject adds o to the all-objects list. Every heap object is
// registered at birth, before it can be reached from anywhere else.
// allocTyped (alloc.go) runs any threshold-triggered collection before it
// registers the new object, so that collection never sweeps the object
// under construction.
func (rt *Runtime) registerObject(o Object) {
	rt.allObjects = append(rt.allObjects, o)
}

// GCStats summarizes one collection, returned by Collect and logged at
// Debug level.
type GCStats struct {
	Scanned   int
	Freed     int
	LiveBytes uint64
	Threshold uint64
}

// Collect runs a synchronous stop-the-world mark-and-sweep. The caller must
// already hold rt's global mutex (§4.4 "the collector must hold the global
// mutex"); Collect itself does not lock, so embedders calling it directly
// should go through Runtime.GC, which takes the lock for them.
func (rt *Runtime) Collect() GCStats {
	return rt.collectLocked()
}

// GC acquires the global mutex and runs a collection, for use by embedders
// outside an active thread's Enter/Leave bracket.
func (rt *Runtime) GC() GCStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.collectLocked()
}

func (rt *Runtime) collectLocked() GCStats {
	var liveBytes uint64

	// Mark phase: every object with nrefs>0 is a root (§4.4 "Root set").
	// The stacks of each live exec context are plain Go slices, not managed
	// arrays, so they are marked directly from rt.execList as a second root
	// set; each element's own Mark recurses into its contents.
	for _, o := range rt.allObjects {
		h := o.header()
		if h.nrefs == 0 {
			continue
		}
		liveBytes += rt.markObject(o)
	}
	for _, ec := range rt.execList {
		liveBytes += rt.markExecContext(ec)
	}

	// Sweep phase.
	kept := rt.allObjects[:0]
	freed := 0
	for _, o := range rt.allObjects {
		h := o.header()
		if h.hasFlag(FlagMark) {
			h.clearFlag(FlagMark)
			h.setFlag(FlagOld)
			kept = append(kept, o)
			continue
		}
		if h.hasFlag(FlagAtom) {
			rt.atomRemove(o)
		}
		if td := rt.typeOf(o); td != nil && td.Free != nil {
			td.Free(rt, o)
		}
		freed++
	}
	rt.allObjects = kept

	rt.acct.settle(liveBytes)

	stats := GCStats{Scanned: len(kept) + freed, Freed: freed, LiveBytes: liveBytes, Threshold: rt.acct.threshold}
	if rt.log != nil {
		rt.log.Debug("gc cycle",
			zap.Int("scanned", stats.Scanned),
			zap.Int("freed", stats.Freed),
			zap.Uint64("live_bytes", stats.LiveBytes),
			zap.Uint64("threshold", stats.Threshold),
		)
	}
	return stats
}

// markObject marks o (idempotent via FlagMark) and returns the byte count
// attributable to its subtree. Leaf objects (leafz != 0) skip the
// type-specific Mark entirely — the fast path §4.4 calls out.
func (rt *Runtime) markObject(o Object) uintptr {
	h := o.header()
	if h.hasFlag(FlagMark) {
		return 0
	}
	h.setFlag(FlagMark)
	if h.leafz != 0 {
		return uintptr(h.leafz)
	}
	td := rt.typeOf(o)
	if td == nil || td.Mark == nil {
		return 0
	}
	return td.Mark(rt, o)
}

// markExecContext marks the three stacks of a live thread; their contents
// recurse through each element's own Mark. Any pcCloset entries and the
// thread's result are marked alongside.
func (rt *Runtime) markExecContext(ec *ExecContext) uintptr {
	var n uintptr
	for _, o := range ec.os {
		if o != nil {
			n += rt.markObject(o)
		}
	}
	for _, o := range ec.xs {
		if o != nil {
			n += rt.markObject(o)
		}
	}
	for _, sc := range ec.vs {
		if sc != nil {
			n += rt.markObject(sc)
		}
	}
	for _, pc := range ec.pcCloset {
		if pc != nil {
			n += rt.markObject(pc)
		}
	}
	if ec.result != nil {
		n += rt.markObject(ec.result)
	}
	return n
}
