// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "go.uber.org/zap"

// atomPool is the process-... Runtime-wide open-addressed hash table of
// interned objects. Unlike the teacher's bucketed runtime map (bucketCnt=8
// slots sharing a tophash array, _examples/erlangtui-go1.17.13/.../map.go),
// the original atom pool — and this port — uses straight open addressing
// with a downward, wrapping probe sequence, load factor capped at 0.5 and
// power-of-two sizing, matching the balios-style open-addressed cache's
// table-mask approach (other_examples/e360e9cb_agilira-balios__cache.go.go)
// more closely than a bucketed table.
type atomPool struct {
	slots []Object // nil = empty slot
	count int
}

const atomPoolInitialSize = 64 // power of two

func newAtomPool() *atomPool {
	return &atomPool{slots: make([]Object, atomPoolInitialSize)}
}

func (p *atomPool) mask() uint64 { return uint64(len(p.slots) - 1) }

// atomProbeFrom walks the table downward from start (with wraparound, per
// spec's "probing walks downward with wraparound"), stopping at the first
// empty slot or a match for o under the given type descriptor. It returns
// the index of the match, or the index of the first empty slot encountered
// if none matches, plus whether a match was found.
func (rt *Runtime) atomProbeFrom(td *TypeDescriptor, o Object, start uint64) (idx int, found bool) {
	p := rt.atoms
	mask := p.mask()
	i := start & mask
	for {
		cur := p.slots[i]
		if cur == nil {
			return int(i), false
		}
		if td.Cmp(cur, o) {
			return int(i), true
		}
		if i == 0 {
			i = mask
		} else {
			i--
		}
	}
}

// AtomProbe is the non-inserting form: it returns the existing atom for o
// (by value, per td.Cmp) if present, or nil plus the slot where an
// insertion would go. Callers may then build the real object and insert it
// without re-probing, bracketed by a suppressed-collect section.
func (rt *Runtime) AtomProbe(o Object) (existing Object, slot int) {
	td := rt.typeOf(o)
	h := td.Hash(o)
	idx, found := rt.atomProbeFrom(td, o, h)
	if found {
		return rt.atoms.slots[idx], idx
	}
	return nil, idx
}

// Atom interns o: if o is already atomic it is returned unchanged. lone
// signals that the caller's reference to o may be discarded in favor of the
// pool's canonical instance (the common "build then intern" pattern);
// without lone, a fresh copy is interned and o is left untouched so the
// caller keeps an independent, mutable value.
func (rt *Runtime) Atom(o Object, lone bool) Object {
	h := o.header()
	if h.hasFlag(FlagAtom) {
		return o
	}
	td := rt.typeOf(o)

	done := rt.acct.suppressCollectFn()
	defer done()

	hv := td.Hash(o)
	idx, found := rt.atomProbeFrom(td, o, hv)
	if found {
		existing := rt.atoms.slots[idx]
		if lone {
			existing.header().Bump(int(h.nrefs))
			h.nrefs = 0
		}
		return existing
	}

	var toInsert Object
	if lone {
		toInsert = o
	} else {
		toInsert = td.Copy(rt, o)
	}
	toInsert.header().setFlag(FlagAtom)
	rt.atoms.insertAt(idx, toInsert)
	if rt.growAtomsIfNeeded() {
		// table moved; nothing further to do, insertAt already placed it
		// pre-growth and growth rehashes every live atom including it.
	}
	return toInsert
}

func (p *atomPool) insertAt(idx int, o Object) {
	p.slots[idx] = o
	p.count++
}

// growAtomsIfNeeded doubles the table when load exceeds 0.5. Per §4.3, if
// more than half the atoms are unreferenced (held only by the pool), a
// pre-growth collection is attempted first; if that recovers enough load,
// growth is skipped.
func (rt *Runtime) growAtomsIfNeeded() bool {
	p := rt.atoms
	if float64(p.count) <= float64(len(p.slots))*0.5 {
		return false
	}

	unreferenced := 0
	for _, o := range p.slots {
		if o != nil && o.header().nrefs == 0 {
			unreferenced++
		}
	}
	if unreferenced*2 > p.count {
		rt.collectLocked()
		if float64(p.count) <= float64(len(p.slots))*0.5 {
			return false
		}
	}

	done := rt.acct.suppressCollectFn()
	defer done()

	old := p.slots
	p.slots = make([]Object, len(old)*2)
	p.count = 0
	for _, o := range old {
		if o == nil {
			continue
		}
		td := rt.typeOf(o)
		hv := td.Hash(o)
		idx, _ := rt.atomProbeFrom(td, o, hv)
		p.slots[idx] = o
		p.count++
	}
	if rt.log != nil {
		rt.log.Debug("atom pool grown", zap.Int("new_size", len(p.slots)), zap.Int("count", p.count))
	}
	return true
}

// remove clears o's slot during sweep and bubbles up subsequent entries
// that would rather live at or before the cleared slot, preserving the
// open-addressing probe-closure invariant (§8 "Probe closure") without a
// full rehash. It needs the owning Runtime to recompute hashes, so it's a
// Runtime method rather than a bare *atomPool one.
func (rt *Runtime) atomRemove(o Object) {
	p := rt.atoms
	idx := -1
	for i, s := range p.slots {
		if s == o {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	p.slots[idx] = nil
	p.count--

	size := uint64(len(p.slots))
	mask := size - 1
	hole := uint64(idx)
	i := hole
	for {
		if i == 0 {
			i = mask
		} else {
			i--
		}
		cand := p.slots[i]
		if cand == nil {
			return
		}
		td := rt.typeOf(cand)
		home := td.Hash(cand) & mask
		// Downward-probing backward-shift condition: hole is valid for
		// cand if, walking backward (decrementing, wrapping) from cand's
		// home slot, hole is reached at or before the slot it's leaving.
		distHole := (home - hole) % size
		distCur := (home - i) % size
		if distHole <= distCur {
			p.slots[hole] = cand
			p.slots[i] = nil
			hole = i
		}
	}
}
