// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

// mapSlot holds one (key, value) pair; a nil Key marks an empty slot. There
// are no tombstones — deletion bubbles subsequent entries back into the
// hole (see deleteSlot), exactly like the atom pool's removal in atom.go.
type mapSlot struct {
	Key   Object
	Value Object
}

// Map is the sole inheritance mechanism (§9): an ordered open-addressed
// hash with an optional Super pointer forming a single-inheritance chain.
// The teacher's own bucketed hash map
// (_examples/erlangtui-go1.17.13/src/runtime/map.go) documents its load
// factor trade-off in a table; this port keeps that spirit of
// "document the load choice" but implements straight open addressing with
// downward wrapping probes per §4.5, not buckets.
type Map struct {
	Header
	Super *Map
	slots []mapSlot
	count int
}

const (
	mapInitialSize  = 8 // power of two
	mapLoadFactor   = 0.75
	mapGrowDivisor  = 4 // grow when count*4 > len(slots)*3  (i.e. > 0.75)
	mapGrowMultiple = 3
)

func newMapType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "map",
		Caps: CapObjName | CapFetch | CapAssign | CapSuper | CapForall,
		Mark: func(rt *Runtime, o Object) uintptr {
			m := o.(*Map)
			var n uintptr = 48 + uintptr(len(m.slots))*16
			for _, s := range m.slots {
				if s.Key != nil {
					n += rt.markObject(s.Key)
					n += rt.markObject(s.Value)
				}
			}
			if m.Super != nil {
				n += rt.markObject(m.Super)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			return a.(*Map) == b.(*Map) // maps intern by identity only
		},
		Hash: func(o Object) uint64 {
			return hashInt64(int64(mapIdentity(o.(*Map))))
		},
		Copy: func(rt *Runtime, o Object) Object {
			m := o.(*Map)
			cp := &Map{Super: m.Super, slots: make([]mapSlot, len(m.slots)), count: m.count}
			copy(cp.slots, m.slots)
			return cp
		},
		Fetch:       (*Runtime).mapFetch,
		Assign:      (*Runtime).mapAssign,
		FetchSuper:  (*Runtime).mapFetchSuper,
		AssignSuper: (*Runtime).mapAssignSuper,
		FetchBase:   (*Runtime).mapFetchBase,
		AssignBase:  (*Runtime).mapAssignBase,
		ObjName:     func(o Object) string { return "map" },
		Forall:      (*Runtime).mapForall,
	}
}

// mapIdentity gives every Map a stable integer for hashing purposes even
// though maps otherwise only ever compare by pointer identity (they are
// reference types; two maps are "equal" only if they are the same map).
func mapIdentity(m *Map) uintptr {
	return identityOf(m)
}

// NewMap allocates a fresh, non-atomic, superless map with room for
// mapInitialSize slots.
func (rt *Runtime) NewMap() *Map {
	o := &Map{slots: make([]mapSlot, mapInitialSize)}
	o.tcode = TCodeMap
	o.nrefs = 1
	rt.allocRaw(mapInitialSize * 16)
	rt.allocTyped(48, o)
	return o
}

// NewMapWithSuper is NewMap plus an initial super pointer.
func (rt *Runtime) NewMapWithSuper(super *Map) *Map {
	m := rt.NewMap()
	m.Super = super
	if super != nil {
		m.setFlag(FlagSuper)
	}
	return m
}

func (m *Map) mask() uint64 { return uint64(len(m.slots) - 1) }

func mapProbeFrom(m *Map, key Object, start uint64) (idx int, found bool) {
	mask := m.mask()
	i := start & mask
	for {
		s := &m.slots[i]
		if s.Key == nil {
			return int(i), false
		}
		if s.Key == key {
			return int(i), true
		}
		if i == 0 {
			i = mask
		} else {
			i--
		}
	}
}

func (rt *Runtime) hashKey(key Object) uint64 {
	return rt.typeOf(key).Hash(key)
}

// mapFetchBase looks up key in m's own slot table only, never following
// lookaside or super.
func (rt *Runtime) mapFetchBase(o Object, key Object) (Object, error) {
	m := o.(*Map)
	idx, found := mapProbeFrom(m, key, rt.hashKey(key))
	if !found {
		return nil, nil
	}
	return m.slots[idx].Value, nil
}

// mapFetchSuper walks m's super chain only (not m itself).
func (rt *Runtime) mapFetchSuper(o Object, key Object) (Object, error) {
	m := o.(*Map)
	for s := m.Super; s != nil; s = s.Super {
		if v, _ := rt.mapFetchBase(s, key); v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// mapFetch is the full fetch protocol (§4.5): lookaside fast path, probe
// base, walk super; a successful super-chain hit stamps the lookaside
// against whichever map in the chain actually owns the slot, so the fast
// path's slot index is always valid for the map it's checked against.
func (rt *Runtime) mapFetch(o Object, key Object) (Object, error) {
	m := o.(*Map)
	if sk, ok := key.(*String); ok && sk.lookasideValid(rt) && sk.lookasideMap != nil {
		if cur := sk.lookasideMap; cur == m {
			s := &cur.slots[sk.lookasideSlot]
			if s.Key == key {
				return s.Value, nil
			}
		}
	}

	if idx, found := mapProbeFrom(m, key, rt.hashKey(key)); found {
		if sk, ok := key.(*String); ok {
			sk.setLookaside(rt, m, idx)
		}
		return m.slots[idx].Value, nil
	}

	for s := m.Super; s != nil; s = s.Super {
		if idx, found := mapProbeFrom(s, key, rt.hashKey(key)); found {
			if sk, ok := key.(*String); ok {
				// Stamp against s, the map the slot actually belongs to —
				// not m, the base the walk started from. m and s can have
				// differently sized slot tables, so recording idx against
				// the wrong map lets a later fast-path read index past the
				// end of its own slots.
				sk.setLookaside(rt, s, idx)
			}
			return s.slots[idx].Value, nil
		}
	}
	return nil, nil
}

// mapAssignBase inserts/overwrites key in m's own slot table, growing if
// the load factor would be exceeded. It fails on an atomic map.
func (rt *Runtime) mapAssignBase(o Object, key, val Object) error {
	m := o.(*Map)
	if m.hasFlag(FlagAtom) {
		return rt.atomicityViolation("assign", m)
	}
	if (m.count+1)*mapGrowDivisor > len(m.slots)*mapGrowMultiple {
		rt.mapGrow(m)
	}
	idx, found := mapProbeFrom(m, key, rt.hashKey(key))
	m.slots[idx] = mapSlot{Key: key, Value: val}
	if !found {
		m.count++
	}
	if sk, ok := key.(*String); ok {
		sk.setLookaside(rt, m, idx)
	}
	return nil
}

// mapAssignSuper walks the chain, updating the first non-atomic map that
// already contains key; it does not insert if none do.
func (rt *Runtime) mapAssignSuper(o Object, key, val Object) error {
	m := o.(*Map)
	for s := m.Super; s != nil; s = s.Super {
		if s.hasFlag(FlagAtom) {
			continue
		}
		if idx, found := mapProbeFrom(s, key, rt.hashKey(key)); found {
			s.slots[idx].Value = val
			if sk, ok := key.(*String); ok {
				sk.setLookaside(rt, s, idx)
			}
			return nil
		}
	}
	return errNotFoundInSuper
}

var errNotFoundInSuper = newError(KindUndefinedName, "key not found in any super")

// mapAssign is the full assignment policy (§4.5 numbered list):
//  1. lookaside fast path (non-atomic base only)
//  2. probe base; overwrite if found
//  3. walk super via AssignSuper
//  4. insert into base if not atomic
func (rt *Runtime) mapAssign(o Object, key, val Object) error {
	m := o.(*Map)

	if sk, ok := key.(*String); ok && sk.lookasideValid(rt) && sk.lookasideMap == m && !m.hasFlag(FlagAtom) {
		s := &m.slots[sk.lookasideSlot]
		if s.Key == key {
			s.Value = val
			return nil
		}
	}

	if idx, found := mapProbeFrom(m, key, rt.hashKey(key)); found {
		m.slots[idx].Value = val
		if sk, ok := key.(*String); ok {
			sk.setLookaside(rt, m, idx)
		}
		return nil
	}

	if m.Super != nil {
		if err := rt.mapAssignSuper(m, key, val); err == nil {
			return nil
		}
	}

	if m.hasFlag(FlagAtom) {
		return rt.atomicityViolation("assign", m)
	}
	return rt.mapAssignBase(m, key, val)
}

// mapGrow doubles m's slot table, rehashing every live entry and bumping
// vsver since the rehash invalidates every lookaside pointing at m.
func (rt *Runtime) mapGrow(m *Map) {
	old := m.slots
	m.slots = make([]mapSlot, len(old)*2)
	m.count = 0
	for _, s := range old {
		if s.Key == nil {
			continue
		}
		idx, _ := mapProbeFrom(m, s.Key, rt.hashKey(s.Key))
		m.slots[idx] = s
		m.count++
	}
	rt.vsver++
	rt.allocRaw(len(m.slots) * 16)
}

// DeleteKey removes key from m's own slot table (not the super chain),
// bubbling subsequent entries back into the hole exactly like the atom
// pool's removal, and bumps vsver since moved entries invalidate their
// string keys' lookasides.
func (rt *Runtime) DeleteKey(m *Map, key Object) error {
	if m.hasFlag(FlagAtom) {
		return rt.atomicityViolation("delete", m)
	}
	idx, found := mapProbeFrom(m, key, rt.hashKey(key))
	if !found {
		return nil
	}
	m.slots[idx] = mapSlot{}
	m.count--

	size := uint64(len(m.slots))
	mask := size - 1
	hole := uint64(idx)
	i := hole
	for {
		if i == 0 {
			i = mask
		} else {
			i--
		}
		cand := m.slots[i]
		if cand.Key == nil {
			break
		}
		home := rt.hashKey(cand.Key) & mask
		distHole := (home - hole) % size
		distCur := (home - i) % size
		if distHole <= distCur {
			m.slots[hole] = cand
			m.slots[i] = mapSlot{}
			hole = i
		}
	}
	rt.vsver++
	return nil
}

// mapIter implements Iterator for forall over a map's live (key, value)
// pairs in slot order.
type mapIter struct {
	m   *Map
	pos int
}

func (it *mapIter) Advance(rt *Runtime) (Object, Object, bool, error) {
	for it.pos < len(it.m.slots) {
		s := it.m.slots[it.pos]
		it.pos++
		if s.Key != nil {
			return s.Key, s.Value, true, nil
		}
	}
	return nil, nil, false, nil
}

func (rt *Runtime) mapForall(o Object) (Iterator, error) {
	return &mapIter{m: o.(*Map)}, nil
}

