// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archive wire tags. The high bit of the tag byte marks an atomic object;
// tagRef is a distinguished value above every real tcode, used for a
// back-reference record instead of a body.
const (
	tagAtomBit byte = 0x80
	tagRef     byte = 0xFE
)

// archiveWriter implements the depth-first, cycle-safe save side of §4.9:
// objects that may contain back-references are assigned a small integer id
// the first time they're seen (recorded in ids), and re-encountering one
// emits only a back-reference record.
type archiveWriter struct {
	rt   *Runtime
	w    *bufio.Writer
	ids  map[Object]uint32
	next uint32
}

func newArchiveWriter(rt *Runtime, w io.Writer) *archiveWriter {
	return &archiveWriter{rt: rt, w: bufio.NewWriter(w), ids: make(map[Object]uint32)}
}

func (aw *archiveWriter) flush() error { return aw.w.Flush() }

func (aw *archiveWriter) writeU32(v uint32) error { return binary.Write(aw.w, binary.BigEndian, v) }
func (aw *archiveWriter) writeU64(v uint64) error { return binary.Write(aw.w, binary.BigEndian, v) }
func (aw *archiveWriter) writeBytes(b []byte) error {
	if err := aw.writeU32(uint32(len(b))); err != nil {
		return err
	}
	_, err := aw.w.Write(b)
	return err
}

// refTracked reports whether o's type participates in cycle tracking (§4.9:
// maps, arrays, and funcs can hold back-references into themselves, so the
// writer assigns them an id and the reader publishes a shell under it
// before filling the body in. Regexp is deduplicated via atom interning
// like any other value, but its body never refers back to itself or
// anything else, so it stays a plain leaf on the wire — matching
// cyclicTcode, which is what the reader actually keys its id-consuming
// shell/fill path on.
func refTracked(o Object) bool {
	switch o.(type) {
	case *Map, *Array, *Func:
		return true
	default:
		return false
	}
}

// writeRefHeader emits the cycle-tracking prefix for a ref-tracked object:
// either a pure back-reference (tagRef plus the id, if already seen) or the
// object's own tag byte followed by a fresh id the body will be preceded
// by, reporting which happened.
func (aw *archiveWriter) writeRefHeader(o Object, tag byte) (alreadySeen bool, err error) {
	if id, ok := aw.ids[o]; ok {
		if err := aw.w.WriteByte(tagRef); err != nil {
			return false, err
		}
		return true, aw.writeU32(id)
	}
	if err := aw.w.WriteByte(tag); err != nil {
		return false, err
	}
	id := aw.next
	aw.next++
	aw.ids[o] = id
	return false, aw.writeU32(id)
}

// Save serializes obj to w using the wire format in §4.9. Each call is
// tagged with a session id purely for log correlation — it never touches
// the wire format itself.
func (rt *Runtime) Save(w io.Writer, obj Object) error {
	sessionID := uuid.New()
	aw := newArchiveWriter(rt, w)
	if err := aw.writeObject(obj); err != nil {
		if rt.log != nil {
			rt.log.Warn("archive save failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
		return err
	}
	if err := aw.flush(); err != nil {
		return err
	}
	if rt.log != nil {
		rt.log.Debug("archive save ok", zap.String("session_id", sessionID.String()), zap.Uint32("objects", aw.next))
	}
	return nil
}

func (aw *archiveWriter) writeObject(o Object) error {
	if o == nil {
		o = aw.rt.Null()
	}
	td := aw.rt.typeOf(o)
	tag := td.Tcode
	if o.header().IsAtom() {
		tag |= tagAtomBit
	}
	if refTracked(o) {
		seen, err := aw.writeRefHeader(o, tag)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	} else if err := aw.w.WriteByte(tag); err != nil {
		return err
	}

	switch v := o.(type) {
	case *Null:
		return nil
	case *Int:
		return aw.writeU64(uint64(v.Value))
	case *Float:
		return aw.writeU64(math.Float64bits(v.Value))
	case *String:
		return aw.writeBytes(v.Bytes)
	case *Regexp:
		if err := aw.writeU32(uint32(v.Options)); err != nil {
			return err
		}
		return aw.writeBytes([]byte(v.Pattern))
	case *Array:
		if err := aw.writeU32(uint32(v.Len())); err != nil {
			return err
		}
		var werr error
		v.forEachLive(func(e Object) {
			if werr == nil {
				werr = aw.writeObject(e)
			}
		})
		return werr
	case *Map:
		if v.Super != nil {
			if err := aw.w.WriteByte(1); err != nil {
				return err
			}
			if err := aw.writeObject(v.Super); err != nil {
				return err
			}
		} else if err := aw.w.WriteByte(0); err != nil {
			return err
		}
		live := make([]mapSlot, 0, v.count)
		for _, s := range v.slots {
			if s.Key != nil {
				live = append(live, s)
			}
		}
		if err := aw.writeU32(uint32(len(live))); err != nil {
			return err
		}
		for _, s := range live {
			if err := aw.writeObject(s.Key); err != nil {
				return err
			}
			if err := aw.writeObject(s.Value); err != nil {
				return err
			}
		}
		return nil
	case *Func:
		if err := aw.writeU32(uint32(len(v.Code))); err != nil {
			return err
		}
		for _, c := range v.Code {
			if err := aw.writeObject(c); err != nil {
				return err
			}
		}
		if err := aw.writeU32(uint32(len(v.Args))); err != nil {
			return err
		}
		for _, a := range v.Args {
			if err := aw.writeBytes([]byte(a)); err != nil {
				return err
			}
		}
		if v.Autos != nil {
			if err := aw.w.WriteByte(1); err != nil {
				return err
			}
			if err := aw.writeObject(v.Autos); err != nil {
				return err
			}
		} else if err := aw.w.WriteByte(0); err != nil {
			return err
		}
		return aw.writeBytes([]byte(v.Name))
	case *CFunc:
		// Resolution at restore time looks the name up in the restore
		// scope (§4.9); no body beyond the name travels on the wire.
		return aw.writeBytes([]byte(v.Name))
	default:
		// Built-in types are handled inline above, tightly coupled to the
		// ref-header/shell machinery; a dynamically RegisterType'd type
		// plugs in here via its own Save body instead.
		if td.Caps.Has(CapSave) && td.Save != nil {
			return td.Save(aw.rt, aw, o)
		}
		return newError(KindProtocolViolation, "type %s is not archivable", td.Name)
	}
}

// archiveReader implements the restore side: a mirror id -> partial object
// map so inner back-references resolve immediately, even mid-construction
// (required for cycles like M["self"] = M).
type archiveReader struct {
	rt      *Runtime
	r       *bufio.Reader
	objs    map[uint32]Object
	scope   *Map
}

func newArchiveReader(rt *Runtime, r io.Reader, scope *Map) *archiveReader {
	return &archiveReader{rt: rt, r: bufio.NewReader(r), objs: make(map[uint32]Object), scope: scope}
}

func (ar *archiveReader) readU32() (uint32, error) {
	var v uint32
	err := binary.Read(ar.r, binary.BigEndian, &v)
	return v, err
}

func (ar *archiveReader) readU64() (uint64, error) {
	var v uint64
	err := binary.Read(ar.r, binary.BigEndian, &v)
	return v, err
}

func (ar *archiveReader) readBytes() ([]byte, error) {
	n, err := ar.readU32()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	_, err = io.ReadFull(ar.r, b)
	return b, err
}

// Restore deserializes an object graph from r. scope, if non-nil, resolves
// cfunc names; without it only pure-data graphs (no cfuncs) reconstruct.
func (rt *Runtime) Restore(r io.Reader, scope *Map) (Object, error) {
	sessionID := uuid.New()
	ar := newArchiveReader(rt, r, scope)
	o, err := ar.readObject()
	if err != nil {
		if rt.log != nil {
			rt.log.Warn("archive restore failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
		return nil, err
	}
	if rt.log != nil {
		rt.log.Debug("archive restore ok", zap.String("session_id", sessionID.String()), zap.Int("objects", len(ar.objs)))
	}
	return o, nil
}

func (ar *archiveReader) readObject() (Object, error) {
	tagByte, err := ar.r.ReadByte()
	if err != nil {
		return nil, wrapError(KindProtocolViolation, err, "truncated archive")
	}
	if tagByte == tagRef {
		id, err := ar.readU32()
		if err != nil {
			return nil, err
		}
		o, ok := ar.objs[id]
		if !ok {
			return nil, newError(KindProtocolViolation, "dangling back-reference id %d", id)
		}
		return o, nil
	}
	atomic := tagByte&tagAtomBit != 0
	tcode := tagByte &^ tagAtomBit

	if !cyclicTcode(tcode) {
		o, err := ar.readLeafBody(tcode)
		if err != nil {
			return nil, err
		}
		if atomic {
			o = ar.rt.Atom(o, true)
		}
		return o, nil
	}

	id, err := ar.readU32()
	if err != nil {
		return nil, err
	}
	// Publish the partial shell under id BEFORE reading its body, so a
	// nested back-reference (e.g. M["self"] = M) resolves to this exact
	// object instead of looping forever or dangling (§4.9 "Restore side").
	shell := ar.makeShell(tcode)
	ar.objs[id] = shell
	if err := ar.fillShell(shell, tcode); err != nil {
		delete(ar.objs, id)
		return nil, err
	}
	if atomic {
		// atom(shell, lone=true) keeps shell itself unless an equal atom
		// already exists, in which case any back-reference recorded against
		// shell's id now points at a discarded object — an accepted edge
		// case for archiving self-referential atomic aggregates.
		return ar.rt.Atom(shell, true), nil
	}
	return shell, nil
}

// cyclicTcode reports whether tcode's body recursively calls readObject,
// meaning it needs the shell-then-fill two-step to support back-references
// into itself. Regexp is not ref-tracked on either side; its body never
// recurses, so it's built directly in readLeafBody instead.
func cyclicTcode(tc byte) bool {
	switch tc {
	case TCodeMap, TCodeArray, TCodeFunc:
		return true
	default:
		return false
	}
}

func (ar *archiveReader) makeShell(tcode byte) Object {
	rt := ar.rt
	switch tcode {
	case TCodeMap:
		return rt.NewMap()
	case TCodeArray:
		return rt.NewArray(0)
	case TCodeFunc:
		o := &Func{}
		o.tcode = TCodeFunc
		o.nrefs = 1
		rt.registerObject(o)
		return o
	}
	return nil
}

func (ar *archiveReader) fillShell(o Object, tcode byte) error {
	rt := ar.rt
	switch tcode {
	case TCodeArray:
		a := o.(*Array)
		n, err := ar.readU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			e, err := ar.readObject()
			if err != nil {
				return err
			}
			a.pushUnchecked(e)
		}
		return nil
	case TCodeMap:
		m := o.(*Map)
		hasSuper, err := ar.r.ReadByte()
		if err != nil {
			return err
		}
		if hasSuper == 1 {
			sup, err := ar.readObject()
			if err != nil {
				return err
			}
			if sm, ok := sup.(*Map); ok {
				m.Super = sm
				m.setFlag(FlagSuper)
			}
		}
		n, err := ar.readU32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			k, err := ar.readObject()
			if err != nil {
				return err
			}
			v, err := ar.readObject()
			if err != nil {
				return err
			}
			rt.mapAssignBase(m, k, v)
		}
		return nil
	case TCodeFunc:
		f := o.(*Func)
		ncode, err := ar.readU32()
		if err != nil {
			return err
		}
		f.Code = make([]Object, ncode)
		for i := range f.Code {
			f.Code[i], err = ar.readObject()
			if err != nil {
				return err
			}
		}
		nargs, err := ar.readU32()
		if err != nil {
			return err
		}
		f.Args = make([]string, nargs)
		for i := range f.Args {
			b, err := ar.readBytes()
			if err != nil {
				return err
			}
			f.Args[i] = string(b)
		}
		hasAutos, err := ar.r.ReadByte()
		if err != nil {
			return err
		}
		if hasAutos == 1 {
			a, err := ar.readObject()
			if err != nil {
				return err
			}
			f.Autos, _ = a.(*Map)
		}
		name, err := ar.readBytes()
		if err != nil {
			return err
		}
		f.Name = string(name)
		return nil
	}
	return nil
}

func (ar *archiveReader) readLeafBody(tcode byte) (Object, error) {
	rt := ar.rt
	switch tcode {
	case TCodeNull:
		return rt.Null(), nil
	case TCodeInt:
		v, err := ar.readU64()
		if err != nil {
			return nil, err
		}
		return rt.NewInt(int64(v)), nil
	case TCodeFloat:
		v, err := ar.readU64()
		if err != nil {
			return nil, err
		}
		return rt.NewFloat(math.Float64frombits(v)), nil
	case TCodeString:
		b, err := ar.readBytes()
		if err != nil {
			return nil, err
		}
		return rt.NewString(string(b)), nil
	case TCodeRegexp:
		opts, err := ar.readU32()
		if err != nil {
			return nil, err
		}
		pat, err := ar.readBytes()
		if err != nil {
			return nil, err
		}
		return rt.NewRegexp(string(pat), RegexpOptions(opts))
	case TCodeCFunc:
		name, err := ar.readBytes()
		if err != nil {
			return nil, err
		}
		if ar.scope == nil {
			return nil, newError(KindProtocolViolation, "cfunc %q requires a restore scope", string(name))
		}
		v, ferr := rt.mapFetch(ar.scope, rt.Key(string(name)))
		if ferr != nil {
			return nil, ferr
		}
		cf, ok := v.(*CFunc)
		if !ok {
			return nil, newError(KindProtocolViolation, "restore scope has no cfunc named %q", string(name))
		}
		return cf, nil
	default:
		if td := rt.types.lookup(tcode); td != nil && td.Caps.Has(CapSave) && td.Restore != nil {
			return td.Restore(rt, ar)
		}
		return nil, newError(KindProtocolViolation, "unknown archive tcode %d", tcode)
	}
}
