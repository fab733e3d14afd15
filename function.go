// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

// Func is a scripted function: an atomic code array, the formal parameter
// names, an autos prototype map copied fresh per call, and a name used in
// diagnostics and saved alongside it by the archiver.
type Func struct {
	Header
	Code  []Object
	Args  []string
	Autos *Map
	Name  string
}

func newFuncType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "func",
		Caps: CapObjName | CapCall,
		Mark: func(rt *Runtime, o Object) uintptr {
			f := o.(*Func)
			n := uintptr(48 + len(f.Args)*16)
			for _, c := range f.Code {
				if c != nil {
					n += rt.markObject(c)
				}
			}
			if f.Autos != nil {
				n += rt.markObject(f.Autos)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*Func) == b.(*Func) },
		Hash: func(o Object) uint64 { return hashInt64(int64(len(o.(*Func).Code))*31 + 7) },
		Copy: func(rt *Runtime, o Object) Object {
			f := o.(*Func)
			return &Func{Code: f.Code, Args: f.Args, Autos: f.Autos, Name: f.Name}
		},
		ObjName: func(o Object) string { return o.(*Func).Name },
		Call:    (*Runtime).callFunc,
	}
}

// NewFunc builds a scripted function. code, args, and autos are owned by
// the caller's single reference; callers typically Atom the result so the
// code array and autos prototype become immutable and shareable.
func (rt *Runtime) NewFunc(name string, code []Object, args []string, autos *Map) *Func {
	o := &Func{Code: code, Args: args, Autos: autos, Name: name}
	o.tcode = TCodeFunc
	o.nrefs = 1
	rt.allocTyped(48, o)
	return o
}

const vargsSlotName = "vargs"

// callFunc implements the scripted-function half of §4.7's call protocol:
// copy the autos prototype into a fresh scope, bind subject/this/class,
// bind formal parameters (with vargs overflow), then run the engine on a
// dedicated exec context seeded with that scope and a PC over fn.Code.
func (rt *Runtime) callFunc(o Object, subject Object, args []Object) (Object, error) {
	fn := o.(*Func)

	var scope *Map
	if fn.Autos != nil {
		scope = rt.typeOf(fn.Autos).Copy(rt, fn.Autos).(*Map)
	} else {
		scope = rt.NewMap()
	}

	if subject != nil {
		if sm, ok := subject.(*Map); ok {
			scope.Super = sm
			scope.setFlag(FlagSuper)
		}
		rt.mapAssignBase(scope, rt.Key("this"), subject)
	}
	if fn.Autos != nil && fn.Autos.Super != nil {
		rt.mapAssignBase(scope, rt.Key("class"), fn.Autos.Super)
	}

	for i, name := range fn.Args {
		var v Object = rt.Null()
		if i < len(args) {
			v = args[i]
		}
		rt.mapAssignBase(scope, rt.Key(name), v)
	}
	if len(args) > len(fn.Args) {
		if v, _ := rt.mapFetchBase(scope, rt.Key(vargsSlotName)); v != nil {
			extra := rt.NewArray(len(args) - len(fn.Args))
			for _, a := range args[len(fn.Args):] {
				extra.pushUnchecked(a)
			}
			rt.mapAssignBase(scope, rt.Key(vargsSlotName), extra)
		}
	}

	ec := rt.newExecContext()
	ec.vs = append(ec.vs, scope)
	ec.xs = append(ec.xs, rt.newMark())
	ec.xs = append(ec.xs, rt.newPC(fn.Code))

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

// CFuncImpl is the Go-native implementation body of a cfunc. Per the
// redesign guidance against packing two opaque words to multiplex one C
// implementation across many names, every cfunc gets its own explicit
// trampoline closure instead.
type CFuncImpl func(rt *Runtime, subject Object, args []Object) (Object, error)

// CFunc wraps a native Go function so it can be called like any other
// scripted callable.
type CFunc struct {
	Header
	Name string
	Impl CFuncImpl
}

func newCFuncType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "cfunc",
		Caps: CapObjName | CapCall,
		Mark: func(rt *Runtime, o Object) uintptr { return 32 },
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*CFunc) == b.(*CFunc) },
		Hash: func(o Object) uint64 { return fnv1a([]byte(o.(*CFunc).Name)) },
		Copy: func(rt *Runtime, o Object) Object {
			f := o.(*CFunc)
			return &CFunc{Name: f.Name, Impl: f.Impl}
		},
		ObjName: func(o Object) string { return o.(*CFunc).Name },
		Call:    (*Runtime).callCFunc,
	}
}

// NewCFunc registers a native callable under name.
func (rt *Runtime) NewCFunc(name string, impl CFuncImpl) *CFunc {
	o := &CFunc{Name: name, Impl: impl}
	o.tcode = TCodeCFunc
	o.leafz = 32
	o.nrefs = 1
	rt.allocTyped(32, o)
	return o
}

func (rt *Runtime) callCFunc(o Object, subject Object, args []Object) (Object, error) {
	f := o.(*CFunc)
	if f.Impl == nil {
		return nil, rt.typeMismatchf("call", o)
	}
	return f.Impl(rt, subject, args)
}

// Method binds a subject to any callable, the sole mechanism behind
// instance-method dispatch (there is no separate method-table lookup; a
// Method is just a value like any other, typically fetched off a map).
type Method struct {
	Header
	Subject  Object
	Callable Object
}

func newMethodType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "method",
		Caps: CapObjName | CapCall,
		Mark: func(rt *Runtime, o Object) uintptr {
			m := o.(*Method)
			n := uintptr(32)
			if m.Subject != nil {
				n += rt.markObject(m.Subject)
			}
			if m.Callable != nil {
				n += rt.markObject(m.Callable)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			am, bm := a.(*Method), b.(*Method)
			return am.Subject == bm.Subject && am.Callable == bm.Callable
		},
		Hash:    func(o Object) uint64 { return hashInt64(int64(identityOf(o.(*Method)))) },
		Copy:    func(rt *Runtime, o Object) Object { m := o.(*Method); return &Method{Subject: m.Subject, Callable: m.Callable} },
		ObjName: func(o Object) string { return "method" },
		Call:    (*Runtime).callMethod,
	}
}

// NewMethod binds subject to callable.
func (rt *Runtime) NewMethod(subject, callable Object) *Method {
	o := &Method{Subject: subject, Callable: callable}
	o.tcode = TCodeMethod
	o.nrefs = 1
	rt.allocTyped(32, o)
	return o
}

func (rt *Runtime) callMethod(o Object, subject Object, args []Object) (Object, error) {
	m := o.(*Method)
	td := rt.typeOf(m.Callable)
	if !td.Caps.Has(CapCall) || td.Call == nil {
		return nil, rt.typeMismatchf("call", m.Callable)
	}
	return td.Call(rt, m.Callable, m.Subject, args)
}

// Ptr binds an aggregate and a key so that dereferencing re-fetches rather
// than caching a raw slot — required so ptrs survive a map rehash (§9
// "Pointers to slots").
type Ptr struct {
	Header
	Aggr Object
	Key  Object
}

func newPtrType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "ptr",
		Caps: CapObjName | CapCall,
		Mark: func(rt *Runtime, o Object) uintptr {
			p := o.(*Ptr)
			n := uintptr(32)
			if p.Aggr != nil {
				n += rt.markObject(p.Aggr)
			}
			if p.Key != nil {
				n += rt.markObject(p.Key)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			ap, bp := a.(*Ptr), b.(*Ptr)
			return ap.Aggr == bp.Aggr && ap.Key == bp.Key
		},
		Hash:    func(o Object) uint64 { return hashInt64(int64(identityOf(o.(*Ptr)))) },
		Copy:    func(rt *Runtime, o Object) Object { p := o.(*Ptr); return &Ptr{Aggr: p.Aggr, Key: p.Key} },
		ObjName: func(o Object) string { return "ptr" },
		Call:    (*Runtime).callPtr,
	}
}

// NewPtr forms `&aggr[key]`.
func (rt *Runtime) NewPtr(aggr, key Object) *Ptr {
	o := &Ptr{Aggr: aggr, Key: key}
	o.tcode = TCodePtr
	o.nrefs = 1
	rt.allocTyped(32, o)
	return o
}

// Deref re-fetches the pointed-at value, never caching the slot.
func (rt *Runtime) Deref(p *Ptr) (Object, error) {
	td := rt.typeOf(p.Aggr)
	if !td.Caps.Has(CapFetch) || td.Fetch == nil {
		return nil, rt.typeMismatchf("deref", p.Aggr)
	}
	return td.Fetch(rt, p.Aggr, p.Key)
}

// callPtr dereferences to the pointed-at callable, rewriting the call so
// the aggregate becomes the subject (a ptr-call, §4.7).
func (rt *Runtime) callPtr(o Object, subject Object, args []Object) (Object, error) {
	p := o.(*Ptr)
	callable, err := rt.Deref(p)
	if err != nil {
		return nil, err
	}
	td := rt.typeOf(callable)
	if !td.Caps.Has(CapCall) || td.Call == nil {
		return nil, rt.typeMismatchf("call", callable)
	}
	return td.Call(rt, callable, p.Aggr, args)
}

// Handle wraps an opaque native resource under a type name and an optional
// member map; it may itself serve as the subject of method dispatch (the
// member map plays the role of member_intf/general_intf).
type Handle struct {
	Header
	TypeName string
	Native   interface{}
	Members  *Map
}

func newHandleType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "handle",
		Caps: CapObjName | CapFetch | CapAssign,
		Mark: func(rt *Runtime, o Object) uintptr {
			h := o.(*Handle)
			n := uintptr(40)
			if h.Members != nil {
				n += rt.markObject(h.Members)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*Handle) == b.(*Handle) },
		Hash: func(o Object) uint64 { return hashInt64(int64(identityOf(o.(*Handle)))) },
		Copy: func(rt *Runtime, o Object) Object {
			return o // handles are reference-identity only; "copy" is the same handle
		},
		ObjName: func(o Object) string { return o.(*Handle).TypeName },
		Fetch:   (*Runtime).handleFetch,
		Assign:  (*Runtime).handleAssign,
	}
}

// NewHandle wraps native behind a scripted-visible type name.
func (rt *Runtime) NewHandle(typeName string, native interface{}, members *Map) *Handle {
	o := &Handle{TypeName: typeName, Native: native, Members: members}
	o.tcode = TCodeHandle
	o.nrefs = 1
	rt.allocTyped(40, o)
	return o
}

func (rt *Runtime) handleFetch(o Object, key Object) (Object, error) {
	h := o.(*Handle)
	if h.Members == nil {
		return nil, rt.undefinedName(rt.objName(key))
	}
	return rt.mapFetch(h.Members, key)
}

func (rt *Runtime) handleAssign(o Object, key, val Object) error {
	h := o.(*Handle)
	if h.Members == nil {
		h.Members = rt.NewMap()
	}
	return rt.mapAssign(h.Members, key, val)
}

