// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "github.com/google/uuid"

// OpCode names one built-in opcode the evaluator's dispatch loop knows how
// to execute natively, mirroring the op_ecode enum (§4.8).
type OpCode int

const (
	OpOther OpCode = iota
	OpCall
	OpNameLValue
	OpDot
	OpDotKeep
	OpDotRKeep
	OpAssign
	OpAssignToName
	OpAssignLocal
	OpExec
	OpLoop
	OpRewind
	OpEndCode
	OpIf
	OpIfElse
	OpIfNotBreak
	OpIfBreak
	OpBreak
	OpQuote
	OpBinop
	OpAt
	OpSwap
	OpBinopForTemp
	OpAggrKeyCall
	OpColon
	OpColonCaret
	OpMethodCall
	OpSuperCall
	OpAssignLocalVar
	OpCritSect
	OpWaitFor
	OpPop
	OpContinue
	OpLooper
	OpAndAnd
	OpOrOr
	OpSwitch
	OpSwitcher
	OpGo
)

// BinOp names an arithmetic/relational operator for OpBinop/OpBinopForTemp.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
)

// OpFunc is the native-function escape hatch an Op may carry instead of an
// (Ecode, Aux) pair, matching "a struct carrying either a function pointer
// or a small enum op_ecode" (§4.8).
type OpFunc func(rt *Runtime, ec *ExecContext) error

// Op is a first-class heap object so it can live on xs and be walked by
// the collector like anything else; binary operators are cached as
// Runtime-wide singletons (binops/binops_temps) rather than allocated per
// compiled occurrence.
type Op struct {
	Header
	Ecode OpCode
	Aux   int
	Bin   BinOp
	Fn    OpFunc
	Body  []Object // inner code array for IF/IFELSE/LOOP/ANDAND/etc.
	Else  []Object
	Cases map[int64]int // SWITCH/SWITCHER: value -> index into Body
}

func newOpType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "op",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr {
			op := o.(*Op)
			n := uintptr(64)
			for _, c := range op.Body {
				if c != nil {
					n += rt.markObject(c)
				}
			}
			for _, c := range op.Else {
				if c != nil {
					n += rt.markObject(c)
				}
			}
			return n
		},
		Free:    func(rt *Runtime, o Object) {},
		Cmp:     func(a, b Object) bool { return a.(*Op) == b.(*Op) },
		Hash:    func(o Object) uint64 { return identityHash(o) },
		Copy:    func(rt *Runtime, o Object) Object { return o }, // ops are shared/atomic by construction
		ObjName: func(o Object) string { return "op" },
	}
}

func identityHash(o Object) uint64 { return hashInt64(int64(identityOf(o))) }

// NewOp allocates a plain opcode-carrying operator.
func (rt *Runtime) NewOp(ecode OpCode, aux int) *Op {
	o := &Op{Ecode: ecode, Aux: aux}
	o.tcode = TCodeOp
	o.nrefs = 1
	rt.allocTyped(64, o)
	return o
}

// binopCache holds the per-Runtime singleton op objects for each BinOp,
// one plain and one "for temp" (§4.8's binops/binops_temps tables).
type binopCache struct {
	plain [11]*Op
	temp  [11]*Op
}

func (rt *Runtime) initBinops() {
	for b := BinAdd; b <= BinGe; b++ {
		p := &Op{Ecode: OpBinop, Bin: b}
		p.tcode = TCodeOp
		p.nrefs = 1
		p.flags = FlagAtom
		rt.registerObject(p)
		rt.binops.plain[b] = p

		t := &Op{Ecode: OpBinopForTemp, Bin: b}
		t.tcode = TCodeOp
		t.nrefs = 1
		t.flags = FlagAtom
		rt.registerObject(t)
		rt.binops.temp[b] = t
	}
}

// BinopOp returns the cached singleton op for b, allocating none.
func (rt *Runtime) BinopOp(b BinOp, forTemp bool) *Op {
	if forTemp {
		return rt.binops.temp[b]
	}
	return rt.binops.plain[b]
}

// PC advances through a code array one element per evaluator step; the
// "pc closet" (§3) is just the slice of *PC values alongside xs, which
// here is xs itself since PC is a plain Object like any other stack cell.
type PC struct {
	Header
	Code []Object
	Pos  int
}

func newPCType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "pc",
		Caps: 0,
		Mark: func(rt *Runtime, o Object) uintptr {
			pc := o.(*PC)
			n := uintptr(32)
			for _, c := range pc.Code {
				if c != nil {
					n += rt.markObject(c)
				}
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*PC) == b.(*PC) },
		Hash: func(o Object) uint64 { return identityHash(o) },
		Copy: func(rt *Runtime, o Object) Object { pc := o.(*PC); return &PC{Code: pc.Code, Pos: pc.Pos} },
	}
}

func (rt *Runtime) newPC(code []Object) *PC {
	o := &PC{Code: code}
	o.tcode = TCodePC
	o.nrefs = 1
	rt.registerObject(o)
	return o
}

// Mark is the call-frame boundary marker pushed on xs around a call, the
// target that RETURN/BREAK/CONTINUE unwind to.
type Mark struct {
	Header
	OSDepth int
	VSDepth int
	Kind    MarkKind
}

// MarkKind distinguishes the different unwind targets a Mark can serve as,
// since calls, loops, and critical sections all push frame boundaries onto
// the same stack.
type MarkKind int

const (
	MarkCall MarkKind = iota
	MarkLoop
	MarkCritSect
)

func newMarkType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "mark",
		Caps: 0,
		Mark: func(rt *Runtime, o Object) uintptr { return 24 },
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*Mark) == b.(*Mark) },
		Hash: func(o Object) uint64 { return identityHash(o) },
		Copy: func(rt *Runtime, o Object) Object { return o },
	}
}

func (rt *Runtime) newMark() *Mark {
	o := &Mark{}
	o.tcode = TCodeMark
	o.nrefs = 1
	rt.registerObject(o)
	return o
}

func (rt *Runtime) newMarkKind(k MarkKind, osDepth, vsDepth int) *Mark {
	o := &Mark{OSDepth: osDepth, VSDepth: vsDepth, Kind: k}
	o.tcode = TCodeMark
	o.nrefs = 1
	rt.registerObject(o)
	return o
}

// Catcher is pushed by onerror; it records the os/vs depths to unwind to
// and the handler object to invoke on error.
type Catcher struct {
	Header
	OSDepth int
	XSDepth int
	VSDepth int
	Handler Object
}

func newCatcherType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "catcher",
		Caps: 0,
		Mark: func(rt *Runtime, o Object) uintptr {
			c := o.(*Catcher)
			n := uintptr(48)
			if c.Handler != nil {
				n += rt.markObject(c.Handler)
			}
			return n
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp:  func(a, b Object) bool { return a.(*Catcher) == b.(*Catcher) },
		Hash: func(o Object) uint64 { return identityHash(o) },
		Copy: func(rt *Runtime, o Object) Object { return o },
	}
}

func (rt *Runtime) newCatcher(osDepth, xsDepth, vsDepth int, handler Object) *Catcher {
	o := &Catcher{OSDepth: osDepth, XSDepth: xsDepth, VSDepth: vsDepth, Handler: handler}
	o.tcode = TCodeCatcher
	o.nrefs = 1
	rt.registerObject(o)
	return o
}

// ExecState is the lifecycle state of an ExecContext (§3 "Exec context").
type ExecState int

const (
	StateActive ExecState = iota
	StateReturned
	StateFailed
)

// ExecContext is one thread's interpreter state: the three stacks, a
// countdown to the next periodic check, a critical-section depth, the
// wait-for object, lifecycle state, result, and per-thread error.
// Deliberately a plain struct, not a heap Object — it isn't itself
// reachable from script code, only from the Runtime's execList, which
// gc.go's markExecContext walks directly.
type ExecContext struct {
	os []Object
	xs []Object
	vs []*Map

	xCount    int
	instrs    uint64
	critDepth int
	waitFor   Object
	state     ExecState
	result    Object
	err       error

	// pcCloset historically shadowed xs with reusable PC allocations; since
	// PC is already a first-class Object living directly on xs here, the
	// engine never fills this slot. markExecContext still marks any entries
	// it holds.
	pcCloset []*PC

	id         uuid.UUID
	threadName string
}

const periodicCheckInterval = 1000

func (rt *Runtime) newExecContext() *ExecContext {
	ec := &ExecContext{xCount: periodicCheckInterval, state: StateActive, id: uuid.New()}
	rt.execList = append(rt.execList, ec)
	return ec
}

func (rt *Runtime) dropExecContext(ec *ExecContext) {
	for i, e := range rt.execList {
		if e == ec {
			rt.execList = append(rt.execList[:i], rt.execList[i+1:]...)
			return
		}
	}
}

// runExec drives the dispatch loop until the exec context's xs empties
// (normal return) or an unrecoverable error propagates past every catcher.
func (rt *Runtime) runExec(ec *ExecContext) error {
	defer rt.dropExecContext(ec)
	for len(ec.xs) > 0 {
		top := ec.xs[len(ec.xs)-1]
		var err error
		switch v := top.(type) {
		case *PC:
			err = rt.stepPC(ec, v)
		case *Op:
			ec.xs = ec.xs[:len(ec.xs)-1]
			err = rt.execOp(ec, v)
		case *Mark:
			ec.xs = ec.xs[:len(ec.xs)-1]
		case *Catcher:
			ec.xs = ec.xs[:len(ec.xs)-1]
		default:
			ec.xs = ec.xs[:len(ec.xs)-1]
			ec.os = append(ec.os, top)
		}
		if err != nil {
			if !rt.unwindToCatcher(ec, err) {
				ec.state = StateFailed
				ec.err = err
				return err
			}
		}
		ec.instrs++
		ec.xCount--
		if ec.xCount <= 0 {
			rt.periodicCheck(ec)
		}
	}
	if ec.state == StateActive {
		ec.state = StateReturned
	}
	return nil
}

// stepPC pushes the next code element from pc for dispatch, or pops an
// exhausted pc.
func (rt *Runtime) stepPC(ec *ExecContext, pc *PC) error {
	if pc.Pos >= len(pc.Code) {
		ec.xs = ec.xs[:len(ec.xs)-1]
		return nil
	}
	instr := pc.Code[pc.Pos]
	pc.Pos++
	ec.xs = append(ec.xs, instr)
	return nil
}

// InstructionsExecuted reports how many dispatch steps ec has run so far,
// a cheap stand-in for a full profiler (the tests use it to assert the
// exact step count of a small arithmetic evaluation).
func (ec *ExecContext) InstructionsExecuted() uint64 { return ec.instrs }

func (rt *Runtime) periodicCheck(ec *ExecContext) {
	ec.xCount = periodicCheckInterval
	if rt.acct.bytes >= rt.acct.threshold && !rt.acct.suppressed() {
		rt.collectLocked()
	}
}

// unwindToCatcher searches xs for the nearest Catcher, trims the three
// stacks to its recorded depths, and transfers control to its handler;
// reports whether one was found.
func (rt *Runtime) unwindToCatcher(ec *ExecContext, cause error) bool {
	for i := len(ec.xs) - 1; i >= 0; i-- {
		c, ok := ec.xs[i].(*Catcher)
		if !ok {
			continue
		}
		ec.xs = ec.xs[:i]
		if c.OSDepth <= len(ec.os) {
			ec.os = ec.os[:c.OSDepth]
		}
		if c.VSDepth <= len(ec.vs) {
			ec.vs = ec.vs[:c.VSDepth]
		}
		rt.lastErr = cause
		if c.Handler != nil {
			td := rt.typeOf(c.Handler)
			if td.Caps.Has(CapCall) && td.Call != nil {
				res, err := td.Call(rt, c.Handler, nil, []Object{rt.errorValue(cause)})
				if err == nil {
					ec.os = append(ec.os, res)
				}
			}
		}
		return true
	}
	return false
}

// errorValue renders a Go error as a script-visible String, the value
// handler blocks see as the "current value of the error cell" (§7).
func (rt *Runtime) errorValue(err error) Object {
	return rt.NewString(err.Error())
}

// execOp runs one operator against ec, the heart of the dispatch loop.
func (rt *Runtime) execOp(ec *ExecContext, op *Op) error {
	if op.Fn != nil {
		return op.Fn(rt, ec)
	}
	switch op.Ecode {
	case OpOther:
		return nil
	case OpPop:
		return rt.opPop(ec)
	case OpSwap:
		return rt.opSwap(ec)
	case OpQuote:
		return nil // the value to quote was already pushed as a plain operand by the compiler
	case OpBinop:
		return rt.opBinop(ec, op.Bin, false)
	case OpBinopForTemp:
		// forTemp distinguished an os-temp-cache fast path in the original;
		// unmodeled here, so this runs identically to OpBinop.
		return rt.opBinop(ec, op.Bin, true)
	case OpAndAnd:
		return rt.opAndAnd(ec, op, true)
	case OpOrOr:
		return rt.opAndAnd(ec, op, false)
	case OpIf:
		return rt.opIf(ec, op)
	case OpIfElse:
		return rt.opIfElse(ec, op)
	case OpIfBreak:
		return rt.opIfBreakCont(ec, true)
	case OpIfNotBreak:
		return rt.opIfBreakCont(ec, false)
	case OpBreak:
		return rt.opBreak(ec)
	case OpContinue:
		return rt.opContinue(ec)
	case OpLoop, OpLooper:
		return rt.opLoop(ec, op)
	case OpSwitch, OpSwitcher:
		return rt.opSwitch(ec, op)
	case OpNameLValue:
		return rt.opNameLValue(ec)
	case OpDot, OpDotKeep, OpDotRKeep:
		return rt.opDot(ec, op.Ecode)
	case OpAssign:
		return rt.opAssign(ec)
	case OpAssignToName:
		return rt.opAssignToName(ec)
	case OpAssignLocal, OpAssignLocalVar:
		return rt.opAssignLocal(ec)
	case OpAt:
		return rt.opAt(ec)
	case OpCall, OpAggrKeyCall:
		return rt.opCall(ec)
	case OpMethodCall, OpColon, OpColonCaret:
		return rt.opMethodCall(ec)
	case OpSuperCall:
		return rt.opSuperCall(ec)
	case OpCritSect:
		return rt.opCritSect(ec, op)
	case OpWaitFor:
		return rt.opWaitFor(ec)
	case OpGo:
		return rt.opGo(ec)
	case OpExec:
		ec.xs = append(ec.xs, rt.newPC(op.Body))
		return nil
	case OpRewind:
		return nil
	case OpEndCode:
		return nil
	default:
		return rt.typeMismatchf("op", op)
	}
}

func (rt *Runtime) opPop(ec *ExecContext) error {
	if len(ec.os) == 0 {
		return rt.outOfRange("operand stack", 0, 0)
	}
	ec.os = ec.os[:len(ec.os)-1]
	return nil
}

func (rt *Runtime) opSwap(ec *ExecContext) error {
	n := len(ec.os)
	if n < 2 {
		return rt.outOfRange("operand stack", n, 2)
	}
	ec.os[n-1], ec.os[n-2] = ec.os[n-2], ec.os[n-1]
	return nil
}

func (rt *Runtime) popOS(ec *ExecContext) (Object, error) {
	n := len(ec.os)
	if n == 0 {
		return nil, rt.outOfRange("operand stack", 0, 0)
	}
	v := ec.os[n-1]
	ec.os = ec.os[:n-1]
	return v, nil
}

func (rt *Runtime) opBinop(ec *ExecContext, b BinOp, forTemp bool) error {
	rhs, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	lhs, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	res, err := rt.applyBinop(b, lhs, rhs)
	if err != nil {
		return err
	}
	_ = forTemp // the os-temp cache optimization is not modeled; result is always a fresh/interned value
	ec.os = append(ec.os, res)
	return nil
}

func (rt *Runtime) applyBinop(b BinOp, lhs, rhs Object) (Object, error) {
	li, liok := lhs.(*Int)
	ri, riok := rhs.(*Int)
	if liok && riok {
		return rt.intBinop(b, li.Value, ri.Value)
	}
	lf, lfok := asFloat(lhs)
	rf, rfok := asFloat(rhs)
	if lfok && rfok {
		return rt.floatBinop(b, lf, rf)
	}
	return nil, rt.typeMismatchf("binop", lhs)
}

func asFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case *Float:
		return v.Value, true
	case *Int:
		return float64(v.Value), true
	}
	return 0, false
}

func (rt *Runtime) intBinop(b BinOp, a, c int64) (Object, error) {
	switch b {
	case BinAdd:
		return rt.NewInt(a + c), nil
	case BinSub:
		return rt.NewInt(a - c), nil
	case BinMul:
		return rt.NewInt(a * c), nil
	case BinDiv:
		if c == 0 {
			return nil, rt.outOfRange("divisor", 0, 1)
		}
		return rt.NewInt(a / c), nil
	case BinMod:
		if c == 0 {
			return nil, rt.outOfRange("divisor", 0, 1)
		}
		return rt.NewInt(a % c), nil
	case BinEq:
		return rt.boolInt(a == c), nil
	case BinNe:
		return rt.boolInt(a != c), nil
	case BinLt:
		return rt.boolInt(a < c), nil
	case BinLe:
		return rt.boolInt(a <= c), nil
	case BinGt:
		return rt.boolInt(a > c), nil
	case BinGe:
		return rt.boolInt(a >= c), nil
	}
	return nil, rt.typeMismatchf("binop", rt.NewInt(a))
}

func (rt *Runtime) floatBinop(b BinOp, a, c float64) (Object, error) {
	switch b {
	case BinAdd:
		return rt.NewFloat(a + c), nil
	case BinSub:
		return rt.NewFloat(a - c), nil
	case BinMul:
		return rt.NewFloat(a * c), nil
	case BinDiv:
		return rt.NewFloat(a / c), nil
	case BinEq:
		return rt.boolInt(a == c), nil
	case BinNe:
		return rt.boolInt(a != c), nil
	case BinLt:
		return rt.boolInt(a < c), nil
	case BinLe:
		return rt.boolInt(a <= c), nil
	case BinGt:
		return rt.boolInt(a > c), nil
	case BinGe:
		return rt.boolInt(a >= c), nil
	}
	return nil, rt.typeMismatchf("binop", rt.NewFloat(a))
}

func (rt *Runtime) boolInt(v bool) *Int {
	if v {
		return rt.NewInt(1)
	}
	return rt.NewInt(0)
}

// opAndAnd implements && (want=true) / || (want=false): pop the already-
// evaluated LHS; if its truthiness matches the short-circuit condition,
// push op.Body to run for the result, else push the LHS back as the
// overall result.
func (rt *Runtime) opAndAnd(ec *ExecContext, op *Op, want bool) error {
	lhs, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if rt.Truthy(lhs) == want {
		ec.xs = append(ec.xs, rt.newPC(op.Body))
		return nil
	}
	ec.os = append(ec.os, lhs)
	return nil
}

func (rt *Runtime) opIf(ec *ExecContext, op *Op) error {
	cond, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if rt.Truthy(cond) {
		ec.xs = append(ec.xs, rt.newPC(op.Body))
	}
	return nil
}

func (rt *Runtime) opIfElse(ec *ExecContext, op *Op) error {
	cond, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if rt.Truthy(cond) {
		ec.xs = append(ec.xs, rt.newPC(op.Body))
	} else {
		ec.xs = append(ec.xs, rt.newPC(op.Else))
	}
	return nil
}

// opLoop pushes op.Body as the loop's per-iteration code, followed by a
// loop Mark beneath it so break/continue can find the boundary; LOOPER
// re-pushes itself after the body completes (modeled here by the compiler
// having placed the looper op at the end of Body itself).
func (rt *Runtime) opLoop(ec *ExecContext, op *Op) error {
	mk := rt.newMarkKind(MarkLoop, len(ec.os), len(ec.vs))
	ec.xs = append(ec.xs, mk)
	ec.xs = append(ec.xs, rt.newPC(op.Body))
	return nil
}

// opBreak/opContinue unwind xs to the nearest loop Mark; break discards it,
// continue leaves it so the next iteration's looper still finds it.
func (rt *Runtime) opBreak(ec *ExecContext) error {
	for i := len(ec.xs) - 1; i >= 0; i-- {
		if mk, ok := ec.xs[i].(*Mark); ok && mk.Kind == MarkLoop {
			ec.xs = ec.xs[:i]
			return nil
		}
	}
	return rt.outOfRange("loop mark", 0, 0)
}

func (rt *Runtime) opContinue(ec *ExecContext) error {
	for i := len(ec.xs) - 1; i >= 0; i-- {
		if mk, ok := ec.xs[i].(*Mark); ok && mk.Kind == MarkLoop {
			ec.xs = ec.xs[:i+1]
			return nil
		}
	}
	return rt.outOfRange("loop mark", 0, 0)
}

func (rt *Runtime) opIfBreakCont(ec *ExecContext, breakIf bool) error {
	cond, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if rt.Truthy(cond) == breakIf {
		return rt.opBreak(ec)
	}
	return nil
}

// opSwitch/opSwitcher looks the switched-on int value up in op.Cases and
// dispatches to the matching body index, O(1) per §4.8.
func (rt *Runtime) opSwitch(ec *ExecContext, op *Op) error {
	v, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	iv, ok := v.(*Int)
	if !ok {
		return rt.typeMismatchf("switch", v)
	}
	if idx, hit := op.Cases[iv.Value]; hit {
		pc := rt.newPC(op.Body)
		pc.Pos = idx
		ec.xs = append(ec.xs, pc)
	} else if op.Else != nil {
		ec.xs = append(ec.xs, rt.newPC(op.Else))
	}
	return nil
}

// opNameLValue resolves an identifier on the operand stack (a String) to
// its bound value by walking vs.top's super chain, leaving the value on os.
func (rt *Runtime) opNameLValue(ec *ExecContext) error {
	name, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if len(ec.vs) == 0 {
		return rt.undefinedName(rt.objName(name))
	}
	scope := ec.vs[len(ec.vs)-1]
	v, ferr := rt.mapFetch(scope, name)
	if ferr != nil {
		return ferr
	}
	if v == nil {
		return rt.undefinedName(rt.objName(name))
	}
	ec.os = append(ec.os, v)
	return nil
}

// opDot pops (key, aggregate) and pushes aggregate[key]; KEEP variants
// additionally leave the aggregate (DOTKEEP) or the key (DOTRKEEP) beneath
// the fetched value, supporting compound lvalue expressions like `a.b = c`.
func (rt *Runtime) opDot(ec *ExecContext, ecode OpCode) error {
	key, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	aggr, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	td := rt.typeOf(aggr)
	if !td.Caps.Has(CapFetch) || td.Fetch == nil {
		return rt.typeMismatchf("dot", aggr)
	}
	v, ferr := td.Fetch(rt, aggr, key)
	if ferr != nil {
		return ferr
	}
	switch ecode {
	case OpDotKeep:
		ec.os = append(ec.os, aggr, v)
	case OpDotRKeep:
		ec.os = append(ec.os, key, v)
	default:
		ec.os = append(ec.os, v)
	}
	return nil
}

// opAssign pops (value, key, aggregate) and assigns aggregate[key]=value,
// following the type's full assignment policy; the assigned value is left
// on os (assignment is an expression).
func (rt *Runtime) opAssign(ec *ExecContext) error {
	val, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	key, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	aggr, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	td := rt.typeOf(aggr)
	if !td.Caps.Has(CapAssign) || td.Assign == nil {
		return rt.typeMismatchf("assign", aggr)
	}
	if aerr := td.Assign(rt, aggr, key, val); aerr != nil {
		return aerr
	}
	ec.os = append(ec.os, val)
	return nil
}

// opAssignToName pops (value, name) and assigns into vs.top's chain via
// the normal Map assignment policy (walks super before creating locally).
func (rt *Runtime) opAssignToName(ec *ExecContext) error {
	val, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	name, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if len(ec.vs) == 0 {
		return rt.undefinedName(rt.objName(name))
	}
	scope := ec.vs[len(ec.vs)-1]
	if aerr := rt.mapAssign(scope, name, val); aerr != nil {
		return aerr
	}
	ec.os = append(ec.os, val)
	return nil
}

// opAssignLocal(Var) pops (value, name) and forces the write into the base
// scope regardless of any same-named binding further up the super chain —
// the semantics of `name := expr`.
func (rt *Runtime) opAssignLocal(ec *ExecContext) error {
	val, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	name, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	if len(ec.vs) == 0 {
		return rt.undefinedName(rt.objName(name))
	}
	scope := ec.vs[len(ec.vs)-1]
	if aerr := rt.mapAssignBase(scope, name, val); aerr != nil {
		return aerr
	}
	ec.os = append(ec.os, val)
	return nil
}

// opAt pops an aggregate and key-forms a ptr `&aggr[key]` without fetching.
func (rt *Runtime) opAt(ec *ExecContext) error {
	key, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	aggr, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	ec.os = append(ec.os, rt.NewPtr(aggr, key))
	return nil
}

// opCall implements the non-method call: os holds
// `... arg[n-1] ... arg[0] n_actual callable`.
func (rt *Runtime) opCall(ec *ExecContext) error {
	callable, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	nActualObj, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	n, ok := nActualObj.(*Int)
	if !ok {
		return rt.typeMismatchf("call arity", nActualObj)
	}
	nActual := int(n.Value)
	if len(ec.os) < nActual {
		return rt.arityMismatch(rt.objName(callable), nActual, len(ec.os))
	}
	args := make([]Object, nActual)
	for i := 0; i < nActual; i++ {
		args[i], _ = rt.popOS(ec)
	}
	td := rt.typeOf(callable)
	if !td.Caps.Has(CapCall) || td.Call == nil {
		return rt.typeMismatchf("call", callable)
	}
	res, cerr := td.Call(rt, callable, nil, args)
	if cerr != nil {
		return cerr
	}
	ec.os = append(ec.os, res)
	return nil
}

// opMethodCall is opCall with a subject: os holds
// `... args... n_actual callable subject`.
func (rt *Runtime) opMethodCall(ec *ExecContext) error {
	subject, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	callable, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	nActualObj, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	n, ok := nActualObj.(*Int)
	if !ok {
		return rt.typeMismatchf("call arity", nActualObj)
	}
	nActual := int(n.Value)
	if len(ec.os) < nActual {
		return rt.arityMismatch(rt.objName(callable), nActual, len(ec.os))
	}
	args := make([]Object, nActual)
	for i := 0; i < nActual; i++ {
		args[i], _ = rt.popOS(ec)
	}
	td := rt.typeOf(callable)
	if !td.Caps.Has(CapCall) || td.Call == nil {
		return rt.typeMismatchf("call", callable)
	}
	res, cerr := td.Call(rt, callable, subject, args)
	if cerr != nil {
		return cerr
	}
	ec.os = append(ec.os, res)
	return nil
}

// opSuperCall implements `super.method()`: unlike opMethodCall, os does not
// hold a pre-resolved callable — it holds the method *name*, looked up via
// mapFetchSuper starting one level above subject's own slots, so an
// override can call the implementation it shadows without recursing into
// itself. subject is still bound as `this` for the call.
func (rt *Runtime) opSuperCall(ec *ExecContext) error {
	subject, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	key, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	nActualObj, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	n, ok := nActualObj.(*Int)
	if !ok {
		return rt.typeMismatchf("call arity", nActualObj)
	}
	nActual := int(n.Value)
	if len(ec.os) < nActual {
		return rt.arityMismatch("super call", nActual, len(ec.os))
	}
	args := make([]Object, nActual)
	for i := 0; i < nActual; i++ {
		args[i], _ = rt.popOS(ec)
	}

	sm, ok := subject.(*Map)
	if !ok {
		return rt.typeMismatchf("supercall subject", subject)
	}
	callable, ferr := rt.mapFetchSuper(sm, key)
	if ferr != nil {
		return ferr
	}
	if callable == nil {
		return rt.undefinedName(rt.objName(key))
	}
	td := rt.typeOf(callable)
	if !td.Caps.Has(CapCall) || td.Call == nil {
		return rt.typeMismatchf("call", callable)
	}
	res, cerr := td.Call(rt, callable, subject, args)
	if cerr != nil {
		return cerr
	}
	ec.os = append(ec.os, res)
	return nil
}

// opCritSect executes op.Body with the exec's critical-section depth
// incremented: for its duration Yield is a no-op and WaitFor fails with an
// atomicity error. Leave and Enter do not consult the depth, so they still
// release and reacquire the mutex. The body runs to completion on a nested
// exec context that shares ec's vs, and its os is appended to ec's.
func (rt *Runtime) opCritSect(ec *ExecContext, op *Op) error {
	ec.critDepth++
	sub := rt.newExecContext()
	sub.vs = ec.vs
	sub.xs = append(sub.xs, rt.newPC(op.Body))
	sub.critDepth = ec.critDepth
	err := rt.runExec(sub)
	ec.critDepth--
	if err != nil {
		return err
	}
	ec.os = append(ec.os, sub.os...)
	return nil
}

// opWaitFor pops an object and blocks this exec on it via the thread
// group's condition variable (§5 waitfor).
func (rt *Runtime) opWaitFor(ec *ExecContext) error {
	obj, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	return rt.WaitFor(ec, obj)
}

// opGo spawns a new thread running callable(args...), per §5's go().
func (rt *Runtime) opGo(ec *ExecContext) error {
	callable, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	nActualObj, err := rt.popOS(ec)
	if err != nil {
		return err
	}
	n, ok := nActualObj.(*Int)
	if !ok {
		return rt.typeMismatchf("go arity", nActualObj)
	}
	nActual := int(n.Value)
	args := make([]Object, nActual)
	for i := nActual - 1; i >= 0; i-- {
		args[i], _ = rt.popOS(ec)
	}
	handle, err := rt.Go(callable, args)
	if err != nil {
		return err
	}
	ec.os = append(ec.os, handle)
	return nil
}
