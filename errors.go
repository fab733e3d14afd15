// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"errors"
	"fmt"
)

// Kind is one of the §7 error categories. Every failure the engine raises
// carries one, so callers can branch on "what kind of thing went wrong"
// without parsing the message text.
type Kind int

const (
	KindTypeMismatch Kind = iota
	KindArityMismatch
	KindOutOfRange
	KindAtomicityViolation
	KindUndefinedName
	KindResourceExhaustion
	KindIOFailure
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindTypeMismatch:
		return "type mismatch"
	case KindArityMismatch:
		return "arity mismatch"
	case KindOutOfRange:
		return "out of range"
	case KindAtomicityViolation:
		return "atomicity violation"
	case KindUndefinedName:
		return "undefined name"
	case KindResourceExhaustion:
		return "resource exhaustion"
	case KindIOFailure:
		return "i/o failure"
	case KindProtocolViolation:
		return "protocol violation"
	default:
		return "error"
	}
}

// Error is the engine's error value. It plays the role of the original
// per-thread "current error cell": a message plus the source position most
// recently seen, expandable as it propagates through an eval boundary.
type Error struct {
	Kind Kind
	Msg  string
	File string
	Line int
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// WithPos returns a copy of e expanded with a source position, matching the
// "expansion hook" §4.10 describes: on propagation through a parse/eval
// boundary the message gains file:line from the most recent `src` marker.
func (e *Error) WithPos(file string, line int) *Error {
	cp := *e
	cp.File = file
	cp.Line = line
	return &cp
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ErrorKind extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports ok=false otherwise.
func ErrorKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// typeMismatchf formats "operation on <objname>" errors, matching §7's
// requirement that the message name both the operation and the offending
// value's short description.
func (rt *Runtime) typeMismatchf(op string, o Object) *Error {
	return newError(KindTypeMismatch, "%s: unexpected operand of type %s", op, rt.objName(o))
}

func (rt *Runtime) undefinedName(name string) *Error {
	return newError(KindUndefinedName, "%q is not defined", name)
}

func (rt *Runtime) arityMismatch(callable string, want, got int) *Error {
	return newError(KindArityMismatch, "%s: expected %d argument(s), got %d", callable, want, got)
}

func (rt *Runtime) outOfRange(what string, idx, limit int) *Error {
	return newError(KindOutOfRange, "%s: index %d out of range [0,%d)", what, idx, limit)
}

func (rt *Runtime) atomicityViolation(op string, o Object) *Error {
	return newError(KindAtomicityViolation, "%s: %s is atomic and cannot be mutated", op, rt.objName(o))
}
