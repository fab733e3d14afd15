// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "github.com/dlclark/regexp2"

// RegexpOptions mirrors the small option bitset the archiver persists
// alongside a pattern (§4.9 "regexp: u32 options + embedded string").
type RegexpOptions uint32

const (
	RegexpCaseless RegexpOptions = 1 << iota
	RegexpMultiline
)

// Regexp is a compiled pattern atom: two regexps with the same source and
// options collapse to one interned instance, same as strings. regexp2 is
// used in place of the standard library's RE2 engine because the language
// surface this wraps supports backreferences and lookaround, which RE2
// deliberately cannot express.
type Regexp struct {
	Header
	Pattern string
	Options RegexpOptions
	re      *regexp2.Regexp
}

func newRegexpType() *TypeDescriptor {
	return &TypeDescriptor{
		Name: "regexp",
		Caps: CapObjName,
		Mark: func(rt *Runtime, o Object) uintptr {
			r := o.(*Regexp)
			return uintptr(48 + len(r.Pattern))
		},
		Free: func(rt *Runtime, o Object) {},
		Cmp: func(a, b Object) bool {
			ar, br := a.(*Regexp), b.(*Regexp)
			return ar.Pattern == br.Pattern && ar.Options == br.Options
		},
		Hash: func(o Object) uint64 {
			r := o.(*Regexp)
			return fnv1a([]byte(r.Pattern)) ^ hashInt64(int64(r.Options))
		},
		Copy: func(rt *Runtime, o Object) Object {
			r := o.(*Regexp)
			return &Regexp{Pattern: r.Pattern, Options: r.Options, re: r.re}
		},
		ObjName: func(o Object) string { return "`" + o.(*Regexp).Pattern + "`" },
	}
}

func regexp2Options(opts RegexpOptions) regexp2.RegexOptions {
	var o regexp2.RegexOptions
	if opts&RegexpCaseless != 0 {
		o |= regexp2.IgnoreCase
	}
	if opts&RegexpMultiline != 0 {
		o |= regexp2.Multiline
	}
	return o
}

// NewRegexp compiles pattern and returns a fresh, non-atomic Regexp.
// Callers intern it with Atom like any other value when they want the
// usual "equal patterns share one instance" behavior.
func (rt *Runtime) NewRegexp(pattern string, opts RegexpOptions) (*Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2Options(opts))
	if err != nil {
		return nil, wrapError(KindProtocolViolation, err, "invalid pattern %q", pattern)
	}
	o := &Regexp{Pattern: pattern, Options: opts, re: re}
	o.tcode = TCodeRegexp
	o.nrefs = 1
	rt.allocTyped(uintptr(48+len(pattern)), o)
	return o, nil
}

// Match reports whether s matches the regexp anywhere, and the matched
// substring's bounds (start, end) if so.
func (rt *Runtime) Match(r *Regexp, s string) (start, end int, matched bool, err error) {
	m, merr := r.re.FindStringMatch(s)
	if merr != nil {
		return 0, 0, false, wrapError(KindProtocolViolation, merr, "regexp match")
	}
	if m == nil {
		return 0, 0, false, nil
	}
	return m.Index, m.Index + m.Length, true, nil
}
