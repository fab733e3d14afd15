// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ici is an embeddable core for a small, dynamically-typed
// scripting language: object model, atom (intern) pool, mark-and-sweep
// collector, a three-stack tree-walking evaluator with cooperative
// multithreading, and a cycle-safe archive (save/restore) protocol.
//
// The parser/compiler that produces code arrays, the standard library of
// built-in functions, and any CLI front-end are external collaborators and
// are not part of this package; it consumes pre-built code arrays through
// the operator opcodes in vm.go and exposes the embedder surface described
// in runtime.go.
//
// All process-wide state the original C implementation kept in C globals —
// the type table, the atom pool, the all-objects list, the small-integer
// cache, the lookaside generation counter — is instead owned by a single
// *Runtime value, so a process may host more than one independent
// interpreter.
package ici
