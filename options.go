// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import "go.uber.org/zap"

// config holds the values an Option mutates before NewRuntime builds the
// Runtime from them.
type config struct {
	logger            *zap.Logger
	gcThreshold       uint64
	maxRecursionDepth int
	maxThreads        int64
}

func defaultConfig() config {
	return config{
		logger:            nil,
		gcThreshold:       0, // 0 keeps accountant's own default (256 KiB)
		maxRecursionDepth: 10000,
		maxThreads:        64,
	}
}

// Option configures a Runtime at construction time.
type Option func(*config)

// WithLogger attaches a zap logger; without one, the Runtime logs nothing
// (gc.go, atom.go, and thread.go all guard every call site on rt.log != nil).
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.logger = log }
}

// WithGCThreshold overrides the initial collection threshold (default
// 256 KiB, per §4.2); zero leaves the default in place.
func WithGCThreshold(bytes uint64) Option {
	return func(c *config) { c.gcThreshold = bytes }
}

// WithMaxRecursionDepth bounds Runtime.Call's native recursion depth guard
// (§4.8 "Recursion depth guard"); zero disables the guard entirely.
func WithMaxRecursionDepth(depth int) Option {
	return func(c *config) { c.maxRecursionDepth = depth }
}

// WithMaxThreads caps the number of concurrently running Go-spawned
// threads (§5); the semaphore blocks further spawns until one exits.
func WithMaxThreads(n int64) Option {
	return func(c *config) { c.maxThreads = n }
}
