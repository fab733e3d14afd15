// Copyright 2024 The ici-go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ici

import (
	"os"
	"os/signal"
	"sync"

	"go.uber.org/zap"
)

// SignalBridge dispatches host OS signals to script-registered callables,
// the simplified counterpart of the original's signal handler ↔ script
// callback plumbing. Each signal is handled on its own goroutine that
// waits for delivery, then marshals the dispatch through the Runtime's
// global mutex like any other thread (§5's single-mutex discipline applies
// to signal handlers too — they are not special).
type SignalBridge struct {
	mu       sync.Mutex
	handlers map[os.Signal]Object
	stop     chan struct{}
	sigCh    chan os.Signal
}

func newSignalBridge() *SignalBridge {
	return &SignalBridge{
		handlers: make(map[os.Signal]Object),
		stop:     make(chan struct{}),
		sigCh:    make(chan os.Signal, 8),
	}
}

// HandleSignal registers callable to run (as a thread, via Go) whenever
// sig is delivered, replacing any previous handler for that signal.
func (rt *Runtime) HandleSignal(sig os.Signal, callable Object) {
	rt.signals.mu.Lock()
	_, already := rt.signals.handlers[sig]
	rt.signals.handlers[sig] = callable
	rt.signals.mu.Unlock()

	if !already {
		signal.Notify(rt.signals.sigCh, sig)
	}
}

// IgnoreSignal removes any script handler for sig and stops forwarding it.
func (rt *Runtime) IgnoreSignal(sig os.Signal) {
	rt.signals.mu.Lock()
	delete(rt.signals.handlers, sig)
	rt.signals.mu.Unlock()
	signal.Reset(sig)
}

// startSignalBridge launches the dispatch goroutine; called once from
// NewRuntime. It never touches managed objects itself — it only looks up
// the registered callable and hands off to Go, which takes the mutex.
func (rt *Runtime) startSignalBridge() {
	go func() {
		for {
			select {
			case <-rt.signals.stop:
				return
			case sig := <-rt.signals.sigCh:
				rt.signals.mu.Lock()
				callable, ok := rt.signals.handlers[sig]
				rt.signals.mu.Unlock()
				if !ok {
					continue
				}
				if _, err := rt.Go(callable, nil); err != nil && rt.log != nil {
					rt.log.Warn("signal dispatch failed", zap.Error(err), zap.String("signal", sig.String()))
				}
			}
		}
	}()
}

func (rt *Runtime) stopSignalBridge() {
	close(rt.signals.stop)
	signal.Stop(rt.signals.sigCh)
}
