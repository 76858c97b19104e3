// Copyright 2016 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signalctl models SIGHUP as a separate OS-signal actor: it sets
// a "reload requested" flag consumed by the driver shell between
// selectTask invocations. The scheduler core itself is signal-agnostic.
package signalctl

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pingcap/log"
)

// Watcher observes SIGHUP and exposes whether a reload was requested
// since the last ConsumeReload call.
type Watcher struct {
	reload  int32
	sigCh   chan os.Signal
	stopped chan struct{}
}

// NewWatcher installs the SIGHUP handler and starts watching.
func NewWatcher() *Watcher {
	w := &Watcher{
		sigCh:   make(chan os.Signal, 1),
		stopped: make(chan struct{}),
	}
	signal.Notify(w.sigCh, syscall.SIGHUP)
	go w.run()
	return w
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.sigCh:
			log.Info("caught SIGHUP")
			atomic.StoreInt32(&w.reload, 1)
		case <-w.stopped:
			return
		}
	}
}

// ConsumeReload reports whether a reload was requested since the last
// call, clearing the flag.
func (w *Watcher) ConsumeReload() bool {
	return atomic.SwapInt32(&w.reload, 0) == 1
}

// Stop releases the signal handler.
func (w *Watcher) Stop() {
	signal.Stop(w.sigCh)
	close(w.stopped)
}
