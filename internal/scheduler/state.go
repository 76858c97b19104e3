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

package scheduler

import (
	"sync"
	"time"
)

// OldestTime is the sentinel "never happened" timestamp.
var OldestTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type replKey struct {
	vol    string
	target string
}

// state holds the scheduler's in-memory tables: last successful
// replication per (vol, replTarget) and last merge issued per vol. It is
// read by the scheduler and written by the executor (out of scope for
// this package beyond the setter methods below), so access is
// serialized by a single embedded mutex, the same shape RaftCluster uses
// for its cached cluster state.
type state struct {
	sync.RWMutex

	doneRepl  map[replKey]time.Time
	mergeLast map[string]time.Time
}

func newState() *state {
	return &state{
		doneRepl:  make(map[replKey]time.Time),
		mergeLast: make(map[string]time.Time),
	}
}

// DoneRepl returns the last successful replication time for (vol,
// target), or OldestTime if none is recorded.
func (s *state) DoneRepl(vol, target string) time.Time {
	s.RLock()
	defer s.RUnlock()
	if ts, ok := s.doneRepl[replKey{vol, target}]; ok {
		return ts
	}
	return OldestTime
}

// SetDoneRepl records a successful replication completion. Called by the
// executor once a Repl task finishes; the scheduler itself never writes
// this table during selection.
func (s *state) SetDoneRepl(vol, target string, ts time.Time) {
	s.Lock()
	defer s.Unlock()
	s.doneRepl[replKey{vol, target}] = ts
}

// MergeLast returns the last merge timestamp for vol, or OldestTime if
// none is recorded.
func (s *state) MergeLast(vol string) time.Time {
	s.RLock()
	defer s.RUnlock()
	if ts, ok := s.mergeLast[vol]; ok {
		return ts
	}
	return OldestTime
}

// SetMergeLast records a completed merge. Called by the executor.
func (s *state) SetMergeLast(vol string, ts time.Time) {
	s.Lock()
	defer s.Unlock()
	s.mergeLast[vol] = ts
}
