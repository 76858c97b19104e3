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

// Package task defines the maintenance task that the scheduler core
// selects: apply, merge or repl.
package task

import (
	"fmt"

	"github.com/walb-tools/walmaintd/internal/archive"
)

// Kind tags which of the three maintenance actions a Task carries.
type Kind int

// The three maintenance actions the scheduler can select.
const (
	Apply Kind = iota
	Merge
	Repl
)

func (k Kind) String() string {
	switch k {
	case Apply:
		return "apply"
	case Merge:
		return "merge"
	case Repl:
		return "repl"
	default:
		return "unknown"
	}
}

// Task is a tagged value describing one unit of maintenance work.
// Exactly the fields relevant to Kind are meaningful; equality is
// structural over the tag and those fields.
type Task struct {
	Kind Kind
	Vol  string

	// Apply
	Ax  archive.ServerRef
	Gid archive.Gid

	// Merge (also uses Ax, Vol above)
	GidB archive.Gid
	GidE archive.Gid

	// Repl
	Src archive.ServerRef
	Dst archive.ReplTarget
}

// NewApply builds an Apply task: collapse diffs into the base image up to gid.
func NewApply(ax archive.ServerRef, vol string, gid archive.Gid) *Task {
	return &Task{Kind: Apply, Vol: vol, Ax: ax, Gid: gid}
}

// NewMerge builds a Merge task: replace the diff run [gidB, gidE) by one diff.
// Panics if gidB >= gidE, since the caller is expected to have validated the
// range against applicable_diff_list before constructing the task.
func NewMerge(ax archive.ServerRef, vol string, gidB, gidE archive.Gid) *Task {
	if gidB >= gidE {
		panic(fmt.Sprintf("task: merge range is not increasing: gidB=%d gidE=%d", gidB, gidE))
	}
	return &Task{Kind: Merge, Vol: vol, Ax: ax, GidB: gidB, GidE: gidE}
}

// NewRepl builds a Repl task: push vol from src to dst.
func NewRepl(vol string, src archive.ServerRef, dst archive.ReplTarget) *Task {
	return &Task{Kind: Repl, Vol: vol, Src: src, Dst: dst}
}

// Equal reports structural equality over the tag and the fields that tag uses.
func (t *Task) Equal(rhs *Task) bool {
	if t == nil || rhs == nil {
		return t == rhs
	}
	if t.Kind != rhs.Kind || t.Vol != rhs.Vol {
		return false
	}
	switch t.Kind {
	case Apply:
		return t.Ax == rhs.Ax && t.Gid == rhs.Gid
	case Merge:
		return t.Ax == rhs.Ax && t.GidB == rhs.GidB && t.GidE == rhs.GidE
	case Repl:
		return t.Src == rhs.Src && t.Dst == rhs.Dst
	default:
		return false
	}
}

// String renders a stable, human-readable form used in logs and assertions.
func (t *Task) String() string {
	switch t.Kind {
	case Apply:
		return fmt.Sprintf("Task apply ax=%s vol=%s gid=%d", t.Ax, t.Vol, t.Gid)
	case Merge:
		return fmt.Sprintf("Task merge ax=%s vol=%s gid=(%d, %d)", t.Ax, t.Vol, t.GidB, t.GidE)
	case Repl:
		return fmt.Sprintf("Task repl vol=%s src=%s dst=%s", t.Vol, t.Src, t.Dst)
	default:
		return "Task <invalid>"
	}
}
