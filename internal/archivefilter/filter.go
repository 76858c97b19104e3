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

// Package archivefilter provides pluggable predicates over archive
// endpoints, the same shape as the teacher's store filters: each Filter
// answers "should this endpoint be rejected", and callers AND a slice of
// them together rather than hand-rolling one big boolean expression per
// call site.
package archivefilter

import "github.com/walb-tools/walmaintd/internal/archive"

// Filter rejects an (archive, vol) pair as a replication endpoint.
type Filter interface {
	Type() string
	// Reject returns true if the endpoint must not be used.
	Reject(state archive.State) bool
}

// Reject reports whether any filter in fs rejects state.
func Reject(state archive.State, fs []Filter) bool {
	for _, f := range fs {
		if f.Reject(state) {
			return true
		}
	}
	return false
}

type activeStateFilter struct{}

// ActiveState rejects any endpoint whose reported state is not a member
// of the active set (§3 "Active state (aActive)").
func ActiveState() Filter { return activeStateFilter{} }

func (activeStateFilter) Type() string { return "active-state-filter" }

func (activeStateFilter) Reject(state archive.State) bool {
	return !archive.IsActive(state)
}

type excludedStateFilter struct {
	excluded map[archive.State]bool
}

// ExcludedStates rejects any endpoint whose reported state is in the
// given set, e.g. for operators who want to pin a handful of archive
// states out of replication eligibility without touching Active.
func ExcludedStates(states ...archive.State) Filter {
	m := make(map[archive.State]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return excludedStateFilter{excluded: m}
}

func (excludedStateFilter) Type() string { return "excluded-state-filter" }

func (f excludedStateFilter) Reject(state archive.State) bool {
	return f.excluded[state]
}
