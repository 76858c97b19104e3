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

package archivefilter

import (
	"testing"

	"github.com/walb-tools/walmaintd/internal/archive"
)

func TestActiveStateFilter(t *testing.T) {
	cases := []struct {
		state archive.State
		want  bool
	}{
		{"Master", false},
		{"Slave", false},
		{"Archived", false},
		{"Stopped", true},
		{"", true},
	}
	f := ActiveState()
	for _, c := range cases {
		if got := f.Reject(c.state); got != c.want {
			t.Errorf("ActiveState().Reject(%q) = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestExcludedStatesFilter(t *testing.T) {
	f := ExcludedStates("Stopped", "Clear")
	if !f.Reject("Stopped") {
		t.Fatalf("expected Stopped to be rejected")
	}
	if f.Reject("Master") {
		t.Fatalf("did not expect Master to be rejected")
	}
}

func TestRejectOrsAcrossFilters(t *testing.T) {
	fs := []Filter{ActiveState(), ExcludedStates("Master")}
	if !Reject("Master", fs) {
		t.Fatalf("expected Master to be rejected by the excluded-states filter")
	}
	if !Reject("Stopped", fs) {
		t.Fatalf("expected Stopped to be rejected by the active-state filter")
	}
	if Reject("Slave", fs) {
		t.Fatalf("did not expect Slave to be rejected by either filter")
	}
}

func TestRejectWithNoFilters(t *testing.T) {
	if Reject("anything", nil) {
		t.Fatalf("no filters should never reject")
	}
}
