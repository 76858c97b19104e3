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

package diffanalyzer

import (
	"testing"
	"time"

	"github.com/walb-tools/walmaintd/internal/archive"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLatestGidInfoBeforeSkipsFirstElement(t *testing.T) {
	infoL := []archive.GidInfo{
		{Gid: 0, Ts: mustTime("2024-12-01T00:00:00Z")}, // base point, always skipped
		{Gid: 100, Ts: mustTime("2024-12-20T00:00:00Z")},
		{Gid: 200, Ts: mustTime("2024-12-30T00:00:00Z")},
	}
	got, ok := LatestGidInfoBefore(mustTime("2024-12-31T00:00:00Z"), infoL)
	if !ok || got.Gid != 200 {
		t.Fatalf("got %+v ok=%v, want gid=200", got, ok)
	}

	// Before even the first real candidate: nothing.
	_, ok = LatestGidInfoBefore(mustTime("2024-12-01T00:00:00Z"), infoL)
	if ok {
		t.Fatalf("expected no candidate before first real point")
	}

	// Even when T is after the base point's own timestamp, index 0 is
	// still excluded from consideration.
	_, ok = LatestGidInfoBefore(mustTime("2024-12-10T00:00:00Z"), infoL)
	if ok {
		t.Fatalf("expected no candidate, base point must stay excluded")
	}
}

func TestLatestGidInfoBeforeEmpty(t *testing.T) {
	if _, ok := LatestGidInfoBefore(mustTime("2024-12-31T00:00:00Z"), nil); ok {
		t.Fatalf("expected no candidate for empty list")
	}
}

func TestSumDiffSize(t *testing.T) {
	diffs := []archive.Diff{{DataSize: 10}, {DataSize: 20}, {DataSize: 5}}
	if got := SumDiffSize(diffs); got != 35 {
		t.Fatalf("got %d, want 35", got)
	}
}

func diff(gidB, gidE archive.Gid, size int64, isComp, isMergeable bool) archive.Diff {
	return archive.Diff{
		B:           archive.GidRange{GidB: gidB},
		E:           archive.GidRange{GidB: gidE},
		DataSize:    size,
		IsCompDiff:  isComp,
		IsMergeable: isMergeable,
	}
}

func TestMergeGidRangePrefersSmallestAverage(t *testing.T) {
	// Scenario 3 from the spec: five diffs, all mergeable, sizes
	// [1,1,1,100,100], gids 0..5. One run, the whole list.
	diffs := []archive.Diff{
		diff(0, 1, 1, false, true),
		diff(1, 2, 1, false, true),
		diff(2, 3, 1, false, true),
		diff(3, 4, 100, false, true),
		diff(4, 5, 100, false, true),
	}
	gidB, gidE, ok := MergeGidRange(diffs)
	if !ok || gidB != 0 || gidE != 5 {
		t.Fatalf("got (%d,%d,%v), want (0,5,true)", gidB, gidE, ok)
	}
}

func TestMergeGidRangeSplitsOnBreakingElement(t *testing.T) {
	// Run A: gids 0-3 (small, avg 1). Breaking compacted diff at gid 3.
	// Run B: starts at the breaking diff (gid 3) through gid 6, avg bigger.
	diffs := []archive.Diff{
		diff(0, 1, 1, false, true),
		diff(1, 2, 1, false, true),
		diff(2, 3, 1, false, true),
		diff(3, 4, 1000, true, true), // breaking: isCompDiff, begins next run
		diff(4, 5, 1000, false, true),
		diff(5, 6, 1000, false, true),
	}
	gidB, gidE, ok := MergeGidRange(diffs)
	if !ok {
		t.Fatalf("expected a merge range")
	}
	// Run A (gids 0..3, avg 1) beats run B (gids 3..6, avg ~1000).
	if gidB != 0 || gidE != 3 {
		t.Fatalf("got (%d,%d), want (0,3): smallest-average run should win", gidB, gidE)
	}
}

func TestMergeGidRangeDiscardsSingletonRuns(t *testing.T) {
	diffs := []archive.Diff{
		diff(0, 1, 1, false, true),
		diff(1, 2, 1, true, true), // breaks: run [0,1) has length 1, discarded
		diff(2, 3, 1, true, true), // breaks again: run [1,2) has length 1, discarded
	}
	_, _, ok := MergeGidRange(diffs)
	if ok {
		t.Fatalf("expected no merge range: every run has length < 2")
	}
}

func TestMergeGidRangeUnmergeableBreaks(t *testing.T) {
	diffs := []archive.Diff{
		diff(0, 1, 1, false, true),
		diff(1, 2, 1, false, false), // not mergeable: breaks the run
		diff(2, 3, 1, false, true),
		diff(3, 4, 1, false, true),
	}
	gidB, gidE, ok := MergeGidRange(diffs)
	if !ok || gidB != 1 || gidE != 4 {
		t.Fatalf("got (%d,%d,%v), want (1,4,true)", gidB, gidE, ok)
	}
}

func TestMergeGidRangeNoDiffs(t *testing.T) {
	if _, _, ok := MergeGidRange(nil); ok {
		t.Fatalf("expected no merge range for empty input")
	}
}
