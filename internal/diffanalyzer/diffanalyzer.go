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

// Package diffanalyzer holds the pure functions the scheduler core uses
// to reason about a volume's diff chain: merge-range selection, size
// summation, and "latest restorable before T" search. None of these
// functions perform I/O.
package diffanalyzer

import (
	"time"

	"github.com/walb-tools/walmaintd/internal/archive"
)

// LatestGidInfoBefore returns the last entry of infoL whose timestamp is
// <= t, skipping infoL[0] (the conventional current base point, which is
// never an apply candidate). Returns false if no such entry exists.
func LatestGidInfoBefore(t time.Time, infoL []archive.GidInfo) (archive.GidInfo, bool) {
	var prev archive.GidInfo
	found := false
	if len(infoL) == 0 {
		return prev, false
	}
	for _, info := range infoL[1:] {
		if info.Ts.After(t) {
			break
		}
		prev = info
		found = true
	}
	return prev, found
}

// SumDiffSize sums DataSize across diffL.
func SumDiffSize(diffL []archive.Diff) int64 {
	var total int64
	for _, d := range diffL {
		total += d.DataSize
	}
	return total
}

// mergeRun is one maximal run of consecutive mergeable, non-compacted
// diffs considered as a single merge candidate.
type mergeRun struct {
	diffs   []archive.Diff
	avgSize float64
}

// MergeGidRange partitions diffL into maximal runs broken by any element
// with IsCompDiff or !IsMergeable (the breaking element begins the next
// run; runs shorter than 2 are discarded). Among surviving runs it
// returns the gid range of the run with the smallest average diff size,
// preferring many-small-diff runs since merge overhead amortizes best
// there. Ties are broken by first-seen order. Returns false if no run of
// length >= 2 exists.
func MergeGidRange(diffL []archive.Diff) (gidB, gidE archive.Gid, ok bool) {
	var runs []mergeRun
	var cur []archive.Diff
	flush := func() {
		if len(cur) >= 2 {
			runs = append(runs, mergeRun{
				diffs:   cur,
				avgSize: float64(SumDiffSize(cur)) / float64(len(cur)),
			})
		}
		cur = nil
	}
	for _, d := range diffL {
		if d.IsCompDiff || !d.IsMergeable {
			flush()
			cur = append(cur, d)
			continue
		}
		cur = append(cur, d)
	}
	flush()

	if len(runs) == 0 {
		return 0, 0, false
	}
	best := runs[0]
	for _, r := range runs[1:] {
		if r.avgSize < best.avgSize {
			best = r
		}
	}
	return best.diffs[0].B.GidB, best.diffs[len(best.diffs)-1].E.GidB, true
}
