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

// Package scheduler is the task-selection policy engine: the five-step
// priority cascade that surveys every volume and emits at most one Task
// per invocation.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/walb-tools/walmaintd/internal/archive"
	"github.com/walb-tools/walmaintd/internal/archivefilter"
	"github.com/walb-tools/walmaintd/internal/config"
	"github.com/walb-tools/walmaintd/internal/diffanalyzer"
	"github.com/walb-tools/walmaintd/internal/metrics"
	"github.com/walb-tools/walmaintd/internal/task"
)

// Clock abstracts "now" so tests can drive curTime deterministically.
type Clock func() time.Time

// Scheduler runs the priority cascade against one archive node. It holds
// no persistent storage: doneRepl/mergeLast are in-memory best-effort
// tables updated by the executor, not by Scheduler itself.
type Scheduler struct {
	cfg   *config.Config
	ax    archive.ServerRef
	walbc archive.Client
	clock Clock

	state *state
}

// New builds a Scheduler against archive ax using walbc as the transport
// to it. clock defaults to time.Now when nil.
func New(cfg *config.Config, ax archive.ServerRef, walbc archive.Client, clock Clock) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{cfg: cfg, ax: ax, walbc: walbc, clock: clock, state: newState()}
}

// SetDoneRepl and SetMergeLast let the executor report task completion.
// The scheduler core only reads these tables during selection.
func (s *Scheduler) SetDoneRepl(vol, target string, ts time.Time) { s.state.SetDoneRepl(vol, target, ts) }
func (s *Scheduler) SetMergeLast(vol string, ts time.Time)        { s.state.SetMergeLast(vol, ts) }

// LastReplication reports the last successful replication time for
// (vol, target), for status logging; ok is false if none is recorded.
func (s *Scheduler) LastReplication(vol, target string) (time.Time, bool) {
	ts := s.state.DoneRepl(vol, target)
	return ts, ts != OldestTime
}

func withRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey{}, uuid.New().String())
}

type requestIDKey struct{}

// SelectTask runs the five-step priority cascade and returns the first
// non-empty result, or nil if there is nothing to do. curTime is sampled
// once at entry; the volume list is fetched once. Each step short
// circuits the next on the first hit.
func (s *Scheduler) SelectTask(ctx context.Context) (*task.Task, error) {
	ctx = withRequestID(ctx)
	curTime := s.clock()

	volL, err := s.walbc.VolList(ctx, s.ax)
	if err != nil {
		return nil, archive.NewTransportError(s.ax, "vol_list", err)
	}

	if t, err := s.selectApplyInProgress(ctx, volL); t != nil || err != nil {
		return t, err
	}
	if t, err := s.selectApplyBacklog(ctx, volL, curTime); t != nil || err != nil {
		return t, err
	}

	numDiffL, err := s.numDiffList(ctx, volL)
	if err != nil {
		return nil, err
	}

	if t, err := s.selectForcedMerge(ctx, volL, numDiffL); t != nil || err != nil {
		return t, err
	}
	if t, err := s.selectDueRepl(ctx, volL, curTime); t != nil || err != nil {
		return t, err
	}
	return s.selectOpportunisticMerge(ctx, volL, numDiffL, curTime)
}

// step 1: resume in-progress applies.
func (s *Scheduler) selectApplyInProgress(ctx context.Context, volL []string) (*task.Task, error) {
	metrics.StepExamined.WithLabelValues("apply_in_progress").Inc()
	for _, vol := range volL {
		base, err := s.walbc.BaseState(ctx, s.ax, vol)
		if err != nil {
			return nil, archive.NewTransportError(s.ax, "base_state", err)
		}
		if base.IsApplying {
			return s.finish(task.NewApply(s.ax, vol, base.B.GidB)), nil
		}
	}
	return nil, nil
}

type applyCandidate struct {
	size int64
	vol  string
	gid  archive.Gid
}

// step 2: apply the largest reclaimable backlog.
func (s *Scheduler) selectApplyBacklog(ctx context.Context, volL []string, curTime time.Time) (*task.Task, error) {
	if !s.cfg.Apply.TimeWindow.Active(curTime.Hour()) {
		return nil, nil
	}
	metrics.StepExamined.WithLabelValues("apply_backlog").Inc()
	cutoff := curTime.Add(-s.cfg.Apply.KeepPeriod)

	var candidates []applyCandidate
	for _, vol := range volL {
		infoL, err := s.walbc.Restorable(ctx, s.ax, vol, archive.RestorableModeAll)
		if err != nil {
			return nil, archive.NewTransportError(s.ax, "restorable", err)
		}
		gidInfo, ok := diffanalyzer.LatestGidInfoBefore(cutoff, infoL)
		if !ok {
			continue
		}
		size, err := s.walbc.TotalDiffSize(ctx, s.ax, vol, gidInfo.Gid)
		if err != nil {
			return nil, archive.NewTransportError(s.ax, "total_diff_size", err)
		}
		candidates = append(candidates, applyCandidate{size: size, vol: vol, gid: gidInfo.Gid})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.size > best.size {
			best = c
		}
	}
	return s.finish(task.NewApply(s.ax, best.vol, best.gid)), nil
}

func (s *Scheduler) numDiffList(ctx context.Context, volL []string) ([]int, error) {
	numDiffL := make([]int, len(volL))
	for i, vol := range volL {
		n, err := s.walbc.NumDiff(ctx, s.ax, vol)
		if err != nil {
			return nil, archive.NewTransportError(s.ax, "num_diff", err)
		}
		numDiffL[i] = n
	}
	return numDiffL, nil
}

type diffCountCandidate struct {
	n   int
	vol string
}

// selectMaxDiffNumMerge picks the candidate with the largest diff count
// from ls and returns a Merge task for it if a mergeable run exists.
func (s *Scheduler) selectMaxDiffNumMerge(ctx context.Context, ls []diffCountCandidate) (*task.Task, error) {
	if len(ls) == 0 {
		return nil, nil
	}
	best := ls[0]
	for _, c := range ls[1:] {
		if c.n > best.n {
			best = c
		}
	}
	diffL, err := s.walbc.ApplicableDiffList(ctx, s.ax, best.vol)
	if err != nil {
		return nil, archive.NewTransportError(s.ax, "applicable_diff_list", err)
	}
	if err := checkDiffChain(s.ax, best.vol, diffL); err != nil {
		return nil, err
	}
	gidB, gidE, ok := diffanalyzer.MergeGidRange(diffL)
	if !ok {
		return nil, nil
	}
	return s.finish(task.NewMerge(s.ax, best.vol, gidB, gidE)), nil
}

// step 3: forced merges for volumes over threshold.
func (s *Scheduler) selectForcedMerge(ctx context.Context, volL []string, numDiffL []int) (*task.Task, error) {
	metrics.StepExamined.WithLabelValues("forced_merge").Inc()
	var ls []diffCountCandidate
	for i, vol := range volL {
		if numDiffL[i] >= s.cfg.Merge.ThresholdNr {
			ls = append(ls, diffCountCandidate{n: numDiffL[i], vol: vol})
		}
	}
	return s.selectMaxDiffNumMerge(ctx, ls)
}

type replCandidate struct {
	ts     time.Time
	vol    string
	target archive.ReplTarget
}

// step 4: due replication.
func (s *Scheduler) selectDueRepl(ctx context.Context, volL []string, curTime time.Time) (*task.Task, error) {
	metrics.StepExamined.WithLabelValues("due_repl").Inc()
	filters := []archivefilter.Filter{archivefilter.ActiveState()}
	var candidates []replCandidate
	for _, vol := range volL {
		localState, err := s.walbc.State(ctx, s.ax, vol)
		if err != nil {
			return nil, archive.NewTransportError(s.ax, "state", err)
		}
		if archivefilter.Reject(localState, filters) {
			continue
		}
		for _, rt := range s.cfg.ReplServers {
			target := archive.ReplTarget{
				Name: rt.Name, Addr: rt.Addr, Port: rt.Port, Interval: rt.Interval,
				Compress: archive.CompressOpt{Mode: rt.Compress.Mode, Level: rt.Compress.Level, NumCpu: rt.Compress.NumCpu},
				MaxMergeSize: rt.MaxMergeSize, BulkSize: rt.BulkSize,
			}
			remoteServer := target.Server()
			remoteState, err := s.walbc.State(ctx, remoteServer, vol)
			if err != nil {
				return nil, archive.NewTransportError(remoteServer, "state", err)
			}
			if archivefilter.Reject(remoteState, filters) {
				continue
			}
			ts := s.state.DoneRepl(vol, target.Name)
			// Skip when not yet due: ts + interval still in the future.
			// (The source's comparison was inverted; spec.md fixes the
			// intended semantics to this orientation.)
			if ts != OldestTime && ts.Add(target.Interval).After(curTime) {
				continue
			}
			candidates = append(candidates, replCandidate{ts: ts, vol: vol, target: target})
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ts.Before(best.ts) {
			best = c
		}
	}
	return s.finish(task.NewRepl(best.vol, s.ax, best.target)), nil
}

// step 5: opportunistic merges during quiet periods.
func (s *Scheduler) selectOpportunisticMerge(ctx context.Context, volL []string, numDiffL []int, curTime time.Time) (*task.Task, error) {
	metrics.StepExamined.WithLabelValues("opportunistic_merge").Inc()
	var ls []diffCountCandidate
	for i, vol := range volL {
		ts := s.state.MergeLast(vol)
		// Skip when not yet due, same orientation fix as step 4.
		if ts != OldestTime && ts.Add(s.cfg.Merge.Interval).After(curTime) {
			continue
		}
		ls = append(ls, diffCountCandidate{n: numDiffL[i], vol: vol})
	}
	return s.selectMaxDiffNumMerge(ctx, ls)
}

func (s *Scheduler) finish(t *task.Task) *task.Task {
	metrics.TaskSelected.WithLabelValues(t.Kind.String()).Inc()
	log.Debug("selected task", zap.Stringer("task", stringerFunc(t.String)))
	return t
}

type stringerFunc func() string

func (f stringerFunc) String() string { return f() }

// checkDiffChain validates the monotonicity invariant the scheduler core
// relies on: applicable_diff_list must be ordered by B.GidB ascending
// and form a consistent chain (each diff's B.GidB equal to the previous
// diff's E.GidB).
func checkDiffChain(ax archive.ServerRef, vol string, diffL []archive.Diff) error {
	for i := 1; i < len(diffL); i++ {
		if diffL[i].B.GidB < diffL[i-1].B.GidB {
			return archive.NewInvariantViolation(ax, vol, "applicable_diff_list is not ordered by B.GidB ascending at index %d", i)
		}
		if diffL[i].B.GidB != diffL[i-1].E.GidB {
			return archive.NewInvariantViolation(ax, vol, "applicable_diff_list is not a consistent chain at index %d: gap between %d and %d", i, diffL[i-1].E.GidB, diffL[i].B.GidB)
		}
	}
	return nil
}
