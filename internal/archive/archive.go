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

// Package archive defines the data model and the narrow client contract
// the scheduler core uses to talk to an archive node. No wire format is
// prescribed here: Client is the only seam through which the core
// touches the outside world, and it is trivially mockable for tests.
package archive

import (
	"context"
	"fmt"
	"time"
)

// Gid is a 64-bit monotonically non-decreasing generation id identifying
// a point in the diff chain. Values are totally ordered; 0 is not special.
type Gid uint64

// GidInfo is a restorable point returned by the archive.
type GidInfo struct {
	Gid Gid
	Ts  time.Time
}

// GidRange is a half-open-by-convention interval endpoint pair used by Diff.
type GidRange struct {
	GidB Gid
	GidE Gid
}

// Diff is an incremental byte-delta between two gids. The interval it
// covers is [B.GidB, E.GidB]. IsCompDiff marks a compacted diff that is a
// merge boundary; IsMergeable is a per-diff permission flag.
type Diff struct {
	B          GidRange
	E          GidRange
	DataSize   int64
	IsCompDiff bool
	IsMergeable bool
}

// BaseState describes whether the archive's base image is mid-apply.
type BaseState struct {
	IsApplying bool
	// B.GidB is only meaningful when IsApplying is true: the gid the base
	// image is currently being applied toward.
	B GidRange
}

// ServerKind distinguishes the roles a ServerRef may play in the layout.
// The scheduler only ever issues queries to Archive servers; Storage and
// Proxy refs exist in the layout but are inert here.
type ServerKind int

const (
	KindStorage ServerKind = iota
	KindProxy
	KindArchive
)

func (k ServerKind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindProxy:
		return "proxy"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// ServerRef names one server in the layout.
type ServerRef struct {
	Name string
	Addr string
	Port int
	Kind ServerKind
}

func (s ServerRef) String() string {
	return fmt.Sprintf("%s(%s:%d)", s.Name, s.Addr, s.Port)
}

// CompressOpt is the MODE:LEVEL:NUM_CPU compression setting accepted by
// repl_servers entries.
type CompressOpt struct {
	Mode   string
	Level  int
	NumCpu int
}

// ReplTarget is one configured peer archive to replicate volumes to.
type ReplTarget struct {
	Name         string
	Addr         string
	Port         int
	Interval     time.Duration
	Compress     CompressOpt
	MaxMergeSize int64
	BulkSize     int64
}

func (r ReplTarget) String() string {
	return fmt.Sprintf("%s(%s:%d)", r.Name, r.Addr, r.Port)
}

// Server returns the ServerRef this replication target resolves to.
func (r ReplTarget) Server() ServerRef {
	return ServerRef{Name: r.Name, Addr: r.Addr, Port: r.Port, Kind: KindArchive}
}

// State is an opaque archive-reported server state. Only membership in
// Active matters to the scheduler.
type State string

// Active is the set of archive states in which replication is permitted
// on a given endpoint.
var Active = map[State]bool{
	"Master":  true,
	"Slave":   true,
	"Archived": true,
}

// IsActive reports whether s is a member of the Active state set.
func IsActive(s State) bool {
	return Active[s]
}

// Client is the abstract contract over an archive node that the
// scheduler core consumes. Every method takes a context so that a
// caller-supplied deadline governs the suspension point; on timeout or
// any transport failure, the method returns a plain error, which the
// scheduler wraps in a *TransportError.
type Client interface {
	// VolList lists every volume known to archive.
	VolList(ctx context.Context, a ServerRef) ([]string, error)
	// BaseState reports whether vol's base image is mid-apply.
	BaseState(ctx context.Context, a ServerRef, vol string) (BaseState, error)
	// Restorable lists restorable points for vol ordered by timestamp
	// ascending. The first element is conventionally the oldest base
	// point; callers that want "latest before T" candidates skip it.
	Restorable(ctx context.Context, a ServerRef, vol string, mode string) ([]GidInfo, error)
	// TotalDiffSize reports the bytes that would be collapsed if applied
	// up to gid1.
	TotalDiffSize(ctx context.Context, a ServerRef, vol string, gid1 Gid) (int64, error)
	// NumDiff reports the number of diffs currently applicable to vol.
	NumDiff(ctx context.Context, a ServerRef, vol string) (int, error)
	// ApplicableDiffList lists vol's applicable diffs ordered by
	// B.GidB ascending, forming a consistent chain.
	ApplicableDiffList(ctx context.Context, a ServerRef, vol string) ([]Diff, error)
	// State reports a's reported state for vol.
	State(ctx context.Context, a ServerRef, vol string) (State, error)
}

// RestorableModeAll is the conventional "all" mode passed to Restorable.
const RestorableModeAll = "all"
