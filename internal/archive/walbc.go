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

package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// WalbcClient is a Client backed by invoking the external walbc control
// binary as a subprocess, one invocation per query, mirroring the
// original worker's use of a Controller wrapping general.walbc_path. No
// wire format is prescribed by the spec this implements; the line
// protocol below exists only so this package has a runnable default and
// is not meant to be a stable external contract.
type WalbcClient struct {
	// Path is the validated, existing walbc binary (config.General.WalbcPath).
	Path string
	// Run executes name with args and returns its stdout. Defaults to
	// exec.CommandContext when nil; tests may override it.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewWalbcClient builds a WalbcClient that shells out to path.
func NewWalbcClient(path string) *WalbcClient {
	return &WalbcClient{Path: path}
}

func (c *WalbcClient) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.Run != nil {
		return c.Run(ctx, c.Path, args...)
	}
	cmd := exec.CommandContext(ctx, c.Path, args...)
	return cmd.Output()
}

func serverArgs(a ServerRef) []string {
	return []string{"-a", a.Addr, "-p", strconv.Itoa(a.Port)}
}

func (c *WalbcClient) VolList(ctx context.Context, a ServerRef) ([]string, error) {
	out, err := c.run(ctx, append(serverArgs(a), "vol-list")...)
	if err != nil {
		return nil, err
	}
	var vols []string
	for _, line := range splitLines(out) {
		if line != "" {
			vols = append(vols, line)
		}
	}
	return vols, nil
}

func (c *WalbcClient) BaseState(ctx context.Context, a ServerRef, vol string) (BaseState, error) {
	out, err := c.run(ctx, append(serverArgs(a), "base-state", vol)...)
	if err != nil {
		return BaseState{}, err
	}
	// Expected line: "applying <gidB>" or "idle"
	line := strings.TrimSpace(string(out))
	if line == "idle" || line == "" {
		return BaseState{}, nil
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "applying" {
		return BaseState{}, fmt.Errorf("walbc: malformed base-state output %q", line)
	}
	gidB, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return BaseState{}, fmt.Errorf("walbc: malformed base-state gid %q", line)
	}
	return BaseState{IsApplying: true, B: GidRange{GidB: Gid(gidB)}}, nil
}

func (c *WalbcClient) Restorable(ctx context.Context, a ServerRef, vol string, mode string) ([]GidInfo, error) {
	out, err := c.run(ctx, append(serverArgs(a), "restorable", vol, mode)...)
	if err != nil {
		return nil, err
	}
	var infoL []GidInfo
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("walbc: malformed restorable line %q", line)
		}
		gid, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("walbc: malformed restorable gid %q", line)
		}
		tsUnix, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("walbc: malformed restorable ts %q", line)
		}
		infoL = append(infoL, GidInfo{Gid: Gid(gid), Ts: time.Unix(tsUnix, 0).UTC()})
	}
	return infoL, nil
}

func (c *WalbcClient) TotalDiffSize(ctx context.Context, a ServerRef, vol string, gid1 Gid) (int64, error) {
	out, err := c.run(ctx, append(serverArgs(a), "total-diff-size", vol, strconv.FormatUint(uint64(gid1), 10))...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
}

func (c *WalbcClient) NumDiff(ctx context.Context, a ServerRef, vol string) (int, error) {
	out, err := c.run(ctx, append(serverArgs(a), "num-diff", vol)...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

func (c *WalbcClient) ApplicableDiffList(ctx context.Context, a ServerRef, vol string) ([]Diff, error) {
	out, err := c.run(ctx, append(serverArgs(a), "applicable-diff-list", vol)...)
	if err != nil {
		return nil, err
	}
	var diffL []Diff
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		d, err := parseDiffLine(line)
		if err != nil {
			return nil, err
		}
		diffL = append(diffL, d)
	}
	return diffL, nil
}

func (c *WalbcClient) State(ctx context.Context, a ServerRef, vol string) (State, error) {
	out, err := c.run(ctx, append(serverArgs(a), "state", vol)...)
	if err != nil {
		return "", err
	}
	return State(strings.TrimSpace(string(out))), nil
}

// parseDiffLine parses "gidB0 gidE0 gidB1 gidE1 dataSize isCompDiff isMergeable".
func parseDiffLine(line string) (Diff, error) {
	fields := strings.Fields(line)
	if len(fields) != 7 {
		return Diff{}, fmt.Errorf("walbc: malformed diff line %q", line)
	}
	nums := make([]uint64, 5)
	for i := 0; i < 5; i++ {
		n, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return Diff{}, fmt.Errorf("walbc: malformed diff field %d in %q", i, line)
		}
		nums[i] = n
	}
	isCompDiff := fields[5] == "1"
	isMergeable := fields[6] == "1"
	return Diff{
		B:           GidRange{GidB: Gid(nums[0]), GidE: Gid(nums[1])},
		E:           GidRange{GidB: Gid(nums[2]), GidE: Gid(nums[3])},
		DataSize:    int64(nums[4]),
		IsCompDiff:  isCompDiff,
		IsMergeable: isMergeable,
	}, nil
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines
}
