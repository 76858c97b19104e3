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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "walmaintd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validDoc(t *testing.T) string {
	t.Helper()
	// walbc_path must exist; point it at a stub file in a temp dir.
	return `
[general]
addr = "10.0.0.1"
port = 10000
walbc_path = "` + mustExistingFile(t) + `"
max_concurrent_tasks = 4

[apply]
keep_period = "1d"

[merge]
interval = "1h"
threshold_nr = 10
max_nr = 32
max_size = "10G"

[repl_servers.p0]
addr = "10.0.0.2"
port = 20000
interval = "1h"
compress = "snappy:3:2"
max_merge_size = "1G"
bulk_size = "64M"
`
}

func mustExistingFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "walbc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o700); err != nil {
		t.Fatalf("write walbc stub: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validDoc(t))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.General.Addr != "10.0.0.1" || cfg.General.Port != 10000 {
		t.Fatalf("general section not parsed: %+v", cfg.General)
	}
	if cfg.Apply.KeepPeriod != 24*time.Hour {
		t.Fatalf("keep_period got %v, want 24h", cfg.Apply.KeepPeriod)
	}
	if cfg.Merge.Interval != time.Hour || cfg.Merge.ThresholdNr != 10 || cfg.Merge.MaxNr != 32 {
		t.Fatalf("merge section not parsed: %+v", cfg.Merge)
	}
	if cfg.Merge.MaxSize != 10*1024*1024*1024 {
		t.Fatalf("max_size got %d, want 10G", cfg.Merge.MaxSize)
	}
	rs, ok := cfg.ReplServers["p0"]
	if !ok {
		t.Fatalf("repl_servers.p0 missing")
	}
	if rs.Interval != time.Hour || rs.Compress.Mode != "snappy" || rs.Compress.Level != 3 || rs.Compress.NumCpu != 2 {
		t.Fatalf("repl server not parsed: %+v", rs)
	}
	if rs.MaxMergeSize != 1024*1024*1024 || rs.BulkSize != 64*1024*1024 {
		t.Fatalf("repl server sizes not parsed: %+v", rs)
	}
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	doc := validDoc(t) + "\n[bogus]\nx = 1\n"
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown top-level section")
	}
}

func TestLoadRejectsUnknownSectionKey(t *testing.T) {
	doc := `
[general]
addr = "10.0.0.1"
port = 10000
walbc_path = "` + mustExistingFile(t) + `"
max_concurrent_tasks = 4
bogus = 1

[apply]
keep_period = "1d"

[merge]
interval = "1h"
threshold_nr = 10
`
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key in [general]")
	}
}

func TestLoadRejectsMissingRequiredKey(t *testing.T) {
	doc := `
[general]
addr = "10.0.0.1"
port = 10000
walbc_path = "` + mustExistingFile(t) + `"

[apply]
keep_period = "1d"

[merge]
interval = "1h"
threshold_nr = 10
`
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing max_concurrent_tasks")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	doc := `
[general]
addr = "10.0.0.1"
port = 70000
walbc_path = "` + mustExistingFile(t) + `"
max_concurrent_tasks = 4

[apply]
keep_period = "1d"

[merge]
interval = "1h"
threshold_nr = 10
`
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestLoadRejectsMissingWalbcPath(t *testing.T) {
	doc := `
[general]
addr = "10.0.0.1"
port = 10000
walbc_path = "/does/not/exist/walbc"
max_concurrent_tasks = 4

[apply]
keep_period = "1d"

[merge]
interval = "1h"
threshold_nr = 10
`
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-existent walbc_path")
	}
}

func TestLoadRejectsBadCompressMode(t *testing.T) {
	doc := validDoc(t)
	// Replace valid compress with an invalid mode.
	doc = replaceOnce(doc, `compress = "snappy:3:2"`, `compress = "zstd:3:2"`)
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown compress mode")
	}
}

func TestLoadRejectsBadCompressLevel(t *testing.T) {
	doc := validDoc(t)
	doc = replaceOnce(doc, `compress = "snappy:3:2"`, `compress = "snappy:99:2"`)
	path := writeConfig(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for out-of-range compress level")
	}
}

func TestParsePeriodSuffixes(t *testing.T) {
	cases := map[string]time.Duration{
		"5m": 5 * time.Minute,
		"2h": 2 * time.Hour,
		"1d": 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := parsePeriod(in)
		if err != nil {
			t.Fatalf("parsePeriod(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parsePeriod(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseSizeUnitSuffixes(t *testing.T) {
	cases := map[string]int64{
		"512K": 512 * 1024,
		"4M":   4 * 1024 * 1024,
		"2G":   2 * 1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := parseSizeUnit(in)
		if err != nil {
			t.Fatalf("parseSizeUnit(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseSizeUnit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseTimeWindow(t *testing.T) {
	tw, err := parseTimeWindow("1:5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tw.Begin != 1 || tw.End != 5 {
		t.Fatalf("got %+v", tw)
	}
	if tw.Active(3) == false || tw.Active(0) == true || tw.Active(5) == true {
		t.Fatalf("Active() boundaries wrong: %+v", tw)
	}
}

func TestUnsetTimeWindowAlwaysActive(t *testing.T) {
	var tw TimeWindow
	for h := 0; h < 24; h++ {
		if !tw.Active(h) {
			t.Fatalf("unset time window must be active at every hour, failed at %d", h)
		}
	}
}

func replaceOnce(s, old, new string) string {
	for i := 0; i+len(old) <= len(s); i++ {
		if s[i:i+len(old)] == old {
			return s[:i] + new + s[i+len(old):]
		}
	}
	return s
}
