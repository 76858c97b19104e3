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

// Package config is the typed view of operator configuration: general,
// apply, merge, and per-peer replication targets, including
// unit-suffixed durations and sizes.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ParseError is returned for any malformed document, unknown mode,
// non-existent path, or out-of-range value encountered while loading a
// config file. It is fatal at startup.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: %s", e.Reason)
}

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// General holds the [general] section.
type General struct {
	Addr              string `toml:"addr"`
	Port              int    `toml:"port"`
	WalbcPath         string `toml:"walbc_path"`
	MaxConcurrentTasks int   `toml:"max_concurrent_tasks"`
}

func (g General) String() string {
	return fmt.Sprintf("addr=%s, port=%d, max_concurrent_tasks=%d", g.Addr, g.Port, g.MaxConcurrentTasks)
}

// TimeWindow is an optional hour-of-day gate, HH:HH. The zero value
// (Begin == End == 0) means "unset": no gating is applied, matching the
// original worker's always-(0,0) Apply.time_window.
type TimeWindow struct {
	Begin int
	End   int
}

// Active reports whether hour falls within [Begin, End). An unset window
// (Begin == End) is always active.
func (w TimeWindow) Active(hour int) bool {
	if w.Begin == w.End {
		return true
	}
	return hour >= w.Begin && hour < w.End
}

// Apply holds the [apply] section.
type Apply struct {
	KeepPeriod time.Duration
	TimeWindow TimeWindow
}

func (a Apply) String() string {
	return fmt.Sprintf("keep_period=%s", a.KeepPeriod)
}

// Merge holds the [merge] section.
type Merge struct {
	Interval    time.Duration
	MaxNr       int
	MaxSize     int64
	ThresholdNr int
}

func (m Merge) String() string {
	return fmt.Sprintf("interval=%s, max_nr=%d, max_size=%d, threshold_nr=%d", m.Interval, m.MaxNr, m.MaxSize, m.ThresholdNr)
}

// CompressOpt is the MODE:LEVEL:NUM_CPU compression setting.
type CompressOpt struct {
	Mode   string
	Level  int
	NumCpu int
}

// ReplServer holds one [repl_servers.<name>] entry.
type ReplServer struct {
	Name         string
	Addr         string
	Port         int
	Interval     time.Duration
	Compress     CompressOpt
	MaxMergeSize int64
	BulkSize     int64
}

func (r ReplServer) String() string {
	return fmt.Sprintf("name=%s, addr=%s, port=%d, interval=%s, compress=(%s, %d, %d), max_merge_size=%d, bulk_size=%d",
		r.Name, r.Addr, r.Port, r.Interval, r.Compress.Mode, r.Compress.Level, r.Compress.NumCpu, r.MaxMergeSize, r.BulkSize)
}

// Config is the fully parsed and validated scheduler configuration.
type Config struct {
	General     General
	Apply       Apply
	Merge       Merge
	ReplServers map[string]ReplServer
}

func (c *Config) String() string {
	s := "general\n" + c.General.String() + "\n"
	s += "apply\n" + c.Apply.String() + "\n"
	s += "merge\n" + c.Merge.String() + "\n"
	s += "repl_servers\n"
	names := make([]string, 0, len(c.ReplServers))
	for name := range c.ReplServers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s += name + ":" + c.ReplServers[name].String() + "\n"
	}
	return s
}

// rawDoc is the shape toml.Decode populates; every field is left as
// interface{}/map so checkUnknown can find keys our typed structs
// don't recognize, the same way server/config.Config's configMetaData
// walks toml.MetaData against the document.
type rawDoc struct {
	General     map[string]interface{}            `toml:"general"`
	Apply       map[string]interface{}            `toml:"apply"`
	Merge       map[string]interface{}            `toml:"merge"`
	ReplServers map[string]map[string]interface{} `toml:"repl_servers"`
}

var topLevelKeys = map[string]bool{
	"general": true, "apply": true, "merge": true, "repl_servers": true,
}

var generalKeys = map[string]bool{
	"addr": true, "port": true, "walbc_path": true, "max_concurrent_tasks": true,
}

var applyKeys = map[string]bool{
	"keep_period": true, "time_window": true,
}

var mergeKeys = map[string]bool{
	"interval": true, "max_nr": true, "max_size": true, "threshold_nr": true,
}

var replServerKeys = map[string]bool{
	"addr": true, "port": true, "interval": true, "compress": true,
	"max_merge_size": true, "bulk_size": true,
}

func checkUnknown(section string, present map[string]interface{}, allowed map[string]bool) error {
	for key := range present {
		if !allowed[key] {
			return parseErrorf("unknown key %q in [%s]", key, section)
		}
	}
	return nil
}

// Load reads and validates the TOML document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parseErrorf("cannot read config file %s: %v", path, err)
	}

	var raw rawDoc
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, parseErrorf("malformed toml in %s: %v", path, err)
	}
	_ = meta

	for key := range allTopLevel(data) {
		if !topLevelKeys[key] {
			return nil, parseErrorf("unknown top-level key %q", key)
		}
	}

	if raw.General == nil {
		return nil, parseErrorf("missing required section [general]")
	}
	if err := checkUnknown("general", raw.General, generalKeys); err != nil {
		return nil, err
	}
	if raw.Apply == nil {
		return nil, parseErrorf("missing required section [apply]")
	}
	if err := checkUnknown("apply", raw.Apply, applyKeys); err != nil {
		return nil, err
	}
	if raw.Merge == nil {
		return nil, parseErrorf("missing required section [merge]")
	}
	if err := checkUnknown("merge", raw.Merge, mergeKeys); err != nil {
		return nil, err
	}
	for name, rs := range raw.ReplServers {
		if err := checkUnknown(fmt.Sprintf("repl_servers.%s", name), rs, replServerKeys); err != nil {
			return nil, err
		}
	}

	cfg := &Config{ReplServers: make(map[string]ReplServer)}

	if err := cfg.setGeneral(raw.General); err != nil {
		return nil, err
	}
	if err := cfg.setApply(raw.Apply); err != nil {
		return nil, err
	}
	if err := cfg.setMerge(raw.Merge); err != nil {
		return nil, err
	}
	for name, rs := range raw.ReplServers {
		parsed, err := parseReplServer(name, rs)
		if err != nil {
			return nil, err
		}
		cfg.ReplServers[name] = parsed
	}

	return cfg, nil
}

// allTopLevel re-decodes the document into a loosely typed map purely to
// detect unknown top-level keys; toml.Decode into a strict struct would
// silently ignore them instead of rejecting the document, which §6
// requires ("Unknown top-level keys are rejected").
func allTopLevel(data []byte) map[string]interface{} {
	var m map[string]interface{}
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil
	}
	return m
}

func (c *Config) setGeneral(d map[string]interface{}) error {
	addr, err := requireString(d, "general", "addr")
	if err != nil {
		return err
	}
	portRaw, err := requireInt(d, "general", "port")
	if err != nil {
		return err
	}
	port, err := parsePort(portRaw)
	if err != nil {
		return err
	}
	walbcPath, err := requireString(d, "general", "walbc_path")
	if err != nil {
		return err
	}
	if _, err := os.Stat(walbcPath); err != nil {
		return parseErrorf("walbc_path is not found: %s", walbcPath)
	}
	maxTasksRaw, err := requireInt(d, "general", "max_concurrent_tasks")
	if err != nil {
		return err
	}
	maxTasks, err := parsePositive(int(maxTasksRaw))
	if err != nil {
		return err
	}
	c.General = General{Addr: addr, Port: port, WalbcPath: walbcPath, MaxConcurrentTasks: maxTasks}
	return nil
}

func (c *Config) setApply(d map[string]interface{}) error {
	periodRaw, err := requireString(d, "apply", "keep_period")
	if err != nil {
		return err
	}
	period, err := parsePeriod(periodRaw)
	if err != nil {
		return err
	}
	var tw TimeWindow
	if raw, ok := d["time_window"]; ok {
		s, ok := raw.(string)
		if !ok {
			return parseErrorf("apply.time_window must be a string HH:HH")
		}
		tw, err = parseTimeWindow(s)
		if err != nil {
			return err
		}
	}
	c.Apply = Apply{KeepPeriod: period, TimeWindow: tw}
	return nil
}

func (c *Config) setMerge(d map[string]interface{}) error {
	intervalRaw, err := requireString(d, "merge", "interval")
	if err != nil {
		return err
	}
	interval, err := parsePeriod(intervalRaw)
	if err != nil {
		return err
	}
	thresholdRaw, err := requireInt(d, "merge", "threshold_nr")
	if err != nil {
		return err
	}
	threshold, err := parsePositive(int(thresholdRaw))
	if err != nil {
		return err
	}
	m := Merge{Interval: interval, ThresholdNr: threshold}
	if raw, ok := d["max_nr"]; ok {
		n, err := parsePositive(int(toFloat(raw)))
		if err != nil {
			return err
		}
		m.MaxNr = n
	}
	if raw, ok := d["max_size"]; ok {
		s, ok := raw.(string)
		if !ok {
			return parseErrorf("merge.max_size must be a string like 10G")
		}
		size, err := parseSizeUnit(s)
		if err != nil {
			return err
		}
		m.MaxSize = size
	}
	c.Merge = m
	return nil
}

func parseReplServer(name string, d map[string]interface{}) (ReplServer, error) {
	addr, err := requireString(d, "repl_servers."+name, "addr")
	if err != nil {
		return ReplServer{}, err
	}
	portRaw, err := requireInt(d, "repl_servers."+name, "port")
	if err != nil {
		return ReplServer{}, err
	}
	port, err := parsePort(portRaw)
	if err != nil {
		return ReplServer{}, err
	}
	intervalRaw, err := requireString(d, "repl_servers."+name, "interval")
	if err != nil {
		return ReplServer{}, err
	}
	interval, err := parsePeriod(intervalRaw)
	if err != nil {
		return ReplServer{}, err
	}
	rs := ReplServer{Name: name, Addr: addr, Port: port, Interval: interval}
	if raw, ok := d["compress"]; ok {
		s, ok := raw.(string)
		if !ok {
			return ReplServer{}, parseErrorf("repl_servers.%s.compress must be a string MODE:LEVEL:NUM_CPU", name)
		}
		opt, err := parseCompressOpt(s)
		if err != nil {
			return ReplServer{}, err
		}
		rs.Compress = opt
	}
	if raw, ok := d["max_merge_size"]; ok {
		s, ok := raw.(string)
		if !ok {
			return ReplServer{}, parseErrorf("repl_servers.%s.max_merge_size must be a string like 10G", name)
		}
		size, err := parseSizeUnit(s)
		if err != nil {
			return ReplServer{}, err
		}
		rs.MaxMergeSize = size
	}
	if raw, ok := d["bulk_size"]; ok {
		s, ok := raw.(string)
		if !ok {
			return ReplServer{}, parseErrorf("repl_servers.%s.bulk_size must be a string like 10G", name)
		}
		size, err := parseSizeUnit(s)
		if err != nil {
			return ReplServer{}, err
		}
		rs.BulkSize = size
	}
	return rs, nil
}

func requireString(d map[string]interface{}, section, key string) (string, error) {
	raw, ok := d[key]
	if !ok {
		return "", parseErrorf("missing required key %q in [%s]", key, section)
	}
	s, ok := raw.(string)
	if !ok {
		return "", parseErrorf("key %q in [%s] must be a string", key, section)
	}
	return s, nil
}

func requireInt(d map[string]interface{}, section, key string) (int64, error) {
	raw, ok := d[key]
	if !ok {
		return 0, parseErrorf("missing required key %q in [%s]", key, section)
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, parseErrorf("key %q in [%s] must be an integer", key, section)
	}
}

func toFloat(raw interface{}) float64 {
	switch v := raw.(type) {
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

func parsePositive(n int) (int, error) {
	if n < 0 {
		return 0, parseErrorf("negative value: %d", n)
	}
	return n, nil
}

func parsePort(n int64) (int, error) {
	if n <= 0 || n > 65535 {
		return 0, parseErrorf("port out of range: %d", n)
	}
	return int(n), nil
}

// parseSuffix parses "<n><suffix>" where suffix keys map to a multiplier,
// or a bare integer string with multiplier 1.
func parseSuffix(s string, suf map[byte]int64) (int64, error) {
	if s == "" {
		return 0, parseErrorf("empty numeric value")
	}
	multiplier := int64(1)
	numeric := s
	last := s[len(s)-1]
	if m, ok := suf[last]; ok {
		multiplier = m
		numeric = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, parseErrorf("bad numeric value %q", s)
	}
	n *= multiplier
	if n < 0 {
		return 0, parseErrorf("negative value: %s", s)
	}
	return n, nil
}

// parsePeriod parses "<digits><m|h|d>".
func parsePeriod(s string) (time.Duration, error) {
	seconds, err := parseSuffix(s, map[byte]int64{'m': 60, 'h': 3600, 'd': 86400})
	if err != nil {
		return 0, errors.WithMessage(err, "keep_period/interval")
	}
	return time.Duration(seconds) * time.Second, nil
}

// parseSizeUnit parses "<digits><K|M|G>".
func parseSizeUnit(s string) (int64, error) {
	n, err := parseSuffix(s, map[byte]int64{'K': 1024, 'M': 1024 * 1024, 'G': 1024 * 1024 * 1024})
	if err != nil {
		return 0, errors.WithMessage(err, "size")
	}
	return n, nil
}

// parseCompressOpt parses "MODE:LEVEL:NUM_CPU".
func parseCompressOpt(s string) (CompressOpt, error) {
	var mode string = "none"
	var level, numCpu int
	parts := splitColon(s)
	if len(parts) > 3 {
		return CompressOpt{}, parseErrorf("bad compress option %q", s)
	}
	if len(parts) > 0 && parts[0] != "" {
		mode = parts[0]
	}
	validModes := map[string]bool{"none": true, "snappy": true, "gzip": true, "lzma": true}
	if !validModes[mode] {
		return CompressOpt{}, parseErrorf("bad compress mode %q in %q", mode, s)
	}
	if len(parts) > 1 {
		if _, err := fmt.Sscanf(parts[1], "%d", &level); err != nil {
			return CompressOpt{}, parseErrorf("bad compress level in %q", s)
		}
		if level < 0 || level > 9 {
			return CompressOpt{}, parseErrorf("bad compress level %d in %q", level, s)
		}
	}
	if len(parts) > 2 {
		if _, err := fmt.Sscanf(parts[2], "%d", &numCpu); err != nil {
			return CompressOpt{}, parseErrorf("bad compress num_cpu in %q", s)
		}
		if numCpu < 0 {
			return CompressOpt{}, parseErrorf("bad compress num_cpu %d in %q", numCpu, s)
		}
	}
	return CompressOpt{Mode: mode, Level: level, NumCpu: numCpu}, nil
}

func splitColon(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseTimeWindow parses "HH:HH".
func parseTimeWindow(s string) (TimeWindow, error) {
	parts := splitColon(s)
	if len(parts) != 2 {
		return TimeWindow{}, parseErrorf("bad time_window %q, want HH:HH", s)
	}
	var begin, end int
	if _, err := fmt.Sscanf(parts[0], "%d", &begin); err != nil {
		return TimeWindow{}, parseErrorf("bad time_window begin in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &end); err != nil {
		return TimeWindow{}, parseErrorf("bad time_window end in %q", s)
	}
	if begin < 0 || begin > 23 || end < 0 || end > 23 {
		return TimeWindow{}, parseErrorf("time_window hours must be 0..23: %q", s)
	}
	return TimeWindow{Begin: begin, End: end}, nil
}
