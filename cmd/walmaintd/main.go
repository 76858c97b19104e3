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

// Command walmaintd is the thin driver shell: it loads configuration,
// constructs the scheduler, invokes it, and logs the selected task. All
// policy lives in internal/scheduler; this file is glue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/walb-tools/walmaintd/internal/archive"
	"github.com/walb-tools/walmaintd/internal/config"
	"github.com/walb-tools/walmaintd/internal/scheduler"
	"github.com/walb-tools/walmaintd/internal/signalctl"
)

// buildVersion is the scheduler's own version, independent of the
// archive protocol it talks to. Set via -ldflags at release build time;
// the default prints "0.0.0".
var buildVersion = "0.0.0"

// tickInterval bounds how often selectTask may run when walmaintd is
// left to poll continuously (driver-shell ambient concern; the core
// itself has no notion of ticks).
const tickInterval = 10 * time.Second

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func run(args []string, stdout, stderr *os.File) error {
	fs := flag.NewFlagSet("walmaintd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("f", "", "path to the scheduler TOML config file")
	showVersion := fs.Bool("V", false, "print version information and exit")
	loop := fs.Bool("loop", false, "run continuously, polling selectTask every tick instead of exiting after one")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "walmaintd [-f configName] [-loop]")
	}
	if err := fs.Parse(args); err != nil {
		return &usageError{msg: err.Error()}
	}

	if *showVersion {
		v := semver.New(buildVersion)
		fmt.Fprintf(stdout, "walmaintd %s\n", v)
		return nil
	}

	if *configPath == "" {
		fs.Usage()
		return &usageError{msg: "set -f option"}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCfg := &log.Config{Level: "info"}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return fmt.Errorf("walmaintd: failed to init logger: %w", err)
	}
	log.ReplaceGlobals(logger, props)

	log.Info("loaded configuration",
		zap.String("addr", cfg.General.Addr),
		zap.Int("port", cfg.General.Port),
		zap.Int("max_concurrent_tasks", cfg.General.MaxConcurrentTasks))

	ax := archive.ServerRef{Name: "a0", Addr: cfg.General.Addr, Port: cfg.General.Port, Kind: archive.KindArchive}
	walbc := archive.NewWalbcClient(cfg.General.WalbcPath)
	sched := scheduler.New(cfg, ax, walbc, nil)

	watcher := signalctl.NewWatcher()
	defer watcher.Stop()

	if *loop {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		Loop(ctx, sched, watcher)
		return nil
	}

	t, err := sched.SelectTask(context.Background())
	if err != nil {
		return err
	}
	if t == nil {
		fmt.Fprintln(stdout, "nothing to do")
		return nil
	}
	fmt.Fprintln(stdout, t.String())
	return nil
}

// Loop runs SelectTask repeatedly, gated by a token-bucket limiter so
// the driver shell does not hammer the archive faster than tickInterval
// allows. It exits when ctx is cancelled. Invoked from run() when -loop
// is set, for long-running deployments that want the driver to poll
// rather than being invoked by cron.
func Loop(ctx context.Context, sched *scheduler.Scheduler, watcher *signalctl.Watcher) {
	limiter := rate.NewLimiter(rate.Every(tickInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if watcher.ConsumeReload() {
			log.Info("reload requested, re-reading configuration is left to the caller")
		}
		t, err := sched.SelectTask(ctx)
		if err != nil {
			log.Error("selectTask failed", zap.Error(err))
			continue
		}
		if t == nil {
			log.Debug("nothing to do")
		} else {
			log.Info("selected task", zap.String("task", t.String()))
		}
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if _, ok := err.(*usageError); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "walmaintd:", err)
		os.Exit(1)
	}
}
