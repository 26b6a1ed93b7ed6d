// Copyright 2025 LumenFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenflow/lumenflow/pkg/config"
	"github.com/lumenflow/lumenflow/pkg/controlplane"
	"github.com/lumenflow/lumenflow/pkg/delegation"
	"github.com/lumenflow/lumenflow/pkg/eventlog"
	"github.com/lumenflow/lumenflow/pkg/lanes"
	"github.com/lumenflow/lumenflow/pkg/memory"
	"github.com/lumenflow/lumenflow/pkg/metrics"
	"github.com/lumenflow/lumenflow/pkg/recovery"
	"github.com/lumenflow/lumenflow/pkg/sandbox"
	"github.com/lumenflow/lumenflow/pkg/signal"
	"github.com/lumenflow/lumenflow/pkg/worktree"
	"github.com/lumenflow/lumenflow/pkg/wu"
)

// app wires together every collaborator a command needs from the
// loaded configuration. It is built once per invocation in
// main.go and threaded into each command's Run method, the same
// shape as the teacher's CLI struct carrying shared dependencies.
type app struct {
	cfg          *config.Config
	projectRoot  string
	log          *eventlog.Log
	wu           *wu.Engine
	lanes        *lanes.Manager
	delegation   *delegation.Registry
	signals      *signal.Bus
	recovery     *recovery.Engine
	memory       *memory.Store
	git          worktree.Git
	merge        *worktree.Orchestrator
	metrics      *metrics.Metrics
	sandboxBack  sandbox.Backend
	controlPlane *controlplane.Sink
	pgAudit      *controlplane.PGAuditSink
}

func newApp(ctx context.Context, cfg *config.Config, projectRoot string) *app {
	eventLog := eventlog.New(cfg.EventLogPath())
	git := worktree.NewExecGit(projectRoot)
	probe := worktree.NewActivityProbe(git, cfg.SoftwareDelivery.Directories.WorktreesRoot)
	laneMgr := lanes.NewManager(eventLog, cfg.LanesConfig(), probe)
	dreg := delegation.New(cfg.DelegationRegistryPath())
	bus := signal.New(cfg.MemoryDir() + "/signals.jsonl")

	cp := controlplane.NewSink(controlplane.Config{
		Enabled:     cfg.SoftwareDelivery.ControlPlane.Enabled,
		Endpoint:    cfg.SoftwareDelivery.ControlPlane.Endpoint,
		TokenEnvVar: cfg.SoftwareDelivery.ControlPlane.TokenEnvVar,
	}, controlplane.WithOnDrop(func(ev controlplane.Event, err error) {
		if _, serr := bus.Create(signal.CreateOptions{
			Type:     "control_plane_push_failed",
			Severity: signal.SeverityWarning,
			WUID:     ev.WUID,
			Message:  err.Error(),
		}); serr != nil {
			slog.Warn("control plane: failed to record drop signal", "error", serr)
		}
	}))

	var pgAudit *controlplane.PGAuditSink
	if dsn := cfg.SoftwareDelivery.ControlPlane.PostgresDSN; dsn != "" {
		sink, err := controlplane.OpenPGAuditSink(ctx, dsn)
		if err != nil {
			slog.Warn("control plane: postgres audit sink unavailable, skipping", "error", err)
		} else {
			pgAudit = sink
		}
	}

	a := &app{
		cfg:          cfg,
		projectRoot:  projectRoot,
		log:          eventLog,
		wu:           wu.NewEngine(eventLog),
		lanes:        laneMgr,
		delegation:   dreg,
		signals:      bus,
		recovery:     recovery.New(dreg, eventLog, bus, cfg.RecoveryDir()),
		memory:       memory.NewStore(cfg.MemoryDir()),
		git:          git,
		merge:        worktree.NewOrchestrator(git, cfg.SoftwareDelivery.Git.DefaultRemote, cfg.SoftwareDelivery.Git.MainBranch),
		metrics:      metrics.New(),
		sandboxBack:  sandbox.SelectForRuntime(),
		controlPlane: cp,
		pgAudit:      pgAudit,
	}
	return a
}

// mirrorEvent pushes a lifecycle transition to the configured
// control-plane mirror(s) (spec.md §6 "control_plane"). Both the HTTP
// sink and the optional Postgres audit sink are no-ops when
// unconfigured, and neither failure mode blocks the caller: the HTTP
// sink drops-with-signal internally (SPEC_FULL.md Part E item 3), and
// a Postgres insert failure is logged and swallowed here for the same
// reason — local event-log state is already the authoritative record.
func (a *app) mirrorEvent(ctx context.Context, ev controlplane.Event) {
	a.controlPlane.Push(ctx, ev)
	if a.pgAudit != nil {
		if err := a.pgAudit.Record(ctx, ev); err != nil {
			slog.Warn("control plane: postgres audit insert failed", "wu_id", ev.WUID, "error", err)
		}
	}
}

// loadApp reads the workspace config at configPath and builds an app
// over it. The returned Loader's Close should be deferred by the
// caller when it no longer needs to watch for config changes.
func loadApp(ctx context.Context, configPath, projectRoot string) (*app, *config.Loader, error) {
	cfg, loader, err := config.LoadFile(ctx, configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg, projectRoot), loader, nil
}
