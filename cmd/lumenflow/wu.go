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
	"os"
	"path/filepath"
	"time"

	"github.com/lumenflow/lumenflow/pkg/controlplane"
	"github.com/lumenflow/lumenflow/pkg/policy"
	"github.com/lumenflow/lumenflow/pkg/projector"
	"github.com/lumenflow/lumenflow/pkg/signal"
	"github.com/lumenflow/lumenflow/pkg/wu"
)

// nowRFC3339 stamps completion records with a wall-clock time; unlike
// the event log's Timestamp field (informational only, per spec.md
// §3), the stamp file's completedAt is a human-facing audit field.
func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// WUCmd groups work-unit lifecycle subcommands.
type WUCmd struct {
	Claim      WUClaimCmd      `cmd:"" help:"Claim a ready work unit."`
	Complete   WUCompleteCmd   `cmd:"" help:"Mark a work unit complete."`
	Block      WUBlockCmd      `cmd:"" help:"Block an in-progress work unit."`
	Unblock    WUUnblockCmd    `cmd:"" help:"Unblock a blocked work unit."`
	Cancel     WUCancelCmd     `cmd:"" help:"Cancel a work unit."`
	Checkpoint WUCheckpointCmd `cmd:"" help:"Record a progress checkpoint."`
	Status     WUStatusCmd     `cmd:"" help:"Show a work unit's current status."`
}

type wuArgs struct {
	WUID  string `arg:"" help:"Work unit id, e.g. WU-100."`
	Actor string `help:"Acting identity." default:"cli"`
}

// specPath returns the on-disk path of wuID's declarative YAML file
// under the configured work-unit directory (spec.md §6).
func specPath(cli *CLI, a *app, wuID string) string {
	return filepath.Join(cli.ProjectRoot, a.cfg.SoftwareDelivery.Directories.WUDir, wuID+".yaml")
}

// laneIndex maps every declared work unit id to its YAML-declared lane,
// the index pkg/lanes.Manager.CheckClaim needs since the event log
// itself carries no lane membership (spec.md §4.3).
func laneIndex(cli *CLI, a *app) (map[string]string, error) {
	specs, err := wu.LoadAll(filepath.Join(cli.ProjectRoot, a.cfg.SoftwareDelivery.Directories.WUDir))
	if err != nil {
		return nil, err
	}
	idx := make(map[string]string, len(specs))
	for _, s := range specs {
		idx[s.ID] = s.Lane
	}
	return idx, nil
}

// worktreePath returns wuID's worktree directory, following the fixed
// "<worktreesRoot>/<wuID>" convention pkg/worktree.ActivityProbe and
// the sandbox commands already use.
func worktreePath(a *app, wuID string) string {
	return filepath.Join(a.cfg.SoftwareDelivery.Directories.WorktreesRoot, wuID)
}

// laneBranch returns the git branch a lane's work units share, per
// the configured SoftwareDelivery.Git.LaneBranchPrefix (spec.md §4.9:
// "a git worktree named from the lane and WU id").
func laneBranch(a *app, lane string) string {
	return a.cfg.SoftwareDelivery.Git.LaneBranchPrefix + lane
}

// ensureWorktree makes sure lane's branch and wuID's worktree exist,
// creating the branch off main and adding the worktree if this is the
// lane's first claim (spec.md §4.9 step 0, implicit in "a WU's
// implementation runs in a git worktree").
func ensureWorktree(ctx context.Context, a *app, wuID, lane string) error {
	branch := laneBranch(a, lane)
	exists, err := a.git.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if !exists {
		if err := a.git.BranchCreate(ctx, branch, a.cfg.SoftwareDelivery.Git.MainBranch); err != nil {
			return err
		}
	}

	path := worktreePath(a, wuID)
	existing, err := a.git.WorktreeList(ctx)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p == path {
			return nil
		}
	}
	return a.git.WorktreeAdd(ctx, path, branch)
}

// WUClaimCmd claims a ready work unit into in_progress.
type WUClaimCmd struct {
	wuArgs
}

func (c *WUClaimCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	spec, err := wu.LoadSpec(specPath(cli, a, c.WUID))
	if err != nil {
		return err
	}

	idx, err := laneIndex(cli, a)
	if err != nil {
		return err
	}
	if err := a.lanes.CheckClaim(c.WUID, spec.Lane, idx); err != nil {
		a.metrics.ObserveLockConflict(spec.Lane)
		return err
	}

	if err := a.wu.Claim(c.WUID, c.Actor); err != nil {
		return err
	}
	a.metrics.ObserveClaim(spec.Lane)
	a.mirrorEvent(context.Background(), controlplane.Event{
		WUID: c.WUID, Type: "claim", Status: "in_progress", Actor: c.Actor, Lane: spec.Lane, Timestamp: time.Now().UTC(),
	})

	if err := ensureWorktree(context.Background(), a, c.WUID, spec.Lane); err != nil {
		return err
	}

	fmt.Printf("%s claimed by %s\n", c.WUID, c.Actor)
	return nil
}

// WUCompleteCmd marks an in-progress work unit done, after running it
// through the completion policy pipeline (spec.md §4.8) and
// regenerating the derived projections and stamp (spec.md §4.2).
type WUCompleteCmd struct {
	wuArgs
	Force bool `help:"Bypass bypassable gates (brief-evidence, spawn-provenance), recording an auditable override signal."`
}

func (c *WUCompleteCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	spec, err := wu.LoadSpec(specPath(cli, a, c.WUID))
	if err != nil {
		return err
	}

	polCtx := &policy.Context{
		Spec:        spec,
		ProjectRoot: cli.ProjectRoot,
		Force:       c.Force,
		FileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		GlobExpand: func(pattern string) []string {
			matches, _ := filepath.Glob(filepath.Join(cli.ProjectRoot, pattern))
			return matches
		},
		GitDiffPaths: func() []string {
			paths, err := a.git.DiffPaths(context.Background(), cli.ProjectRoot, a.cfg.SoftwareDelivery.Git.MainBranch)
			if err != nil {
				return nil
			}
			return paths
		},
		ReadFile: func(path string) ([]byte, error) {
			return os.ReadFile(filepath.Join(cli.ProjectRoot, path))
		},
		EventLog:   a.log,
		Delegation: a.delegation,
		Config: policy.Config{
			DocsPathPrefixes:   []string{"docs/"},
			BriefPolicy:        a.cfg.BriefPolicy(),
			InitiativeGoverned: func(string) bool { return spec.Initiative != "" },
		},
		Override: func(gate, reason string) {
			if _, serr := a.signals.Create(signal.CreateOptions{
				Type:     "policy_override",
				Severity: signal.SeverityWarning,
				WUID:     c.WUID,
				Lane:     spec.Lane,
				Message:  fmt.Sprintf("force-completed past gate %q: %s", gate, reason),
			}); serr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to record override signal: %v\n", serr)
			}
		},
	}
	if err := policy.Run(polCtx); err != nil {
		return err
	}

	path := worktreePath(a, c.WUID)
	branch := laneBranch(a, spec.Lane)
	if err := a.merge.Complete(context.Background(), path, branch, c.WUID); err != nil {
		return err
	}

	if err := a.wu.Complete(c.WUID, c.Actor); err != nil {
		return err
	}
	a.metrics.ObserveCompletion(spec.Lane)
	a.mirrorEvent(context.Background(), controlplane.Event{
		WUID: c.WUID, Type: "complete", Status: "done", Actor: c.Actor, Lane: spec.Lane, Timestamp: time.Now().UTC(),
	})

	if err := projector.WriteStamp(a.cfg.StampsDir(), c.WUID, c.Actor, nowRFC3339()); err != nil {
		return err
	}

	if err := a.git.WorktreeRemove(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to remove worktree %s: %v\n", path, err)
	}

	if err := regenerateProjections(a, cli.ProjectRoot); err != nil {
		return err
	}

	fmt.Printf("%s completed by %s\n", c.WUID, c.Actor)
	return nil
}

// WUBlockCmd blocks an in-progress work unit.
type WUBlockCmd struct {
	wuArgs
	Reason string `help:"Reason the work unit is blocked."`
}

func (c *WUBlockCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.wu.Block(c.WUID, c.Actor, c.Reason); err != nil {
		return err
	}
	lane := laneOf(cli, a, c.WUID)
	a.metrics.ObserveBlock(lane)
	a.mirrorEvent(context.Background(), controlplane.Event{
		WUID: c.WUID, Type: "block", Status: "blocked", Actor: c.Actor, Lane: lane, Timestamp: time.Now().UTC(),
	})
	fmt.Printf("%s blocked: %s\n", c.WUID, c.Reason)
	return nil
}

// WUUnblockCmd returns a blocked work unit to in_progress.
type WUUnblockCmd struct {
	wuArgs
}

func (c *WUUnblockCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.wu.Unblock(c.WUID, c.Actor); err != nil {
		return err
	}
	a.mirrorEvent(context.Background(), controlplane.Event{
		WUID: c.WUID, Type: "unblock", Status: "in_progress", Actor: c.Actor, Lane: laneOf(cli, a, c.WUID), Timestamp: time.Now().UTC(),
	})
	fmt.Printf("%s unblocked\n", c.WUID)
	return nil
}

// WUCancelCmd cancels a work unit from any non-terminal state.
type WUCancelCmd struct {
	wuArgs
	Reason string `help:"Reason for cancellation."`
}

func (c *WUCancelCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.wu.Cancel(c.WUID, c.Actor, c.Reason); err != nil {
		return err
	}
	lane := laneOf(cli, a, c.WUID)
	a.metrics.ObserveCancel(lane)
	a.mirrorEvent(context.Background(), controlplane.Event{
		WUID: c.WUID, Type: "cancel", Status: "cancelled", Actor: c.Actor, Lane: lane, Timestamp: time.Now().UTC(),
	})
	fmt.Printf("%s cancelled: %s\n", c.WUID, c.Reason)
	return nil
}

// laneOf best-effort resolves wuID's declared lane for metrics
// labelling; an unreadable spec labels the observation with an empty
// lane rather than failing the transition that already succeeded.
func laneOf(cli *CLI, a *app, wuID string) string {
	spec, err := wu.LoadSpec(specPath(cli, a, wuID))
	if err != nil {
		return ""
	}
	return spec.Lane
}

// WUCheckpointCmd records a progress checkpoint without changing status.
type WUCheckpointCmd struct {
	wuArgs
	Note      string `help:"Checkpoint note."`
	Progress  string `help:"Progress summary."`
	NextSteps string `name:"next-steps" help:"Planned next steps."`
}

func (c *WUCheckpointCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.wu.Checkpoint(c.WUID, c.Actor, c.Note, c.Progress, c.NextSteps); err != nil {
		return err
	}
	fmt.Printf("%s checkpointed\n", c.WUID)
	return nil
}

// WUStatusCmd prints a work unit's materialised status.
type WUStatusCmd struct {
	WUID string `arg:"" help:"Work unit id, e.g. WU-100."`
}

func (c *WUStatusCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	status, err := a.wu.Status(c.WUID)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
