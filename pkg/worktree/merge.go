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

package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
	"github.com/lumenflow/lumenflow/pkg/retry"
)

// Orchestrator drives the completion merge sequence for a single WU's
// lane branch (spec.md §4.9).
type Orchestrator struct {
	git     Git
	retryer *retry.Retryer
	remote  string
	main    string
}

// NewOrchestrator returns an Orchestrator using git as the VCS
// adapter, remote/main naming the origin remote and main branch.
func NewOrchestrator(git Git, remote, main string) *Orchestrator {
	return &Orchestrator{git: git, retryer: retry.New(retry.DefaultConfig()), remote: remote, main: main}
}

// Complete runs preflight, auto-rebase, fast-forward merge with
// retry, artifact cleanup, and a force-with-lease push for the given
// worktree/branch.
func (o *Orchestrator) Complete(ctx context.Context, worktreePath, branch, wuID string) error {
	if err := o.preflight(ctx, worktreePath, branch); err != nil {
		return err
	}

	if err := o.autoRebase(ctx, worktreePath); err != nil {
		return err
	}

	if err := o.mergeWithRetry(ctx, worktreePath, branch); err != nil {
		return err
	}

	if err := o.cleanupArtifacts(ctx, worktreePath, wuID); err != nil {
		return err
	}

	return o.git.PushForceWithLease(ctx, worktreePath, o.remote, branch)
}

func (o *Orchestrator) preflight(ctx context.Context, worktreePath, branch string) error {
	dirty, err := o.git.Status(ctx, worktreePath)
	if err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "status", Err: err}
	}
	if dirty {
		return &lferrors.StateError{ID: branch, From: "dirty", To: "clean"}
	}

	exists, err := o.git.BranchExists(ctx, branch)
	if err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "branch-exists", Err: err}
	}
	if !exists {
		return &lferrors.ValidationError{Field: "branch", Reason: fmt.Sprintf("branch %q does not exist", branch)}
	}

	if err := o.git.Fetch(ctx, o.remote); err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "fetch", Err: err}
	}
	return nil
}

func (o *Orchestrator) autoRebase(ctx context.Context, worktreePath string) error {
	onto := o.remote + "/" + o.main
	if err := o.git.Rebase(ctx, worktreePath, onto); err != nil {
		conflicts, cerr := o.git.ConflictedPaths(ctx, worktreePath)
		if cerr != nil || len(conflicts) == 0 {
			o.git.RebaseAbort(ctx, worktreePath)
			return &lferrors.IOError{Path: worktreePath, Op: "rebase", Err: err}
		}
		if rerr := o.resolveConflicts(ctx, worktreePath, conflicts); rerr != nil {
			o.git.RebaseAbort(ctx, worktreePath)
			return rerr
		}
		if err := o.git.RebaseContinue(ctx, worktreePath); err != nil {
			o.git.RebaseAbort(ctx, worktreePath)
			return &lferrors.IOError{Path: worktreePath, Op: "rebase-continue", Err: err}
		}
	}
	return nil
}

// resolveConflicts applies the append-only resolution strategy to
// every conflicted path, refusing (returning an error) if any
// conflict falls outside the declared append-only set.
func (o *Orchestrator) resolveConflicts(ctx context.Context, worktreePath string, conflicts []string) error {
	var toAdd []string
	for _, path := range conflicts {
		kind := Kind(path)
		switch kind {
		case "event-log":
			ours, err := os.ReadFile(worktreePath + "/" + path + ".ours")
			if err != nil {
				return &lferrors.IOError{Path: path, Op: "read-ours", Err: err}
			}
			theirs, err := os.ReadFile(worktreePath + "/" + path + ".theirs")
			if err != nil {
				return &lferrors.IOError{Path: path, Op: "read-theirs", Err: err}
			}
			merged, err := ResolveEventLog(ours, theirs)
			if err != nil {
				return err
			}
			if err := os.WriteFile(worktreePath+"/"+path, merged, 0o644); err != nil {
				return &lferrors.IOError{Path: path, Op: "write-merged", Err: err}
			}
			toAdd = append(toAdd, path)
		case "status", "backlog":
			theirs, err := os.ReadFile(worktreePath + "/" + path + ".theirs")
			if err != nil {
				return &lferrors.IOError{Path: path, Op: "read-theirs", Err: err}
			}
			resolved := ResolveProjection(nil, theirs)
			if err := os.WriteFile(worktreePath+"/"+path, resolved, 0o644); err != nil {
				return &lferrors.IOError{Path: path, Op: "write-resolved", Err: err}
			}
			toAdd = append(toAdd, path)
		default:
			return &lferrors.IOError{Path: path, Op: "resolve-conflict", Err: fmt.Errorf("path %q is not append-only; manual resolution required", path)}
		}
	}
	if len(toAdd) > 0 {
		if err := o.git.Add(ctx, worktreePath, toAdd...); err != nil {
			return &lferrors.IOError{Path: worktreePath, Op: "add", Err: err}
		}
	}

	remaining, err := o.git.ConflictedPaths(ctx, worktreePath)
	if err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "conflicted-paths", Err: err}
	}
	if len(remaining) > 0 {
		return &lferrors.IOError{Path: worktreePath, Op: "assert-no-conflicts", Err: fmt.Errorf("unmerged paths remain: %v", remaining)}
	}
	return nil
}

func (o *Orchestrator) mergeWithRetry(ctx context.Context, worktreePath, branch string) error {
	err := o.retryer.Do(ctx, "merge-fast-forward", func() error {
		if merr := o.git.MergeFastForwardOnly(ctx, worktreePath, branch); merr != nil {
			if rerr := o.autoRebase(ctx, worktreePath); rerr != nil {
				slog.Warn("re-rebase during merge retry failed", "error", rerr)
			}
			return merr
		}
		return nil
	})
	if err != nil {
		isAncestor, aerr := o.git.IsAncestor(ctx, o.main, branch)
		if aerr == nil && !isAncestor {
			return &lferrors.IOError{Path: worktreePath, Op: "merge-exhausted-diverged", Err: err}
		}
		return &lferrors.IOError{Path: worktreePath, Op: "merge-exhausted-stale", Err: err}
	}
	return nil
}

func (o *Orchestrator) cleanupArtifacts(ctx context.Context, worktreePath, wuID string) error {
	diff, err := o.git.DiffPaths(ctx, worktreePath, o.main)
	if err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "diff-paths", Err: err}
	}

	var foreign []string
	for _, p := range diff {
		// A changed stamp file for a WU other than the one being
		// completed indicates the rebase pulled in unrelated stamps;
		// these are removed in a single commit. Stamp files are not one
		// of the declared append-only kinds, so this check is
		// independent of Kind.
		if p != "" && !containsWUID(p, wuID) && isStampPath(p) {
			foreign = append(foreign, p)
		}
	}

	if len(foreign) == 0 {
		return nil
	}

	for _, p := range foreign {
		if err := os.Remove(worktreePath + "/" + p); err != nil && !os.IsNotExist(err) {
			return &lferrors.IOError{Path: p, Op: "remove-foreign-artifact", Err: err}
		}
	}
	if err := o.git.Add(ctx, worktreePath, foreign...); err != nil {
		return &lferrors.IOError{Path: worktreePath, Op: "add", Err: err}
	}
	return o.git.Commit(ctx, worktreePath, "chore: remove foreign artifacts pulled in by rebase")
}

func isStampPath(p string) bool {
	return len(p) > 5 && p[len(p)-5:] == ".done"
}

func containsWUID(path, wuID string) bool {
	return wuID != "" && len(path) >= len(wuID) && indexOf(path, wuID) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
